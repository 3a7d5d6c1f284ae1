package main

import (
	"os"

	"github.com/parallelr/parallelr/cmd/parallelr/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
