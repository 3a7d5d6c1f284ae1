package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/parallelr/parallelr/internal/layout"
	"github.com/parallelr/parallelr/internal/pidregistry"
)

// psDataRoot lets `ps`/`kill` point at a data root other than the default,
// mirroring root.go's --data-root but scoped to these two subcommands since
// they never construct a full Layout for a session.
var psDataRoot string

// Grounded on mensylisir-kubexm's cmd/kubexm/cmd/node/list.go: a borderless
// tablewriter render of one resource kind, with a one-line fallback when
// the result set is empty.
var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List currently running parallelr instances",
	Long: `ps reaps stale entries from the shared PID registry (instances whose
process no longer exists) and prints every instance still running.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(c *cobra.Command, args []string) error {
		invoked = true
		registry, err := openRegistry(psDataRoot)
		if err != nil {
			return err
		}
		entries, err := registry.List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no parallelr instances running")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"PID", "STARTED", "LOG FILE", "RESULT FILE"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetCenterSeparator("")
		table.SetColumnSeparator("")
		table.SetRowSeparator("")
		table.SetHeaderLine(false)
		table.SetTablePadding("\t")
		table.SetNoWhiteSpace(true)
		for _, e := range entries {
			table.Append([]string{
				fmt.Sprintf("%d", e.PID),
				e.StartTime.Format(time.RFC3339),
				e.LogFile,
				e.ResultFile,
			})
		}
		table.Render()
		return nil
	},
}

var killCmd = &cobra.Command{
	Use:   "kill [pid]",
	Short: "Terminate one or every registered parallelr instance",
	Long: `kill sends SIGTERM to the given pid, waits up to 3 seconds, escalates to
SIGKILL if it is still alive, then removes it from the registry regardless.
With --all, every live registered instance is killed; --all requires --yes
since it is not reversible.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(c *cobra.Command, args []string) error {
		invoked = true
		if killAll {
			if !killYes {
				return fmt.Errorf("kill --all requires --yes to confirm")
			}
			return killAllInstances(psDataRoot)
		}
		if len(args) != 1 {
			return fmt.Errorf("kill requires a pid, or --all")
		}
		var pid int
		if _, err := fmt.Sscanf(args[0], "%d", &pid); err != nil {
			return fmt.Errorf("invalid pid %q", args[0])
		}
		killErr := pidregistry.Kill(pid, pidregistry.WaitForExit)
		registry, err := openRegistry(psDataRoot)
		if err != nil {
			return err
		}
		if err := registry.Unregister(pid); err != nil {
			return err
		}
		if killErr != nil {
			return killErr
		}
		color.Green("killed pid %d", pid)
		return nil
	},
}

var (
	killAll bool
	killYes bool
)

func init() {
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(killCmd)

	psCmd.Flags().StringVar(&psDataRoot, "data-root", "", "per-user data root containing pids/registry (default $HOME/.parallelr)")
	killCmd.Flags().StringVar(&psDataRoot, "data-root", "", "per-user data root containing pids/registry (default $HOME/.parallelr)")
	killCmd.Flags().BoolVar(&killAll, "all", false, "kill every registered instance")
	killCmd.Flags().BoolVar(&killYes, "yes", false, "confirm --all (required)")
}

func openRegistry(dataRoot string) (*pidregistry.Registry, error) {
	lay, err := layout.New(dataRoot, os.Getpid(), time.Now())
	if err != nil {
		return nil, err
	}
	return pidregistry.New(lay.RegistryFile()), nil
}

// killAllInstances implements spec.md §4.4 Kill all: apply Kill to every
// live entry. Confirmation is the caller's responsibility (--yes above).
func killAllInstances(dataRoot string) error {
	registry, err := openRegistry(dataRoot)
	if err != nil {
		return err
	}
	entries, err := registry.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no parallelr instances running")
		return nil
	}
	for _, e := range entries {
		if err := pidregistry.Kill(e.PID, pidregistry.WaitForExit); err != nil {
			fmt.Fprintf(os.Stderr, "killing pid %d: %v\n", e.PID, err)
			continue
		}
		if err := registry.Unregister(e.PID); err != nil {
			fmt.Fprintf(os.Stderr, "unregistering pid %d: %v\n", e.PID, err)
			continue
		}
		color.Green("killed pid %d", e.PID)
	}
	return nil
}
