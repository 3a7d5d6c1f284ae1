package taskspec

import (
	"fmt"
	"os"
	"path/filepath"
)

// workingDirectory returns the shared workspace root by default, or a
// subdirectory pid{PID}_worker{N} when workspace_isolation is enabled. N is
// (specIndex-1) modulo maxWorkers, fixed at expansion time because the Input
// Expander runs before any worker goroutine exists. The Scheduler hands out
// worker IDs independently of N, so N need not equal the task's worker ID,
// and two specs with the same N can run at the same time in the same
// directory.
func workingDirectory(root string, isolate bool, pid, maxWorkers, specIndex int) (string, error) {
	if !isolate {
		return root, nil
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	slot := (specIndex - 1) % maxWorkers
	dir := filepath.Join(root, fmt.Sprintf("pid%d_worker%d", pid, slot))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
