// Package layout computes the per-user data root and per-session file
// names spec.md §6 lists under "Persisted files". Grounded on the
// teacher's Config.get_log_directory (original_source/bin/parallelr.py):
// a directory under the user's home, created on demand, with every
// session's files sharing one PID+timestamp base identifier.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Layout resolves every path a session needs under one data root.
type Layout struct {
	Root string // e.g. $HOME/.parallelr, or an explicit override
	Base string // e.g. "parallelr_8421_20260806-142233.517"
}

// New derives a Layout from dataRoot (if empty, $HOME/.parallelr, falling
// back to the working directory if $HOME is unset) and the given pid and
// timestamp, matching the teacher's "parallelr_<pid>_<timestamp>" base
// identifier.
func New(dataRoot string, pid int, now time.Time) (Layout, error) {
	if dataRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			wd, werr := os.Getwd()
			if werr != nil {
				return Layout{}, werr
			}
			home = wd
		}
		dataRoot = filepath.Join(home, ".parallelr")
	}
	base := fmt.Sprintf("parallelr_%d_%s", pid, now.Format("20060102-150405.000"))
	return Layout{Root: dataRoot, Base: base}, nil
}

func (l Layout) LogsDir() string      { return filepath.Join(l.Root, "logs") }
func (l Layout) BackupsDir() string   { return filepath.Join(l.Root, "backups", l.Base) }
func (l Layout) PIDsDir() string      { return filepath.Join(l.Root, "pids") }
func (l Layout) WorkspaceDir() string { return filepath.Join(l.Root, "workspace") }

func (l Layout) LogFile() string       { return filepath.Join(l.LogsDir(), l.Base+".log") }
func (l Layout) ResultsFile() string   { return filepath.Join(l.LogsDir(), l.Base+"_results.jsonl") }
func (l Layout) OutputLogFile() string { return filepath.Join(l.LogsDir(), l.Base+"_output.txt") }
func (l Layout) RegistryFile() string  { return filepath.Join(l.PIDsDir(), "registry") }

// EnsureDirs creates every directory the session will write into, except
// BackupsDir which Backup creates lazily only if backups are enabled.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.LogsDir(), l.PIDsDir(), l.WorkspaceDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
