// Package backup implements the optional, best-effort copy of a session's
// inputs into backups/<base>/ (spec.md §6): the task files actually
// discovered, the arguments file if one was given, and a small session
// metadata JSON blob. No library in the reference pack is exercised purely
// for copying files (spf13/afero appears only as an indirect dependency of
// viper elsewhere in the pack, never imported directly for file I/O), so
// the copy step is implemented against the standard library (documented in
// DESIGN.md); the metadata blob goes through internal/atomicfile so a crash
// mid-write never leaves a half-written metadata.json behind.
package backup

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/parallelr/parallelr/internal/atomicfile"
	"github.com/parallelr/parallelr/internal/logx"
)

// Metadata is the session metadata blob written alongside the backed-up
// inputs.
type Metadata struct {
	SessionID       string    `json:"session_id"`
	CommandTemplate string    `json:"command_template"`
	StartTime       time.Time `json:"start_time"`
	TaskFileCount   int       `json:"task_file_count"`
	ArgumentsFile   string    `json:"arguments_file,omitempty"`
}

// Run copies taskFiles and, if non-empty, argumentsFile into dir, then
// writes metadata.json. Every failure is logged as a warning and otherwise
// ignored, per spec.md §7's "Backup write error: warning only".
func Run(dir string, taskFiles []string, argumentsFile string, meta Metadata, log logx.Logger) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Warn("creating backup directory failed", logx.Str("dir", dir), logx.Err(err))
		return
	}

	for _, f := range taskFiles {
		if err := copyFile(f, filepath.Join(dir, filepath.Base(f))); err != nil {
			log.Warn("backing up task file failed", logx.Str("file", f), logx.Err(err))
		}
	}

	if argumentsFile != "" {
		if err := copyFile(argumentsFile, filepath.Join(dir, filepath.Base(argumentsFile))); err != nil {
			log.Warn("backing up arguments file failed", logx.Str("file", argumentsFile), logx.Err(err))
		}
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		log.Warn("marshaling backup metadata failed", logx.Err(err))
		return
	}
	if err := atomicfile.Write(filepath.Join(dir, "metadata.json"), data, 0644); err != nil {
		log.Warn("writing backup metadata failed", logx.Err(err))
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
