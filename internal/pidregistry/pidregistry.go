// Package pidregistry implements the PID Registry (spec.md §4.4 / C4): a
// single shared file recording every currently-running scheduler instance,
// so a companion tool can list or kill them across process boundaries.
// Locking is grounded on the Python original's fcntl.flock
// (original_source/bin/parallelr.py) via golang.org/x/sys/unix.Flock;
// rewrites truncate and write through the same locked descriptor rather
// than renaming a new inode over the path, so every mutation stays under
// the one flock that serializes them.
package pidregistry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/parallelr/parallelr/internal/errs"
)

// Entry is one line-delimited JSON record in the registry file.
type Entry struct {
	PID        int       `json:"pid"`
	StartTime  time.Time `json:"start_time"`
	LogFile    string    `json:"log_file"`
	ResultFile string    `json:"result_file"`
}

// Registry guards one shared file with an advisory flock, per spec.md §4.4's
// "all four file mutations serialize via the same advisory lock" invariant.
type Registry struct {
	path string
}

func New(path string) *Registry {
	return &Registry{path: path}
}

func (r *Registry) Path() string { return r.path }

// withLock opens (creating if absent) the registry file, takes an exclusive
// blocking flock for the duration of fn, and always releases it.
func (r *Registry) withLock(fn func(f *os.File) error) error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return errs.NewRegistryError("open", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return errs.NewRegistryError("flock", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	return fn(f)
}

func readEntries(f *os.File) ([]Entry, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // a corrupt line is skipped, not fatal to the registry
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// Register appends one entry under lock (spec.md §4.4 Register).
func (r *Registry) Register(e Entry) error {
	return r.withLock(func(f *os.File) error {
		entries, err := readEntries(f)
		if err != nil {
			return errs.NewRegistryError("register", err)
		}
		entries = append(entries, e)
		return rewriteLocked(f, entries)
	})
}

// Unregister removes every entry with the given PID (spec.md §4.4
// Unregister). If no entries remain, the file itself is removed.
func (r *Registry) Unregister(pid int) error {
	return r.withLock(func(f *os.File) error {
		entries, err := readEntries(f)
		if err != nil {
			return errs.NewRegistryError("unregister", err)
		}
		var kept []Entry
		for _, e := range entries {
			if e.PID != pid {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
				return errs.NewRegistryError("unregister", err)
			}
			return nil
		}
		return rewriteLocked(f, kept)
	})
}

// reapLocked drops entries whose PID no longer exists on the OS. Must be
// called with the lock held (the caller's withLock closure).
func reapLocked(entries []Entry) []Entry {
	var live []Entry
	for _, e := range entries {
		if pidAlive(e.PID) {
			live = append(live, e)
		}
	}
	return live
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == syscall.EPERM // exists but owned by someone else
}

// Reap implements spec.md §4.4 Reap stale: keep only entries whose PID is
// still alive, rewriting the file (or removing it if now empty). It runs at
// scheduler startup and before every List.
func (r *Registry) Reap() ([]Entry, error) {
	var result []Entry
	err := r.withLock(func(f *os.File) error {
		entries, err := readEntries(f)
		if err != nil {
			return errs.NewRegistryError("reap", err)
		}
		live := reapLocked(entries)
		result = live
		if len(live) == len(entries) {
			return nil // nothing changed; avoid a pointless rewrite
		}
		if len(live) == 0 {
			if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
				return errs.NewRegistryError("reap", err)
			}
			return nil
		}
		return rewriteLocked(f, live)
	})
	return result, err
}

// List reaps, then returns every surviving entry (spec.md §4.4 List).
func (r *Registry) List() ([]Entry, error) {
	return r.Reap()
}

// rewriteLocked replaces the registry file's contents in place through f,
// the same descriptor the caller's withLock holds the flock on. A
// rename-based replacement would swap in a new inode that the held lock
// does not cover, letting a second mutator blocked on the lock wake up,
// acquire it, and operate on the stale unlinked inode once its holder
// releases it. Truncating and writing through f keeps every mutation under
// the one lock that serializes them.
func rewriteLocked(f *os.File, entries []Entry) error {
	var buf []byte
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return errs.NewRegistryError("marshal", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	if err := f.Truncate(0); err != nil {
		return errs.NewRegistryError("rewrite", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return errs.NewRegistryError("rewrite", err)
	}
	if _, err := f.Write(buf); err != nil {
		return errs.NewRegistryError("rewrite", err)
	}
	if err := f.Sync(); err != nil {
		return errs.NewRegistryError("rewrite", err)
	}
	return nil
}

// Kill implements the signalling part of spec.md §4.4 Kill: SIGTERM, wait up
// to 3s, escalate to SIGKILL if still alive. It does not touch the registry
// file; callers unregister the pid themselves.
func Kill(pid int, waitFor func(pid int, d time.Duration) bool) error {
	if !pidAlive(pid) {
		return fmt.Errorf("pid %d is not running", pid)
	}
	_ = syscall.Kill(pid, syscall.SIGTERM)
	if waitFor(pid, 3*time.Second) {
		return nil
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)
	return nil
}

// WaitForExit polls pidAlive until it is false or d elapses. It is the
// default waitFor implementation Kill expects.
func WaitForExit(pid int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !pidAlive(pid)
}
