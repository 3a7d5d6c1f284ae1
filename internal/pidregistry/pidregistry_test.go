package pidregistry

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "registry.jsonl"))
}

func TestRegister_Unregister(t *testing.T) {
	r := newTestRegistry(t)
	e := Entry{PID: os.Getpid(), StartTime: time.Now(), LogFile: "a.log", ResultFile: "a.jsonl"}

	require.NoError(t, r.Register(e))
	entries, err := r.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, e.PID, entries[0].PID)

	require.NoError(t, r.Unregister(e.PID))
	_, err = os.Stat(r.Path())
	require.True(t, os.IsNotExist(err))
}

func TestReap_DropsStalePIDs(t *testing.T) {
	r := newTestRegistry(t)

	cmd := exec.Command("/bin/sleep", "30")
	require.NoError(t, cmd.Start())
	stalePID := cmd.Process.Pid
	require.NoError(t, cmd.Process.Kill())
	cmd.Wait()

	require.NoError(t, r.Register(Entry{PID: os.Getpid(), StartTime: time.Now()}))
	require.NoError(t, r.Register(Entry{PID: stalePID, StartTime: time.Now()}))

	entries, err := r.Reap()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, os.Getpid(), entries[0].PID)
}

// Reap idempotence property (spec.md §8 property 7): running reap twice in
// a row yields the same contents as running it once.
func TestReap_Idempotent(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(Entry{PID: os.Getpid(), StartTime: time.Now()}))

	first, err := r.Reap()
	require.NoError(t, err)
	second, err := r.Reap()
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestReap_RemovesFileWhenEmpty(t *testing.T) {
	r := newTestRegistry(t)

	cmd := exec.Command("/bin/sleep", "30")
	require.NoError(t, cmd.Start())
	stalePID := cmd.Process.Pid
	require.NoError(t, cmd.Process.Kill())
	cmd.Wait()

	require.NoError(t, r.Register(Entry{PID: stalePID, StartTime: time.Now()}))
	entries, err := r.Reap()
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = os.Stat(r.Path())
	require.True(t, os.IsNotExist(err))
}

func TestList_OnMissingFileReturnsEmpty(t *testing.T) {
	r := newTestRegistry(t)
	entries, err := r.List()
	require.NoError(t, err)
	require.Empty(t, entries)
}
