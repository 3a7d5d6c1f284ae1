package taskspec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parallelr/parallelr/internal/config"
	"github.com/parallelr/parallelr/internal/logx"
)

func newExpander(t *testing.T) *Expander {
	t.Helper()
	return New(config.Default(), logx.Nop())
}

func writeArgsFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "args.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

// S1: happy path, single-argument env mode.
func TestExpand_S1_SingleArgumentEnvMode(t *testing.T) {
	argsFile := writeArgsFile(t, "alpha\nbeta\ngamma\n")
	e := newExpander(t)

	specs, err := e.Expand(Input{
		ArgumentsFile: argsFile,
		EnvNames:      []string{"HOST"},
		Template:      "bash template.sh",
		WorkspaceRoot: t.TempDir(),
	})
	require.NoError(t, err)
	require.Len(t, specs, 3)

	want := []string{"alpha", "beta", "gamma"}
	for i, s := range specs {
		require.Equal(t, []string{"bash", "template.sh"}, s.ArgvTemplate)
		require.Equal(t, []string{want[i]}, s.Arguments)
		require.Equal(t, "HOST", s.EnvBindings[0].Name)
		require.Equal(t, want[i], s.EnvBindings[0].Value)
		require.Equal(t, i+1, s.Index)
		require.Equal(t, 3, s.Total)
	}
}

// S2: multi-column with indexed placeholders.
func TestExpand_S2_MultiColumnIndexedPlaceholders(t *testing.T) {
	argsFile := writeArgsFile(t, "a,1,prod\nb,2,dev\n")
	e := newExpander(t)

	specs, err := e.Expand(Input{
		ArgumentsFile: argsFile,
		Separator:     "comma",
		EnvNames:      []string{"HOST", "PORT", "ENV"},
		Template:      "/bin/echo @ARG_1@ @ARG_2@ @ARG_3@",
		WorkspaceRoot: t.TempDir(),
	})
	require.NoError(t, err)
	require.Len(t, specs, 2)

	require.Equal(t, []string{"a", "1", "prod"}, specs[0].Arguments)
	require.Contains(t, specs[0].CommandExecuted(), "echo a 1 prod")
	require.Equal(t, []string{"b", "2", "dev"}, specs[1].Arguments)
}

// S3: inconsistent column count fails before any Task Spec is produced.
func TestExpand_S3_InconsistentColumnCountFails(t *testing.T) {
	argsFile := writeArgsFile(t, "a,1\nb,2,3\n")
	e := newExpander(t)

	specs, err := e.Expand(Input{
		ArgumentsFile: argsFile,
		Separator:     "comma",
		Template:      "/bin/echo @ARG_1@",
		WorkspaceRoot: t.TempDir(),
	})
	require.Error(t, err)
	require.Nil(t, specs)
	require.Contains(t, err.Error(), "inconsistent argument counts")
}

// Arguments-file round-trip property (spec.md §8 property 9): count of
// lines-with-content equals count of task records produced, when no
// per-file tasks are also given.
func TestExpand_ArgumentsFileRoundTrip(t *testing.T) {
	contents := "# comment\nalpha\n\nbeta\n  \ngamma\ndelta\n"
	wantCount := 0
	for _, line := range strings.Split(contents, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		wantCount++
	}

	argsFile := writeArgsFile(t, contents)
	e := newExpander(t)

	specs, err := e.Expand(Input{
		ArgumentsFile: argsFile,
		Template:      "echo @ARG@",
		WorkspaceRoot: t.TempDir(),
	})
	require.NoError(t, err)
	require.Len(t, specs, wantCount)
}

func TestExpand_TaskFilesOnly(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt", "c.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	e := newExpander(t)
	specs, err := e.Expand(Input{
		Sources:         []string{dir},
		ExtensionFilter: []string{".txt"},
		Template:        "cat @TASK@",
		WorkspaceRoot:   t.TempDir(),
	})
	require.NoError(t, err)
	require.Len(t, specs, 2)
	require.True(t, strings.HasSuffix(specs[0].TaskFilePath, "a.txt"))
	require.True(t, strings.HasSuffix(specs[1].TaskFilePath, "b.txt"))
	require.Equal(t, []string{"cat", specs[0].TaskFilePath}, specs[0].ArgvTemplate)
}

func TestExpand_CartesianFileMajorLineMinor(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	argsFile := writeArgsFile(t, "1\n2\n")

	e := newExpander(t)
	specs, err := e.Expand(Input{
		Sources:       []string{dir},
		ArgumentsFile: argsFile,
		Template:      "run @TASK@ @ARG@",
		WorkspaceRoot: t.TempDir(),
	})
	require.NoError(t, err)
	require.Len(t, specs, 4)
	require.True(t, strings.HasSuffix(specs[0].TaskFilePath, "a.txt"))
	require.Equal(t, "1", specs[0].Arguments[0])
	require.True(t, strings.HasSuffix(specs[1].TaskFilePath, "a.txt"))
	require.Equal(t, "2", specs[1].Arguments[0])
	require.True(t, strings.HasSuffix(specs[2].TaskFilePath, "b.txt"))
}

func TestExpand_UnmatchedArgPlaceholderWithoutArgsFile(t *testing.T) {
	e := newExpander(t)
	_, err := e.Expand(Input{
		Sources:       []string{writeArgsFile(t, "x")}, // reuse as a plain file source
		Template:      "echo @ARG@",
		WorkspaceRoot: t.TempDir(),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unmatched argument placeholder")
}

func TestExpand_PlaceholderIndexOutOfRange(t *testing.T) {
	argsFile := writeArgsFile(t, "a,b\n")
	e := newExpander(t)
	_, err := e.Expand(Input{
		ArgumentsFile: argsFile,
		Separator:     "comma",
		Template:      "echo @ARG_1@ @ARG_5@",
		WorkspaceRoot: t.TempDir(),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "placeholder index out of range")
	require.Contains(t, err.Error(), "@ARG_5@")
}

func TestExpand_SeparatorWithoutArgumentsFileFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))
	e := newExpander(t)
	_, err := e.Expand(Input{
		Sources:       []string{dir},
		Separator:     "comma",
		Template:      "cat @TASK@",
		WorkspaceRoot: t.TempDir(),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "separator requires an arguments-file")
}

func TestExpand_WorkspaceIsolationAssignsPerWorkerDirs(t *testing.T) {
	argsFile := writeArgsFile(t, "1\n2\n3\n")
	cfg := config.Default()
	cfg.WorkspaceIsolation = true
	cfg.MaxWorkers = 2
	e := New(cfg, logx.Nop())

	root := t.TempDir()
	specs, err := e.Expand(Input{
		ArgumentsFile: argsFile,
		Template:      "echo @ARG@",
		WorkspaceRoot: root,
	})
	require.NoError(t, err)
	require.Len(t, specs, 3)
	require.Contains(t, specs[0].WorkingDirectory, "_worker0")
	require.Contains(t, specs[1].WorkingDirectory, "_worker1")
	require.Contains(t, specs[2].WorkingDirectory, "_worker0")
}
