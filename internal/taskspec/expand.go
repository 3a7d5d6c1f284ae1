// Package taskspec implements the Input Expander (spec.md §4.1 / C1): it
// turns task sources, an optional arguments-file, and a command template
// into the finite, ordered sequence of Task Specs the Scheduler dispatches.
// Grounded on the teacher's internal/core task-discovery glob/sort pattern
// (deleted alongside the rest of internal/core once its DAG coupling made
// it unadaptable) and internal/dag's validate-before-run discipline: every
// failure here is reported before any Task Spec is produced, never
// discovered mid-run.
package taskspec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parallelr/parallelr/internal/config"
	"github.com/parallelr/parallelr/internal/errs"
	"github.com/parallelr/parallelr/internal/logx"
	"github.com/parallelr/parallelr/internal/shellword"
	"github.com/parallelr/parallelr/internal/taskresult"
)

// Input collects everything the Input Expander needs, per spec.md §4.1.
type Input struct {
	Sources         []string // task-source paths: directories, files, or globs
	ExtensionFilter []string // e.g. []string{".txt"}; empty means no filter
	Template        string   // command template containing @TASK@/@ARG@/@ARG_i@
	ArgumentsFile   string   // optional
	Separator       string   // one of "", space, whitespace, tab, comma, semicolon, pipe, colon
	EnvNames        []string // optional, ordered

	WorkspaceRoot string // absolute; used verbatim when WorkspaceIsolation is off
}

// Expander resolves an Input into an ordered []taskresult.Spec.
type Expander struct {
	Config config.ResolvedConfig
	Logger logx.Logger
}

func New(cfg config.ResolvedConfig, log logx.Logger) *Expander {
	return &Expander{Config: cfg, Logger: log}
}

// Expand implements spec.md §4.1 end to end. It never partially succeeds:
// either the full ordered sequence is returned, or an error describing the
// first validation failure is, before any Task Spec exists.
func (e *Expander) Expand(in Input) ([]taskresult.Spec, error) {
	hasArgsFile := in.ArgumentsFile != ""
	hasSources := len(in.Sources) > 0

	if !hasArgsFile && !hasSources {
		return nil, errs.NewSpecValidationError("no task sources and no arguments-file provided")
	}
	if strings.TrimSpace(in.Template) == "" {
		return nil, errs.NewSpecValidationError("command template is empty")
	}

	var files []string
	if hasSources {
		var err error
		files, err = discoverFiles(in.Sources, in.ExtensionFilter)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if err := validateTaskFile(f, e.Config.MaxFileSizeBytes); err != nil {
				return nil, err
			}
		}
	}

	var rows []argRow
	k := 0
	boundEnv := in.EnvNames
	if hasArgsFile {
		var err error
		rows, k, boundEnv, err = parseArgumentsFile(in.ArgumentsFile, in.Separator, in.EnvNames, e.Logger)
		if err != nil {
			return nil, err
		}
	}

	if err := validateTemplate(in.Template, hasArgsFile, k, hasSources, in.Separator != ""); err != nil {
		return nil, err
	}

	pairs, err := buildPairs(files, rows)
	if err != nil {
		return nil, err
	}

	total := len(pairs)
	pid := os.Getpid()
	workspaceRoot := in.WorkspaceRoot
	if workspaceRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errs.WrapSpecValidationError("resolving default workspace root", err)
		}
		workspaceRoot = filepath.Join(wd, "workspace")
	}

	specs := make([]taskresult.Spec, 0, total)
	for idx, p := range pairs {
		index := idx + 1

		commandStr, err := substitute(in.Template, p.taskFile, p.args)
		if err != nil {
			return nil, err
		}
		argv, err := shellword.Split(commandStr)
		if err != nil {
			return nil, errs.WrapSpecValidationError(fmt.Sprintf("tokenizing command for task #%d", index), err)
		}
		for _, tok := range argv {
			if len(tok) > e.Config.MaxArgumentLength {
				return nil, errs.NewSpecValidationError(fmt.Sprintf(
					"task #%d: argument token exceeds max_argument_length (%d > %d)", index, len(tok), e.Config.MaxArgumentLength))
			}
		}

		workDir, err := workingDirectory(workspaceRoot, e.Config.WorkspaceIsolation, pid, e.Config.MaxWorkers, index)
		if err != nil {
			return nil, errs.WrapSpecValidationError(fmt.Sprintf("task #%d: preparing working directory", index), err)
		}

		specs = append(specs, taskresult.Spec{
			Index:            index,
			Total:            total,
			TaskFilePath:     p.taskFile,
			ArgvTemplate:     argv,
			EnvBindings:      bindEnv(boundEnv, p.args),
			Arguments:        p.args,
			WorkingDirectory: workDir,
		})
	}

	return specs, nil
}

type pair struct {
	taskFile string
	args     []string
}

// buildPairs implements spec.md §4.1's output ordering: sorted task files
// only, or argument lines in file order, or the Cartesian product in
// (file-major, line-minor) order when both are present.
func buildPairs(files []string, rows []argRow) ([]pair, error) {
	switch {
	case len(files) > 0 && len(rows) > 0:
		pairs := make([]pair, 0, len(files)*len(rows))
		for _, f := range files {
			for _, r := range rows {
				pairs = append(pairs, pair{taskFile: f, args: r.tokens})
			}
		}
		return pairs, nil
	case len(files) > 0:
		pairs := make([]pair, 0, len(files))
		for _, f := range files {
			pairs = append(pairs, pair{taskFile: f})
		}
		return pairs, nil
	case len(rows) > 0:
		pairs := make([]pair, 0, len(rows))
		for _, r := range rows {
			pairs = append(pairs, pair{args: r.tokens})
		}
		return pairs, nil
	default:
		return nil, errs.NewSpecValidationError("no task files and no argument rows produced")
	}
}

func bindEnv(names []string, args []string) []taskresult.EnvBinding {
	if len(names) == 0 {
		return nil
	}
	n := len(names)
	if len(args) < n {
		n = len(args)
	}
	out := make([]taskresult.EnvBinding, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, taskresult.EnvBinding{Name: names[i], Value: args[i]})
	}
	return out
}
