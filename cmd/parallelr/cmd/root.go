// Package cmd wires spf13/cobra flags into a config.ResolvedConfig and a
// taskspec.Input, then drives the Input Expander, Scheduler, and Result
// Sink end to end. Grounded on mensylisir-kubexm's cmd/kubexm/cmd/root.go
// (package-level rootCmd, Execute()); the root command runs a session, and
// ps.go registers the ps and kill subcommands beside it.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/parallelr/parallelr/internal/backup"
	"github.com/parallelr/parallelr/internal/config"
	"github.com/parallelr/parallelr/internal/failurepolicy"
	"github.com/parallelr/parallelr/internal/layout"
	"github.com/parallelr/parallelr/internal/logx"
	"github.com/parallelr/parallelr/internal/monitor"
	"github.com/parallelr/parallelr/internal/pidregistry"
	"github.com/parallelr/parallelr/internal/procrunner"
	"github.com/parallelr/parallelr/internal/resultsink"
	"github.com/parallelr/parallelr/internal/scheduler"
	"github.com/parallelr/parallelr/internal/taskspec"
)

// Exit codes per spec.md §6.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitSignal  = 130
)

var flags struct {
	sources       []string
	extensions    []string
	argumentsFile string
	separator     string
	envNames      []string
	dataRoot      string
	logLevel      string

	maxWorkers       int
	timeoutSeconds   int
	pollWaitMS       int
	startDelayMS     int
	maxOutputCapture int

	stopLimits             bool
	maxConsecutiveFailures int
	maxFailureRate         float64
	minTasksForRateCheck   int

	workspaceIsolation bool
	noProcessGroups    bool
	maxFileSizeBytes   int64
	maxArgumentLength  int

	noTaskOutputLog bool
	noMonitor       bool
	noBackup        bool
	dryRun          bool
}

var rootCmd = &cobra.Command{
	Use:   "parallelr COMMAND_TEMPLATE",
	Short: "parallelr runs a command template over a set of task files and/or argument rows under bounded concurrency.",
	Long: `parallelr discovers task files and/or reads an arguments file, expands them
against a command template into an ordered sequence of tasks, and runs that
sequence under bounded worker concurrency with per-task timeouts, an
optional failure-stop policy, and a line-delimited JSON result stream.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var invoked bool

func init() {
	rootCmd.RunE = func(c *cobra.Command, args []string) error {
		invoked = true
		return runRoot(args[0])
	}
}

// Execute runs the command and returns the process exit code, per
// spec.md §6: 0 success, 1 configuration/validation/startup error,
// 2 CLI usage error, 130 terminated by signal.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}
	if !invoked {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	if ee, ok := err.(*exitError); ok {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, err)
	return exitFailure
}

// exitError carries a specific process exit code out of runRoot without
// cobra printing a redundant "Error:" line for outcomes that already
// logged their own diagnostic.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func init() {
	f := rootCmd.Flags()
	f.StringSliceVar(&flags.sources, "source", nil, "task source: a file, directory, or glob (repeatable)")
	f.StringSliceVar(&flags.extensions, "ext", nil, "restrict discovered task files to these extensions (repeatable)")
	f.StringVar(&flags.argumentsFile, "arguments-file", "", "file of per-task argument rows")
	f.StringVar(&flags.separator, "separator", "", "arguments-file token separator: space, whitespace, tab, comma, semicolon, pipe, colon")
	f.StringSliceVar(&flags.envNames, "env-name", nil, "environment variable name bound to each argument column, in order (repeatable)")
	f.StringVar(&flags.dataRoot, "data-root", "", "per-user data root for logs/backups/pids/workspace (default $HOME/.parallelr)")
	f.StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	f.IntVar(&flags.maxWorkers, "max-workers", 20, "maximum concurrent tasks")
	f.IntVar(&flags.timeoutSeconds, "timeout-seconds", 600, "per-task timeout in seconds")
	f.IntVar(&flags.pollWaitMS, "poll-wait-ms", 100, "resource-monitor sampling interval in milliseconds")
	f.IntVar(&flags.startDelayMS, "start-delay-ms", 0, "minimum spacing between task dispatches in milliseconds")
	f.IntVar(&flags.maxOutputCapture, "max-output-capture", 1000, "characters of stdout/stderr retained per task")

	f.BoolVar(&flags.stopLimits, "stop-limits", false, "enable the failure-stop policy")
	f.IntVar(&flags.maxConsecutiveFailures, "max-consecutive-failures", 5, "consecutive failures before stopping")
	f.Float64Var(&flags.maxFailureRate, "max-failure-rate", 0.5, "failure rate (0..1) before stopping")
	f.IntVar(&flags.minTasksForRateCheck, "min-tasks-for-rate-check", 10, "minimum completed tasks before the failure-rate check applies")

	f.BoolVar(&flags.workspaceIsolation, "workspace-isolation", false, "give each worker its own working directory")
	f.BoolVar(&flags.noProcessGroups, "no-process-groups", false, "do not put child processes in their own process group")
	f.Int64Var(&flags.maxFileSizeBytes, "max-file-size-bytes", 10*1024*1024, "maximum task file size")
	f.IntVar(&flags.maxArgumentLength, "max-argument-length", 4096, "maximum length of a single argv token")

	f.BoolVar(&flags.noTaskOutputLog, "no-task-output-log", false, "disable the per-task human-readable output log")
	f.BoolVar(&flags.noMonitor, "no-monitor", false, "disable memory/CPU sampling")
	f.BoolVar(&flags.noBackup, "no-backup", false, "disable copying inputs into backups/<base>/")
	f.BoolVar(&flags.dryRun, "dry-run", false, "print the expanded task sequence without running anything")
}

func runRoot(template string) error {
	cfg, err := config.NewResolvedConfig(config.ResolvedConfig{
		MaxWorkers:             flags.maxWorkers,
		TimeoutSeconds:         flags.timeoutSeconds,
		PollWait:               time.Duration(flags.pollWaitMS) * time.Millisecond,
		StartDelay:             time.Duration(flags.startDelayMS) * time.Millisecond,
		MaxOutputCapture:       flags.maxOutputCapture,
		StopLimitsEnabled:      flags.stopLimits,
		MaxConsecutiveFailures: flags.maxConsecutiveFailures,
		MaxFailureRate:         flags.maxFailureRate,
		MinTasksForRateCheck:   flags.minTasksForRateCheck,
		WorkspaceIsolation:     flags.workspaceIsolation,
		UseProcessGroups:       !flags.noProcessGroups,
		MaxFileSizeBytes:       flags.maxFileSizeBytes,
		MaxArgumentLength:      flags.maxArgumentLength,
		TaskOutputLogEnabled:   !flags.noTaskOutputLog,
		MonitorEnabled:         !flags.noMonitor,
		BackupEnabled:          !flags.noBackup,
		DryRun:                 flags.dryRun,
	})
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	lay, err := layout.New(flags.dataRoot, os.Getpid(), time.Now())
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	if err := lay.EnsureDirs(); err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	log, logFile, err := logx.New(flags.logLevel, lay.LogFile())
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	if logFile != nil {
		defer logFile.Close()
	}

	registry := pidregistry.New(lay.RegistryFile())
	if _, err := registry.Reap(); err != nil {
		log.Warn("reaping stale pid registry entries failed", logx.Err(err))
	}
	pid := os.Getpid()
	if err := registry.Register(pidregistry.Entry{
		PID: pid, StartTime: time.Now(), LogFile: lay.LogFile(), ResultFile: lay.ResultsFile(),
	}); err != nil {
		log.Warn("registering pid failed", logx.Err(err))
	}
	defer func() {
		if err := registry.Unregister(pid); err != nil {
			log.Warn("unregistering pid failed", logx.Err(err))
		}
	}()

	expander := taskspec.New(cfg, log)
	specs, err := expander.Expand(taskspec.Input{
		Sources:         flags.sources,
		ExtensionFilter: flags.extensions,
		Template:        template,
		ArgumentsFile:   flags.argumentsFile,
		Separator:       flags.separator,
		EnvNames:        flags.envNames,
		WorkspaceRoot:   lay.WorkspaceDir(),
	})
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	if cfg.DryRun {
		for _, s := range specs {
			fmt.Println(s.CommandExecuted())
		}
		return nil
	}

	if cfg.BackupEnabled {
		taskFiles := make([]string, 0, len(specs))
		seen := make(map[string]bool, len(specs))
		for _, s := range specs {
			if s.TaskFilePath != "" && !seen[s.TaskFilePath] {
				seen[s.TaskFilePath] = true
				taskFiles = append(taskFiles, s.TaskFilePath)
			}
		}
		backup.Run(lay.BackupsDir(), taskFiles, flags.argumentsFile, backup.Metadata{
			CommandTemplate: template,
			StartTime:       time.Now(),
			TaskFileCount:   len(taskFiles),
			ArgumentsFile:   flags.argumentsFile,
		}, log)
	}

	sink, err := resultsink.Open(lay.ResultsFile(), outputLogPath(cfg, lay))
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	defer sink.Close()

	sessionID := resultsink.NewSessionID()
	startTime := time.Now()
	if err := sink.WriteSession(sessionID, template, cfg, startTime); err != nil {
		log.Warn("writing session record failed", logx.Err(err))
	}

	runner := procrunner.New(cfg, monitor.New(cfg.MonitorEnabled), log)
	policy := failurepolicy.New(cfg.StopLimitsEnabled, cfg.MaxConsecutiveFailures, cfg.MaxFailureRate, cfg.MinTasksForRateCheck)
	sch := scheduler.New(cfg, runner, policy, sink, log)

	summary := sch.Run(context.Background(), specs)
	resultsink.WriteSummary(os.Stdout, sink.Stats())

	log.Info("run finished",
		logx.Int("dispatched", summary.Dispatched),
		logx.Int("completed", summary.Completed),
		logx.Str("shutdown_reason", string(summary.ShutdownReason)))

	switch summary.ShutdownReason {
	case scheduler.ShutdownSignal:
		return &exitError{code: exitSignal, err: nil}
	case scheduler.ShutdownStopLimit:
		return &exitError{code: exitFailure, err: nil}
	default:
		return nil
	}
}

func outputLogPath(cfg config.ResolvedConfig, lay layout.Layout) string {
	if !cfg.TaskOutputLogEnabled {
		return ""
	}
	return lay.OutputLogFile()
}
