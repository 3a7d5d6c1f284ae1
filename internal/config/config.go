// Package config defines the Resolved Configuration (spec.md §3): an
// immutable, pre-validated object the scheduler receives. Layered file/env
// parsing that produces one is out of scope for this module (spec.md §1);
// Validate enforces the numeric bounds the way the teacher's LimitsConfig
// clamps-and-rejects in original_source/bin/parallelr.py, translated from
// clamp-on-read to reject-on-validate.
package config

import (
	"time"

	"github.com/parallelr/parallelr/internal/errs"
)

// ResolvedConfig is immutable after NewResolvedConfig validates it.
type ResolvedConfig struct {
	MaxWorkers       int
	TimeoutSeconds   int
	PollWait         time.Duration
	StartDelay       time.Duration
	MaxOutputCapture int

	StopLimitsEnabled      bool
	MaxConsecutiveFailures int
	MaxFailureRate         float64
	MinTasksForRateCheck   int

	WorkspaceIsolation bool
	UseProcessGroups   bool
	MaxFileSizeBytes   int64
	MaxArgumentLength  int

	TaskOutputLogEnabled bool
	MonitorEnabled       bool
	BackupEnabled        bool

	// DryRun, when true, causes the Input Expander's output to be printed
	// without ever invoking the Process Runner (spec.md §12 supplemented
	// feature, grounded on original_source/tests/integration/test_dry_run.py).
	DryRun bool
}

// Default returns the teacher's documented defaults (max_workers=20,
// timeout=600s, wait_time=0.1s, max_output_capture=1000, ...), pre-validated.
func Default() ResolvedConfig {
	return ResolvedConfig{
		MaxWorkers:             20,
		TimeoutSeconds:         600,
		PollWait:               100 * time.Millisecond,
		StartDelay:             0,
		MaxOutputCapture:       1000,
		StopLimitsEnabled:      false,
		MaxConsecutiveFailures: 5,
		MaxFailureRate:         0.5,
		MinTasksForRateCheck:   10,
		WorkspaceIsolation:     false,
		UseProcessGroups:       true,
		MaxFileSizeBytes:       10 * 1024 * 1024,
		MaxArgumentLength:      4096,
		TaskOutputLogEnabled:   true,
		MonitorEnabled:         true,
		BackupEnabled:          true,
	}
}

// Validate enforces every bound named in spec.md §3. It returns the first
// violation found as a *errs.ConfigError.
func (c ResolvedConfig) Validate() error {
	switch {
	case c.MaxWorkers < 1 || c.MaxWorkers > 100:
		return errs.NewConfigError("max_workers", "must be between 1 and 100")
	case c.TimeoutSeconds < 1 || c.TimeoutSeconds > 3600:
		return errs.NewConfigError("timeout_seconds", "must be between 1 and 3600")
	case c.PollWait < 10*time.Millisecond || c.PollWait > 10*time.Second:
		return errs.NewConfigError("poll_wait_seconds", "must be between 0.01 and 10.0")
	case c.StartDelay < 0 || c.StartDelay > 60*time.Second:
		return errs.NewConfigError("start_delay_seconds", "must be between 0 and 60")
	case c.MaxOutputCapture < 1 || c.MaxOutputCapture > 10000:
		return errs.NewConfigError("max_output_capture", "must be between 1 and 10000")
	case c.MaxConsecutiveFailures < 1:
		return errs.NewConfigError("max_consecutive_failures", "must be >= 1")
	case c.MaxFailureRate < 0.0 || c.MaxFailureRate > 1.0:
		return errs.NewConfigError("max_failure_rate", "must be between 0.0 and 1.0")
	case c.MinTasksForRateCheck < 1:
		return errs.NewConfigError("min_tasks_for_rate_check", "must be >= 1")
	case c.MaxFileSizeBytes <= 0:
		return errs.NewConfigError("max_file_size_bytes", "must be positive")
	case c.MaxArgumentLength <= 0:
		return errs.NewConfigError("max_argument_length", "must be positive")
	}
	return nil
}

// NewResolvedConfig validates cfg and returns it unchanged, or an error.
// Callers should treat the returned value as immutable.
func NewResolvedConfig(cfg ResolvedConfig) (ResolvedConfig, error) {
	if err := cfg.Validate(); err != nil {
		return ResolvedConfig{}, err
	}
	return cfg, nil
}
