package procrunner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parallelr/parallelr/internal/config"
	"github.com/parallelr/parallelr/internal/logx"
	"github.com/parallelr/parallelr/internal/monitor"
	"github.com/parallelr/parallelr/internal/taskresult"
)

func newRunner(t *testing.T, cfg config.ResolvedConfig) *Runner {
	t.Helper()
	return New(cfg, monitor.New(false), logx.Nop())
}

func baseSpec(argv []string) taskresult.Spec {
	return taskresult.Spec{Index: 1, Total: 1, ArgvTemplate: argv, WorkingDirectory: "."}
}

func TestRun_Success(t *testing.T) {
	cfg := config.Default()
	cfg.TimeoutSeconds = 5
	r := newRunner(t, cfg)

	result := r.Run(context.Background(), baseSpec([]string{"/bin/sh", "-c", "echo hello; exit 0"}), 0)
	require.Equal(t, taskresult.StatusSuccess, result.Status)
	require.NotNil(t, result.ExitCode)
	require.Equal(t, 0, *result.ExitCode)
	require.Contains(t, result.StdoutTail, "hello")
}

func TestRun_NonZeroExit(t *testing.T) {
	cfg := config.Default()
	cfg.TimeoutSeconds = 5
	r := newRunner(t, cfg)

	result := r.Run(context.Background(), baseSpec([]string{"/bin/sh", "-c", "exit 7"}), 0)
	require.Equal(t, taskresult.StatusFailed, result.Status)
	require.NotNil(t, result.ExitCode)
	require.Equal(t, 7, *result.ExitCode)
	require.Equal(t, "exit code 7", result.ErrorMessage)
}

func TestRun_Timeout(t *testing.T) {
	cfg := config.Default()
	cfg.TimeoutSeconds = 1
	r := newRunner(t, cfg)

	start := time.Now()
	result := r.Run(context.Background(), baseSpec([]string{"/bin/sh", "-c", "sleep 60 & sleep 60 & wait"}), 0)
	elapsed := time.Since(start)

	require.Equal(t, taskresult.StatusTimeout, result.Status)
	require.Nil(t, result.ExitCode)
	require.Less(t, elapsed, 8*time.Second)
}

func TestRun_Cancellation(t *testing.T) {
	cfg := config.Default()
	cfg.TimeoutSeconds = 30
	r := newRunner(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	result := r.Run(ctx, baseSpec([]string{"/bin/sh", "-c", "sleep 30"}), 0)
	require.Equal(t, taskresult.StatusCancelled, result.Status)
}

func TestRun_LaunchError(t *testing.T) {
	cfg := config.Default()
	r := newRunner(t, cfg)

	result := r.Run(context.Background(), baseSpec([]string{"/no/such/binary-xyz"}), 0)
	require.Equal(t, taskresult.StatusLaunchError, result.Status)
	require.NotEmpty(t, result.ErrorMessage)
}

func TestRun_EnvBindingsOverrideParentEnv(t *testing.T) {
	cfg := config.Default()
	cfg.TimeoutSeconds = 5
	r := newRunner(t, cfg)

	spec := baseSpec([]string{"/bin/sh", "-c", "echo $HOST"})
	spec.EnvBindings = []taskresult.EnvBinding{{Name: "HOST", Value: "alpha"}}

	result := r.Run(context.Background(), spec, 0)
	require.Equal(t, taskresult.StatusSuccess, result.Status)
	require.Contains(t, result.StdoutTail, "alpha")
}
