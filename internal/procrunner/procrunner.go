// Package procrunner implements the Process Runner (spec.md §4.3 / C3): it
// launches one Task Spec, streams its output into two Output Rings, enforces
// the per-task deadline with an escalating termination sequence, optionally
// samples resource usage, and always produces a Task Result, never a Go
// error. Grounded on the teacher's internal/dag.Executor worker-goroutine
// pattern for the launch/wait/cancel shape, and on
// original_source/bin/parallelr.py's run_task for the SIGTERM-then-SIGKILL
// process-group escalation and the exit-code/timeout/cancellation status
// mapping.
package procrunner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/parallelr/parallelr/internal/config"
	"github.com/parallelr/parallelr/internal/errs"
	"github.com/parallelr/parallelr/internal/logx"
	"github.com/parallelr/parallelr/internal/monitor"
	"github.com/parallelr/parallelr/internal/outputring"
	"github.com/parallelr/parallelr/internal/taskresult"
)

const terminateGrace = 5 * time.Second

// Runner executes Task Specs. One Runner is shared across worker goroutines;
// it holds no per-task state.
type Runner struct {
	Config  config.ResolvedConfig
	Monitor monitor.Capability
	Logger  logx.Logger
}

func New(cfg config.ResolvedConfig, mon monitor.Capability, logger logx.Logger) *Runner {
	return &Runner{Config: cfg, Monitor: mon, Logger: logger}
}

// Run blocks until the Task Spec's process has exited, been killed, or been
// cancelled via ctx, and returns a fully populated Task Result. WorkerID is
// stamped onto the result for the Result Sink; it plays no role in
// execution.
func (r *Runner) Run(ctx context.Context, spec taskresult.Spec, workerID int) taskresult.Result {
	start := time.Now()
	result := taskresult.Result{Spec: spec, WorkerID: workerID, StartTime: start}

	if len(spec.ArgvTemplate) == 0 {
		return r.launchError(result, "empty command", nil)
	}

	cmd := exec.Command(spec.ArgvTemplate[0], spec.ArgvTemplate[1:]...)
	cmd.Dir = spec.WorkingDirectory
	cmd.Env = buildEnv(spec.EnvBindings)
	cmd.Stdin = nil
	if r.Config.UseProcessGroups {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	stdoutRing := outputring.New(r.Config.MaxOutputCapture)
	stderrRing := outputring.New(r.Config.MaxOutputCapture)

	// Own pipes rather than cmd.StdoutPipe()/StderrPipe(): those are closed
	// by cmd.Wait() as soon as the process exits, which races the drain
	// goroutines' in-flight Read calls per the os/exec docs ("it is
	// incorrect to call Wait before all reads have completed"). With our
	// own pipe we close the write end ourselves right after Start and let
	// Wait run independently of the read side.
	stdoutRead, stdoutWrite, err := os.Pipe()
	if err != nil {
		return r.launchError(result, "opening stdout pipe", err)
	}
	stderrRead, stderrWrite, err := os.Pipe()
	if err != nil {
		stdoutRead.Close()
		stdoutWrite.Close()
		return r.launchError(result, "opening stderr pipe", err)
	}
	cmd.Stdout = stdoutWrite
	cmd.Stderr = stderrWrite

	if err := cmd.Start(); err != nil {
		stdoutRead.Close()
		stdoutWrite.Close()
		stderrRead.Close()
		stderrWrite.Close()
		return r.launchError(result, "starting process", err)
	}
	stdoutWrite.Close()
	stderrWrite.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go drain(&wg, stdoutRead, stdoutRing)
	go drain(&wg, stderrRead, stderrRing)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	monCtx, stopMon := context.WithCancel(context.Background())
	peak := newPeakSampler(r.Monitor, cmd.Process.Pid, r.Config.PollWait)
	go peak.run(monCtx)

	timeout := time.Duration(r.Config.TimeoutSeconds) * time.Second
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false
	cancelled := false

	select {
	case waitErr = <-waitCh:
	case <-timer.C:
		timedOut = true
		waitErr = r.terminate(cmd, waitCh)
	case <-ctx.Done():
		cancelled = true
		waitErr = r.terminate(cmd, waitCh)
	}

	stopMon()
	wg.Wait()

	result.EndTime = time.Now()
	result.StdoutTail = stdoutRing.String()
	result.StdoutTruncated = stdoutRing.Truncated()
	result.StdoutTotalChars = stdoutRing.TotalChars()
	result.StderrTail = stderrRing.String()
	result.StderrTruncated = stderrRing.Truncated()
	result.StderrTotalChars = stderrRing.TotalChars()
	if mem, cpu, ok := peak.peakValues(); ok {
		result.PeakMemoryMB = &mem
		result.PeakCPUPercent = &cpu
	}

	switch {
	case cancelled:
		result.Status = taskresult.StatusCancelled
		result.ErrorMessage = "cancelled"
	case timedOut:
		result.Status = taskresult.StatusTimeout
		result.ErrorMessage = fmt.Sprintf("Timeout after %ds", r.Config.TimeoutSeconds)
	case waitErr == nil:
		code := 0
		result.ExitCode = &code
		result.Status = taskresult.StatusSuccess
	default:
		code := exitCodeOf(waitErr)
		result.ExitCode = &code
		result.Status = taskresult.StatusFailed
		result.ErrorMessage = fmt.Sprintf("exit code %d", code)
	}

	return result
}

func (r *Runner) launchError(result taskresult.Result, context string, err error) taskresult.Result {
	result.Status = taskresult.StatusLaunchError
	result.ErrorMessage = errs.NewLaunchError(context, err).Error()
	result.EndTime = time.Now()
	return result
}

// terminate implements the escalating, idempotent kill sequence of spec.md
// §4.3 step 4: SIGTERM to the whole process group, a grace period, then
// SIGKILL, without ever blocking past a bounded wait.
func (r *Runner) terminate(cmd *exec.Cmd, waitCh chan error) error {
	r.signal(cmd, syscall.SIGTERM)

	select {
	case err := <-waitCh:
		return err
	case <-time.After(terminateGrace):
	}

	r.signal(cmd, syscall.SIGKILL)

	select {
	case err := <-waitCh:
		return err
	case <-time.After(500 * time.Millisecond):
		// Descendants may remain as orphans; the caller does not block
		// forever waiting for them (spec.md §4.3 step 4 Phase B).
		return fmt.Errorf("process did not exit after SIGKILL")
	}
}

func (r *Runner) signal(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if r.Config.UseProcessGroups {
		if err := syscall.Kill(-pid, sig); err != nil {
			r.Logger.Warn("signaling process group failed", logx.Int("pid", pid), logx.Err(err))
		}
		return
	}
	if err := syscall.Kill(pid, sig); err != nil {
		r.Logger.Warn("signaling process failed", logx.Int("pid", pid), logx.Err(err))
	}
}

func buildEnv(bindings []taskresult.EnvBinding) []string {
	base := os.Environ()
	if len(bindings) == 0 {
		return base
	}
	override := make(map[string]string, len(bindings))
	for _, b := range bindings {
		override[b.Name] = b.Value
	}
	out := make([]string, 0, len(base)+len(bindings))
	for _, kv := range base {
		name := kv
		if eq := indexByte(kv, '='); eq >= 0 {
			name = kv[:eq]
		}
		if _, overridden := override[name]; overridden {
			continue
		}
		out = append(out, kv)
	}
	for _, b := range bindings {
		out = append(out, b.Name+"="+b.Value)
	}
	return out
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func exitCodeOf(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func drain(wg *sync.WaitGroup, r *os.File, ring *outputring.Ring) {
	defer wg.Done()
	defer r.Close()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			ring.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}
