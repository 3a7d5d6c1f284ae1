// Package scheduler implements the Scheduler (spec.md §4.5 / C5): bounded
// concurrency dispatch of a Task Spec sequence, per-completion wiring to the
// Failure Policy and Result Sink, and signal-driven cancellation. Grounded
// on CZERTAINLY-Seeker's internal/parallel.Map (a parent-cancelable
// errgroup draining a result channel) generalized from a generic mapper
// into the Task Spec -> Task Result pipeline, and on the teacher's
// dag.Executor.RunParallel channel-based worker pool, generalized from
// depth-staged DAG dispatch into a flat, order-preserving dispatch loop.
package scheduler

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/parallelr/parallelr/internal/config"
	"github.com/parallelr/parallelr/internal/failurepolicy"
	"github.com/parallelr/parallelr/internal/logx"
	"github.com/parallelr/parallelr/internal/procrunner"
	"github.com/parallelr/parallelr/internal/resultsink"
	"github.com/parallelr/parallelr/internal/taskresult"
)

// ShutdownReason records why the scheduler stopped dispatching new specs.
type ShutdownReason string

const (
	ShutdownNone      ShutdownReason = "NONE"
	ShutdownSignal    ShutdownReason = "SIGNAL"
	ShutdownStopLimit ShutdownReason = "STOP_LIMIT"
)

// escalateWindow is how long the scheduler waits for a second signal before
// treating the first one as the final word (spec.md §5 Cancellation).
const escalateWindow = 5 * time.Second

// Scheduler dispatches one Task Spec sequence per Run call.
type Scheduler struct {
	Config config.ResolvedConfig
	Runner *procrunner.Runner
	Policy *failurepolicy.Policy
	Sink   *resultsink.Sink
	Logger logx.Logger
}

func New(cfg config.ResolvedConfig, runner *procrunner.Runner, policy *failurepolicy.Policy, sink *resultsink.Sink, logger logx.Logger) *Scheduler {
	return &Scheduler{Config: cfg, Runner: runner, Policy: policy, Sink: sink, Logger: logger}
}

// Summary reports what happened across one Run call.
type Summary struct {
	ShutdownReason ShutdownReason
	Dispatched     int
	Completed      int
}

// Run dispatches specs in order under bounded concurrency, routes every
// completion through the Failure Policy and Result Sink, and synthesizes
// CANCELLED records for any spec never dispatched because of an early
// shutdown. It returns once every dispatched task and every synthesized
// record has been emitted to the sink.
func (sch *Scheduler) Run(parent context.Context, specs []taskresult.Spec) Summary {
	runCtx, cancel := context.WithCancel(parent)
	defer cancel()

	state := &shutdownState{reason: ShutdownNone}
	restoreSignals := sch.watchSignals(cancel, state)
	defer restoreSignals()

	var g errgroup.Group
	g.SetLimit(maxInt(sch.Config.MaxWorkers, 1))

	workerIDs := make(chan int, sch.Config.MaxWorkers)
	for i := 0; i < sch.Config.MaxWorkers; i++ {
		workerIDs <- i
	}

	limiter := rate.NewLimiter(limitFromStartDelay(sch.Config.StartDelay), 1)
	resultsCh := make(chan taskresult.Result)

	dispatched := 0
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		for _, spec := range specs {
			if runCtx.Err() != nil {
				return
			}
			if err := limiter.Wait(runCtx); err != nil {
				return
			}
			spec := spec
			dispatched++
			g.Go(func() error {
				workerID := <-workerIDs
				defer func() { workerIDs <- workerID }()
				var result taskresult.Result
				if runCtx.Err() != nil {
					now := time.Now()
					result = taskresult.Result{Spec: spec, WorkerID: workerID, Status: taskresult.StatusCancelled,
						ErrorMessage: "cancelled before launch", StartTime: now, EndTime: now}
				} else {
					result = sch.Runner.Run(runCtx, spec, workerID)
				}
				resultsCh <- result
				return nil
			})
		}
	}()

	go func() {
		<-dispatchDone
		g.Wait()
		close(resultsCh)
	}()

	completed := 0
	for result := range resultsCh {
		completed++
		if err := sch.Sink.WriteTask(result); err != nil {
			sch.Logger.Warn("writing task record failed", logx.Err(err))
		}
		if sch.Policy.Observe(result.Status) == failurepolicy.Stop {
			if state.trigger(ShutdownStopLimit) {
				cancel()
			}
		}
	}

	for _, spec := range specs[dispatched:] {
		now := time.Now()
		result := taskresult.Result{
			Spec:         spec,
			Status:       taskresult.StatusCancelled,
			ErrorMessage: "cancelled before dispatch",
			StartTime:    now,
			EndTime:      now,
		}
		if err := sch.Sink.WriteTask(result); err != nil {
			sch.Logger.Warn("writing synthesized cancellation record failed", logx.Err(err))
		}
		completed++
	}

	return Summary{ShutdownReason: state.get(), Dispatched: dispatched, Completed: completed}
}

// watchSignals implements spec.md §4.5/§5: SIGTERM/SIGINT trigger
// cancellation (SIGHUP is ignored so a detached run survives terminal
// loss); a second SIGTERM/SIGINT within escalateWindow of the first forces
// an immediate process exit rather than waiting on C3's own escalation.
func (sch *Scheduler) watchSignals(cancel context.CancelFunc, state *shutdownState) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	signal.Ignore(syscall.SIGHUP)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		sch.Logger.Warn("received shutdown signal, cancelling running tasks")
		if state.trigger(ShutdownSignal) {
			cancel()
		}
		select {
		case <-sigCh:
			sch.Logger.Warn("received second shutdown signal, exiting immediately")
			os.Exit(130)
		case <-time.After(escalateWindow):
		case <-done:
		}
	}()

	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}

type shutdownState struct {
	mu     sync.Mutex
	reason ShutdownReason
}

// trigger sets reason if none is set yet, returning whether it did.
func (s *shutdownState) trigger(reason ShutdownReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reason != ShutdownNone {
		return false
	}
	s.reason = reason
	return true
}

func (s *shutdownState) get() ShutdownReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func limitFromStartDelay(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
