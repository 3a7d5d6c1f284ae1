// Package failurepolicy implements the Failure Policy (spec.md §4.6 / C6):
// a stateful predicate over the stream of completed Task Results deciding
// whether the Scheduler should keep dispatching. Grounded on the teacher's
// dag.Transition validated-state-machine discipline (internal/dag/state.go,
// deleted once its DAG-node coupling made it unadaptable, but its
// single-responsibility "one explicit decision per completion" shape kept).
package failurepolicy

import "github.com/parallelr/parallelr/internal/taskresult"

// Decision is the Failure Policy's verdict after observing one completion.
type Decision string

const (
	Continue Decision = "CONTINUE"
	Stop     Decision = "STOP"
)

// Policy tracks consecutive failures and the overall failure rate across
// the stream of completed outcomes passed to Observe.
type Policy struct {
	enabled                bool
	maxConsecutiveFailures int
	maxFailureRate         float64
	minTasksForRateCheck   int

	consecutiveFailures int
	failures            int
	totalCompleted      int
	stopped             bool
}

func New(enabled bool, maxConsecutiveFailures int, maxFailureRate float64, minTasksForRateCheck int) *Policy {
	return &Policy{
		enabled:                enabled,
		maxConsecutiveFailures: maxConsecutiveFailures,
		maxFailureRate:         maxFailureRate,
		minTasksForRateCheck:   minTasksForRateCheck,
	}
}

// Observe folds one completed Task Result's status into the policy's state
// and returns the resulting Decision. Once STOP is returned, every
// subsequent call also returns STOP (spec.md §8 monotonicity property).
func (p *Policy) Observe(status taskresult.Status) Decision {
	if !p.enabled {
		return Continue
	}
	if p.stopped {
		return Stop
	}

	switch status {
	case taskresult.StatusCancelled:
		// Counts toward neither failure nor success; consecutive-failure
		// run is left untouched.
	case taskresult.StatusSuccess:
		p.consecutiveFailures = 0
		p.totalCompleted++
	default:
		p.consecutiveFailures++
		p.failures++
		p.totalCompleted++
	}

	if p.consecutiveFailures >= p.maxConsecutiveFailures {
		p.stopped = true
		return Stop
	}
	if p.totalCompleted >= p.minTasksForRateCheck {
		rate := float64(p.failures) / float64(p.totalCompleted)
		if rate > p.maxFailureRate {
			p.stopped = true
			return Stop
		}
	}
	return Continue
}
