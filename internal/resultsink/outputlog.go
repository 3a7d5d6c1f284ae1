package resultsink

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/parallelr/parallelr/internal/taskresult"
)

// outputLog implements spec.md §4.7's optional human-readable block log: one
// block per completed task containing the spec, status, timings, and the
// captured stdout/stderr tails. Grounded on
// original_source/bin/parallelr.py's _log_task_result, translated from a
// per-call open/append/close to a single append-only *os.File guarded by a
// mutex, matching logx's MultiLevelWriter fan-out idiom for a single sink.
type outputLog struct {
	mu   sync.Mutex
	file *os.File
}

func openOutputLog(path string) (*outputLog, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &outputLog{file: f}, nil
}

func (o *outputLog) writeTask(r taskresult.Result) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", strings.Repeat("=", 80))
	fmt.Fprintf(&b, "Task: %s\n", taskLabel(r.Spec))
	fmt.Fprintf(&b, "Worker: %d\n", r.WorkerID)
	fmt.Fprintf(&b, "Command: %s\n", r.Spec.CommandExecuted())
	fmt.Fprintf(&b, "Status: %s\n", r.Status)
	if r.ExitCode != nil {
		fmt.Fprintf(&b, "Exit Code: %d\n", *r.ExitCode)
	} else {
		b.WriteString("Exit Code: n/a\n")
	}
	fmt.Fprintf(&b, "Duration: %.2fs\n", r.Duration().Seconds())
	if r.PeakMemoryMB != nil {
		fmt.Fprintf(&b, "Memory: %.2fMB\n", *r.PeakMemoryMB)
	}
	fmt.Fprintf(&b, "Start: %s\n", r.StartTime.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "End: %s\n", r.EndTime.Format("2006-01-02T15:04:05Z07:00"))
	if r.StdoutTail != "" {
		fmt.Fprintf(&b, "\nSTDOUT (last %d of %d chars):\n%s\n", utf8.RuneCountInString(r.StdoutTail), r.StdoutTotalChars, r.StdoutTail)
	}
	if r.StderrTail != "" {
		fmt.Fprintf(&b, "\nSTDERR (last %d of %d chars):\n%s\n", utf8.RuneCountInString(r.StderrTail), r.StderrTotalChars, r.StderrTail)
	}
	if r.ErrorMessage != "" {
		fmt.Fprintf(&b, "\nERROR: %s\n", r.ErrorMessage)
	}

	if _, err := o.file.WriteString(b.String()); err != nil {
		// The output log is diagnostic, never load-bearing (spec.md §7:
		// "Backup write error: sink / Warning only" covers this sibling
		// best-effort write too); there is no logger threaded in here, so
		// the failure is simply dropped rather than escalated.
		_ = err
	}
}

func taskLabel(s taskresult.Spec) string {
	if s.TaskFilePath != "" {
		return s.TaskFilePath
	}
	if len(s.Arguments) > 0 {
		return strings.Join(s.Arguments, " ")
	}
	return fmt.Sprintf("#%d", s.Index)
}

func (o *outputLog) close() error {
	if o == nil {
		return nil
	}
	return o.file.Close()
}
