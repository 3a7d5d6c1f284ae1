package resultsink

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"sync"
	"time"

	"github.com/parallelr/parallelr/internal/config"
	"github.com/parallelr/parallelr/internal/taskresult"
)

// Sink is the single writer of the JSONL result stream (spec.md §4.7): a
// session record first, then exactly one task record per completed Task
// Spec, in completion order. It also drives the optional output log and
// accumulates the counters the terminal summary (§7) renders.
type Sink struct {
	mu        sync.Mutex
	jsonl     *os.File
	output    *outputLog
	sessionID string

	stats Stats
}

// Open creates jsonlPath (truncating any prior contents) and, if
// outputLogPath is non-empty, the companion human-readable output log.
func Open(jsonlPath, outputLogPath string) (*Sink, error) {
	f, err := os.OpenFile(jsonlPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	ol, err := openOutputLog(outputLogPath)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Sink{jsonl: f, output: ol}, nil
}

// WriteSession writes the session record; callers must call it exactly once
// before any WriteTask call.
func (s *Sink) WriteSession(sessionID, commandTemplate string, cfg config.ResolvedConfig, startTime time.Time) error {
	s.sessionID = sessionID
	hostname, _ := os.Hostname()
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	rec := SessionRecord{
		Type:            "session",
		SessionID:       sessionID,
		Hostname:        hostname,
		User:            username,
		CommandTemplate: commandTemplate,
		StartTime:       startTime,
		Config:          cfg,
	}
	return s.writeLine(rec)
}

// WriteTask appends one task record and folds it into the running summary
// statistics.
func (s *Sink) WriteTask(r taskresult.Result) error {
	s.mu.Lock()
	s.stats.observe(r)
	s.mu.Unlock()

	s.output.writeTask(r)
	return s.writeLine(ToTaskRecord(s.sessionID, r))
}

func (s *Sink) writeLine(v interface{}) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling result record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.jsonl.Write(line)
	return err
}

// Stats returns a snapshot of the accumulated summary statistics.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Sink) Close() error {
	outErr := s.output.close()
	jsonlErr := s.jsonl.Close()
	if jsonlErr != nil {
		return jsonlErr
	}
	return outErr
}
