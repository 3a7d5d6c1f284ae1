// Package resultsink implements the Result Sink (spec.md §4.7 / C7): an
// append-only JSONL stream (one session record followed by one task record
// per completed spec), an optional human-readable output log, and the
// terminal summary table. Session IDs are stamped with google/uuid, the
// same library already present across the retrieved pack.
package resultsink

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/parallelr/parallelr/internal/config"
	"github.com/parallelr/parallelr/internal/taskresult"
)

// SessionRecord is the first line written to the JSONL stream.
type SessionRecord struct {
	Type            string                `json:"type"`
	SessionID       string                `json:"session_id"`
	Hostname        string                `json:"hostname"`
	User            string                `json:"user"`
	CommandTemplate string                `json:"command_template"`
	StartTime       time.Time             `json:"start_time"`
	Config          config.ResolvedConfig `json:"config"`
}

// NewSessionID returns a fresh session identifier (spec.md §11.5).
func NewSessionID() string { return uuid.New().String() }

// TaskRecord is one line written to the JSONL stream per completed Task
// Spec, in completion order.
type TaskRecord struct {
	Type            string     `json:"type"`
	SessionID       string     `json:"session_id"`
	Index           int        `json:"index"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	Status          string     `json:"status"`
	WorkerID        int        `json:"worker_id"`
	TaskFile        *string    `json:"task_file"`
	CommandExecuted string     `json:"command_executed"`
	EnvVars         orderedEnv `json:"env_vars"`
	Arguments       []string   `json:"arguments"`
	ExitCode        *int       `json:"exit_code"`
	DurationSeconds float64    `json:"duration_seconds"`
	MemoryMB        *float64   `json:"memory_mb"`
	CPUPercent      *float64   `json:"cpu_percent"`
	ErrorMessage    string     `json:"error_message"`
}

// ToTaskRecord converts a Task Result into its wire record, per spec.md
// §4.7's field list.
func ToTaskRecord(sessionID string, r taskresult.Result) TaskRecord {
	var taskFile *string
	if r.Spec.TaskFilePath != "" {
		tf := r.Spec.TaskFilePath
		taskFile = &tf
	}
	args := r.Spec.Arguments
	if args == nil {
		args = []string{}
	}
	return TaskRecord{
		Type:            "task",
		SessionID:       sessionID,
		Index:           r.Spec.Index,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		Status:          string(r.Status),
		WorkerID:        r.WorkerID,
		TaskFile:        taskFile,
		CommandExecuted: r.Spec.CommandExecuted(),
		EnvVars:         orderedEnv(r.Spec.EnvBindings),
		Arguments:       args,
		ExitCode:        r.ExitCode,
		DurationSeconds: r.Duration().Seconds(),
		MemoryMB:        r.PeakMemoryMB,
		CPUPercent:      r.PeakCPUPercent,
		ErrorMessage:    r.ErrorMessage,
	}
}

// orderedEnv renders spec.md §4.7's "env_vars (object, insertion-order)"
// requirement: encoding/json sorts map keys, so an ordered slice of bindings
// with a custom MarshalJSON is used instead.
type orderedEnv []taskresult.EnvBinding

func (e orderedEnv) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, b := range e {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(b.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(b.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
