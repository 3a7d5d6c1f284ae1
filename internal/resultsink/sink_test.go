package resultsink

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parallelr/parallelr/internal/config"
	"github.com/parallelr/parallelr/internal/taskresult"
)

func TestSink_SessionThenTaskRecords(t *testing.T) {
	dir := t.TempDir()
	jsonlPath := filepath.Join(dir, "results.jsonl")

	sink, err := Open(jsonlPath, "")
	require.NoError(t, err)
	defer sink.Close()

	sessionID := NewSessionID()
	require.NoError(t, sink.WriteSession(sessionID, "echo @ARG@", config.Default(), time.Now()))

	for i := 1; i <= 3; i++ {
		exit := 0
		require.NoError(t, sink.WriteTask(taskresult.Result{
			Spec:      taskresult.Spec{Index: i, Total: 3, ArgvTemplate: []string{"echo", "x"}},
			Status:    taskresult.StatusSuccess,
			ExitCode:  &exit,
			StartTime: time.Now(),
			EndTime:   time.Now(),
		}))
	}

	f, err := os.Open(jsonlPath)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 4)

	var session map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &session))
	require.Equal(t, "session", session["type"])
	require.Equal(t, sessionID, session["session_id"])

	for i, line := range lines[1:] {
		var task map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &task))
		require.Equal(t, "task", task["type"])
		require.Equal(t, float64(i+1), task["index"])
		require.Equal(t, "SUCCESS", task["status"])
	}
}

func TestSink_EnvVarsPreserveInsertionOrder(t *testing.T) {
	dir := t.TempDir()
	jsonlPath := filepath.Join(dir, "results.jsonl")
	sink, err := Open(jsonlPath, "")
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.WriteSession(NewSessionID(), "cmd", config.Default(), time.Now()))
	require.NoError(t, sink.WriteTask(taskresult.Result{
		Spec: taskresult.Spec{
			Index:        1,
			ArgvTemplate: []string{"cmd"},
			EnvBindings: []taskresult.EnvBinding{
				{Name: "ZZZ", Value: "1"},
				{Name: "AAA", Value: "2"},
			},
		},
		Status: taskresult.StatusSuccess,
	}))

	data, err := os.ReadFile(jsonlPath)
	require.NoError(t, err)
	lines := splitLines(string(data))
	require.Contains(t, lines[1], `"ZZZ":"1","AAA":"2"`)
}

func TestSink_OutputLogWritesBlockPerTask(t *testing.T) {
	dir := t.TempDir()
	jsonlPath := filepath.Join(dir, "results.jsonl")
	outputPath := filepath.Join(dir, "output.txt")
	sink, err := Open(jsonlPath, outputPath)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.WriteSession(NewSessionID(), "cmd", config.Default(), time.Now()))
	require.NoError(t, sink.WriteTask(taskresult.Result{
		Spec:       taskresult.Spec{Index: 1, ArgvTemplate: []string{"cmd"}},
		Status:     taskresult.StatusSuccess,
		StdoutTail: "hello world",
	}))

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello world")
	require.Contains(t, string(data), "Status: SUCCESS")
}

func TestStats_AccumulatesByStatus(t *testing.T) {
	var s Stats
	s.observe(taskresult.Result{Status: taskresult.StatusSuccess})
	s.observe(taskresult.Result{Status: taskresult.StatusFailed})
	s.observe(taskresult.Result{Status: taskresult.StatusFailed})
	require.Equal(t, 3, s.Total)
	require.Equal(t, 1, s.ByStatus[taskresult.StatusSuccess])
	require.Equal(t, 2, s.ByStatus[taskresult.StatusFailed])
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}
