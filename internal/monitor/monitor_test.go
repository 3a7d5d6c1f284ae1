package monitor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisabled_NeverSamples(t *testing.T) {
	cap := New(false)
	_, _, ok := cap.Sample(int32(os.Getpid()))
	require.False(t, ok)
}

func TestGopsutilCapability_SamplesSelf(t *testing.T) {
	cap := New(true)
	memMB, cpuPercent, ok := cap.Sample(int32(os.Getpid()))
	require.True(t, ok)
	require.Greater(t, memMB, 0.0)
	require.GreaterOrEqual(t, cpuPercent, 0.0)
}

func TestGopsutilCapability_UnknownPID(t *testing.T) {
	cap := New(true)
	_, _, ok := cap.Sample(1 << 30)
	require.False(t, ok)
}
