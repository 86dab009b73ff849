package monitor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunMonitor_RecordSuccess(t *testing.T) {
	m := &RunMonitor{}
	m.RecordFailure(errors.New("gateway down"))
	m.RecordSuccess("run-1", 12)

	status := m.Status()
	require.True(t, status.Healthy)
	require.Equal(t, "run-1", status.LastRunID)
	require.Equal(t, 12, status.LastRecords)
	require.Zero(t, status.ConsecutiveErrors)
	require.Empty(t, status.LastError)
	require.NotEmpty(t, status.LastSuccess)
}

func TestRunMonitor_RecordFailure(t *testing.T) {
	m := &RunMonitor{}
	m.RecordFailure(errors.New("disk full"))

	status := m.Status()
	require.Equal(t, 1, status.ConsecutiveErrors)
	require.Equal(t, "disk full", status.LastError)
	require.True(t, status.Healthy)
}

func TestRunMonitor_IsHealthy(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*RunMonitor)
		expected bool
	}{
		{"never ran", func(*RunMonitor) {}, true},
		{"three failures", func(m *RunMonitor) {
			for i := 0; i < 3; i++ {
				m.RecordFailure(errors.New("x"))
			}
		}, true},
		{"four failures", func(m *RunMonitor) {
			for i := 0; i < 4; i++ {
				m.RecordFailure(errors.New("x"))
			}
		}, false},
		{"no data resets failures", func(m *RunMonitor) {
			for i := 0; i < 4; i++ {
				m.RecordFailure(errors.New("x"))
			}
			m.RecordNoData()
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &RunMonitor{}
			tt.setup(m)
			require.Equal(t, tt.expected, m.IsHealthy())
		})
	}
}

func TestRunMonitor_NoData(t *testing.T) {
	m := &RunMonitor{}
	m.RecordNoData()
	m.RecordNoData()

	status := m.Status()
	require.Equal(t, 2, status.NoDataRuns)
	require.Empty(t, status.LastSuccess)
	require.NotEmpty(t, status.LastAttempt)
}
