package monitor

import (
	"sync"
	"time"
)

// maxConsecutiveFailures is how many failed runs in a row still count as
// healthy. A run that finds no data is not a failure.
const maxConsecutiveFailures = 3

// RunMonitor tracks the outcome of report runs and retention sweeps.
type RunMonitor struct {
	mu                sync.RWMutex
	lastSuccess       time.Time
	lastAttempt       time.Time
	lastRunID         string
	lastRecords       int
	noDataRuns        int
	consecutiveErrors int
	lastError         string
}

// RecordSuccess records a run that produced a report.
func (m *RunMonitor) RecordSuccess(runID string, records int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.lastSuccess = now
	m.lastAttempt = now
	m.lastRunID = runID
	m.lastRecords = records
	m.consecutiveErrors = 0
	m.lastError = ""
}

// RecordNoData records a run that completed without usable data.
func (m *RunMonitor) RecordNoData() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAttempt = time.Now()
	m.noDataRuns++
	m.consecutiveErrors = 0
}

// RecordFailure records a failed run.
func (m *RunMonitor) RecordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAttempt = time.Now()
	m.consecutiveErrors++
	if err != nil {
		m.lastError = err.Error()
	}
}

// IsHealthy is false after more than three consecutive failures.
func (m *RunMonitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy()
}

func (m *RunMonitor) healthy() bool {
	return m.consecutiveErrors <= maxConsecutiveFailures
}

// RunStatus is the run section of the health response.
type RunStatus struct {
	Healthy           bool   `json:"healthy"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	LastRunID         string `json:"last_run_id,omitempty"`
	LastRecords       int    `json:"last_records,omitempty"`
	NoDataRuns        int    `json:"no_data_runs,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns current run status for health checks.
func (m *RunMonitor) Status() RunStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := RunStatus{
		Healthy:     m.healthy(),
		LastRunID:   m.lastRunID,
		LastRecords: m.lastRecords,
		NoDataRuns:  m.noDataRuns,
	}
	if !m.lastSuccess.IsZero() {
		status.LastSuccess = m.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(m.lastSuccess).Round(time.Second).String()
	}
	if !m.lastAttempt.IsZero() {
		status.LastAttempt = m.lastAttempt.Format(time.RFC3339)
	}
	if m.consecutiveErrors > 0 {
		status.ConsecutiveErrors = m.consecutiveErrors
		status.LastError = m.lastError
	}
	return status
}
