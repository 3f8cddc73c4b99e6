package application

import (
	"encoding/json"
	"maps"
	"sync"
	"time"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
)

// MetricsRecorder accumulates auto-fix metrics for one engine. It is safe for
// concurrent use so engines driving independent checkouts may share one.
type MetricsRecorder struct {
	mu  sync.Mutex
	m   model.AutoFixMetrics
	now func() time.Time
}

// NewMetricsRecorder creates a recorder whose start time is now.
func NewMetricsRecorder() *MetricsRecorder {
	r := &MetricsRecorder{now: time.Now}
	r.Reset()
	return r
}

// Reset zeroes every counter and restarts the clock.
func (r *MetricsRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.m = model.AutoFixMetrics{
		ByErrorType: map[model.ErrorType]model.ErrorTypeMetrics{},
		ByReason:    map[model.FixReason]int{},
		StartTime:   now,
		LastUpdated: now,
	}
}

// Export returns a copy of the current metrics with the average fix duration
// filled in. AverageFixDuration is nil until a fix has succeeded.
func (r *MetricsRecorder) Export() model.AutoFixMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.m
	out.ByErrorType = maps.Clone(r.m.ByErrorType)
	out.ByReason = maps.Clone(r.m.ByReason)
	if r.m.SuccessfulFixes > 0 {
		avg := r.m.TotalFixDuration / int64(r.m.SuccessfulFixes)
		out.AverageFixDuration = &avg
	}
	return out
}

// ExportJSON serializes Export.
func (r *MetricsRecorder) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(r.Export(), "", "  ")
}

func (r *MetricsRecorder) recordAttempt(errorType model.ErrorType) {
	r.update(func(m *model.AutoFixMetrics) {
		m.TotalAttempts++
		et := m.ByErrorType[errorType]
		et.Attempts++
		m.ByErrorType[errorType] = et
	})
}

func (r *MetricsRecorder) recordSuccess(errorType model.ErrorType, took time.Duration) {
	r.update(func(m *model.AutoFixMetrics) {
		m.SuccessfulFixes++
		m.TotalFixDuration += took.Milliseconds()
		et := m.ByErrorType[errorType]
		et.Successes++
		m.ByErrorType[errorType] = et
	})
}

func (r *MetricsRecorder) recordFailure(errorType model.ErrorType, reason model.FixReason) {
	r.update(func(m *model.AutoFixMetrics) {
		m.FailedFixes++
		m.ByReason[reason]++
		et := m.ByErrorType[errorType]
		et.Failures++
		m.ByErrorType[errorType] = et
	})
}

// recordSkip counts an attempt refused before any mutation.
func (r *MetricsRecorder) recordSkip(reason model.FixReason) {
	r.update(func(m *model.AutoFixMetrics) {
		m.ByReason[reason]++
	})
}

func (r *MetricsRecorder) recordRollback() {
	r.update(func(m *model.AutoFixMetrics) { m.RollbackCount++ })
}

func (r *MetricsRecorder) recordVerificationFailure() {
	r.update(func(m *model.AutoFixMetrics) { m.VerificationFailures++ })
}

func (r *MetricsRecorder) recordDryRun() {
	r.update(func(m *model.AutoFixMetrics) { m.DryRunAttempts++ })
}

func (r *MetricsRecorder) update(fn func(m *model.AutoFixMetrics)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.m)
	r.m.LastUpdated = r.now()
}
