package softtx

import "time"

// Metrics captures delivery telemetry.
type Metrics interface {
	// ObserveCycleDuration records the time to run one delivery cycle.
	ObserveCycleDuration(duration time.Duration)
	// AddDelivered increments the count of logs replayed and removed.
	AddDelivered(count int)
	// AddFailed increments the count of failed replays.
	AddFailed(count int)
	// AddExhausted increments the count of logs that reached the retry ceiling.
	AddExhausted(count int)
	// AddCycleErrors increments the count of cycles aborted by storage errors.
	AddCycleErrors(count int)
	// SetPending updates the current eligible log count.
	SetPending(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveCycleDuration implements Metrics.
func (NopMetrics) ObserveCycleDuration(time.Duration) {}

// AddDelivered implements Metrics.
func (NopMetrics) AddDelivered(int) {}

// AddFailed implements Metrics.
func (NopMetrics) AddFailed(int) {}

// AddExhausted implements Metrics.
func (NopMetrics) AddExhausted(int) {}

// AddCycleErrors implements Metrics.
func (NopMetrics) AddCycleErrors(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}
