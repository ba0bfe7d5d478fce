// Package metrics defines the instrumentation contract for facilitator
// operations.
package metrics

import "time"

// Recorder receives one event per verify/settle call plus its latency.
// Outcome is either "ok" or the failure reason tag.
type Recorder interface {
	CountResult(operation, network, outcome string)
	ObserveDuration(operation, network string, d time.Duration)
}
