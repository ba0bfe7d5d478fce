package metrics

import "time"

// NoopRecorder discards everything. It is the default when metrics are not
// wired.
type NoopRecorder struct{}

func (NoopRecorder) CountResult(string, string, string)            {}
func (NoopRecorder) ObserveDuration(string, string, time.Duration) {}
