package metrics

import "time"

// Outcome labels the final status of a build.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeWarning  Outcome = "warning"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// Recorder receives build and server measurements. Implementations must be
// safe for concurrent use.
type Recorder interface {
	ObserveStateDuration(state string, d time.Duration)
	ObserveBuildDuration(incremental bool, d time.Duration)
	IncBuildOutcome(outcome Outcome)
	IncTransform(cacheHit bool)
	SetModules(n int)
	SetChunks(n int)
	AddEmittedBytes(n int64)
	SetClients(n int)
	IncBroadcast(kind string)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStateDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(bool, time.Duration)   {}
func (NoopRecorder) IncBuildOutcome(Outcome)                    {}
func (NoopRecorder) IncTransform(bool)                          {}
func (NoopRecorder) SetModules(int)                             {}
func (NoopRecorder) SetChunks(int)                              {}
func (NoopRecorder) AddEmittedBytes(int64)                      {}
func (NoopRecorder) SetClients(int)                             {}
func (NoopRecorder) IncBroadcast(string)                        {}
