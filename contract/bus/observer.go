package bus

import "time"

// Outcome labels how a request or a responder invocation ended.
type Outcome string

const (
	// requester side
	OutcomeResolved Outcome = "resolved"
	OutcomeInvalid  Outcome = "invalid"
	OutcomeTimeout  Outcome = "timeout"

	// responder side
	OutcomeResponded Outcome = "responded"
	OutcomeUnhandled Outcome = "unhandled"
	OutcomeFailed    Outcome = "failed"
)

// Observer receives protocol outcomes, typically to feed metrics.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveRequest(id string, outcome Outcome, elapsed time.Duration)
	ObserveResponse(id string, outcome Outcome, elapsed time.Duration)
}

// NopObserver discards everything. Useful for tests or when metrics are disabled.
type NopObserver struct{}

func (NopObserver) ObserveRequest(string, Outcome, time.Duration)  {}
func (NopObserver) ObserveResponse(string, Outcome, time.Duration) {}
