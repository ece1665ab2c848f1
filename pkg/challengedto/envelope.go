package challengedto

// Envelope is the uniform tool-call response. Exactly one of Data or
// Error is set; Events lists the domain events emitted while handling
// the call, in emission order.
type Envelope struct {
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Error   *DomainError  `json:"error,omitempty"`
	Events  []DomainEvent `json:"events,omitempty"`
}

// DomainEvent is the UI-facing notification attached to envelopes and
// pushed to event-stream subscribers. Seq is strictly increasing per
// session and lives in its own sequence space, independent from replay
// event numbering.
type DomainEvent struct {
	SessionID string         `json:"session_id"`
	Seq       uint64         `json:"seq"`
	Type      string         `json:"type"`
	At        int64          `json:"at_unix_ms"`
	Data      map[string]any `json:"data,omitempty"`
}

// OK wraps data in a successful envelope.
func OK(data any, events []DomainEvent) Envelope {
	return Envelope{Success: true, Data: data, Events: events}
}

// Fail wraps a domain error in a failed envelope.
func Fail(err *DomainError, events []DomainEvent) Envelope {
	if err == nil {
		err = NewError(CodeEngineError, "internal error")
	}
	return Envelope{Success: false, Error: err, Events: events}
}
