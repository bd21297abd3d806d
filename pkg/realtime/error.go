package realtime

import "fmt"

// ConnectionError is a fatal signaling or connection failure. The session
// is unusable; the caller must reconnect explicitly, there is no automatic
// retry.
type ConnectionError struct {
	// Op is the failed step, e.g. "signaling" or "dial".
	Op string

	// HTTPStatus is set when the failure came from an HTTP exchange.
	HTTPStatus int

	// Err is the underlying cause.
	Err error
}

func (e *ConnectionError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("realtime: %s failed: status %d: %v", e.Op, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("realtime: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// MediaAccessError is a failure to acquire local audio input. Fatal to
// session start; the underlying message is surfaced verbatim.
type MediaAccessError struct {
	Err error
}

func (e *MediaAccessError) Error() string {
	return fmt.Sprintf("realtime: media access: %v", e.Err)
}

func (e *MediaAccessError) Unwrap() error { return e.Err }

// EventError is the error payload of an inbound error event.
type EventError struct {
	Type    string `json:"type,omitzero"`
	Code    string `json:"code,omitzero"`
	Message string `json:"message,omitzero"`
	Param   string `json:"param,omitzero"`
	EventID string `json:"event_id,omitzero"`
}

func (e *EventError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime: %s: %s", e.Code, e.Message)
	}
	if e.Type != "" {
		return fmt.Sprintf("realtime: %s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("realtime: %s", e.Message)
}
