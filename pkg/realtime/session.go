package realtime

import (
	"context"
	"iter"
)

// AudioFormat describes the frames a session delivers to its remote
// audio tap.
type AudioFormat struct {
	SampleRate int
	Channels   int

	// PCM reports whether frames are little-endian signed 16-bit PCM.
	// When false, frames are raw codec payloads and unusable for level
	// metering or storage without a decoder.
	PCM bool
}

// AudioTap is implemented by sessions that expose remote audio frames.
type AudioTap interface {
	// SetRemoteAudioHandler registers the frame tap. Passing nil removes
	// it; frames read while no handler is set are discarded.
	SetRemoteAudioHandler(AudioFrameHandler)

	// RemoteAudioFormat describes the frames the tap will receive.
	RemoteAudioFormat() AudioFormat
}

// Session is the transport-independent view of one realtime connection.
// Both the WebRTC and WebSocket implementations satisfy it.
type Session interface {
	// UpdateSession sends a session.update control message with the full
	// session configuration. Safe to call repeatedly; each call replaces
	// the previous configuration server-side.
	UpdateSession(config *SessionConfig) error

	// AppendAudio appends PCM audio to the input buffer: 24kHz, 16-bit
	// signed little-endian, mono. Base64 encoding is handled internally.
	AppendAudio(audio []byte) error

	// CommitInput commits the input buffer into a user message. Only
	// needed in manual mode; server VAD commits automatically.
	CommitInput() error

	// ClearInput discards the input buffer without creating a message.
	ClearInput() error

	// AddUserMessage adds a user text message to the conversation.
	AddUserMessage(text string) error

	// DeleteItem deletes a conversation item.
	DeleteItem(itemID string) error

	// CreateResponse requests a model response. Pass nil for defaults.
	CreateResponse(opts *ResponseCreateOptions) error

	// CancelResponse cancels the in-flight response. Advisory; callers
	// must not block on confirmation.
	CancelResponse() error

	// Events returns an iterator over server events. It yields until the
	// session closes or a fatal transport error occurs; after an error
	// is yielded, iteration stops. Protocol-level error events are
	// yielded as regular events so callers can suppress known transient
	// races.
	Events() iter.Seq2[*ServerEvent, error]

	// SendRaw sends a raw JSON event, for messages not covered by the
	// helpers above.
	SendRaw(event map[string]any) error

	// Shutdown sends best-effort teardown messages (response.cancel,
	// input_audio_buffer.clear, turn-detection disable), ignoring their
	// failures, then closes the session.
	Shutdown(ctx context.Context) error

	// Close closes the session connection. Idempotent.
	Close() error

	// SessionID returns the server-assigned session id, or "" before
	// session.created has been received.
	SessionID() string
}
