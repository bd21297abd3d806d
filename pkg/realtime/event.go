package realtime

// Client event types (sent from client to server).
const (
	EventTypeSessionUpdate = "session.update"

	EventTypeInputAudioBufferAppend = "input_audio_buffer.append"
	EventTypeInputAudioBufferCommit = "input_audio_buffer.commit"
	EventTypeInputAudioBufferClear  = "input_audio_buffer.clear"

	EventTypeConversationItemCreate = "conversation.item.create"
	EventTypeConversationItemDelete = "conversation.item.delete"

	EventTypeResponseCreate = "response.create"
	EventTypeResponseCancel = "response.cancel"
)

// Server event types (sent from server to client).
const (
	EventTypeError = "error"

	EventTypeSessionCreated = "session.created"
	EventTypeSessionUpdated = "session.updated"

	EventTypeConversationItemCreated                          = "conversation.item.created"
	EventTypeConversationItemDeleted                          = "conversation.item.deleted"
	EventTypeConversationItemInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventTypeConversationItemInputAudioTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"

	EventTypeInputAudioBufferCommitted     = "input_audio_buffer.committed"
	EventTypeInputAudioBufferCleared       = "input_audio_buffer.cleared"
	EventTypeInputAudioBufferSpeechStarted = "input_audio_buffer.speech_started"
	EventTypeInputAudioBufferSpeechStopped = "input_audio_buffer.speech_stopped"

	EventTypeResponseCreated   = "response.created"
	EventTypeResponseCompleted = "response.completed"
	EventTypeResponseDone      = "response.done"
	EventTypeResponseCanceled  = "response.canceled"

	EventTypeResponseTextDelta = "response.text.delta"
	EventTypeResponseTextDone  = "response.text.done"

	EventTypeResponseOutputTextDelta = "response.output_text.delta"
	EventTypeResponseOutputTextDone  = "response.output_text.done"

	EventTypeResponseAudioDelta = "response.audio.delta"
	EventTypeResponseAudioDone  = "response.audio.done"

	EventTypeResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	EventTypeResponseAudioTranscriptDone  = "response.audio_transcript.done"
)

// IsTextDelta reports whether t is one of the streaming-text delta events.
func IsTextDelta(t string) bool {
	switch t {
	case EventTypeResponseTextDelta, EventTypeResponseOutputTextDelta, EventTypeResponseAudioTranscriptDelta:
		return true
	}
	return false
}

// IsTextDone reports whether t is one of the streaming-text done events.
func IsTextDone(t string) bool {
	switch t {
	case EventTypeResponseTextDone, EventTypeResponseOutputTextDone, EventTypeResponseAudioTranscriptDone:
		return true
	}
	return false
}

// IsResponseTerminal reports whether t ends a response's lifecycle.
func IsResponseTerminal(t string) bool {
	switch t {
	case EventTypeResponseCompleted, EventTypeResponseDone, EventTypeResponseCanceled:
		return true
	}
	return false
}

// ServerEvent is one event received from the server. Fields are populated
// depending on Type; unknown fields in the wire message are ignored.
type ServerEvent struct {
	// Type is the event type.
	Type string `json:"type"`

	// EventID is the unique identifier for this event.
	EventID string `json:"event_id,omitzero"`

	// Session carries session state (session.created, session.updated).
	Session *SessionResource `json:"session,omitzero"`

	// Item carries a conversation item (conversation.item.* events).
	Item *ConversationItem `json:"item,omitzero"`

	// ItemID identifies the item an event refers to.
	ItemID string `json:"item_id,omitzero"`

	// Transcript is the finalized transcription text
	// (input_audio_transcription.completed) or the full text on a done
	// event.
	Transcript string `json:"transcript,omitzero"`

	// Text is the full text on response.text.done and
	// response.output_text.done.
	Text string `json:"text,omitzero"`

	// TranscriptionError carries error info for error and
	// transcription-failed events.
	TranscriptionError *EventError `json:"error,omitzero"`

	// Response carries response state (response.* lifecycle events).
	Response *ResponseResource `json:"response,omitzero"`

	// ResponseID identifies the response a streaming event belongs to.
	ResponseID string `json:"response_id,omitzero"`

	// ContentIndex is the index of the content part.
	ContentIndex int `json:"content_index,omitzero"`

	// Delta is the incremental text for *.delta events. For
	// response.audio.delta it holds base64 audio instead; see Audio.
	Delta string `json:"delta,omitzero"`

	// Audio is the decoded PCM payload of a response.audio.delta event,
	// populated after parsing.
	Audio []byte `json:"-"`

	// Raw is the original JSON message.
	Raw []byte `json:"-"`
}

// RID returns the response id an event refers to, whichever field it
// arrived in.
func (e *ServerEvent) RID() string {
	if e.ResponseID != "" {
		return e.ResponseID
	}
	if e.Response != nil {
		return e.Response.ID
	}
	return ""
}

// FullText returns the committed text on a done event, preferring the
// explicit text/transcript fields.
func (e *ServerEvent) FullText() string {
	if e.Text != "" {
		return e.Text
	}
	return e.Transcript
}
