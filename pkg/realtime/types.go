package realtime

import "encoding/json"

// Audio formats.
const (
	// AudioFormatPCM16 is 16-bit PCM at 24kHz, mono, little-endian.
	AudioFormatPCM16 = "pcm16"
)

// Voice options for audio output.
const (
	VoiceAlloy   = "alloy"
	VoiceAsh     = "ash"
	VoiceBallad  = "ballad"
	VoiceCoral   = "coral"
	VoiceEcho    = "echo"
	VoiceSage    = "sage"
	VoiceShimmer = "shimmer"
	VoiceVerse   = "verse"
)

// Turn-detection modes.
const (
	VADServerVAD = "server_vad"
)

// Modality types.
const (
	ModalityText  = "text"
	ModalityAudio = "audio"
)

// MetadataKeyKind is the response metadata key that routes a response
// outside the main transcript. Responses created with
// MetadataKindReplay never enter the response-id bookkeeping.
const (
	MetadataKeyKind    = "kind"
	MetadataKindReplay = "replay"
)

// ConnectConfig configures one connection attempt.
type ConnectConfig struct {
	// Model is the model ID to use. Required.
	Model string `json:"model,omitzero"`

	// Voice is the voice ID for audio output.
	Voice string `json:"voice,omitzero"`
}

// SessionConfig is the payload of a session.update control message.
type SessionConfig struct {
	// Modalities specifies the output modalities.
	// Default: ["text", "audio"]
	Modalities []string `json:"modalities,omitzero"`

	// Instructions is the system prompt.
	Instructions string `json:"instructions,omitzero"`

	// Voice is the voice ID for audio output.
	Voice string `json:"voice,omitzero"`

	// InputAudioFormat specifies the input audio format. Default pcm16.
	InputAudioFormat string `json:"input_audio_format,omitzero"`

	// OutputAudioFormat specifies the output audio format. Default pcm16.
	OutputAudioFormat string `json:"output_audio_format,omitzero"`

	// InputAudioTranscription enables transcription of user audio.
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitzero"`

	// TurnDetection configures voice activity detection. nil keeps the
	// current setting.
	TurnDetection *TurnDetection `json:"turn_detection,omitzero"`

	// TurnDetectionDisabled sends "turn_detection": null explicitly,
	// switching the server to manual mode.
	TurnDetectionDisabled bool `json:"-"`

	// Temperature controls randomness (0.6-1.2). Default 0.8.
	Temperature *float64 `json:"temperature,omitzero"`

	// MaxResponseOutputTokens limits the output length.
	MaxResponseOutputTokens *int `json:"max_response_output_tokens,omitzero"`
}

// MarshalJSON emits "turn_detection": null when TurnDetectionDisabled is
// set; omitzero alone cannot express an explicit null.
func (s SessionConfig) MarshalJSON() ([]byte, error) {
	type alias SessionConfig
	if !s.TurnDetectionDisabled {
		return json.Marshal(alias(s))
	}

	cp := s
	cp.TurnDetection = nil
	raw, err := json.Marshal(alias(cp))
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["turn_detection"] = json.RawMessage("null")
	return json.Marshal(m)
}

// TranscriptionConfig configures input audio transcription.
type TranscriptionConfig struct {
	// Model is the transcription model to use.
	Model string `json:"model,omitzero"`

	// Language is an optional BCP-47 hint for the transcriber.
	Language string `json:"language,omitzero"`
}

// TurnDetection configures voice activity detection.
type TurnDetection struct {
	// Type is the VAD mode, e.g. "server_vad".
	Type string `json:"type,omitzero"`

	// Threshold is the VAD sensitivity (0.0-1.0). Default 0.5.
	Threshold float64 `json:"threshold,omitzero"`

	// PrefixPaddingMs is the padding before speech start. Default 300.
	PrefixPaddingMs int `json:"prefix_padding_ms,omitzero"`

	// SilenceDurationMs is the silence that ends a user turn. Default 500.
	SilenceDurationMs int `json:"silence_duration_ms,omitzero"`
}

// ResponseCreateOptions are the optional overrides for one response.
type ResponseCreateOptions struct {
	// Modalities specifies the output modalities for this response.
	Modalities []string `json:"modalities,omitzero"`

	// Instructions override for this response.
	Instructions string `json:"instructions,omitzero"`

	// Voice override for this response.
	Voice string `json:"voice,omitzero"`

	// OutputAudioFormat override for this response.
	OutputAudioFormat string `json:"output_audio_format,omitzero"`

	// Temperature override for this response.
	Temperature *float64 `json:"temperature,omitzero"`

	// MaxOutputTokens limits the output length for this response.
	MaxOutputTokens *int `json:"max_output_tokens,omitzero"`

	// Conversation is "auto" (default) or "none"; "none" keeps the
	// response out of the conversation context. Used for replays.
	Conversation string `json:"conversation,omitzero"`

	// Metadata is echoed back on every event for this response. The
	// "kind" key routes replay responses; see MetadataKindReplay.
	Metadata map[string]string `json:"metadata,omitzero"`

	// Input provides input items directly instead of using the buffer.
	Input []ConversationItem `json:"input,omitzero"`
}

// SessionResource is the session state returned by the server.
type SessionResource struct {
	ID                      string               `json:"id,omitzero"`
	Object                  string               `json:"object,omitzero"`
	Model                   string               `json:"model,omitzero"`
	ExpiresAt               int64                `json:"expires_at,omitzero"`
	Modalities              []string             `json:"modalities,omitzero"`
	Instructions            string               `json:"instructions,omitzero"`
	Voice                   string               `json:"voice,omitzero"`
	InputAudioFormat        string               `json:"input_audio_format,omitzero"`
	OutputAudioFormat       string               `json:"output_audio_format,omitzero"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitzero"`
	TurnDetection           *TurnDetection       `json:"turn_detection,omitzero"`
	Temperature             float64              `json:"temperature,omitzero"`
}

// ConversationItem is one item in the conversation.
type ConversationItem struct {
	ID      string        `json:"id,omitzero"`
	Object  string        `json:"object,omitzero"`
	Type    string        `json:"type,omitzero"` // "message"
	Status  string        `json:"status,omitzero"`
	Role    string        `json:"role,omitzero"` // "user", "assistant", "system"
	Content []ContentPart `json:"content,omitzero"`
}

// ContentPart is a part of message content.
type ContentPart struct {
	Type       string `json:"type,omitzero"` // "input_text", "input_audio", "text", "audio"
	Text       string `json:"text,omitzero"`
	Audio      string `json:"audio,omitzero"`      // base64 encoded
	Transcript string `json:"transcript,omitzero"` // for audio parts
}

// ResponseResource is the server's view of a response.
type ResponseResource struct {
	ID            string             `json:"id,omitzero"`
	Object        string             `json:"object,omitzero"`
	Status        string             `json:"status,omitzero"` // "in_progress", "completed", "cancelled", "incomplete", "failed"
	StatusDetails *StatusDetails     `json:"status_details,omitzero"`
	Output        []ConversationItem `json:"output,omitzero"`
	Metadata      map[string]string  `json:"metadata,omitzero"`
}

// IsReplay reports whether the response was created with replay metadata.
func (r *ResponseResource) IsReplay() bool {
	return r != nil && r.Metadata[MetadataKeyKind] == MetadataKindReplay
}

// StatusDetails describes why a response ended in its status.
type StatusDetails struct {
	Type   string      `json:"type,omitzero"`
	Reason string      `json:"reason,omitzero"`
	Error  *EventError `json:"error,omitzero"`
}
