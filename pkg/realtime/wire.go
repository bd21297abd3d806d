package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// eventOrError is the unit carried on a session's internal event channel.
type eventOrError struct {
	event *ServerEvent
	err   error
}

// generateEventID generates a unique client event ID.
func generateEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

// marshalForSend marshals an outbound event, dumping a truncated copy at
// debug level.
func marshalForSend(event map[string]any) ([]byte, error) {
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		if pretty, err := json.MarshalIndent(event, "", "  "); err == nil {
			str := string(pretty)
			if len(str) > 500 {
				str = str[:500] + "..."
			}
			slog.Debug("sending event", "content", str)
		}
	}
	return json.Marshal(event)
}

// parseServerEvent parses a raw JSON message into a ServerEvent.
func parseServerEvent(message []byte) (*ServerEvent, error) {
	var event ServerEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return nil, fmt.Errorf("realtime: parse event: %w", err)
	}
	event.Raw = message

	// For audio deltas the "delta" field carries base64 audio.
	if event.Type == EventTypeResponseAudioDelta && event.Delta != "" {
		if decoded, err := base64.StdEncoding.DecodeString(event.Delta); err == nil {
			event.Audio = decoded
		}
	}
	return &event, nil
}

// responseCreateEvent builds a response.create control message.
func responseCreateEvent(opts *ResponseCreateOptions) map[string]any {
	event := map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeResponseCreate,
	}
	if opts == nil {
		return event
	}

	response := map[string]any{}
	if len(opts.Modalities) > 0 {
		response["modalities"] = opts.Modalities
	}
	if opts.Instructions != "" {
		response["instructions"] = opts.Instructions
	}
	if opts.Voice != "" {
		response["voice"] = opts.Voice
	}
	if opts.OutputAudioFormat != "" {
		response["output_audio_format"] = opts.OutputAudioFormat
	}
	if opts.Temperature != nil {
		response["temperature"] = *opts.Temperature
	}
	if opts.MaxOutputTokens != nil {
		response["max_output_tokens"] = opts.MaxOutputTokens
	}
	if opts.Conversation != "" {
		response["conversation"] = opts.Conversation
	}
	if len(opts.Metadata) > 0 {
		response["metadata"] = opts.Metadata
	}
	if len(opts.Input) > 0 {
		response["input"] = opts.Input
	}
	if len(response) > 0 {
		event["response"] = response
	}
	return event
}

// userMessageEvent builds a conversation.item.create for a user text turn.
func userMessageEvent(text string) map[string]any {
	return map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeConversationItemCreate,
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{
					"type": "input_text",
					"text": text,
				},
			},
		},
	}
}
