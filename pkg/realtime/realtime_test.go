package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseServerEventAudioDelta(t *testing.T) {
	// base64 of the bytes 0x01 0x02 0x03 0x04
	msg := []byte(`{"type":"response.audio.delta","response_id":"resp_1","delta":"AQIDBA=="}`)
	event, err := parseServerEvent(msg)
	if err != nil {
		t.Fatalf("parseServerEvent: %v", err)
	}
	if event.Type != EventTypeResponseAudioDelta {
		t.Fatalf("Type = %q", event.Type)
	}
	if string(event.Audio) != "\x01\x02\x03\x04" {
		t.Fatalf("Audio = %v", event.Audio)
	}
	if event.RID() != "resp_1" {
		t.Fatalf("RID = %q", event.RID())
	}
}

func TestParseServerEventReplayMetadata(t *testing.T) {
	msg := []byte(`{"type":"response.created","response":{"id":"resp_2","metadata":{"kind":"replay"}}}`)
	event, err := parseServerEvent(msg)
	if err != nil {
		t.Fatalf("parseServerEvent: %v", err)
	}
	if !event.Response.IsReplay() {
		t.Fatal("expected replay response")
	}
	if event.RID() != "resp_2" {
		t.Fatalf("RID = %q, want resp_2 from response body", event.RID())
	}
}

func TestParseServerEventMalformed(t *testing.T) {
	if _, err := parseServerEvent([]byte(`{"type":`)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestServerEventFullText(t *testing.T) {
	done := &ServerEvent{Type: EventTypeResponseAudioTranscriptDone, Transcript: "hola"}
	if done.FullText() != "hola" {
		t.Fatalf("FullText = %q", done.FullText())
	}
	textDone := &ServerEvent{Type: EventTypeResponseTextDone, Text: "adios"}
	if textDone.FullText() != "adios" {
		t.Fatalf("FullText = %q", textDone.FullText())
	}
}

func TestEventClassifiers(t *testing.T) {
	for _, typ := range []string{
		EventTypeResponseTextDelta,
		EventTypeResponseOutputTextDelta,
		EventTypeResponseAudioTranscriptDelta,
	} {
		if !IsTextDelta(typ) {
			t.Fatalf("IsTextDelta(%q) = false", typ)
		}
	}
	if IsTextDelta(EventTypeResponseAudioDelta) {
		t.Fatal("audio delta classified as text delta")
	}
	for _, typ := range []string{
		EventTypeResponseCompleted,
		EventTypeResponseDone,
		EventTypeResponseCanceled,
	} {
		if !IsResponseTerminal(typ) {
			t.Fatalf("IsResponseTerminal(%q) = false", typ)
		}
	}
	if IsResponseTerminal(EventTypeResponseCreated) {
		t.Fatal("response.created classified as terminal")
	}
}

func TestSessionConfigMarshalTurnDetectionNull(t *testing.T) {
	cfg := SessionConfig{
		Instructions:          "speak slowly",
		TurnDetectionDisabled: true,
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	td, ok := m["turn_detection"]
	if !ok {
		t.Fatal("turn_detection missing")
	}
	if string(td) != "null" {
		t.Fatalf("turn_detection = %s, want null", td)
	}
}

func TestSessionConfigMarshalTurnDetection(t *testing.T) {
	cfg := SessionConfig{
		TurnDetection: &TurnDetection{
			Type:              VADServerVAD,
			Threshold:         0.6,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 800,
		},
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `"turn_detection":{"type":"server_vad","threshold":0.6,"prefix_padding_ms":300,"silence_duration_ms":800}`
	if !strings.Contains(string(raw), want) {
		t.Fatalf("marshaled config %s does not contain %s", raw, want)
	}
}

func TestResponseCreateEventMetadata(t *testing.T) {
	event := responseCreateEvent(&ResponseCreateOptions{
		Conversation: "none",
		Metadata:     map[string]string{MetadataKeyKind: MetadataKindReplay},
		Input: []ConversationItem{
			{Type: "message", Role: "user", Content: []ContentPart{{Type: "input_text", Text: "repeat that"}}},
		},
	})
	response, ok := event["response"].(map[string]any)
	if !ok {
		t.Fatalf("response payload missing: %v", event)
	}
	meta, ok := response["metadata"].(map[string]string)
	if !ok || meta[MetadataKeyKind] != MetadataKindReplay {
		t.Fatalf("metadata = %v", response["metadata"])
	}
	if response["conversation"] != "none" {
		t.Fatalf("conversation = %v", response["conversation"])
	}
}

func TestResponseCreateEventNilOptions(t *testing.T) {
	event := responseCreateEvent(nil)
	if event["type"] != EventTypeResponseCreate {
		t.Fatalf("type = %v", event["type"])
	}
	if _, ok := event["response"]; ok {
		t.Fatal("nil options must not emit a response payload")
	}
}

func TestExchangeSDP(t *testing.T) {
	const answer = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/sdp" {
			t.Errorf("Content-Type = %q", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.HasPrefix(string(body), "v=0") {
			t.Errorf("body = %q", body)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, answer)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithSignalingURL(srv.URL))
	got, err := client.exchangeSDP(context.Background(), "test-model", "v=0\r\nlocal offer")
	if err != nil {
		t.Fatalf("exchangeSDP: %v", err)
	}
	if got != answer {
		t.Fatalf("answer = %q, want %q", got, answer)
	}
}

func TestExchangeSDPNon2xxIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithSignalingURL(srv.URL))
	_, err := client.exchangeSDP(context.Background(), "bad-model", "v=0")
	if err == nil {
		t.Fatal("expected error")
	}
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("error type %T, want *ConnectionError", err)
	}
	if connErr.HTTPStatus != http.StatusNotFound {
		t.Fatalf("HTTPStatus = %d", connErr.HTTPStatus)
	}
}
