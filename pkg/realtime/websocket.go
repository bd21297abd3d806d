package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketSession is a WebSocket-based realtime session. Audio travels
// as base64 PCM inside JSON messages on the same connection as events.
type WebSocketSession struct {
	conn   *websocket.Conn
	config *ConnectConfig
	client *Client

	closeCh   chan struct{}
	eventsCh  chan eventOrError
	closeOnce sync.Once

	mu        sync.Mutex
	sessionID string

	handlerMu    sync.Mutex
	audioHandler AudioFrameHandler
}

func (c *Client) connectWebSocket(ctx context.Context, config *ConnectConfig) (*WebSocketSession, error) {
	if config == nil {
		return nil, errors.New("realtime: connect config is required")
	}
	if config.Model == "" {
		return nil, errors.New("realtime: model is required")
	}

	url := fmt.Sprintf("%s?model=%s", c.config.wsURL, config.Model)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.config.apiKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.httpClient.Timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		connErr := &ConnectionError{Op: "dial", Err: err}
		if resp != nil {
			connErr.HTTPStatus = resp.StatusCode
		}
		return nil, connErr
	}

	session := &WebSocketSession{
		conn:     conn,
		config:   config,
		client:   c,
		closeCh:  make(chan struct{}),
		eventsCh: make(chan eventOrError, 100),
	}
	go session.readLoop()
	return session, nil
}

// SetRemoteAudioHandler registers the tap that receives decoded PCM from
// response.audio.delta events. Passing nil removes the handler.
func (s *WebSocketSession) SetRemoteAudioHandler(h AudioFrameHandler) {
	s.handlerMu.Lock()
	s.audioHandler = h
	s.handlerMu.Unlock()
}

// RemoteAudioFormat describes the tapped frames: pcm16 audio deltas at
// 24 kHz mono, per the session audio-format contract.
func (s *WebSocketSession) RemoteAudioFormat() AudioFormat {
	return AudioFormat{SampleRate: 24000, Channels: 1, PCM: true}
}

// UpdateSession sends a session.update control message.
func (s *WebSocketSession) UpdateSession(config *SessionConfig) error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeSessionUpdate,
		"session":  config,
	})
}

// AppendAudio appends PCM audio data to the input audio buffer.
func (s *WebSocketSession) AppendAudio(audio []byte) error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeInputAudioBufferAppend,
		"audio":    base64.StdEncoding.EncodeToString(audio),
	})
}

// CommitInput commits the audio buffer.
func (s *WebSocketSession) CommitInput() error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeInputAudioBufferCommit,
	})
}

// ClearInput clears the input audio buffer.
func (s *WebSocketSession) ClearInput() error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeInputAudioBufferClear,
	})
}

// AddUserMessage adds a user text message to the conversation.
func (s *WebSocketSession) AddUserMessage(text string) error {
	return s.sendEvent(userMessageEvent(text))
}

// DeleteItem deletes a conversation item.
func (s *WebSocketSession) DeleteItem(itemID string) error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeConversationItemDelete,
		"item_id":  itemID,
	})
}

// CreateResponse requests the model to generate a response.
func (s *WebSocketSession) CreateResponse(opts *ResponseCreateOptions) error {
	return s.sendEvent(responseCreateEvent(opts))
}

// CancelResponse cancels the current response generation.
func (s *WebSocketSession) CancelResponse() error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeResponseCancel,
	})
}

// Events returns an iterator over server events.
func (s *WebSocketSession) Events() iter.Seq2[*ServerEvent, error] {
	return func(yield func(*ServerEvent, error) bool) {
		for {
			select {
			case <-s.closeCh:
				return
			case item, ok := <-s.eventsCh:
				if !ok {
					return
				}
				if !yield(item.event, item.err) {
					return
				}
				if item.err != nil {
					return
				}
			}
		}
	}
}

// SendRaw sends a raw JSON event to the server.
func (s *WebSocketSession) SendRaw(event map[string]any) error {
	return s.sendEvent(event)
}

// Shutdown sends best-effort teardown messages, then closes.
func (s *WebSocketSession) Shutdown(ctx context.Context) error {
	_ = s.CancelResponse()
	_ = s.ClearInput()
	_ = s.UpdateSession(&SessionConfig{TurnDetectionDisabled: true})
	return s.Close()
}

// Close closes the session. Idempotent.
func (s *WebSocketSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		err = s.conn.Close()
	})
	return err
}

// SessionID returns the session ID.
func (s *WebSocketSession) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// sendEvent sends a JSON event to the server. Writes are serialized; the
// websocket connection allows one concurrent writer.
func (s *WebSocketSession) sendEvent(event map[string]any) error {
	payload, err := marshalForSend(event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// readLoop reads events from the WebSocket connection.
func (s *WebSocketSession) readLoop() {
	defer close(s.eventsCh)

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closeCh:
			case s.eventsCh <- eventOrError{err: fmt.Errorf("realtime: read: %w", err)}:
			}
			return
		}

		if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			msgStr := string(message)
			if len(msgStr) > 1000 {
				msgStr = msgStr[:1000] + "..."
			}
			slog.Debug("received message", "len", len(message), "content", msgStr)
		}

		event, err := parseServerEvent(message)
		if err != nil {
			slog.Warn("dropping malformed event", "error", err)
			continue
		}

		if event.Type == EventTypeSessionCreated && event.Session != nil {
			s.mu.Lock()
			s.sessionID = event.Session.ID
			s.mu.Unlock()
		}

		// Without media tracks, the audio tap is fed from audio deltas.
		if event.Type == EventTypeResponseAudioDelta && len(event.Audio) > 0 {
			s.handlerMu.Lock()
			handler := s.audioHandler
			s.handlerMu.Unlock()
			if handler != nil {
				handler(event.Audio)
			}
		}

		select {
		case <-s.closeCh:
			return
		case s.eventsCh <- eventOrError{event: event}:
		}
	}
}

// Ensure WebSocketSession implements Session.
var _ Session = (*WebSocketSession)(nil)
var _ AudioTap = (*WebSocketSession)(nil)
