package realtime

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// AudioFrameHandler receives remote audio frames tapped off the media
// track. Called from the track read loop; implementations must not block.
type AudioFrameHandler func(frame []byte)

// AudioDecoder converts a codec payload into little-endian signed 16-bit
// PCM. When no decoder is set, handlers receive the raw codec payload.
type AudioDecoder interface {
	Decode(payload []byte) ([]byte, error)
}

// WebRTCSession is a WebRTC-based realtime session. Events travel over a
// single data channel; audio travels as media tracks.
type WebRTCSession struct {
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	config *ConnectConfig
	client *Client

	closeCh   chan struct{}
	eventsCh  chan eventOrError
	closeOnce sync.Once

	mu           sync.Mutex
	sessionID    string
	remoteTrack  *webrtc.TrackRemote
	localTrack   *webrtc.TrackLocalStaticSample
	audioHandler AudioFrameHandler
	audioDecoder AudioDecoder
}

func (c *Client) connectWebRTC(ctx context.Context, config *ConnectConfig) (*WebRTCSession, error) {
	if config == nil {
		return nil, errors.New("realtime: connect config is required")
	}
	if config.Model == "" {
		return nil, errors.New("realtime: model is required")
	}

	peerConnection, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return nil, &MediaAccessError{Err: err}
	}

	session := &WebRTCSession{
		pc:       peerConnection,
		config:   config,
		client:   c,
		closeCh:  make(chan struct{}),
		eventsCh: make(chan eventOrError, 100),
	}

	_, err = peerConnection.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		peerConnection.Close()
		return nil, &MediaAccessError{Err: err}
	}

	dataChannel, err := peerConnection.CreateDataChannel("oai-events", nil)
	if err != nil {
		peerConnection.Close()
		return nil, &ConnectionError{Op: "data channel", Err: err}
	}
	session.dc = dataChannel

	dataChannel.OnOpen(func() {
		slog.Debug("data channel opened")
	})

	dataChannel.OnMessage(func(msg webrtc.DataChannelMessage) {
		event, err := parseServerEvent(msg.Data)
		if err != nil {
			// Malformed payloads are logged and dropped, not fatal.
			slog.Warn("dropping malformed event", "error", err)
			return
		}
		session.debugDump(msg.Data)

		if event.Type == EventTypeSessionCreated && event.Session != nil {
			session.mu.Lock()
			session.sessionID = event.Session.ID
			session.mu.Unlock()
		}

		select {
		case <-session.closeCh:
		case session.eventsCh <- eventOrError{event: event}:
		}
	})

	dataChannel.OnClose(func() {
		slog.Debug("data channel closed")
		close(session.eventsCh)
	})

	peerConnection.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		slog.Debug("received remote track", "kind", track.Kind(), "codec", track.Codec().MimeType)
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		session.mu.Lock()
		session.remoteTrack = track
		session.mu.Unlock()
		go session.readTrack(track)
	})

	offer, err := peerConnection.CreateOffer(nil)
	if err != nil {
		peerConnection.Close()
		return nil, &ConnectionError{Op: "offer", Err: err}
	}
	if err := peerConnection.SetLocalDescription(offer); err != nil {
		peerConnection.Close()
		return nil, &ConnectionError{Op: "offer", Err: err}
	}

	// Wait for ICE gathering so the offer carries all candidates.
	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		peerConnection.Close()
		return nil, &ConnectionError{Op: "ice gathering", Err: ctx.Err()}
	}

	answer, err := c.exchangeSDP(ctx, config.Model, peerConnection.LocalDescription().SDP)
	if err != nil {
		peerConnection.Close()
		return nil, err
	}

	err = peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	})
	if err != nil {
		peerConnection.Close()
		return nil, &ConnectionError{Op: "answer", Err: err}
	}

	return session, nil
}

// exchangeSDP POSTs the local SDP offer and returns the remote answer.
// The offer is sent as application/sdp; the answer comes back as plain
// text. Any non-2xx status is a fatal ConnectionError.
func (c *Client) exchangeSDP(ctx context.Context, model, sdp string) (string, error) {
	url := fmt.Sprintf("%s?model=%s", c.config.signalingURL, model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(sdp)))
	if err != nil {
		return "", &ConnectionError{Op: "signaling", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.config.apiKey)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := c.config.httpClient.Do(req)
	if err != nil {
		return "", &ConnectionError{Op: "signaling", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", &ConnectionError{
			Op:         "signaling",
			HTTPStatus: resp.StatusCode,
			Err:        fmt.Errorf("%s", bytes.TrimSpace(body)),
		}
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ConnectionError{Op: "signaling", Err: err}
	}
	return string(answer), nil
}

// readTrack pumps RTP packets off the remote audio track into the
// registered frame handler.
func (s *WebRTCSession) readTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("remote track read ended", "error", err)
			}
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			slog.Warn("dropping malformed rtp packet", "error", err)
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		s.mu.Lock()
		handler := s.audioHandler
		decoder := s.audioDecoder
		s.mu.Unlock()
		if handler == nil {
			continue
		}

		frame := pkt.Payload
		if decoder != nil {
			decoded, err := decoder.Decode(frame)
			if err != nil {
				slog.Warn("audio decode failed", "error", err)
				continue
			}
			frame = decoded
		}
		handler(frame)
	}
}

// SetRemoteAudioHandler registers the tap that receives remote audio
// frames. Passing nil removes the handler; frames read while no handler
// is set are discarded.
func (s *WebRTCSession) SetRemoteAudioHandler(h AudioFrameHandler) {
	s.mu.Lock()
	s.audioHandler = h
	s.mu.Unlock()
}

// SetAudioDecoder sets the decoder applied to frames before the handler
// sees them.
func (s *WebRTCSession) SetAudioDecoder(d AudioDecoder) {
	s.mu.Lock()
	s.audioDecoder = d
	s.mu.Unlock()
}

// RemoteAudioFormat describes the tapped frames. The remote track is
// 48 kHz mono opus; without a decoder the tap sees raw codec payloads.
func (s *WebRTCSession) RemoteAudioFormat() AudioFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return AudioFormat{
		SampleRate: 48000,
		Channels:   1,
		PCM:        s.audioDecoder != nil,
	}
}

// UpdateSession sends a session.update control message.
func (s *WebRTCSession) UpdateSession(config *SessionConfig) error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeSessionUpdate,
		"session":  config,
	})
}

// AppendAudio appends PCM audio data to the input audio buffer. For
// WebRTC, prefer AddLocalTrack for live microphone streaming.
func (s *WebRTCSession) AppendAudio(audio []byte) error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeInputAudioBufferAppend,
		"audio":    base64.StdEncoding.EncodeToString(audio),
	})
}

// CommitInput commits the audio buffer.
func (s *WebRTCSession) CommitInput() error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeInputAudioBufferCommit,
	})
}

// ClearInput clears the input audio buffer.
func (s *WebRTCSession) ClearInput() error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeInputAudioBufferClear,
	})
}

// AddUserMessage adds a user text message to the conversation.
func (s *WebRTCSession) AddUserMessage(text string) error {
	return s.sendEvent(userMessageEvent(text))
}

// DeleteItem deletes a conversation item.
func (s *WebRTCSession) DeleteItem(itemID string) error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeConversationItemDelete,
		"item_id":  itemID,
	})
}

// CreateResponse requests the model to generate a response.
func (s *WebRTCSession) CreateResponse(opts *ResponseCreateOptions) error {
	return s.sendEvent(responseCreateEvent(opts))
}

// CancelResponse cancels the current response generation.
func (s *WebRTCSession) CancelResponse() error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeResponseCancel,
	})
}

// Events returns an iterator over server events.
func (s *WebRTCSession) Events() iter.Seq2[*ServerEvent, error] {
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
func (s *WebRTCSession) SendRaw(event map[string]any) error {
	return s.sendEvent(event)
}

// Shutdown sends best-effort teardown messages, then closes. Failures of
// the teardown messages are ignored; a racing server may already have
// dropped the response they refer to.
func (s *WebRTCSession) Shutdown(ctx context.Context) error {
	_ = s.CancelResponse()
	_ = s.ClearInput()
	_ = s.UpdateSession(&SessionConfig{TurnDetectionDisabled: true})
	return s.Close()
}

// Close closes the session. Idempotent.
func (s *WebRTCSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		if s.dc != nil {
			s.dc.Close()
		}
		if s.pc != nil {
			err = s.pc.Close()
		}
	})
	return err
}

// SessionID returns the session ID.
func (s *WebRTCSession) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// RemoteTrack returns the remote audio track, or nil before it arrives.
func (s *WebRTCSession) RemoteTrack() *webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteTrack
}

// AddLocalTrack adds a local audio track for sending microphone audio.
func (s *WebRTCSession) AddLocalTrack(track *webrtc.TrackLocalStaticSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.localTrack != nil {
		return errors.New("realtime: local audio track already added")
	}
	if _, err := s.pc.AddTrack(track); err != nil {
		return &MediaAccessError{Err: err}
	}
	s.localTrack = track
	return nil
}

// DataChannel returns the data channel used for events.
func (s *WebRTCSession) DataChannel() *webrtc.DataChannel {
	return s.dc
}

// sendEvent sends a JSON event through the data channel.
func (s *WebRTCSession) sendEvent(event map[string]any) error {
	if s.dc == nil || s.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errors.New("realtime: data channel not ready")
	}
	payload, err := marshalForSend(event)
	if err != nil {
		return err
	}
	return s.dc.Send(payload)
}

func (s *WebRTCSession) debugDump(message []byte) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	msgStr := string(message)
	if len(msgStr) > 1000 {
		msgStr = msgStr[:1000] + "..."
	}
	slog.Debug("received message", "len", len(message), "content", msgStr)
}

// Ensure WebRTCSession implements Session.
var _ Session = (*WebRTCSession)(nil)
var _ AudioTap = (*WebRTCSession)(nil)
