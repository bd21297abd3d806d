// Package engine drives one voice practice session: it owns the realtime
// connection, dispatches inbound protocol events to the transcript,
// translation, goal and recording components, and exposes the operations
// a UI needs (start, stop, settings changes, replay).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lingopod/lingopod/pkg/clipcache"
	"github.com/lingopod/lingopod/pkg/goal"
	"github.com/lingopod/lingopod/pkg/jsontime"
	"github.com/lingopod/lingopod/pkg/profile"
	"github.com/lingopod/lingopod/pkg/realtime"
	"github.com/lingopod/lingopod/pkg/recorder"
	"github.com/lingopod/lingopod/pkg/transcript"
	"github.com/lingopod/lingopod/pkg/translate"
)

// Status is the connection state of the engine.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// UIState is the conversational state surfaced to a UI.
type UIState string

const (
	StateIdle      UIState = "idle"
	StateListening UIState = "listening"
	StateThinking  UIState = "thinking"
	StateSpeaking  UIState = "speaking"
)

// Tuning defaults. Heuristic UX values, not invariants.
const (
	// DefaultDupWindow suppresses an identical user transcript arriving
	// twice in quick succession.
	DefaultDupWindow = 2000 * time.Millisecond

	// DefaultIdleWait bounds how long a configuration change waits for
	// the in-flight response to settle before proceeding anyway.
	DefaultIdleWait = 5 * time.Second
)

// DefaultTurnDetection is the server VAD configuration sent with every
// language-policy update.
func DefaultTurnDetection() *realtime.TurnDetection {
	return &realtime.TurnDetection{
		Type:              realtime.VADServerVAD,
		Threshold:         0.5,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 500,
	}
}

// Config configures an Engine.
type Config struct {
	// Dial opens the realtime session. Required.
	Dial func(ctx context.Context) (realtime.Session, error)

	// Settings are the initial conversation settings. Overridden by the
	// Profile store when it has saved settings.
	Settings profile.Settings

	// Profile persists settings changes. Optional.
	Profile profile.Store

	// Translator backs the per-turn translation pipeline. Optional;
	// without one, assistant turns are not translated.
	Translator translate.Translator

	// Debounce is the translation debounce delay. Default
	// translate.DefaultDebounce.
	Debounce time.Duration

	// Goals scores user turns. Optional.
	Goals *goal.Engine

	// Clips enables clip recording and replay. Optional.
	Clips clipcache.Store

	// Recorder is the per-response recorder tuning. Its Cache field is
	// replaced with Clips; zero SampleRate and Channels are filled from
	// the session's remote audio format on Start.
	Recorder recorder.Config

	// FlushInterval is the transcript delta coalescing interval.
	FlushInterval time.Duration

	// TurnDetection overrides DefaultTurnDetection.
	TurnDetection *realtime.TurnDetection

	// TranscriptionModel is the input transcription model.
	// Default "whisper-1".
	TranscriptionModel string

	// DupWindow overrides DefaultDupWindow.
	DupWindow time.Duration

	// IdleWait overrides DefaultIdleWait.
	IdleWait time.Duration

	// OnState, if set, is called on every UI state change.
	OnState func(UIState)

	// OnUpdate, if set, is called after every transcript mutation.
	OnUpdate func()

	// OnError, if set, receives surfaced protocol errors. Transient
	// cancel/idle races are suppressed and never reach it.
	OnError func(error)
}

// Engine is the per-session protocol state machine. One live connection
// at a time; Start and Stop bracket its lifetime.
type Engine struct {
	cfg Config

	mu         sync.Mutex
	status     Status
	alive      bool
	state      UIState
	session    realtime.Session
	settings   profile.Settings
	transcript *transcript.Aggregator
	translator *translate.Pipeline

	rid2mid     map[string]string
	replayRIDs  map[string]struct{}
	recorders   map[string]*recorder.Recorder
	recording   bool
	recorderCfg recorder.Config
	currentRID  string
	turnStarted jsontime.Milli

	lastUserText string
	lastUserAt   time.Time

	isIdle      bool
	idleWaiters []chan struct{}

	loopDone chan struct{}
}

// New creates an Engine. It does not connect; call Start.
func New(cfg Config) (*Engine, error) {
	if cfg.Dial == nil {
		return nil, errors.New("engine: Dial is required")
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = "whisper-1"
	}
	if cfg.DupWindow <= 0 {
		cfg.DupWindow = DefaultDupWindow
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = DefaultIdleWait
	}
	return &Engine{
		cfg:      cfg,
		status:   StatusDisconnected,
		state:    StateIdle,
		settings: cfg.Settings,
	}, nil
}

// Start connects and begins dispatching events. Any failure resets the
// engine to disconnected and returns a single error; there is no
// automatic retry.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.status != StatusDisconnected {
		e.mu.Unlock()
		return fmt.Errorf("engine: already %s", e.status)
	}
	e.status = StatusConnecting
	e.mu.Unlock()

	if e.cfg.Profile != nil {
		saved, err := e.cfg.Profile.Load(ctx)
		switch {
		case err == nil:
			e.mu.Lock()
			e.settings = *saved
			e.mu.Unlock()
		case errors.Is(err, profile.ErrNotFound):
		default:
			slog.Warn("engine: loading settings failed, using defaults", "error", err)
		}
	}

	sess, err := e.cfg.Dial(ctx)
	if err != nil {
		e.mu.Lock()
		e.status = StatusDisconnected
		e.mu.Unlock()
		return err
	}

	agg := transcript.New(transcript.Config{
		FlushInterval: e.cfg.FlushInterval,
		OnUpdate:      e.cfg.OnUpdate,
	})
	var pipeline *translate.Pipeline
	if e.cfg.Translator != nil {
		pipeline = translate.NewPipeline(e.cfg.Translator, e.cfg.Debounce, func(id string, res *translate.Result) {
			agg.SetTranslation(id, res.Translation, res.Pairs)
		})
	}

	e.mu.Lock()
	e.session = sess
	e.transcript = agg
	e.translator = pipeline
	e.status = StatusConnected
	e.alive = true
	e.state = StateIdle
	e.isIdle = true
	e.rid2mid = make(map[string]string)
	e.replayRIDs = make(map[string]struct{})
	e.recorders = make(map[string]*recorder.Recorder)
	e.recording = false
	e.lastUserText = ""
	e.loopDone = make(chan struct{})
	e.mu.Unlock()

	if e.cfg.Clips != nil {
		if tap, ok := sess.(realtime.AudioTap); ok {
			format := tap.RemoteAudioFormat()
			if format.PCM {
				cfg := e.cfg.Recorder
				if cfg.SampleRate == 0 {
					cfg.SampleRate = format.SampleRate
				}
				if cfg.Channels == 0 {
					cfg.Channels = format.Channels
				}
				e.mu.Lock()
				e.recording = true
				e.recorderCfg = cfg
				e.mu.Unlock()
				tap.SetRemoteAudioHandler(e.routeAudio)
			} else {
				slog.Warn("engine: remote audio frames are not PCM, clip recording disabled",
					"sample_rate", format.SampleRate)
			}
		}
	}

	if err := e.ApplyLanguagePolicy(); err != nil {
		slog.Warn("engine: initial language policy failed", "error", err)
	}

	go e.loop(sess)
	return nil
}

func (e *Engine) loop(sess realtime.Session) {
	defer close(e.loopDone)
	for event, err := range sess.Events() {
		if err != nil {
			e.surfaceError(fmt.Errorf("engine: transport: %w", err))
			return
		}
		e.dispatch(event)
	}
}

// Stop tears the session down. Idempotent and safe to call from any
// state. Teardown messages are best-effort; every timer, recorder and
// mapping owned by the engine is cleared.
func (e *Engine) Stop() error {
	e.mu.Lock()
	sess := e.session
	agg := e.transcript
	pipeline := e.translator
	recs := e.recorders

	e.session = nil
	e.translator = nil
	e.status = StatusDisconnected
	e.alive = false
	e.state = StateIdle
	e.rid2mid = nil
	e.replayRIDs = nil
	e.recorders = nil
	e.recording = false
	e.currentRID = ""
	e.lastUserText = ""
	e.isIdle = true
	e.wakeIdleLocked()
	e.mu.Unlock()

	for _, r := range recs {
		r.Abort()
	}
	if pipeline != nil {
		pipeline.Close()
	}
	if agg != nil {
		agg.Close()
	}
	if sess == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return sess.Shutdown(ctx)
}

// ApplyLanguagePolicy sends a session.update built from the current
// settings and active goal. No-ops when there is no open session. Safe
// to call on every settings change.
func (e *Engine) ApplyLanguagePolicy() error {
	e.mu.Lock()
	sess := e.session
	settings := e.settings
	e.mu.Unlock()
	if sess == nil {
		return nil
	}

	var active *goal.Goal
	if e.cfg.Goals != nil {
		active = e.cfg.Goals.Active()
	}

	td := e.cfg.TurnDetection
	if td == nil {
		td = DefaultTurnDetection()
	}
	return sess.UpdateSession(&realtime.SessionConfig{
		Modalities:        []string{realtime.ModalityAudio, realtime.ModalityText},
		Instructions:      buildInstructions(settings, active),
		Voice:             settings.Voice,
		InputAudioFormat:  realtime.AudioFormatPCM16,
		OutputAudioFormat: realtime.AudioFormatPCM16,
		InputAudioTranscription: &realtime.TranscriptionConfig{
			Model:    e.cfg.TranscriptionModel,
			Language: settings.TargetLanguage,
		},
		TurnDetection: td,
	})
}

// UpdateSettings applies a partial settings change. Any in-flight
// response is cancelled first and the engine waits (bounded) for idle, so
// the new configuration cannot race an active turn.
func (e *Engine) UpdateSettings(ctx context.Context, p profile.Partial) error {
	e.awaitIdle(ctx)

	e.mu.Lock()
	p.Apply(&e.settings)
	pronunciation := e.settings.Pronunciation
	e.mu.Unlock()

	if e.cfg.Goals != nil {
		e.cfg.Goals.SetPronunciation(pronunciation)
	}
	if e.cfg.Profile != nil {
		if err := e.cfg.Profile.Save(ctx, p); err != nil {
			slog.Warn("engine: persisting settings failed", "error", err)
		}
	}
	return e.ApplyLanguagePolicy()
}

// awaitIdle cancels any active response and waits for the engine to go
// idle, bounded by the idle-wait timeout. Proceeds regardless on timeout;
// cancellation is advisory.
func (e *Engine) awaitIdle(ctx context.Context) {
	e.mu.Lock()
	if e.session == nil || e.isIdle {
		e.mu.Unlock()
		return
	}
	if err := e.session.CancelResponse(); err != nil {
		slog.Debug("engine: cancel before settings change failed", "error", err)
	}
	ch := make(chan struct{})
	e.idleWaiters = append(e.idleWaiters, ch)
	e.mu.Unlock()

	select {
	case <-ch:
	case <-time.After(e.cfg.IdleWait):
	case <-ctx.Done():
	}
}

func (e *Engine) wakeIdleLocked() {
	for _, ch := range e.idleWaiters {
		close(ch)
	}
	e.idleWaiters = nil
}

// Replay returns the cached clip for a message if one exists. Otherwise,
// when a session is open, it requests the agent to speak the message
// again as a replay response (kept out of the main transcript and
// response bookkeeping) and returns nil.
func (e *Engine) Replay(ctx context.Context, messageID string) (*clipcache.Clip, error) {
	if e.cfg.Clips != nil {
		clip, err := e.cfg.Clips.Get(ctx, messageID)
		if err == nil {
			return clip, nil
		}
		if !errors.Is(err, clipcache.ErrNotFound) {
			slog.Warn("engine: clip lookup failed", "message_id", messageID, "error", err)
		}
	}

	e.mu.Lock()
	sess := e.session
	agg := e.transcript
	e.mu.Unlock()
	if sess == nil || agg == nil {
		return nil, errors.New("engine: no clip cached and no open session")
	}
	msg := agg.Get(messageID)
	if msg == nil || msg.Text() == "" {
		return nil, fmt.Errorf("engine: no replayable text for message %s", messageID)
	}

	err := sess.CreateResponse(&realtime.ResponseCreateOptions{
		Modalities:   []string{realtime.ModalityAudio},
		Instructions: fmt.Sprintf("Say exactly the following, nothing else: %s", msg.Text()),
		Conversation: "none",
		Metadata: map[string]string{
			realtime.MetadataKeyKind: realtime.MetadataKindReplay,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("engine: replay request: %w", err)
	}
	return nil, nil
}

// routeAudio feeds remote audio frames to the recorder of the response
// currently speaking.
func (e *Engine) routeAudio(frame []byte) {
	e.mu.Lock()
	rec := e.recorders[e.currentRID]
	e.mu.Unlock()
	if rec != nil {
		rec.WritePCM(frame)
	}
}

func (e *Engine) surfaceError(err error) {
	if e.cfg.OnError != nil {
		e.cfg.OnError(err)
		return
	}
	slog.Warn("engine: error", "error", err)
}

func (e *Engine) setState(s UIState) {
	e.mu.Lock()
	changed := e.state != s && e.alive
	if changed {
		e.state = s
	}
	e.mu.Unlock()
	if changed && e.cfg.OnState != nil {
		e.cfg.OnState(s)
	}
}

// Status returns the connection status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// State returns the UI-facing conversational state.
func (e *Engine) State() UIState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Alive reports whether a session is live.
func (e *Engine) Alive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alive
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() profile.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := e.settings
	cp.CustomSubjects = append([]string(nil), e.settings.CustomSubjects...)
	return cp
}

// Messages returns the transcript in display order.
func (e *Engine) Messages() []*transcript.Message {
	e.mu.Lock()
	agg := e.transcript
	e.mu.Unlock()
	if agg == nil {
		return nil
	}
	return agg.Messages()
}

func newMessageID() string {
	return "msg_" + uuid.New().String()[:8]
}
