package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/lingopod/lingopod/pkg/jsontime"
	"github.com/lingopod/lingopod/pkg/realtime"
	"github.com/lingopod/lingopod/pkg/recorder"
	"github.com/lingopod/lingopod/pkg/transcript"
)

// transientErrorFragments are known cancel/idle race artifacts. They are
// expected and suppressed, not surfaced.
var transientErrorFragments = []string{
	"cancellation failed",
	"no active response",
}

func isTransientError(message string) bool {
	lower := strings.ToLower(message)
	for _, frag := range transientErrorFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// dispatch routes one inbound event. Runs on the event loop goroutine.
func (e *Engine) dispatch(event *realtime.ServerEvent) {
	switch {
	case event.Type == realtime.EventTypeError:
		e.handleError(event)

	case event.Type == realtime.EventTypeResponseCreated:
		e.handleResponseCreated(event)

	case event.Type == realtime.EventTypeInputAudioBufferSpeechStarted:
		e.setState(StateListening)

	case event.Type == realtime.EventTypeInputAudioBufferSpeechStopped:
		e.setState(StateThinking)

	case event.Type == realtime.EventTypeConversationItemInputAudioTranscriptionCompleted:
		e.handleUserTranscript(event)

	case realtime.IsTextDelta(event.Type):
		e.handleDelta(event)

	case realtime.IsTextDone(event.Type):
		e.handleDone(event)

	case realtime.IsResponseTerminal(event.Type):
		e.handleTerminal(event)
	}
}

func (e *Engine) handleError(event *realtime.ServerEvent) {
	if event.TranscriptionError == nil {
		return
	}
	if isTransientError(event.TranscriptionError.Message) {
		slog.Debug("engine: suppressed transient protocol error",
			"message", event.TranscriptionError.Message)
		return
	}
	e.surfaceError(event.TranscriptionError)
}

func (e *Engine) handleResponseCreated(event *realtime.ServerEvent) {
	rid := event.RID()
	if rid == "" {
		return
	}

	if event.Response.IsReplay() {
		// Replay responses never enter the main bookkeeping, so they
		// cannot pollute the transcript or double-fire side effects.
		e.mu.Lock()
		if e.replayRIDs != nil {
			e.replayRIDs[rid] = struct{}{}
		}
		e.mu.Unlock()
		return
	}

	mid := newMessageID()
	e.mu.Lock()
	if e.rid2mid == nil {
		e.mu.Unlock()
		return
	}
	if _, ok := e.rid2mid[rid]; ok {
		e.mu.Unlock()
		return
	}
	e.rid2mid[rid] = mid
	e.currentRID = rid
	e.turnStarted = jsontime.Now()
	e.isIdle = false
	agg := e.transcript
	lang := e.settings.TargetLanguage
	clips := e.cfg.Clips
	recording := e.recording
	recorderCfg := e.recorderCfg
	e.mu.Unlock()

	agg.Insert(&transcript.Message{
		ID:   mid,
		Role: transcript.RoleAssistant,
		Lang: lang,
	})

	if clips != nil && recording {
		cfg := recorderCfg
		cfg.Cache = clips
		cfg.OnClip = func(id string) {
			e.mu.Lock()
			a := e.transcript
			e.mu.Unlock()
			if a != nil {
				a.SetHasAudio(id)
			}
		}
		rec := recorder.Start(mid, rid, cfg)
		e.mu.Lock()
		if e.recorders != nil {
			e.recorders[rid] = rec
		} else {
			rec.Abort()
		}
		e.mu.Unlock()
		go func() {
			<-rec.Done()
			e.mu.Lock()
			if e.recorders != nil {
				delete(e.recorders, rid)
			}
			e.mu.Unlock()
		}()
	}

	e.setState(StateSpeaking)
}

// handleUserTranscript inserts a finalized user turn. The timestamp is
// back-dated to just before the current response start so the utterance
// renders above the assistant's reply even though this event usually
// arrives after response.created.
func (e *Engine) handleUserTranscript(event *realtime.ServerEvent) {
	text := strings.TrimSpace(event.Transcript)
	if text == "" {
		return
	}

	now := time.Now()
	e.mu.Lock()
	if text == e.lastUserText && now.Sub(e.lastUserAt) < e.cfg.DupWindow {
		e.mu.Unlock()
		return
	}
	e.lastUserText = text
	e.lastUserAt = now

	ts := jsontime.Now()
	if e.currentRID != "" && !e.turnStarted.IsZero() {
		ts = e.turnStarted.Add(-time.Millisecond)
	}
	agg := e.transcript
	lang := e.settings.TargetLanguage
	e.mu.Unlock()
	if agg == nil {
		return
	}

	mid := event.ItemID
	if mid == "" {
		mid = newMessageID()
	}
	agg.Insert(&transcript.Message{
		ID:        mid,
		Role:      transcript.RoleUser,
		Lang:      lang,
		TextFinal: text,
		Done:      true,
		Time:      ts,
	})

	if e.cfg.Goals != nil {
		e.cfg.Goals.HandleUserTurn(context.Background(), text)
	}
}

func (e *Engine) handleDelta(event *realtime.ServerEvent) {
	e.mu.Lock()
	if _, replay := e.replayRIDs[event.RID()]; replay {
		e.mu.Unlock()
		return
	}
	mid, ok := e.rid2mid[event.RID()]
	agg := e.transcript
	e.mu.Unlock()
	if !ok || agg == nil {
		return
	}
	agg.AppendDelta(mid, event.Delta)
}

func (e *Engine) handleDone(event *realtime.ServerEvent) {
	e.mu.Lock()
	mid, ok := e.rid2mid[event.RID()]
	agg := e.transcript
	e.mu.Unlock()
	if !ok || agg == nil {
		return
	}
	agg.Finalize(mid, event.FullText())
}

// handleTerminal releases the response mapping and fires the per-turn
// side effects. The mapping is deleted first, so a duplicate terminal
// event for the same response id finds nothing and does nothing.
func (e *Engine) handleTerminal(event *realtime.ServerEvent) {
	rid := event.RID()

	e.mu.Lock()
	if _, replay := e.replayRIDs[rid]; replay {
		delete(e.replayRIDs, rid)
		e.isIdle = true
		e.wakeIdleLocked()
		e.mu.Unlock()
		e.setState(StateIdle)
		return
	}

	mid, ok := e.rid2mid[rid]
	if ok {
		delete(e.rid2mid, rid)
	}
	if e.currentRID == rid {
		e.currentRID = ""
	}
	e.isIdle = true
	e.wakeIdleLocked()
	agg := e.transcript
	pipeline := e.translator
	src := e.settings.TargetLanguage
	dst := e.settings.NativeLanguage
	e.mu.Unlock()

	e.setState(StateIdle)
	if !ok || agg == nil {
		return
	}

	agg.Finalize(mid, "")
	if pipeline != nil {
		if msg := agg.Get(mid); msg != nil && msg.Text() != "" {
			pipeline.Request(mid, msg.Text(), src, dst)
		}
	}
	// The recorder for this response keeps running; its tail-silence
	// heuristic stops it once the spoken audio drains.
}
