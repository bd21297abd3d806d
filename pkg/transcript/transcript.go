// Package transcript coalesces streaming text deltas into finalized
// per-turn messages.
//
// Deltas arriving in quick bursts are buffered and folded into the visible
// streaming text at a bounded interval, so consumers see a small number of
// updates regardless of how finely the server chops the stream. On
// finalization every buffered delta is flushed, so the final text is always
// the exact concatenation of all deltas in arrival order.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/lingopod/lingopod/pkg/jsontime"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Pair is one aligned phrase chunk of a translation.
type Pair struct {
	LHS string `json:"lhs"`
	RHS string `json:"rhs"`
}

// Message is one conversation turn.
type Message struct {
	ID          string         `json:"id"`
	Role        Role           `json:"role"`
	Lang        string         `json:"lang,omitzero"`
	TextFinal   string         `json:"text_final,omitzero"`
	TextStream  string         `json:"text_stream,omitzero"`
	Translation string         `json:"translation,omitzero"`
	Pairs       []Pair         `json:"pairs,omitzero"`
	Done        bool           `json:"done,omitzero"`
	HasAudio    bool           `json:"has_audio,omitzero"`
	Time        jsontime.Milli `json:"time"`

	seq uint64
}

// Text returns the committed text plus any visible streaming tail.
func (m *Message) Text() string {
	return m.TextFinal + m.TextStream
}

func (m *Message) clone() *Message {
	cp := *m
	cp.Pairs = append([]Pair(nil), m.Pairs...)
	return &cp
}

// DefaultFlushInterval bounds how often buffered deltas are folded into
// visible streaming text. It plays the role of an animation frame.
const DefaultFlushInterval = 33 * time.Millisecond

// Config configures an Aggregator.
type Config struct {
	// FlushInterval is the delta coalescing interval.
	// Default: DefaultFlushInterval.
	FlushInterval time.Duration

	// OnUpdate, if set, is called (without the aggregator lock held) after
	// each coalesced mutation. It is never called concurrently with itself.
	OnUpdate func()
}

// Aggregator maintains the message list and per-message delta buffers.
// It is safe for concurrent use.
type Aggregator struct {
	mu       sync.Mutex
	cfg      Config
	msgs     map[string]*Message
	buf      map[string]*strings.Builder
	bufOrder []string
	nextSeq  uint64

	flushScheduled bool
	flushTimer     *time.Timer
	closed         bool

	notifyMu sync.Mutex
}

// New creates an Aggregator.
func New(cfg Config) *Aggregator {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	return &Aggregator{
		cfg:  cfg,
		msgs: make(map[string]*Message),
		buf:  make(map[string]*strings.Builder),
	}
}

// Insert adds a message. Messages are deduplicated by id: inserting an id
// that already exists is a no-op and returns false.
func (a *Aggregator) Insert(msg *Message) bool {
	a.mu.Lock()
	if _, ok := a.msgs[msg.ID]; ok {
		a.mu.Unlock()
		return false
	}
	m := msg.clone()
	m.seq = a.nextSeq
	a.nextSeq++
	if m.Time.IsZero() {
		m.Time = jsontime.Now()
	}
	a.msgs[m.ID] = m
	a.mu.Unlock()
	a.notify()
	return true
}

// AppendDelta buffers a streaming delta for the message id. The delta
// becomes visible at the next coalesced flush. Deltas for unknown ids are
// buffered too; they surface once the message is inserted or finalized.
func (a *Aggregator) AppendDelta(id, delta string) {
	if delta == "" {
		return
	}
	a.mu.Lock()
	b, ok := a.buf[id]
	if !ok {
		b = &strings.Builder{}
		a.buf[id] = b
		a.bufOrder = append(a.bufOrder, id)
	}
	b.WriteString(delta)
	a.scheduleFlushLocked()
	a.mu.Unlock()
}

// scheduleFlushLocked arms the flush timer if it is not already armed.
func (a *Aggregator) scheduleFlushLocked() {
	if a.flushScheduled || a.closed {
		return
	}
	a.flushScheduled = true
	a.flushTimer = time.AfterFunc(a.cfg.FlushInterval, a.flush)
}

// flush folds every buffered delta into its message's streaming text.
func (a *Aggregator) flush() {
	a.mu.Lock()
	a.flushScheduled = false
	changed := false
	remaining := a.bufOrder[:0]
	for _, id := range a.bufOrder {
		b := a.buf[id]
		m, ok := a.msgs[id]
		if !ok {
			// Keep buffering until the message shows up.
			remaining = append(remaining, id)
			continue
		}
		m.TextStream += b.String()
		delete(a.buf, id)
		changed = true
	}
	a.bufOrder = append([]string(nil), remaining...)
	a.mu.Unlock()
	if changed {
		a.notify()
	}
}

// Finalize commits the message text. Any buffered and streaming text is
// appended to TextFinal in arrival order and the stream buffer is cleared.
// If no delta ever arrived, fullText (when non-empty) is used instead.
// Finalizing an unknown id is a no-op.
func (a *Aggregator) Finalize(id, fullText string) {
	a.mu.Lock()
	m, ok := a.msgs[id]
	if !ok {
		a.mu.Unlock()
		return
	}
	if b, ok := a.buf[id]; ok {
		m.TextStream += b.String()
		delete(a.buf, id)
		for i, bid := range a.bufOrder {
			if bid == id {
				a.bufOrder = append(a.bufOrder[:i], a.bufOrder[i+1:]...)
				break
			}
		}
	}
	m.TextFinal += m.TextStream
	m.TextStream = ""
	if m.TextFinal == "" && fullText != "" {
		m.TextFinal = fullText
	}
	m.Done = true
	a.mu.Unlock()
	a.notify()
}

// SetTranslation attaches a translation and alignment pairs to a message.
func (a *Aggregator) SetTranslation(id, translation string, pairs []Pair) {
	a.mu.Lock()
	m, ok := a.msgs[id]
	if ok {
		m.Translation = translation
		m.Pairs = append([]Pair(nil), pairs...)
	}
	a.mu.Unlock()
	if ok {
		a.notify()
	}
}

// SetHasAudio marks a message as replayable from the clip cache.
func (a *Aggregator) SetHasAudio(id string) {
	a.mu.Lock()
	m, ok := a.msgs[id]
	if ok {
		m.HasAudio = true
	}
	a.mu.Unlock()
	if ok {
		a.notify()
	}
}

// Get returns a copy of the message, or nil if the id is unknown.
func (a *Aggregator) Get(id string) *Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.msgs[id]
	if !ok {
		return nil
	}
	return m.clone()
}

// Messages returns copies of all messages sorted by timestamp, with
// insertion order breaking ties.
func (a *Aggregator) Messages() []*Message {
	a.mu.Lock()
	out := make([]*Message, 0, len(a.msgs))
	for _, m := range a.msgs {
		out = append(out, m.clone())
	}
	a.mu.Unlock()
	sortMessages(out)
	return out
}

// Len returns the number of messages.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.msgs)
}

// Reset drops every message and buffered delta and cancels any pending
// flush. Used when a session is torn down.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.msgs = make(map[string]*Message)
	a.buf = make(map[string]*strings.Builder)
	a.bufOrder = nil
	if a.flushTimer != nil {
		a.flushTimer.Stop()
	}
	a.flushScheduled = false
	a.mu.Unlock()
}

// Close stops the flush timer. The aggregator must not be used afterwards.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.closed = true
	if a.flushTimer != nil {
		a.flushTimer.Stop()
	}
	a.flushScheduled = false
	a.mu.Unlock()
}

func (a *Aggregator) notify() {
	if a.cfg.OnUpdate == nil {
		return
	}
	a.notifyMu.Lock()
	a.cfg.OnUpdate()
	a.notifyMu.Unlock()
}

func sortMessages(msgs []*Message) {
	// Insertion sort keeps the common nearly-sorted case cheap.
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0; j-- {
			a, b := msgs[j-1], msgs[j]
			if a.Time.Before(b.Time) || (a.Time.Equal(b.Time) && a.seq <= b.seq) {
				break
			}
			msgs[j-1], msgs[j] = b, a
		}
	}
}
