// Package translate turns finalized assistant turns into translations with
// short aligned phrase pairs for tap-to-highlight study.
//
// Requests are debounced per message id so that a turn whose text is still
// settling issues a single network call once it goes quiet. Model output is
// parsed defensively and degrades to the raw text with no pairs rather than
// surfacing an error to the caller.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lingopod/lingopod/pkg/responses"
	"github.com/lingopod/lingopod/pkg/transcript"
)

// DefaultDebounce is the per-message debounce delay.
const DefaultDebounce = 300 * time.Millisecond

// Result is one translated turn.
type Result struct {
	Translation string
	Pairs       []transcript.Pair
}

// Translator translates a single text.
type Translator interface {
	Translate(ctx context.Context, text, srcLang, dstLang string) (*Result, error)
}

// Remote is a Translator backed by the responses endpoint.
type Remote struct {
	Client *responses.Client
}

const promptTemplate = `Translate the following %s text into %s.
Reply with JSON only, no prose, in this exact shape:
{"translation": string, "pairs": [{"lhs": string, "rhs": string}]}
"pairs" must align short chunks (2-6 words) of the original ("lhs") with the
matching chunk of the translation ("rhs"), in order, at most %d pairs.

Text:
%s`

// Translate requests a translation. If source and target language match,
// it short-circuits without a network call.
func (r *Remote) Translate(ctx context.Context, text, srcLang, dstLang string) (*Result, error) {
	if sameLanguage(srcLang, dstLang) {
		return &Result{Translation: text}, nil
	}
	prompt := fmt.Sprintf(promptTemplate, srcLang, dstLang, MaxPairs, text)
	out, err := r.Client.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseResult(out), nil
}

// sameLanguage compares language codes ignoring case and region subtags,
// so "es" matches "es-MX".
func sameLanguage(a, b string) bool {
	base := func(s string) string {
		s = strings.ToLower(s)
		if i := strings.IndexAny(s, "-_"); i >= 0 {
			s = s[:i]
		}
		return s
	}
	return base(a) != "" && base(a) == base(b)
}

// Pipeline debounces translation requests per message id and delivers
// results through a callback. It never reports errors to the caller: a
// failed request logs and falls back to the untranslated text.
type Pipeline struct {
	translator Translator
	delay      time.Duration
	onResult   func(id string, res *Result)

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool

	wg sync.WaitGroup
}

// NewPipeline creates a Pipeline. onResult is called from a background
// goroutine once per resolved debounce. delay <= 0 selects
// DefaultDebounce.
func NewPipeline(tr Translator, delay time.Duration, onResult func(id string, res *Result)) *Pipeline {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Pipeline{
		translator: tr,
		delay:      delay,
		onResult:   onResult,
		timers:     make(map[string]*time.Timer),
	}
}

// Request schedules a translation for a message. A newer Request for the
// same id cancels the pending one and restarts the delay.
func (p *Pipeline) Request(id, text, srcLang, dstLang string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if t, ok := p.timers[id]; ok {
		t.Stop()
	}
	p.timers[id] = time.AfterFunc(p.delay, func() {
		p.fire(id, text, srcLang, dstLang)
	})
}

// Cancel drops any pending request for the message id.
func (p *Pipeline) Cancel(id string) {
	p.mu.Lock()
	if t, ok := p.timers[id]; ok {
		t.Stop()
		delete(p.timers, id)
	}
	p.mu.Unlock()
}

// Pending returns the number of scheduled requests. Used by teardown
// checks.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}

// Close cancels all pending requests and waits for in-flight ones.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pipeline) fire(id, text, srcLang, dstLang string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	delete(p.timers, id)
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := p.translator.Translate(ctx, text, srcLang, dstLang)
	if err != nil {
		slog.Warn("translate: request failed, falling back to source text",
			"message_id", id, "error", err)
		res = &Result{Translation: text}
	}
	if p.onResult != nil {
		p.onResult(id, res)
	}
}
