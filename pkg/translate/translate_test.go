package translate_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lingopod/lingopod/pkg/responses"
	"github.com/lingopod/lingopod/pkg/translate"
)

// fakeTranslator records calls and returns a fixed result.
type fakeTranslator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTranslator) Translate(_ context.Context, text, _, _ string) (*translate.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	return &translate.Result{Translation: "t:" + text}, nil
}

func (f *fakeTranslator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestPipelineDebounce(t *testing.T) {
	ft := &fakeTranslator{}
	var got atomic.Value
	p := translate.NewPipeline(ft, 20*time.Millisecond, func(id string, res *translate.Result) {
		got.Store(id + "=" + res.Translation)
	})
	defer p.Close()

	// Rapid rescheduling: only the last text is translated, once.
	p.Request("m1", "one", "es", "en")
	p.Request("m1", "two", "es", "en")
	p.Request("m1", "three", "es", "en")

	time.Sleep(100 * time.Millisecond)
	if n := ft.callCount(); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
	if got.Load() != "m1=t:three" {
		t.Fatalf("result = %v, want m1=t:three", got.Load())
	}
}

func TestPipelineIndependentIDs(t *testing.T) {
	ft := &fakeTranslator{}
	p := translate.NewPipeline(ft, 10*time.Millisecond, nil)
	defer p.Close()

	p.Request("m1", "a", "es", "en")
	p.Request("m2", "b", "es", "en")
	time.Sleep(80 * time.Millisecond)
	if n := ft.callCount(); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestPipelineCancel(t *testing.T) {
	ft := &fakeTranslator{}
	p := translate.NewPipeline(ft, 20*time.Millisecond, nil)
	defer p.Close()

	p.Request("m1", "a", "es", "en")
	p.Cancel("m1")
	time.Sleep(60 * time.Millisecond)
	if n := ft.callCount(); n != 0 {
		t.Fatalf("calls = %d, want 0 after cancel", n)
	}
	if p.Pending() != 0 {
		t.Fatalf("Pending = %d, want 0", p.Pending())
	}
}

func TestPipelineCloseDropsPending(t *testing.T) {
	ft := &fakeTranslator{}
	p := translate.NewPipeline(ft, 50*time.Millisecond, nil)
	p.Request("m1", "a", "es", "en")
	p.Close()
	time.Sleep(100 * time.Millisecond)
	if n := ft.callCount(); n != 0 {
		t.Fatalf("calls = %d, want 0 after close", n)
	}
}

func TestRemoteSameLanguageShortCircuit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for same-language translation")
	}))
	defer srv.Close()

	r := &translate.Remote{Client: &responses.Client{URL: srv.URL}}
	res, err := r.Translate(context.Background(), "hola", "es", "es-MX")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Translation != "hola" {
		t.Fatalf("Translation = %q, want source text", res.Translation)
	}
	if len(res.Pairs) != 0 {
		t.Fatalf("Pairs = %+v, want empty", res.Pairs)
	}
}

func TestRemoteTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output_text":"{\"translation\":\"Hello\",\"pairs\":[{\"lhs\":\"Hola\",\"rhs\":\"Hello\"}]}"}`))
	}))
	defer srv.Close()

	r := &translate.Remote{Client: &responses.Client{URL: srv.URL, Model: "m"}}
	res, err := r.Translate(context.Background(), "Hola", "es", "en")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Translation != "Hello" {
		t.Fatalf("Translation = %q, want %q", res.Translation, "Hello")
	}
	if len(res.Pairs) != 1 {
		t.Fatalf("Pairs = %+v", res.Pairs)
	}
}

func TestPipelineErrorFallsBackToSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var res *translate.Result
	remote := &translate.Remote{Client: &responses.Client{URL: srv.URL}}
	p := translate.NewPipeline(remote, 5*time.Millisecond, func(_ string, r *translate.Result) {
		mu.Lock()
		res = r
		mu.Unlock()
	})
	defer p.Close()

	p.Request("m1", "hola amigos", "es", "en")
	time.Sleep(120 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if res == nil {
		t.Fatal("no result delivered")
	}
	if res.Translation != "hola amigos" {
		t.Fatalf("Translation = %q, want raw-text fallback", res.Translation)
	}
}
