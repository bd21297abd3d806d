package transcript_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lingopod/lingopod/pkg/jsontime"
	"github.com/lingopod/lingopod/pkg/transcript"
)

func TestDeltaConcatenation(t *testing.T) {
	a := transcript.New(transcript.Config{FlushInterval: time.Millisecond})
	defer a.Close()

	a.Insert(&transcript.Message{ID: "m1", Role: transcript.RoleAssistant})
	for _, d := range []string{"Ho", "la, ", "¿cómo estás?"} {
		a.AppendDelta("m1", d)
	}
	a.Finalize("m1", "Hola, ¿cómo estás?")

	got := a.Get("m1")
	if got.TextFinal != "Hola, ¿cómo estás?" {
		t.Fatalf("TextFinal = %q, want %q", got.TextFinal, "Hola, ¿cómo estás?")
	}
	if got.TextStream != "" {
		t.Fatalf("TextStream = %q, want empty after finalize", got.TextStream)
	}
	if !got.Done {
		t.Fatal("Done = false, want true")
	}
}

func TestDeltaConcatenationAcrossFlushes(t *testing.T) {
	// Interleave deltas with flush intervals so some arrive batched and
	// some land in already-flushed stream text. The final text must be the
	// exact concatenation either way.
	a := transcript.New(transcript.Config{FlushInterval: 2 * time.Millisecond})
	defer a.Close()

	a.Insert(&transcript.Message{ID: "m1", Role: transcript.RoleAssistant})
	var want string
	for i := 0; i < 40; i++ {
		d := fmt.Sprintf("<%d>", i)
		want += d
		a.AppendDelta("m1", d)
		if i%7 == 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}
	a.Finalize("m1", "")

	if got := a.Get("m1").TextFinal; got != want {
		t.Fatalf("TextFinal = %q, want %q", got, want)
	}
}

func TestFinalizeWithoutDeltasUsesDoneText(t *testing.T) {
	a := transcript.New(transcript.Config{})
	defer a.Close()

	a.Insert(&transcript.Message{ID: "m1", Role: transcript.RoleAssistant})
	a.Finalize("m1", "complete text")
	if got := a.Get("m1").TextFinal; got != "complete text" {
		t.Fatalf("TextFinal = %q, want %q", got, "complete text")
	}
}

func TestInsertDeduplicatesByID(t *testing.T) {
	a := transcript.New(transcript.Config{})
	defer a.Close()

	if !a.Insert(&transcript.Message{ID: "m1", Role: transcript.RoleUser, TextFinal: "hi"}) {
		t.Fatal("first Insert returned false")
	}
	if a.Insert(&transcript.Message{ID: "m1", Role: transcript.RoleUser, TextFinal: "hi again"}) {
		t.Fatal("duplicate Insert returned true")
	}
	if a.Len() != 1 {
		t.Fatalf("Len = %d, want 1", a.Len())
	}
	if got := a.Get("m1").TextFinal; got != "hi" {
		t.Fatalf("TextFinal = %q, want original %q", got, "hi")
	}
}

func TestMessagesSortedByTimestamp(t *testing.T) {
	a := transcript.New(transcript.Config{})
	defer a.Close()

	base := jsontime.Milli(time.UnixMilli(1000))
	// Insert the assistant turn first, then back-date the user turn, the
	// way the engine orders a user utterance before the reply to it.
	a.Insert(&transcript.Message{ID: "assistant", Role: transcript.RoleAssistant, Time: base})
	a.Insert(&transcript.Message{ID: "user", Role: transcript.RoleUser, Time: base.Add(-time.Millisecond)})

	msgs := a.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].ID != "user" || msgs[1].ID != "assistant" {
		t.Fatalf("order = [%s %s], want [user assistant]", msgs[0].ID, msgs[1].ID)
	}
}

func TestCoalescing(t *testing.T) {
	var mu sync.Mutex
	updates := 0
	a := transcript.New(transcript.Config{
		FlushInterval: 20 * time.Millisecond,
		OnUpdate: func() {
			mu.Lock()
			updates++
			mu.Unlock()
		},
	})
	defer a.Close()

	a.Insert(&transcript.Message{ID: "m1", Role: transcript.RoleAssistant})
	for i := 0; i < 100; i++ {
		a.AppendDelta("m1", "x")
	}
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	n := updates
	mu.Unlock()
	// One update for the insert plus a small number of flushes; a burst of
	// 100 deltas must not produce 100 updates.
	if n > 5 {
		t.Fatalf("updates = %d, want coalesced (<=5)", n)
	}
	if got := a.Get("m1").TextStream; len(got) != 100 {
		t.Fatalf("TextStream len = %d, want 100", len(got))
	}
}

func TestSetTranslationAndAudio(t *testing.T) {
	a := transcript.New(transcript.Config{})
	defer a.Close()

	a.Insert(&transcript.Message{ID: "m1", Role: transcript.RoleAssistant})
	a.SetTranslation("m1", "Hello", []transcript.Pair{{LHS: "Hola", RHS: "Hello"}})
	a.SetHasAudio("m1")

	got := a.Get("m1")
	if got.Translation != "Hello" {
		t.Errorf("Translation = %q, want %q", got.Translation, "Hello")
	}
	if len(got.Pairs) != 1 || got.Pairs[0].LHS != "Hola" {
		t.Errorf("Pairs = %+v", got.Pairs)
	}
	if !got.HasAudio {
		t.Error("HasAudio = false, want true")
	}
}

func TestReset(t *testing.T) {
	a := transcript.New(transcript.Config{})
	defer a.Close()

	a.Insert(&transcript.Message{ID: "m1", Role: transcript.RoleUser})
	a.AppendDelta("m1", "pending")
	a.Reset()

	if a.Len() != 0 {
		t.Fatalf("Len = %d after Reset, want 0", a.Len())
	}
	if got := a.Get("m1"); got != nil {
		t.Fatalf("Get after Reset = %+v, want nil", got)
	}
}
