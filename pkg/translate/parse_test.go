package translate

import (
	"strings"
	"testing"

	"github.com/lingopod/lingopod/pkg/transcript"
)

func TestParseResultStrictJSON(t *testing.T) {
	r := parseResult(`{"translation":"Hello","pairs":[{"lhs":"Hola","rhs":"Hello"}]}`)
	if r.Translation != "Hello" {
		t.Fatalf("Translation = %q, want %q", r.Translation, "Hello")
	}
	if len(r.Pairs) != 1 || r.Pairs[0].LHS != "Hola" || r.Pairs[0].RHS != "Hello" {
		t.Fatalf("Pairs = %+v", r.Pairs)
	}
}

func TestParseResultSurroundingProse(t *testing.T) {
	// The substring between the first '{' and the last '}' must be
	// extracted when the model wraps the JSON in chatter.
	r := parseResult(`Sure! {"translation":"Hello","pairs":[]} thanks`)
	if r.Translation != "Hello" {
		t.Fatalf("Translation = %q, want %q", r.Translation, "Hello")
	}
	if len(r.Pairs) != 0 {
		t.Fatalf("Pairs = %+v, want empty", r.Pairs)
	}
}

func TestParseResultRepairedJSON(t *testing.T) {
	// Trailing comma: invalid JSON that jsonrepair can fix.
	r := parseResult(`{"translation":"Hello","pairs":[{"lhs":"Hola","rhs":"Hello"},]}`)
	if r.Translation != "Hello" {
		t.Fatalf("Translation = %q, want %q", r.Translation, "Hello")
	}
}

func TestParseResultRawFallback(t *testing.T) {
	r := parseResult("just a plain translation")
	if r.Translation != "just a plain translation" {
		t.Fatalf("Translation = %q", r.Translation)
	}
	if len(r.Pairs) != 0 {
		t.Fatalf("Pairs = %+v, want empty", r.Pairs)
	}
}

func TestNormalizePairsCap(t *testing.T) {
	var pairs []transcript.Pair
	for i := 0; i < 12; i++ {
		pairs = append(pairs, transcript.Pair{LHS: "a", RHS: "b"})
	}
	out := normalizePairs(pairs)
	if len(out) != MaxPairs {
		t.Fatalf("len = %d, want %d", len(out), MaxPairs)
	}
}

func TestNormalizePairsResplit(t *testing.T) {
	long := strings.Repeat("palabra ", 8) // > 80 chars once joined twice
	lhs := strings.TrimSpace(long) + ", " + strings.TrimSpace(long)
	rhs := strings.TrimSpace(long) + ", " + strings.TrimSpace(long)
	out := normalizePairs([]transcript.Pair{{LHS: lhs, RHS: rhs}})
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2 after re-split", len(out))
	}
	for _, p := range out {
		if len(p.LHS) > MaxPairLen || len(p.RHS) > MaxPairLen {
			t.Fatalf("pair still oversized: %+v", p)
		}
	}
}

func TestNormalizePairsUnevenSplitKept(t *testing.T) {
	// Sides split into different segment counts: the pair is kept whole.
	lhs := strings.Repeat("x", 90) + ", " + strings.Repeat("y", 20)
	rhs := strings.Repeat("z", 95)
	out := normalizePairs([]transcript.Pair{{LHS: lhs, RHS: rhs}})
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	if out[0].LHS != lhs {
		t.Fatalf("pair was altered: %+v", out[0])
	}
}
