package translate

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/lingopod/lingopod/pkg/transcript"
)

// MaxPairs caps the alignment pair list.
const MaxPairs = 8

// MaxPairLen is the per-side length above which a pair is re-split.
const MaxPairLen = 80

// payload is the JSON shape the model is asked to produce.
type payload struct {
	Translation string `json:"translation"`
	Pairs       []struct {
		LHS string `json:"lhs"`
		RHS string `json:"rhs"`
	} `json:"pairs"`
}

// parseResult parses model output into a Result, degrading in stages:
// strict JSON, repaired JSON, the substring between the first '{' and the
// last '}', and finally the raw text as the translation with no pairs.
func parseResult(raw string) *Result {
	if p, ok := decodePayload(raw); ok {
		return resultFromPayload(p)
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		if p, ok := decodePayload(raw[start : end+1]); ok {
			return resultFromPayload(p)
		}
	}
	return &Result{Translation: strings.TrimSpace(raw)}
}

// decodePayload tries strict JSON first, then a jsonrepair pass for the
// almost-JSON the model sometimes emits (trailing commas, single quotes).
func decodePayload(s string) (*payload, bool) {
	var p payload
	if err := json.Unmarshal([]byte(s), &p); err == nil && p.Translation != "" {
		return &p, true
	}
	fixed, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(fixed), &p); err != nil || p.Translation == "" {
		return nil, false
	}
	return &p, true
}

func resultFromPayload(p *payload) *Result {
	r := &Result{Translation: p.Translation}
	for _, pr := range p.Pairs {
		r.Pairs = append(r.Pairs, transcript.Pair{LHS: pr.LHS, RHS: pr.RHS})
	}
	r.Pairs = normalizePairs(r.Pairs)
	return r
}

// pairDelimiters are tried in order when re-splitting an oversized pair.
var pairDelimiters = []string{",", ";", "·", "•"}

// normalizePairs re-splits pairs whose sides exceed MaxPairLen and caps the
// list at MaxPairs. A pair is only split when both sides break into the
// same number of segments on the same delimiter.
func normalizePairs(pairs []transcript.Pair) []transcript.Pair {
	var out []transcript.Pair
	for _, p := range pairs {
		out = append(out, splitPair(p)...)
	}
	if len(out) > MaxPairs {
		out = out[:MaxPairs]
	}
	return out
}

func splitPair(p transcript.Pair) []transcript.Pair {
	if len(p.LHS) <= MaxPairLen && len(p.RHS) <= MaxPairLen {
		return []transcript.Pair{p}
	}
	for _, d := range pairDelimiters {
		lhs := splitTrim(p.LHS, d)
		rhs := splitTrim(p.RHS, d)
		if len(lhs) > 1 && len(lhs) == len(rhs) {
			sub := make([]transcript.Pair, len(lhs))
			for i := range lhs {
				sub[i] = transcript.Pair{LHS: lhs[i], RHS: rhs[i]}
			}
			return sub
		}
	}
	return []transcript.Pair{p}
}

func splitTrim(s, delim string) []string {
	parts := strings.Split(s, delim)
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
