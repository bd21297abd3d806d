package goal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/lingopod/lingopod/pkg/responses"
)

// HTTPEvaluator judges utterances through the responses endpoint.
type HTTPEvaluator struct {
	Client *responses.Client
}

const evalPromptTemplate = `You are grading a language learner's spoken reply.

Goal rubric: %s
Target language: %s
Learner utterance: %s

Reply with JSON only: {"met": bool, "confidence": number 0..1, "feedback": string}.
"met" may be true ONLY if BOTH conditions hold:
1. the utterance is in the target language, and
2. the utterance is topically relevant to the rubric.
An on-topic utterance in the wrong language is not met. An off-topic
utterance in the correct language is not met. "feedback" is one short,
encouraging sentence in the target language.`

// Evaluate sends the rubric and utterance for judgment.
func (h *HTTPEvaluator) Evaluate(ctx context.Context, g *Goal, utterance string) (*Verdict, error) {
	prompt := fmt.Sprintf(evalPromptTemplate, g.Rubric, g.Lang, utterance)
	out, err := h.Client.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("goal: evaluation request: %w", err)
	}
	return parseVerdict(out)
}

// parseVerdict decodes a verdict, repairing almost-JSON and falling back to
// the substring between the first '{' and the last '}'.
func parseVerdict(raw string) (*Verdict, error) {
	if v, ok := decodeVerdict(raw); ok {
		return v, nil
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		if v, ok := decodeVerdict(raw[start : end+1]); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("goal: unparseable verdict: %.80q", raw)
}

func decodeVerdict(s string) (*Verdict, bool) {
	var v Verdict
	if !decodeStrictOrRepaired(s, &v) {
		return nil, false
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	return &v, true
}

// decodeStrictOrRepaired unmarshals s into v, running a jsonrepair pass
// when strict decoding fails.
func decodeStrictOrRepaired(s string, v any) bool {
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return true
	}
	fixed, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(fixed), v) == nil
}

// decodeLoose is decodeStrictOrRepaired plus the first-'{'/last-'}'
// substring fallback.
func decodeLoose(raw string, v any) bool {
	if decodeStrictOrRepaired(raw, v) {
		return true
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return decodeStrictOrRepaired(raw[start:end+1], v)
	}
	return false
}
