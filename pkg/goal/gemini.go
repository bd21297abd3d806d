package goal

import (
	"context"
	"fmt"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

// GeminiEvaluator judges utterances with the Gemini API, constraining the
// response to the verdict schema.
type GeminiEvaluator struct {
	Client *genai.Client

	// Model should not start with "models/".
	Model string
}

var verdictSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"met":        {Type: genai.TypeBoolean},
		"confidence": {Type: genai.TypeNumber},
		"feedback":   {Type: genai.TypeString},
	},
	Required: []string{"met", "confidence", "feedback"},
}

// Evaluate sends the rubric and utterance for judgment.
func (g *GeminiEvaluator) Evaluate(ctx context.Context, goal *Goal, utterance string) (*Verdict, error) {
	prompt := fmt.Sprintf(evalPromptTemplate, goal.Rubric, goal.Lang, utterance)
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   verdictSchema,
	}
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{genai.NewPartFromText(prompt)}},
	}
	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		if e, ok := err.(*apierror.APIError); ok {
			err = e.Unwrap()
		}
		return nil, fmt.Errorf("goal: gemini evaluation: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("goal: gemini evaluation: no candidates")
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			sb.WriteString(p.Text)
		}
	}
	return parseVerdict(sb.String())
}
