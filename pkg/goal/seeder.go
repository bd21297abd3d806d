package goal

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lingopod/lingopod/pkg/responses"
)

// Variation is one entry of a content-driven goal list.
type Variation struct {
	Title  string `yaml:"title" json:"title"`
	Rubric string `yaml:"rubric" json:"rubric"`
}

// VariationSeeder rotates through a fixed variation list, never repeating
// the variation it handed out last.
type VariationSeeder struct {
	// Variations must have at least one entry.
	Variations []Variation

	// Lang is stamped onto seeded goals.
	Lang string

	mu     sync.Mutex
	last   int
	seeded bool
}

// Next picks the next variation. The first pick is uniform over the
// whole list; later picks exclude the previous one.
func (s *VariationSeeder) Next(_ context.Context, _ *Goal, _ []string) (*Goal, error) {
	if len(s.Variations) == 0 {
		return nil, fmt.Errorf("goal: no variations configured")
	}
	s.mu.Lock()
	idx := rand.IntN(len(s.Variations))
	if s.seeded && len(s.Variations) > 1 {
		for idx == s.last {
			idx = rand.IntN(len(s.Variations))
		}
	}
	s.seeded = true
	s.last = idx
	v := s.Variations[idx]
	s.mu.Unlock()

	return &Goal{
		ID:     "goal_" + uuid.New().String()[:8],
		Title:  v.Title,
		Rubric: v.Rubric,
		Lang:   s.Lang,
	}, nil
}

// ContextSeeder derives the next goal from recent transcript turns through
// the responses endpoint, falling back to a wrapped VariationSeeder when
// the request fails.
type ContextSeeder struct {
	Client   *responses.Client
	Lang     string
	Fallback Seeder
}

const seedPromptTemplate = `A language learner practicing %s just completed this goal:
%q

Their recent conversation turns:
%s

Propose the next speaking goal: slightly harder, related to what they
talked about, not a repeat. Reply with JSON only:
{"title": string, "rubric": string}
The title is shown to the learner in %s; the rubric is grading guidance in English.`

// Next asks the endpoint for a follow-up goal.
func (s *ContextSeeder) Next(ctx context.Context, prev *Goal, recentTurns []string) (*Goal, error) {
	prompt := fmt.Sprintf(seedPromptTemplate, s.Lang, prev.Title, strings.Join(recentTurns, "\n"), s.Lang)
	out, err := s.Client.Generate(ctx, prompt)
	if err != nil {
		return s.fallback(ctx, prev, recentTurns, err)
	}
	var v Variation
	if !decodeLoose(out, &v) || v.Title == "" || v.Rubric == "" {
		return s.fallback(ctx, prev, recentTurns, fmt.Errorf("goal: unparseable seed: %.80q", out))
	}
	return &Goal{
		ID:     "goal_" + uuid.New().String()[:8],
		Title:  v.Title,
		Rubric: v.Rubric,
		Lang:   s.Lang,
	}, nil
}

func (s *ContextSeeder) fallback(ctx context.Context, prev *Goal, recent []string, cause error) (*Goal, error) {
	if s.Fallback == nil {
		return nil, fmt.Errorf("goal: context seeding failed: %w", cause)
	}
	return s.Fallback.Next(ctx, prev, recent)
}
