// Package goal scores learner utterances against an adaptive goal and
// awards experience points.
//
// One goal is active at a time. Every finalized user turn increments the
// attempt counter and triggers an asynchronous evaluation; on success the
// goal is completed, XP is awarded at most once per goal id, and the next
// goal is seeded.
package goal

import (
	"math"

	"github.com/lingopod/lingopod/pkg/jsontime"
)

// Goal is the current learner objective.
type Goal struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Rubric    string         `json:"rubric"`
	Lang      string         `json:"lang"`
	Attempts  int            `json:"attempts"`
	Completed bool           `json:"completed"`
	XPAwarded bool           `json:"xp_awarded"`
	CreatedAt jsontime.Milli `json:"created_at"`
	UpdatedAt jsontime.Milli `json:"updated_at"`
}

func (g *Goal) clone() *Goal {
	cp := *g
	return &cp
}

// Verdict is an evaluator's judgment of one utterance.
//
// Met may only be true when the utterance is both in the target language
// and topically relevant to the rubric; an on-topic utterance in the wrong
// language, or an off-topic one in the right language, is not met.
type Verdict struct {
	Met        bool    `json:"met"`
	Confidence float64 `json:"confidence"`
	Feedback   string  `json:"feedback"`
}

// XPPolicy holds the tunable award constants. The defaults are empirically
// chosen UX values, not invariants.
type XPPolicy struct {
	// SuccessBase is the starting XP for a met goal.
	SuccessBase float64

	// SuccessMin and SuccessMax clamp the met award.
	SuccessMin, SuccessMax float64

	// PronunciationBonus is added when pronunciation practice is enabled.
	PronunciationBonus float64

	// AttemptPenalty is subtracted per attempt beyond the first.
	AttemptPenalty float64

	// PartialMax clamps the per-turn award for an unmet attempt.
	PartialMax float64
}

// DefaultXPPolicy returns the stock tuning.
func DefaultXPPolicy() XPPolicy {
	return XPPolicy{
		SuccessBase:        6,
		SuccessMin:         4,
		SuccessMax:         7,
		PronunciationBonus: 1,
		AttemptPenalty:     0.5,
		PartialMax:         4,
	}
}

// SuccessXP computes the award for a met goal.
func (p XPPolicy) SuccessXP(attempts int, pronunciation bool) int {
	xp := p.SuccessBase
	if pronunciation {
		xp += p.PronunciationBonus
	}
	xp -= p.AttemptPenalty * math.Max(0, float64(attempts-1))
	return int(math.Round(clamp(p.SuccessMin, p.SuccessMax, xp)))
}

// PartialXP computes the per-turn award for an unmet attempt, scaled by
// PartialMax.
func (p XPPolicy) PartialXP(confidence float64) int {
	return int(clamp(0, p.PartialMax, math.Round(confidence*p.PartialMax)))
}

func clamp(lo, hi, v float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
