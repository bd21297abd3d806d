package engine

import (
	"fmt"
	"strings"

	"github.com/lingopod/lingopod/pkg/goal"
	"github.com/lingopod/lingopod/pkg/profile"
)

// buildInstructions composes the system prompt from the conversation
// settings and the active goal. Sent with every session.update, so it
// must be deterministic for the same inputs.
func buildInstructions(s profile.Settings, g *goal.Goal) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a friendly conversation partner helping a learner practice %s.\n", s.TargetLanguage)
	fmt.Fprintf(&b, "Speak only %s. If the learner replies in another language, answer briefly in %s and encourage them to try again in %s.\n",
		s.TargetLanguage, s.TargetLanguage, s.TargetLanguage)

	switch s.Level {
	case profile.LevelBeginner:
		b.WriteString("The learner is a beginner: use short, simple sentences, common vocabulary, and speak slowly. One question at a time.\n")
	case profile.LevelIntermediate:
		b.WriteString("The learner is intermediate: use everyday language at a natural pace, and introduce occasional new vocabulary in context.\n")
	case profile.LevelAdvanced:
		b.WriteString("The learner is advanced: speak naturally, use idiomatic language, and challenge them with follow-up questions.\n")
	}

	if s.Pronunciation {
		b.WriteString("Pronunciation practice is enabled: when the learner mispronounces a word, model the correct pronunciation and have them repeat it.\n")
	}

	if len(s.CustomSubjects) > 0 {
		fmt.Fprintf(&b, "The learner wants to talk about: %s. Weave these into the conversation naturally.\n",
			strings.Join(s.CustomSubjects, ", "))
	}

	if g != nil && !g.Completed {
		fmt.Fprintf(&b, "Current practice goal for the learner: %q. Steer the conversation so they get a natural opening to attempt it, but never mention the goal or that you are steering.\n",
			g.Title)
	}

	return b.String()
}
