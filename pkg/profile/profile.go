// Package profile persists learner conversation settings.
//
// Settings are read-only inputs to instruction building; they change only
// through an explicit Save, never inferred from transcript content.
package profile

import (
	"context"
	"errors"
)

// Sentinel errors.
var (
	// ErrNotFound is returned by Load when no settings have been saved yet.
	ErrNotFound = errors.New("profile: not found")
)

// Level is the learner's proficiency level.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// Settings holds the conversation settings for a learner.
type Settings struct {
	// TargetLanguage is the language being practiced (BCP 47 code).
	TargetLanguage string `msgpack:"target_language" yaml:"target_language" json:"target_language"`

	// NativeLanguage is the learner's own language, used for translations.
	NativeLanguage string `msgpack:"native_language" yaml:"native_language" json:"native_language"`

	// Level is the learner's proficiency level.
	Level Level `msgpack:"level" yaml:"level" json:"level"`

	// Pronunciation enables pronunciation-practice guidance and the
	// per-goal pronunciation XP bonus.
	Pronunciation bool `msgpack:"pronunciation" yaml:"pronunciation" json:"pronunciation"`

	// CustomSubjects is free-text context the agent should weave into
	// conversation.
	CustomSubjects []string `msgpack:"custom_subjects" yaml:"custom_subjects" json:"custom_subjects,omitempty"`

	// Voice selects the agent voice.
	Voice string `msgpack:"voice" yaml:"voice" json:"voice,omitempty"`
}

// Partial is a partial update. Nil fields are left unchanged by Save.
type Partial struct {
	TargetLanguage *string
	NativeLanguage *string
	Level          *Level
	Pronunciation  *bool
	CustomSubjects *[]string
	Voice          *string
}

// Apply merges p into s.
func (p Partial) Apply(s *Settings) {
	if p.TargetLanguage != nil {
		s.TargetLanguage = *p.TargetLanguage
	}
	if p.NativeLanguage != nil {
		s.NativeLanguage = *p.NativeLanguage
	}
	if p.Level != nil {
		s.Level = *p.Level
	}
	if p.Pronunciation != nil {
		s.Pronunciation = *p.Pronunciation
	}
	if p.CustomSubjects != nil {
		s.CustomSubjects = append([]string(nil), (*p.CustomSubjects)...)
	}
	if p.Voice != nil {
		s.Voice = *p.Voice
	}
}

// Store persists settings.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the saved settings, or ErrNotFound if none exist.
	Load(ctx context.Context) (*Settings, error)

	// Save merges a partial update into the saved settings, creating them
	// from the zero value if none exist yet.
	Save(ctx context.Context, p Partial) error
}
