package cli

import (
	"fmt"
	"strings"
	"testing"

	"github.com/lingopod/lingopod/pkg/transcript"
)

func TestTranscriptLines(t *testing.T) {
	s := NewStyles(DefaultTheme)
	msgs := []*transcript.Message{
		{ID: "m1", Role: transcript.RoleUser, TextFinal: "hola", Done: true},
		{ID: "m2", Role: transcript.RoleAssistant, TextFinal: "buenos días", Translation: "good morning", Done: true, HasAudio: true},
		{ID: "m3", Role: transcript.RoleAssistant, TextStream: "hasta lue"},
	}

	lines := s.TranscriptLines(msgs, true)
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4 (translation on its own line)", len(lines))
	}
	if !strings.Contains(lines[0], "hola") {
		t.Fatalf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "♪") {
		t.Fatalf("line 1 missing audio marker: %q", lines[1])
	}
	if !strings.Contains(lines[2], "good morning") {
		t.Fatalf("line 2 = %q", lines[2])
	}
	if !strings.Contains(lines[3], "hasta lue…") {
		t.Fatalf("streaming line = %q", lines[3])
	}

	// Translations off: one line per message.
	if got := len(s.TranscriptLines(msgs, false)); got != 3 {
		t.Fatalf("got %d lines with translations off, want 3", got)
	}
}

func TestGoalLine(t *testing.T) {
	s := NewStyles(DefaultTheme)
	if line := s.GoalLine("", 0, 0); !strings.Contains(line, "no active goal") {
		t.Fatalf("empty goal line = %q", line)
	}
	line := s.GoalLine("Order a coffee", 2, 18)
	if !strings.Contains(line, "Order a coffee") || !strings.Contains(line, "18 XP") {
		t.Fatalf("goal line = %q", line)
	}
}

func TestFrameRender(t *testing.T) {
	f := Frame{
		Styles: NewStyles(DefaultTheme),
		Title:  "lingopod",
		Status: "speaking",
		Sections: []Section{
			{Label: "transcript", Content: func() []string { return []string{"a", "b"} }},
			{Label: "log", Content: func() []string { return nil }},
		},
		Help: "q quit",
	}

	if got := f.Render(0, 0); got != "Loading..." {
		t.Fatalf("zero size render = %q", got)
	}

	out := f.Render(60, 20)
	lines := strings.Split(out, "\n")
	// Top border, title, spacer, two sections with label rows, bottom
	// border, help line.
	if len(lines) < 8 {
		t.Fatalf("got %d lines", len(lines))
	}
	if !strings.Contains(out, "lingopod") || !strings.Contains(out, "speaking") {
		t.Fatalf("frame missing title or status:\n%s", out)
	}
	if !strings.Contains(out, "transcript") {
		t.Fatalf("frame missing section label:\n%s", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo wörld", 5); got != "héllo" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("x", 0); got != "" {
		t.Fatalf("truncate = %q", got)
	}
}

func TestLogWriter(t *testing.T) {
	w := NewLogWriter(3)
	for i := range 5 {
		fmt.Fprintf(w, "line %d\n", i)
	}
	lines := w.Lines()
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != "line 2" || lines[2] != "line 4" {
		t.Fatalf("lines = %v", lines)
	}

	// Multi-line writes split into individual lines.
	w2 := NewLogWriter(10)
	w2.Write([]byte("a\nb\n"))
	if got := w2.Lines(); len(got) != 2 || got[1] != "b" {
		t.Fatalf("lines = %v", got)
	}
	select {
	case line := <-w2.Channel():
		if line != "a" {
			t.Fatalf("channel line = %q", line)
		}
	default:
		t.Fatal("no notification on channel")
	}
}
