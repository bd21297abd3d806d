package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lingopod/lingopod/pkg/transcript"
)

// Theme defines the monitor color scheme.
type Theme struct {
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Dim     lipgloss.Color
}

// DefaultTheme is the default theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00b7ff"),
	Accent:  lipgloss.Color("#ffd75f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds the lipgloss styles derived from a theme.
type Styles struct {
	Title       lipgloss.Style
	Label       lipgloss.Style
	Border      lipgloss.Style
	Help        lipgloss.Style
	User        lipgloss.Style
	Assistant   lipgloss.Style
	Translation lipgloss.Style
	XP          lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:       lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:       lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border:      lipgloss.NewStyle().Foreground(t.Primary),
		Help:        lipgloss.NewStyle().Foreground(t.Dim),
		User:        lipgloss.NewStyle().Bold(true),
		Assistant:   lipgloss.NewStyle().Foreground(t.Primary),
		Translation: lipgloss.NewStyle().Foreground(t.Dim).Italic(true),
		XP:          lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
	}
}

// TranscriptLines formats transcript messages for a monitor section.
// Streaming text gets an ellipsis marker; translations render as dimmed
// lines under the turn they belong to.
func (s Styles) TranscriptLines(msgs []*transcript.Message, translations bool) []string {
	var lines []string
	for _, m := range msgs {
		prefix := s.Assistant.Render("agent")
		if m.Role == transcript.RoleUser {
			prefix = s.User.Render("you  ")
		}
		text := m.Text()
		if !m.Done {
			text += "…"
		}
		audio := ""
		if m.HasAudio {
			audio = " ♪"
		}
		lines = append(lines, fmt.Sprintf("%s %s%s", prefix, text, audio))
		if translations && m.Translation != "" {
			lines = append(lines, "      "+s.Translation.Render(m.Translation))
		}
	}
	return lines
}

// GoalLine formats the active goal and XP total for the status section.
func (s Styles) GoalLine(title string, attempts, totalXP int) string {
	if title == "" {
		return s.Help.Render("no active goal")
	}
	return fmt.Sprintf("%s %s (attempt %d)",
		s.XP.Render(fmt.Sprintf("%d XP", totalXP)), title, attempts)
}

// Section is one labeled region of the frame with dynamic content.
type Section struct {
	Label   string
	Content func() []string
}

// Frame renders a bordered full-screen frame: title bar with a status
// badge, labeled sections, and a help line.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Render renders the frame at the given terminal size.
func (f Frame) Render(width, height int) string {
	if width == 0 || height == 0 {
		return "Loading..."
	}

	bc := f.Styles.Border
	maxContentWidth := width - 4

	var lines []string
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	title := f.Styles.Title.Render(f.Title)
	status := f.Styles.Help.Render("[" + f.Status + "]")
	padding := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	lines = append(lines, bc.Render("│")+" "+title+" "+status+
		strings.Repeat(" ", padding)+" "+bc.Render("│"))
	lines = append(lines, bc.Render("│")+strings.Repeat(" ", width-2)+bc.Render("│"))

	numSections := max(len(f.Sections), 1)
	// Height left after borders, title, spacer, help and one label row
	// per section.
	availableHeight := height - 5 - numSections
	sectionHeight := max(availableHeight/numSections, 2)

	for _, sec := range f.Sections {
		lines = append(lines, f.renderSection(bc, sec.Label, sec.Content(), sectionHeight, width, maxContentWidth)...)
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	lines = append(lines, f.Styles.Help.Render(f.Help))
	return strings.Join(lines, "\n")
}

// renderSection draws a label separator and the last rows of content
// that fit.
func (f Frame) renderSection(bc lipgloss.Style, label string, content []string, height, width, maxContentWidth int) []string {
	var lines []string

	labelText := f.Styles.Label.Render(label)
	padding := max(0, width-3-lipgloss.Width(labelText))
	lines = append(lines, bc.Render("├")+bc.Render("─")+labelText+
		bc.Render(strings.Repeat("─", padding))+bc.Render("┤"))

	startIdx := max(len(content)-height, 0)
	for i := 0; i < height; i++ {
		text := ""
		if idx := startIdx + i; idx < len(content) {
			text = content[idx]
		}
		if maxContentWidth > 1 && lipgloss.Width(text) > maxContentWidth {
			text = truncate(text, maxContentWidth-1) + "…"
		}
		lines = append(lines, bc.Render("│")+" "+text+
			strings.Repeat(" ", max(0, maxContentWidth-lipgloss.Width(text)))+" "+bc.Render("│"))
	}
	return lines
}

// truncate cuts a string to the given display width without splitting
// multi-byte characters.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}
