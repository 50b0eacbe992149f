package logs

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Render writes the report for section s to w as a bordered console panel.
func Render(w io.Writer, s Section, r *Report) error {
	re := lipgloss.NewRenderer(w)

	title := re.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF"))
	heading := re.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B"))
	body := re.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA"))
	note := re.NewStyle().
		Foreground(lipgloss.Color("#888888"))
	box := re.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1)

	parts := []string{title.Render("🔎 Log analysis: " + s.Label())}

	if r == nil || r.Empty() {
		parts = append(parts, note.Render("No errors found in this section."))
	} else {
		groups := []struct {
			name  string
			items []string
		}{
			{"Errors", r.Errors},
			{"Models", r.Models},
			{"Keywords", r.Keywords},
			{"Suggested corrections", r.Corrections},
		}
		for _, g := range groups {
			if len(g.items) == 0 {
				continue
			}
			lines := make([]string, len(g.items))
			for i, it := range g.items {
				lines[i] = "• " + it
			}
			parts = append(parts, "", heading.Render(g.name), body.Render(strings.Join(lines, "\n")))
		}
	}

	_, err := fmt.Fprintln(w, box.Render(lipgloss.JoinVertical(lipgloss.Left, parts...)))
	return err
}
