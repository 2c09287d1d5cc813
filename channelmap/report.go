package channelmap

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// WriteReport prints a QC summary of r: renamed channels, then matched,
// unmatched and not-present names. Colours are only emitted when w is a
// terminal that supports them.
func WriteReport(w io.Writer, r Result) error {
	renderer := lipgloss.NewRenderer(w)
	heading := renderer.NewStyle().Bold(true)
	styles := []struct {
		title string
		names Set
		style lipgloss.Style
	}{
		{"Matched", r.Matched, renderer.NewStyle().Foreground(lipgloss.Color("2"))},
		{"Unmatched", r.Unmatched, renderer.NewStyle().Foreground(lipgloss.Color("3"))},
		{"Not present", r.NotPresent, renderer.NewStyle().Foreground(lipgloss.Color("1"))},
	}

	var b strings.Builder

	renames := r.Differences.Sorted()
	fmt.Fprintf(&b, "%s (%d)\n", heading.Render("Renamed"), len(renames))
	for _, rn := range renames {
		fmt.Fprintf(&b, "  %s -> %s\n", rn.Old, rn.New)
	}

	for _, s := range styles {
		names := s.names.Sorted()
		fmt.Fprintf(&b, "%s (%d)\n", heading.Render(s.title), len(names))
		for _, n := range names {
			fmt.Fprintf(&b, "  %s\n", s.style.Render(n))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
