package feature

import (
	"fmt"
	"strings"
)

// ExportMarkdown renders the feature list as a human-readable document.
// Features appear in store order, not priority order, so the file diffs
// cleanly against previous exports.
func (s *Store) ExportMarkdown() string {
	var b strings.Builder
	b.WriteString("# Feature List\n\n")

	sum := s.Summary()
	fmt.Fprintf(&b, "## Progress: %d/%d (%.1f%%)\n", sum.Completed, sum.Total, sum.Percentage)

	for _, f := range s.features {
		status := "○"
		if f.Passes {
			status = "✓"
		}
		fmt.Fprintf(&b, "\n\n### %s %s - %s\n\n", status, f.ID, f.Description)
		fmt.Fprintf(&b, "- Category: %s\n", f.Category)
		fmt.Fprintf(&b, "- Priority: %d\n", f.Priority)
		if f.Passes {
			b.WriteString("- Status: PASSING\n")
		} else {
			b.WriteString("- Status: FAILING\n")
		}

		if len(f.Steps) > 0 {
			b.WriteString("\n**Test Steps:**\n")
			for i, step := range f.Steps {
				fmt.Fprintf(&b, "%d. %s\n", i+1, step)
			}
		}

		if f.Notes != "" {
			fmt.Fprintf(&b, "\n**Notes:** %s\n", f.Notes)
		}
	}

	return b.String()
}
