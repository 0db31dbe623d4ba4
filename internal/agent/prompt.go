package agent

import (
	"fmt"
	"strings"
	"time"

	"searchbot/internal/domain"
)

const maxSourceChars = 1200

// buildSystemPrompt combines the mode's instructions with the numbered
// search context and any attachment text.
func buildSystemPrompt(instructions string, sources []domain.Source, files []domain.FileText, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(instructions))
	sb.WriteString("\n\n")

	if len(sources) > 0 {
		sb.WriteString("<context>\n")
		for i, s := range sources {
			content, cut := domain.TruncateRunes(s.PageContent, maxSourceChars)
			if cut {
				content += "..."
			}
			fmt.Fprintf(&sb, "[%d] %s (%s)\n%s\n\n", i+1, s.Metadata.Title, s.Metadata.URL, content)
		}
		sb.WriteString("</context>\n\n")
	}

	if len(files) > 0 {
		sb.WriteString("<files>\n")
		for _, f := range files {
			fmt.Fprintf(&sb, "## %s\n%s\n\n", f.Name, f.Text)
		}
		sb.WriteString("</files>\n\n")
	}

	fmt.Fprintf(&sb, "Current date: %s", now.UTC().Format(time.RFC3339))
	return sb.String()
}

// sourceLimit maps the optimization hint to a result count.
func sourceLimit(mode domain.OptimizationMode) int {
	switch mode {
	case domain.OptimizeSpeed:
		return 5
	case domain.OptimizeQuality:
		return 15
	default:
		return 10
	}
}
