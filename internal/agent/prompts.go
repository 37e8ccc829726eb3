package agent

import (
	"fmt"
	"strings"

	"autoforge/internal/feature"
)

// implementationPrompt builds the request for one feature attempt. The
// response format instructions must stay in sync with ParseResponse.
func implementationPrompt(state string, feat feature.Feature) string {
	var b strings.Builder

	b.WriteString("You are an expert software developer working on a web application.\n\n")

	if state != "" {
		b.WriteString("CURRENT PROJECT STATE:\n")
		b.WriteString(state)
		b.WriteString("\n\n")
	}

	b.WriteString("YOUR TASK - implement this feature completely:\n")
	fmt.Fprintf(&b, "  ID: %s\n", feat.ID)
	fmt.Fprintf(&b, "  Category: %s\n", feat.Category)
	fmt.Fprintf(&b, "  Priority: %d\n", feat.Priority)
	fmt.Fprintf(&b, "  Description: %s\n\n", feat.Description)

	if len(feat.Steps) > 0 {
		b.WriteString("The implementation must pass these validation steps:\n")
		for i, step := range feat.Steps {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
		b.WriteString("\n")
	}

	b.WriteString(`Respond with the complete contents of every file you create or change,
using exactly this format for each file:

FILE: relative/path/to/file
CONTENT:
<the complete file contents>

Rules:
- Output complete files, never fragments or diffs.
- Use relative paths from the project root.
- Do not include explanations between file blocks.
`)

	return b.String()
}

// featureListPrompt asks the model to turn free-form requirements into a
// machine-readable feature list. The reply is expected to be a JSON array
// of objects with description, category, priority and steps fields.
func featureListPrompt(requirements string) string {
	return fmt.Sprintf(`You are planning the build of a web application.

REQUIREMENTS:
%s

Break the requirements into a list of small, independently testable
features. For each feature provide:
- "description": one sentence stating what works when the feature is done
- "category": one of "functional", "ui", "data", "integration"
- "priority": integer 1 (build first) to 5 (build last)
- "steps": 2-5 browser validation steps a tester could follow, each a
  single imperative sentence like "Navigate to /login" or "Click #submit"

Respond with ONLY a JSON array of these objects, no surrounding prose.`, requirements)
}
