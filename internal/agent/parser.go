package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// FileEdit is one (path, content) pair extracted from a model reply.
type FileEdit struct {
	Path    string
	Content string
}

var contentPattern = regexp.MustCompile(`(?s)CONTENT:\s*\n(.*?)\n?$`)

// ParseResponse extracts file edits from a free-form model reply. The
// expected shape is zero or more blocks of
//
//	FILE: path/to/file
//	CONTENT:
//	<body>
//
// with each block running to the next FILE: marker or end of text. Text
// before the first marker is discarded. A block with no CONTENT: marker
// contributes nothing. A reply without markers yields an empty slice, not
// an error.
func ParseResponse(response string) []FileEdit {
	parts := strings.Split(response, "FILE:")
	if len(parts) < 2 {
		return nil
	}

	var edits []FileEdit
	for _, part := range parts[1:] {
		lines := strings.SplitN(part, "\n", 2)
		path := strings.TrimSpace(lines[0])
		if path == "" {
			continue
		}

		m := contentPattern.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		edits = append(edits, FileEdit{Path: path, Content: stripFence(strings.TrimSpace(m[1]))})
	}
	return edits
}

// stripFence removes a surrounding triple-backtick code fence, including
// any language tag on the opening line. Unfenced bodies pass through
// unchanged.
func stripFence(body string) string {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "```") {
		return body
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 || !strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		return body
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}

// WriteEdits writes each edit under root, creating parent directories as
// needed. A failure on one file is logged and does not stop the rest.
// It returns the paths successfully written, in block order.
func WriteEdits(root string, edits []FileEdit, log *zap.Logger) []string {
	if log == nil {
		log = zap.NewNop()
	}
	var written []string
	for _, e := range edits {
		full := filepath.Join(root, e.Path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			log.Warn("failed to create directory", zap.String("path", e.Path), zap.Error(err))
			continue
		}
		if err := os.WriteFile(full, []byte(e.Content), 0o644); err != nil {
			log.Warn("failed to write file", zap.String("path", e.Path), zap.Error(err))
			continue
		}
		written = append(written, e.Path)
	}
	return written
}

// ApplyResponse parses a reply and writes the edits in one step. An empty
// result means the reply held no actionable edits.
func ApplyResponse(root, response string, log *zap.Logger) ([]string, error) {
	edits := ParseResponse(response)
	if len(edits) == 0 {
		return nil, fmt.Errorf("no file blocks found in response")
	}
	return WriteEdits(root, edits, log), nil
}
