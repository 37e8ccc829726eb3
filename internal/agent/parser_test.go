package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseResponseTwoBlocks(t *testing.T) {
	response := `Here is the implementation.

FILE: src/index.html
CONTENT:
<html><body>hello</body></html>
FILE: src/app.js
CONTENT:
console.log("hi");
`
	edits := ParseResponse(response)
	require.Len(t, edits, 2)
	require.Equal(t, "src/index.html", edits[0].Path)
	require.Equal(t, "<html><body>hello</body></html>", edits[0].Content)
	require.Equal(t, "src/app.js", edits[1].Path)
	require.Equal(t, "console.log(\"hi\");", edits[1].Content)
}

func TestParseResponseNoMarkers(t *testing.T) {
	require.Empty(t, ParseResponse("I could not produce any code for this."))
	require.Empty(t, ParseResponse(""))
}

func TestParseResponseStripsFence(t *testing.T) {
	response := "FILE: main.go\nCONTENT:\n```go\npackage main\n\nfunc main() {}\n```"
	edits := ParseResponse(response)
	require.Len(t, edits, 1)
	require.Equal(t, "package main\n\nfunc main() {}", edits[0].Content)
}

func TestParseResponseUnterminatedFence(t *testing.T) {
	response := "FILE: notes.md\nCONTENT:\n```markdown\nunclosed"
	edits := ParseResponse(response)
	require.Len(t, edits, 1)
	require.Equal(t, "```markdown\nunclosed", edits[0].Content)
}

func TestParseResponseTrimsTrailingBlankLines(t *testing.T) {
	response := "FILE: a.txt\nCONTENT:\nbody line\n\n\n\nFILE: b.txt\nCONTENT:\nsecond\n\n"
	edits := ParseResponse(response)
	require.Len(t, edits, 2)
	require.Equal(t, "body line", edits[0].Content)
	require.Equal(t, "second", edits[1].Content)
}

func TestParseResponseMissingContentMarker(t *testing.T) {
	response := "FILE: orphan.txt\nno content marker here\nFILE: real.txt\nCONTENT:\nok"
	edits := ParseResponse(response)
	require.Len(t, edits, 1)
	require.Equal(t, "real.txt", edits[0].Path)
	require.Equal(t, "ok", edits[0].Content)
}

func TestParseResponseDuplicatePathsKeptInOrder(t *testing.T) {
	response := "FILE: a.txt\nCONTENT:\nfirst\nFILE: a.txt\nCONTENT:\nsecond"
	edits := ParseResponse(response)
	require.Len(t, edits, 2)
	require.Equal(t, "first", edits[0].Content)
	require.Equal(t, "second", edits[1].Content)
}

func TestWriteEditsCreatesDirectoriesAndSkipsFailures(t *testing.T) {
	root := t.TempDir()

	// Make "blocked" a file so writing blocked/x.txt fails.
	require.NoError(t, os.WriteFile(filepath.Join(root, "blocked"), nil, 0o644))

	edits := []FileEdit{
		{Path: "src/deep/one.txt", Content: "one"},
		{Path: "blocked/x.txt", Content: "nope"},
		{Path: "two.txt", Content: "two"},
	}
	written := WriteEdits(root, edits, zap.NewNop())
	require.Equal(t, []string{"src/deep/one.txt", "two.txt"}, written)

	data, err := os.ReadFile(filepath.Join(root, "src", "deep", "one.txt"))
	require.NoError(t, err)
	require.Equal(t, "one", string(data))
}

func TestApplyResponseEmptyReplyIsError(t *testing.T) {
	_, err := ApplyResponse(t.TempDir(), "nothing to see", zap.NewNop())
	require.Error(t, err)
}

func TestWriteEditsDuplicatePathLastWins(t *testing.T) {
	root := t.TempDir()
	written := WriteEdits(root, []FileEdit{
		{Path: "a.txt", Content: "first"},
		{Path: "a.txt", Content: "second"},
	}, zap.NewNop())
	require.Equal(t, []string{"a.txt", "a.txt"}, written)

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
}
