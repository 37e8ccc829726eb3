package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseStep(t *testing.T) {
	cfg := Config{BaseURL: "http://localhost:3000"}

	tests := []struct {
		name string
		step string
		want action
	}{
		{
			name: "navigate absolute url",
			step: "Navigate to http://example.com/login",
			want: action{kind: actionNavigate, target: "http://example.com/login"},
		},
		{
			name: "navigate bare path joins base url",
			step: "Go to /dashboard",
			want: action{kind: actionNavigate, target: "http://localhost:3000/dashboard"},
		},
		{
			name: "click selector",
			step: "Click the button #submit",
			want: action{kind: actionClick, target: "#submit"},
		},
		{
			name: "fill with explicit selector",
			step: `Type into #email "user@test.com"`,
			want: action{kind: actionFill, target: "#email", text: "user@test.com"},
		},
		{
			name: "verify element",
			step: "Verify the page shows .welcome-banner",
			want: action{kind: actionVerify, target: ".welcome-banner"},
		},
		{
			name: "wait with seconds",
			step: "Wait 3 seconds for the list to load",
			want: action{kind: actionSleep, duration: 3 * time.Second},
		},
		{
			name: "wait without count defaults to one second",
			step: "Wait for the spinner",
			want: action{kind: actionSleep, duration: time.Second},
		},
		{
			name: "unrecognized step verifies last token",
			step: "The page should contain h1",
			want: action{kind: actionVerify, target: "h1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, parseStep(tt.step, cfg))
		})
	}
}

func TestResolveURL(t *testing.T) {
	cfg := Config{BaseURL: "http://localhost:3000/"}

	require.Equal(t, "https://api.test/v1", resolveURL("https://api.test/v1", cfg))
	require.Equal(t, "http://localhost:3000/users", resolveURL("/users", cfg))
	require.Equal(t, "http://localhost:3000/users", resolveURL("users", cfg))
	require.Equal(t, "http://localhost:3000/login", resolveURL(`"/login"`, cfg))
}

func TestSelector(t *testing.T) {
	require.Equal(t, "#login", selector(`"#login"`))
	require.Equal(t, "button", selector("button."))
	require.Equal(t, "body", selector(""))
	require.Equal(t, "body", selector(`""`))
}
