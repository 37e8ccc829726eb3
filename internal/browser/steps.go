package browser

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// actionKind classifies what a natural-language step asks for.
type actionKind int

const (
	actionNavigate actionKind = iota
	actionClick
	actionFill
	actionVerify
	actionSleep
)

// action is one executable browser operation derived from a step.
type action struct {
	kind     actionKind
	target   string // URL or selector
	text     string // fill text
	duration time.Duration
}

// parseStep maps a natural-language validation step onto a browser action.
// The grammar is deliberately loose: steps come from humans and from model
// output, so keyword heuristics beat a strict parser here.
func parseStep(step string, cfg Config) action {
	lower := strings.ToLower(step)
	tokens := strings.Fields(step)
	last := ""
	if len(tokens) > 0 {
		last = tokens[len(tokens)-1]
	}

	switch {
	case strings.Contains(lower, "navigate to") || strings.Contains(lower, "go to"):
		return action{kind: actionNavigate, target: resolveURL(last, cfg)}

	case strings.Contains(lower, "click"):
		return action{kind: actionClick, target: selector(last)}

	case strings.Contains(lower, "type") || strings.Contains(lower, "enter") || strings.Contains(lower, "input"):
		text := strings.Trim(last, `"'`)
		sel := "input"
		if len(tokens) > 1 {
			sel = selector(tokens[len(tokens)-2])
		}
		return action{kind: actionFill, target: sel, text: text}

	case strings.Contains(lower, "verify") || strings.Contains(lower, "check") || strings.Contains(lower, "assert"):
		return action{kind: actionVerify, target: selector(last)}

	case strings.Contains(lower, "wait"):
		if strings.Contains(lower, "second") {
			for _, tok := range tokens {
				if n, err := strconv.Atoi(tok); err == nil {
					return action{kind: actionSleep, duration: time.Duration(n) * time.Second}
				}
			}
		}
		return action{kind: actionSleep, duration: time.Second}
	}

	// Default: wait for the last token as a selector.
	return action{kind: actionVerify, target: selector(last)}
}

// resolveURL joins bare paths onto the configured application root.
func resolveURL(raw string, cfg Config) string {
	raw = strings.Trim(raw, `"'`)
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		return raw
	}
	base := strings.TrimRight(cfg.GetBaseURL(), "/")
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return base + raw
}

// selector normalizes a trailing token into something rod can query.
// Bare words become element selectors as-is ("body", "button"); quoted
// tokens are unwrapped.
func selector(raw string) string {
	raw = strings.Trim(raw, `"'`)
	raw = strings.TrimSuffix(raw, ".")
	if raw == "" {
		return "body"
	}
	return raw
}
