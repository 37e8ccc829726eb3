// Package browser runs feature validation steps against a live development
// server through a headless Chrome instance.
package browser

import "time"

// Config holds browser configuration.
type Config struct {
	Headless            bool   `json:"headless"`
	Bin                 string `json:"bin"`
	BaseURL             string `json:"base_url"`
	ViewportWidth       int    `json:"viewport_width"`
	ViewportHeight      int    `json:"viewport_height"`
	NavigationTimeoutMs int    `json:"navigation_timeout_ms"`
	StepTimeoutMs       int    `json:"step_timeout_ms"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		BaseURL:             "http://localhost:3000",
		ViewportWidth:       1280,
		ViewportHeight:      800,
		NavigationTimeoutMs: 30000,
		StepTimeoutMs:       30000,
	}
}

// GetBaseURL returns the application root URL.
func (c Config) GetBaseURL() string {
	if c.BaseURL == "" {
		return "http://localhost:3000"
	}
	return c.BaseURL
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1280
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 800
	}
	return c.ViewportHeight
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// StepTimeout returns the per-step timeout.
func (c Config) StepTimeout() time.Duration {
	if c.StepTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.StepTimeoutMs) * time.Millisecond
}
