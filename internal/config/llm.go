package config

import "time"

// LLMConfig configures the model channel.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // anthropic, gemini
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
	Timeout   string `yaml:"timeout"`
}

// RequestTimeout parses the configured timeout, falling back to 20 minutes.
// Generation against a large context can legitimately take that long.
func (c LLMConfig) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 20 * time.Minute
	}
	return d
}

// BrowserConfig configures browser validation.
type BrowserConfig struct {
	Headless            bool   `yaml:"headless"`
	Bin                 string `yaml:"bin"` // optional Chrome binary override
	BaseURL             string `yaml:"base_url"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
	StepTimeoutMs       int    `yaml:"step_timeout_ms"`
}

// SchedulerConfig configures the run loop.
type SchedulerConfig struct {
	MaxIterations          int    `yaml:"max_iterations"`
	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures"`
	Cooldown               string `yaml:"cooldown"`
	IterationDelay         string `yaml:"iteration_delay"`
	WatchFeatureList       bool   `yaml:"watch_feature_list"`
}

// CooldownDuration parses the pause applied after repeated session failures.
func (c SchedulerConfig) CooldownDuration() time.Duration {
	d, err := time.ParseDuration(c.Cooldown)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// IterationDelayDuration parses the sleep between loop iterations.
func (c SchedulerConfig) IterationDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.IterationDelay)
	if err != nil || d < 0 {
		return 2 * time.Second
	}
	return d
}

// CommitTimeoutDuration parses the timeout applied to git subprocesses.
func (c GitConfig) CommitTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.CommitTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}
