package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all AutoForge configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Browser validation
	Browser BrowserConfig `yaml:"browser"`

	// Scheduler run loop
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Git integration
	Git GitConfig `yaml:"git"`

	// Persisted artifact paths (relative to the project root)
	Paths PathsConfig `yaml:"paths"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// GitConfig configures the version-control integration.
type GitConfig struct {
	AutoCommit    bool   `yaml:"auto_commit"`
	CommitPrefix  string `yaml:"commit_prefix"`
	CommitTimeout string `yaml:"commit_timeout"`
}

// PathsConfig names the files AutoForge persists inside a project.
type PathsConfig struct {
	FeatureList string `yaml:"feature_list"`
	ProgressLog string `yaml:"progress_log"`
	InitScript  string `yaml:"init_script"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "autoforge",
		Version: "0.1.0",

		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5-20250929",
			BaseURL:   "https://api.anthropic.com/v1",
			MaxTokens: 4096,
			Timeout:   "20m",
		},

		Browser: BrowserConfig{
			Headless:            true,
			BaseURL:             "http://localhost:3000",
			ViewportWidth:       1280,
			ViewportHeight:      800,
			NavigationTimeoutMs: 30000,
			StepTimeoutMs:       30000,
		},

		Scheduler: SchedulerConfig{
			MaxIterations:          100,
			MaxConsecutiveFailures: 3,
			Cooldown:               "30s",
			IterationDelay:         "2s",
			WatchFeatureList:       true,
		},

		Git: GitConfig{
			AutoCommit:    true,
			CommitPrefix:  "[autoforge]",
			CommitTimeout: "60s",
		},

		Paths: PathsConfig{
			FeatureList: "feature_list.json",
			ProgressLog: "progress.txt",
			InitScript:  "init.sh",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file is not an error: defaults are returned so a bare checkout
// works without any setup beyond an API key.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// API keys in priority order; Anthropic wins when both are set.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}

	if model := os.Getenv("AUTOFORGE_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("AUTOFORGE_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if url := os.Getenv("AUTOFORGE_APP_URL"); url != "" {
		c.Browser.BaseURL = url
	}
}
