// Package config provides configuration management for vibe0.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all configuration for the vibe0 server.
type Config struct {
	// ServerAddr is the address the HTTP server listens on (e.g., ":8090").
	ServerAddr string

	// DataDir is the directory for persistent data (SQLite DB, etc.).
	DataDir string

	// DatabasePath is the full path to the SQLite database file.
	DatabasePath string

	// GitHubToken is the personal access token for GitHub API operations
	// and in-sandbox pushes.
	GitHubToken string

	// AnthropicAPIKey drives both title generation and the coding agent.
	AnthropicAPIKey string

	// TitleModel overrides the model used for session titles.
	TitleModel string

	// SandboxImage overrides the default sandbox Docker image for templates
	// that don't name one.
	SandboxImage string

	// AgentCommand overrides the agent launch command inside the sandbox.
	AgentCommand string

	// TemplatesFile is an optional YAML file of extra templates merged over
	// the built-ins.
	TemplatesFile string

	// Slack notifications (optional).
	// SlackBotToken is the Bot User OAuth Token (xoxb-...).
	SlackBotToken string
	// SlackChannel is the channel ID notifications are posted to.
	SlackChannel string

	// MaxConcurrentJobs bounds simultaneously provisioning sessions.
	MaxConcurrentJobs int

	// JobTimeout bounds a provisioning run's wall-clock time.
	JobTimeout time.Duration

	// LogLevel is the logrus level name ("debug", "info", ...).
	LogLevel string
}

// Load creates a Config from environment variables with sensible defaults.
func Load() (*Config, error) {
	dataDir := envOr("VIBE0_DATA_DIR", defaultDataDir())
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	cfg := &Config{
		ServerAddr:        envOr("VIBE0_ADDR", ":8090"),
		DataDir:           dataDir,
		DatabasePath:      filepath.Join(dataDir, "vibe0.db"),
		GitHubToken:       os.Getenv("GITHUB_TOKEN"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		TitleModel:        os.Getenv("VIBE0_TITLE_MODEL"),
		SandboxImage:      os.Getenv("VIBE0_SANDBOX_IMAGE"),
		AgentCommand:      os.Getenv("VIBE0_AGENT_COMMAND"),
		TemplatesFile:     os.Getenv("VIBE0_TEMPLATES_FILE"),
		SlackBotToken:     os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannel:      os.Getenv("SLACK_CHANNEL"),
		MaxConcurrentJobs: envOrInt("VIBE0_MAX_CONCURRENT_JOBS", 100),
		JobTimeout:        envOrDuration("VIBE0_JOB_TIMEOUT", 10*time.Minute),
		LogLevel:          envOr("VIBE0_LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	return nil
}

// SlackEnabled returns true if Slack notifications are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// SandboxEnv returns environment variables to pass to sandbox containers.
func (c *Config) SandboxEnv() []string {
	env := []string{
		"GITHUB_TOKEN=" + c.GitHubToken,
	}
	if c.AnthropicAPIKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+c.AnthropicAPIKey)
	}
	return env
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vibe0"
	}
	return filepath.Join(home, ".vibe0")
}
