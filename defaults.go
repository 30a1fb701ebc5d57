package vibe0

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/superagent-ai/vibe0/eventbus"
	ghProvider "github.com/superagent-ai/vibe0/githost/github"
	"github.com/superagent-ai/vibe0/llm"
	dockerSandbox "github.com/superagent-ai/vibe0/sandbox/docker"
	sqliteStore "github.com/superagent-ai/vibe0/store/sqlite"
	"github.com/superagent-ai/vibe0/template"
)

// applyDefaults fills in missing fields on the builder with sensible defaults.
func applyDefaults(b *Builder) error {
	// Config defaults.
	if b.config.ServerAddr == "" {
		b.config.ServerAddr = ":8090"
	}
	if b.config.MaxConcurrentJobs == 0 {
		b.config.MaxConcurrentJobs = 100
	}
	if b.config.JobTimeout == 0 {
		b.config.JobTimeout = 10 * time.Minute
	}

	// Logger.
	if b.log == nil {
		b.log = logrus.New()
		b.log.SetOutput(io.Discard)
	}

	// Store.
	if b.store == nil {
		dataDir := defaultDataDir()
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		st, err := sqliteStore.New(filepath.Join(dataDir, "vibe0.db"))
		if err != nil {
			return fmt.Errorf("initializing store: %w", err)
		}
		b.store = st
	}

	// Event bus.
	if b.bus == nil {
		b.bus = eventbus.NewInMemoryBus()
	}

	// Sandbox runtime.
	if b.sandbox == nil {
		b.sandbox = dockerSandbox.New("", b.config.SandboxEnv, b.log)
	}

	// Git provider.
	if b.git == nil {
		token := b.config.GitHubToken
		if token == "" {
			token = os.Getenv("GITHUB_TOKEN")
		}
		git, err := ghProvider.New(token, b.log)
		if err != nil {
			return fmt.Errorf("initializing git provider: %w", err)
		}
		b.git = git
	}

	// Templates.
	if b.templates == nil {
		b.templates = template.Default()
	}

	// Titler.
	if b.titler == nil {
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			b.titler = llm.NewClient(key, os.Getenv("VIBE0_TITLE_MODEL"))
		}
	}

	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vibe0"
	}
	return filepath.Join(home, ".vibe0")
}
