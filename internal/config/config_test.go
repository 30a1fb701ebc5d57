package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VIBE0_DATA_DIR", t.TempDir())
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("VIBE0_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerAddr != ":8090" {
		t.Errorf("unexpected addr %q", cfg.ServerAddr)
	}
	if cfg.MaxConcurrentJobs != 100 {
		t.Errorf("unexpected concurrency %d", cfg.MaxConcurrentJobs)
	}
	if cfg.JobTimeout != 10*time.Minute {
		t.Errorf("unexpected timeout %v", cfg.JobTimeout)
	}
}

func TestValidateRequiresTokens(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error without GITHUB_TOKEN")
	}

	cfg.GitHubToken = "tok"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error without ANTHROPIC_API_KEY")
	}

	cfg.AnthropicAPIKey = "key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOverridesFromEnv(t *testing.T) {
	t.Setenv("VIBE0_DATA_DIR", t.TempDir())
	t.Setenv("VIBE0_ADDR", ":9000")
	t.Setenv("VIBE0_MAX_CONCURRENT_JOBS", "5")
	t.Setenv("VIBE0_JOB_TIMEOUT", "2m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerAddr != ":9000" || cfg.MaxConcurrentJobs != 5 || cfg.JobTimeout != 2*time.Minute {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestSandboxEnv(t *testing.T) {
	cfg := &Config{GitHubToken: "tok", AnthropicAPIKey: "key"}
	env := cfg.SandboxEnv()
	if len(env) != 2 || env[0] != "GITHUB_TOKEN=tok" || env[1] != "ANTHROPIC_API_KEY=key" {
		t.Fatalf("unexpected env: %v", env)
	}
}
