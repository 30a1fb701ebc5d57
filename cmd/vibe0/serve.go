package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/superagent-ai/vibe0"
	"github.com/superagent-ai/vibe0/internal/config"
	"github.com/superagent-ai/vibe0/llm"
	notifySlack "github.com/superagent-ai/vibe0/notify/slack"
	sandboxDocker "github.com/superagent-ai/vibe0/sandbox/docker"
	storeSqlite "github.com/superagent-ai/vibe0/store/sqlite"
	"github.com/superagent-ai/vibe0/template"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vibe0 server",
	Long:  "Start the vibe0 API server that provisions session sandboxes and runs the coding agent.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load config file into environment (non-destructive).
	loadConfigFileIntoEnv()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	store, err := storeSqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	templates, err := template.Load(cfg.TemplatesFile)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	runtime := sandboxDocker.New(cfg.AgentCommand, cfg.SandboxEnv(), log)
	runtime.Image = cfg.SandboxImage

	builder := vibe0.NewBuilder().
		WithConfig(vibe0.Config{
			ServerAddr:        cfg.ServerAddr,
			GitHubToken:       cfg.GitHubToken,
			SandboxEnv:        cfg.SandboxEnv(),
			MaxConcurrentJobs: cfg.MaxConcurrentJobs,
			JobTimeout:        cfg.JobTimeout,
		}).
		WithLogger(log).
		WithStore(store).
		WithSandbox(runtime).
		WithTemplates(templates).
		WithTitler(llm.NewClient(cfg.AnthropicAPIKey, cfg.TitleModel))

	if cfg.SlackEnabled() {
		builder.WithNotifier(notifySlack.New(cfg.SlackBotToken, cfg.SlackChannel))
		fmt.Println("Slack notifications enabled")
	}

	app, err := builder.Build()
	if err != nil {
		return fmt.Errorf("building app: %w", err)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	return app.Start(ctx)
}

// loadConfigFileIntoEnv reads ~/.vibe0/config.env and sets any values not
// already present in the environment.
func loadConfigFileIntoEnv() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	path := filepath.Join(home, ".vibe0", "config.env")
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
