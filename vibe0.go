// Package vibe0 is the top-level entry point for the vibe0 server.
//
// Use the Builder to compose an application:
//
//	app, err := vibe0.NewBuilder().WithConfig(cfg).Build()
//	app.Start(ctx)
//
// Or customize components:
//
//	app, err := vibe0.NewBuilder().
//	    WithStore(myStore).
//	    WithGitProvider(myProvider).
//	    WithSandbox(myRuntime).
//	    Build()
package vibe0

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/superagent-ai/vibe0/engine"
	"github.com/superagent-ai/vibe0/eventbus"
	"github.com/superagent-ai/vibe0/githost"
	"github.com/superagent-ai/vibe0/httpapi"
	"github.com/superagent-ai/vibe0/llm"
	"github.com/superagent-ai/vibe0/notify"
	"github.com/superagent-ai/vibe0/sandbox"
	"github.com/superagent-ai/vibe0/store"
	"github.com/superagent-ai/vibe0/template"
	"github.com/superagent-ai/vibe0/workflow"
)

// Config holds top-level configuration for a vibe0 application.
type Config struct {
	// ServerAddr is the address the HTTP server listens on (default ":8090").
	ServerAddr string

	// GitHubToken authenticates GitHub API calls and sandbox pushes.
	GitHubToken string

	// SandboxEnv holds environment variables to pass into sandboxes.
	SandboxEnv []string

	// MaxConcurrentJobs bounds simultaneously provisioning sessions
	// (default 100).
	MaxConcurrentJobs int

	// JobTimeout bounds a provisioning run (default 10m).
	JobTimeout time.Duration
}

// Builder constructs a vibe0 App.
type Builder struct {
	config    Config
	store     store.SessionStore
	bus       eventbus.Bus
	sandbox   sandbox.Runtime
	git       githost.Provider
	templates *template.Registry
	titler    llm.Titler
	notifier  notify.Notifier
	log       *logrus.Logger
}

// NewBuilder creates a new Builder with sensible defaults.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the application configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the session store implementation.
func (b *Builder) WithStore(s store.SessionStore) *Builder {
	b.store = s
	return b
}

// WithBus sets the event bus implementation.
func (b *Builder) WithBus(bus eventbus.Bus) *Builder {
	b.bus = bus
	return b
}

// WithSandbox sets the sandbox runtime implementation.
func (b *Builder) WithSandbox(s sandbox.Runtime) *Builder {
	b.sandbox = s
	return b
}

// WithGitProvider sets the git hosting provider implementation.
func (b *Builder) WithGitProvider(g githost.Provider) *Builder {
	b.git = g
	return b
}

// WithTemplates sets the template registry.
func (b *Builder) WithTemplates(r *template.Registry) *Builder {
	b.templates = r
	return b
}

// WithTitler sets the session title generator. Nil disables titling.
func (b *Builder) WithTitler(t llm.Titler) *Builder {
	b.titler = t
	return b
}

// WithNotifier sets the lifecycle notifier. Nil disables notifications.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithLogger sets the application logger.
func (b *Builder) WithLogger(log *logrus.Logger) *Builder {
	b.log = log
	return b
}

// Build creates the App. Missing components are filled with defaults where
// one exists; store, sandbox, and git provider are required.
func (b *Builder) Build() (*App, error) {
	if err := applyDefaults(b); err != nil {
		return nil, err
	}

	runner := workflow.NewRunner(b.log, b.config.MaxConcurrentJobs, b.config.JobTimeout)

	eng := engine.New(
		engine.Config{
			GitHubToken: b.config.GitHubToken,
			SandboxEnv:  b.config.SandboxEnv,
		},
		b.store,
		b.bus,
		b.sandbox,
		b.git,
		b.templates,
		b.titler,
		runner,
		b.notifier,
		b.log,
	)

	handler := httpapi.New(eng, b.git, b.log)

	return &App{
		config:  b.config,
		engine:  eng,
		handler: handler,
		log:     b.log,
	}, nil
}

// App is a running vibe0 application.
type App struct {
	config  Config
	engine  *engine.Engine
	handler *httpapi.Handler
	log     *logrus.Logger
}

// Engine returns the underlying engine for direct access.
func (a *App) Engine() *engine.Engine { return a.engine }

// Handler returns the HTTP API handler.
func (a *App) Handler() *httpapi.Handler { return a.handler }

// Start starts the HTTP server. Blocks until ctx is done.
func (a *App) Start(ctx context.Context) error {
	a.engine.Start(ctx)

	srv := &http.Server{
		Addr:    a.config.ServerAddr,
		Handler: a.handler.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	a.log.WithField("addr", a.config.ServerAddr).Info("vibe0 server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	a.engine.Stop()
	return a.engine.Store().Close()
}
