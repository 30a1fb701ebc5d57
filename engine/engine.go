// Package engine orchestrates the session lifecycle: provisioning the
// sandbox from a template, streaming the coding agent, and opening pull
// requests. It depends only on interfaces (store, sandbox, githost, eventbus,
// notify) plus the template registry.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/superagent-ai/vibe0/agent"
	"github.com/superagent-ai/vibe0/eventbus"
	"github.com/superagent-ai/vibe0/githost"
	"github.com/superagent-ai/vibe0/llm"
	"github.com/superagent-ai/vibe0/model"
	"github.com/superagent-ai/vibe0/notify"
	"github.com/superagent-ai/vibe0/sandbox"
	"github.com/superagent-ai/vibe0/store"
	"github.com/superagent-ai/vibe0/template"
	"github.com/superagent-ai/vibe0/workflow"
)

const (
	// devServerPort is where template dev servers listen inside the sandbox.
	devServerPort = 3000
	// prBranch is the branch session changes are pushed to for review.
	prBranch = "vibe0"
	// prLabelName and prLabelColor tag every pull request we open.
	prLabelName  = "\U0001f596 vibe0"
	prLabelColor = "42460b"

	gitUserEmail = "vibe0@vibekit.sh"
	gitUserName  = "Vibe0 Bot"

	// checkURLTimeout bounds the preview reachability probe.
	checkURLTimeout = 10 * time.Second
)

// Config holds engine-specific configuration.
type Config struct {
	// GitHubToken authenticates pushes from inside the sandbox.
	GitHubToken string
	// SandboxEnv is passed to every sandbox.
	SandboxEnv []string
	// TunnelSettleDelay is the wait between resolving the tunnel and
	// announcing RUNNING, giving the dev server time to bind. Zero selects
	// the 2s default.
	TunnelSettleDelay time.Duration
}

// Engine orchestrates session lifecycle.
type Engine struct {
	config    Config
	store     store.SessionStore
	bus       eventbus.Bus
	sandbox   sandbox.Runtime
	git       githost.Provider
	templates *template.Registry
	titler    llm.Titler
	mapper    *agent.Mapper
	runner    *workflow.Runner
	notifier  notify.Notifier
	log       *logrus.Logger
	probe     *http.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Engine with all dependencies. The titler and notifier may
// be nil; title generation and notifications are then skipped.
func New(
	cfg Config,
	st store.SessionStore,
	bus eventbus.Bus,
	sb sandbox.Runtime,
	git githost.Provider,
	templates *template.Registry,
	titler llm.Titler,
	runner *workflow.Runner,
	notifier notify.Notifier,
	log *logrus.Logger,
) *Engine {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Engine{
		config:    cfg,
		store:     st,
		bus:       bus,
		sandbox:   sb,
		git:       git,
		templates: templates,
		titler:    titler,
		mapper:    agent.NewMapper(st, bus, log),
		runner:    runner,
		notifier:  notifier,
		log:       log,
		probe:     &http.Client{Timeout: checkURLTimeout},
	}
}

// Start prepares the engine for background work. Call Stop to shut down.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
}

// Stop cancels all background work and waits for in-flight jobs.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Store returns the session store.
func (e *Engine) Store() store.SessionStore { return e.store }

// Bus returns the event bus.
func (e *Engine) Bus() eventbus.Bus { return e.bus }

// Templates returns the template registry.
func (e *Engine) Templates() *template.Registry { return e.templates }

// CreateRequest describes a new session.
type CreateRequest struct {
	// TemplateID selects the starter template.
	TemplateID string
	// Repository is an existing "owner/repo" to work on. Empty means a new
	// repository is created from the template.
	Repository string
	// Message is the user's first instruction; empty creates an idle
	// session with no agent run.
	Message string
	// CreatedBy is the login of the creating user.
	CreatedBy string
}

// CreateSession persists a new session and provisions it in the background.
func (e *Engine) CreateSession(req CreateRequest) (*model.Session, error) {
	tpl, err := e.templates.Get(req.TemplateID)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()[:8]
	now := time.Now().UTC()
	sess := &model.Session{
		ID:         id,
		Name:       "New Session",
		CreatedBy:  req.CreatedBy,
		TemplateID: tpl.ID,
		Repository: req.Repository,
		Status:     model.StatusInProgress,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.CreateSession(sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	e.dispatch("create-session", func(run *workflow.Run) error {
		return e.provision(run, sess.ID, tpl, req)
	})

	return sess, nil
}

// provision takes a fresh session from IN_PROGRESS to RUNNING, or FAILED.
func (e *Engine) provision(run *workflow.Run, sessionID string, tpl *template.Template, req CreateRequest) error {
	var (
		sandboxID string
		tunnelURL string
	)

	err := run.Step("get tunnel url", func(ctx context.Context) error {
		e.nameSession(ctx, sessionID, req.Message)
		e.setStatus(sessionID, model.StatusCloningRepo)

		var err error
		sandboxID, err = e.sandbox.Create(ctx, sandbox.CreateOptions{
			SessionID: sessionID,
			Image:     tpl.Image,
			Env:       append(append([]string(nil), e.config.SandboxEnv...), secretEnv(tpl.Secrets)...),
		})
		if err != nil {
			return fmt.Errorf("creating sandbox: %w", err)
		}

		if req.Repository == "" {
			sandboxID, err = e.setupFromTemplate(ctx, sessionID, sandboxID, tpl)
		} else {
			sandboxID, err = e.cloneExisting(ctx, sandboxID, req.Repository)
		}
		if err != nil {
			return err
		}

		// Diagnostic listing; output goes to the log only.
		if res, err := e.sandbox.Exec(ctx, sandboxID, "ls -la", sandbox.ExecOptions{}); err == nil {
			e.log.WithField("session", sessionID).Debug(res.Output)
		}

		if err := e.bootstrap(ctx, sessionID, &sandboxID, tpl); err != nil {
			return err
		}

		e.setStatus(sessionID, model.StatusCreatingTunnel)
		host, err := e.sandbox.Host(ctx, sandboxID, devServerPort)
		if err != nil {
			return fmt.Errorf("resolving tunnel host: %w", err)
		}
		tunnelURL = "https://" + host
		return nil
	})
	if err != nil {
		e.failSession(sessionID, err)
		return err
	}

	// Give the dev server a moment before announcing the tunnel.
	settle := e.config.TunnelSettleDelay
	if settle == 0 {
		settle = 2 * time.Second
	}
	if err := run.Sleep(settle); err != nil {
		e.failSession(sessionID, err)
		return err
	}

	err = run.Step("update session", func(ctx context.Context) error {
		running := model.StatusRunning
		err := e.store.PatchSession(sessionID, store.SessionPatch{
			Status:    &running,
			TunnelURL: &tunnelURL,
		})
		if err != nil {
			return err
		}
		e.publishStatus(sessionID, running)
		e.notifySession(ctx, sessionID)
		return nil
	})
	if err != nil {
		e.failSession(sessionID, err)
		return err
	}

	if req.Message != "" {
		return run.Step("run agent", func(ctx context.Context) error {
			return e.runAgent(ctx, sessionID, sandboxID, tpl, req.Message)
		})
	}
	return nil
}

// setupFromTemplate creates a fresh repository from the template and pushes
// the initial commit. Returns the sandbox ID reported by the last command.
func (e *Engine) setupFromTemplate(ctx context.Context, sessionID, sandboxID string, tpl *template.Template) (string, error) {
	repoName := fmt.Sprintf("vibe0-%s-%s",
		strings.ReplaceAll(tpl.RepoPath(), "/", "-"),
		lastDigits(time.Now(), 6))

	repo, err := e.git.CreateRepo(ctx, repoName)
	if err != nil {
		return sandboxID, fmt.Errorf("creating repository: %w", err)
	}

	commands := []string{
		fmt.Sprintf("git clone %s .", tpl.CloneURL()),
		fmt.Sprintf("git config --global user.email %q", gitUserEmail),
		fmt.Sprintf("git config --global user.name %q", gitUserName),
		"rm -rf .git",
		"git init",
		"git checkout -b main",
		fmt.Sprintf("git remote add origin https://%s@github.com/%s.git", e.config.GitHubToken, repo.FullName),
		fmt.Sprintf("git add . && git commit -m \"Initial commit from template %s\" && git push -u origin main", tpl.ID),
	}
	for _, command := range commands {
		res, err := e.sandbox.Exec(ctx, sandboxID, command, sandbox.ExecOptions{})
		if err != nil {
			return sandboxID, fmt.Errorf("running %q: %w", command, err)
		}
		sandboxID = res.SandboxID
	}

	repository := repo.FullName
	if err := e.store.PatchSession(sessionID, store.SessionPatch{Repository: &repository}); err != nil {
		return sandboxID, err
	}
	return sandboxID, nil
}

// cloneExisting clones an existing "owner/repo" into the sandbox.
func (e *Engine) cloneExisting(ctx context.Context, sandboxID, repository string) (string, error) {
	command := fmt.Sprintf("git clone https://%s@github.com/%s.git .", e.config.GitHubToken, repository)
	res, err := e.sandbox.Exec(ctx, sandboxID, command, sandbox.ExecOptions{})
	if err != nil {
		return sandboxID, fmt.Errorf("cloning %s: %w", repository, err)
	}
	return res.SandboxID, nil
}

// bootstrap runs the template's start commands, advancing the session status
// before each one. The sandbox ID is re-recorded each round in case the
// runtime migrated the sandbox.
func (e *Engine) bootstrap(ctx context.Context, sessionID string, sandboxID *string, tpl *template.Template) error {
	for _, sc := range tpl.StartCommands {
		status, err := model.StatusForPhase(sc.Status)
		if err != nil {
			return err
		}
		patch := store.SessionPatch{Status: &status, SandboxID: sandboxID}
		if err := e.store.PatchSession(sessionID, patch); err != nil {
			return err
		}
		e.publishStatus(sessionID, status)

		res, err := e.sandbox.Exec(ctx, *sandboxID, sc.Command, sandbox.ExecOptions{
			Background: sc.Background,
		})
		if err != nil {
			return fmt.Errorf("running %q: %w", sc.Command, err)
		}
		if res.SandboxID != "" {
			*sandboxID = res.SandboxID
		}
	}
	return nil
}

// SendMessage stores a user instruction and dispatches an agent run.
func (e *Engine) SendMessage(sessionID, content string) (*model.Entry, error) {
	sess, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.SandboxID == "" {
		return nil, fmt.Errorf("session %s has no sandbox", sessionID)
	}

	entry := &model.Entry{
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.AddEntry(entry); err != nil {
		return nil, fmt.Errorf("storing message: %w", err)
	}
	if msg, err := eventbus.NewUpdateMessage(sessionID, entry); err == nil {
		e.bus.Publish(sessionID, msg)
	}

	tpl, err := e.templates.Get(sess.TemplateID)
	if err != nil {
		return nil, err
	}

	e.dispatch("run-agent", func(run *workflow.Run) error {
		err := run.Step("generate code", func(ctx context.Context) error {
			return e.runAgent(ctx, sessionID, sess.SandboxID, tpl, content)
		})
		if err != nil {
			e.failSession(sessionID, err)
			return err
		}
		return run.Step("update session", func(ctx context.Context) error {
			e.setStatus(sessionID, model.StatusRunning)
			return nil
		})
	})

	return entry, nil
}

// runAgent resumes the sandbox, streams the coding agent, and returns the
// session to RUNNING when the stream ends.
func (e *Engine) runAgent(ctx context.Context, sessionID, sandboxID string, tpl *template.Template, message string) error {
	if err := e.sandbox.Resume(ctx, sandboxID); err != nil {
		return fmt.Errorf("resuming sandbox: %w", err)
	}

	e.setStatus(sessionID, model.CustomStatus("Working on task"))

	prompt := tpl.SystemPrompt +
		"Do not run tests or restart the dev server.\n" +
		fmt.Sprintf("Follow the users intructions:\n\n# INSTRUCTIONS\n%s", message)

	stream, err := e.sandbox.Generate(ctx, sandboxID, prompt, sandbox.GenerateOptions{
		SystemPrompt: tpl.SystemPrompt,
		Resume:       true,
	})
	if err != nil {
		return fmt.Errorf("starting agent: %w", err)
	}
	defer stream.Close()

	if err := e.mapper.Run(ctx, sessionID, stream); err != nil {
		return fmt.Errorf("streaming agent events: %w", err)
	}

	e.setStatus(sessionID, model.StatusRunning)
	return nil
}

// CreatePullRequest pushes the session's changes and opens a labeled PR.
// Only RUNNING sessions can open pull requests.
func (e *Engine) CreatePullRequest(ctx context.Context, sessionID string) (*model.PullRequest, error) {
	sess, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Phase() != model.PhaseRunning {
		return nil, fmt.Errorf("session is %s, wait for it to be running", sess.Status.Phase())
	}
	if sess.SandboxID == "" || sess.Repository == "" {
		return nil, fmt.Errorf("session has no sandbox or repository")
	}

	push := fmt.Sprintf(
		"git checkout -B %s && git add . && git commit -m %q --allow-empty && git push -f origin %s",
		prBranch, model.Truncate(sess.Name, 72), prBranch,
	)
	if _, err := e.sandbox.Exec(ctx, sess.SandboxID, push, sandbox.ExecOptions{}); err != nil {
		return nil, fmt.Errorf("pushing changes: %w", err)
	}

	base, err := e.git.DefaultBranch(ctx, sess.Repository)
	if err != nil {
		base = "main"
	}

	created, err := e.git.CreatePR(ctx, githost.PROptions{
		Repo:       sess.Repository,
		Branch:     prBranch,
		Base:       base,
		Title:      sess.Name,
		Body:       "Pull request created by vibe0",
		LabelName:  prLabelName,
		LabelColor: prLabelColor,
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request: %w", err)
	}

	pr := &model.PullRequest{
		URL:    created.URL,
		Number: created.Number,
		Branch: created.Branch,
		State:  created.State,
		Title:  created.Title,
	}
	if err := e.store.PatchSession(sessionID, store.SessionPatch{PullRequest: pr}); err != nil {
		return nil, err
	}
	return pr, nil
}

// RenameSession updates a session's display name.
func (e *Engine) RenameSession(sessionID, name string) error {
	return e.store.PatchSession(sessionID, store.SessionPatch{Name: &name})
}

// DeleteSession kills the sandbox (best-effort) and removes the session with
// its transcript.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	sess, err := e.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if sess.SandboxID != "" {
		if err := e.sandbox.Kill(ctx, sess.SandboxID); err != nil {
			e.log.WithError(err).WithField("session", sessionID).Warn("killing sandbox failed")
		}
	}
	return e.store.DeleteSession(sessionID)
}

// CheckURL probes whether a preview URL responds. Any error within the
// timeout counts as unreachable.
func (e *Engine) CheckURL(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := e.probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// --- Helpers ---

// dispatch queues a workflow job tied to the engine lifecycle.
func (e *Engine) dispatch(name string, fn func(run *workflow.Run) error) {
	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	e.wg.Add(1)
	done := e.runner.Go(ctx, name, fn)
	go func() {
		<-done
		e.wg.Done()
	}()
}

// nameSession titles the session from the first message. Failures keep the
// default name.
func (e *Engine) nameSession(ctx context.Context, sessionID, message string) {
	if e.titler == nil || message == "" {
		return
	}
	title, err := e.titler.Title(ctx, message)
	if err != nil {
		e.log.WithError(err).WithField("session", sessionID).Warn("title generation failed")
		return
	}
	if err := e.store.PatchSession(sessionID, store.SessionPatch{Name: &title}); err != nil {
		e.log.WithError(err).WithField("session", sessionID).Warn("saving title failed")
	}
}

func (e *Engine) setStatus(sessionID string, status model.Status) {
	if err := e.store.PatchSession(sessionID, store.SessionPatch{Status: &status}); err != nil {
		e.log.WithError(err).WithField("session", sessionID).Warn("persisting status failed")
		return
	}
	e.publishStatus(sessionID, status)
}

func (e *Engine) publishStatus(sessionID string, status model.Status) {
	if msg, err := eventbus.NewStatusMessage(sessionID, status); err == nil {
		e.bus.Publish(sessionID, msg)
	}
}

func (e *Engine) failSession(sessionID string, cause error) {
	e.log.WithError(cause).WithField("session", sessionID).Error("session failed")
	e.setStatus(sessionID, model.FailedStatus(cause.Error()))

	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	e.notifySession(ctx, sessionID)
}

func (e *Engine) notifySession(ctx context.Context, sessionID string) {
	sess, err := e.store.GetSession(sessionID)
	if err != nil {
		return
	}
	err = e.notifier.Notify(ctx, notify.Event{
		SessionID: sess.ID,
		Name:      sess.Name,
		Status:    sess.Status,
		TunnelURL: sess.TunnelURL,
	})
	if err != nil {
		e.log.WithError(err).WithField("session", sessionID).Warn("notification failed")
	}
}

// secretEnv renders template secrets as KEY=VALUE pairs in stable order.
func secretEnv(secrets map[string]string) []string {
	if len(secrets) == 0 {
		return nil
	}
	keys := make([]string, 0, len(secrets))
	for k := range secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+secrets[k])
	}
	return env
}

// lastDigits renders the trailing n digits of the time's unix milliseconds,
// used to keep generated repo names unique.
func lastDigits(t time.Time, n int) string {
	ms := fmt.Sprintf("%d", t.UnixMilli())
	if len(ms) <= n {
		return ms
	}
	return ms[len(ms)-n:]
}
