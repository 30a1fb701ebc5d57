package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/superagent-ai/vibe0/diff"
	"github.com/superagent-ai/vibe0/engine"
	"github.com/superagent-ai/vibe0/eventbus"
	"github.com/superagent-ai/vibe0/githost"
	"github.com/superagent-ai/vibe0/model"
	"github.com/superagent-ai/vibe0/sandbox"
	"github.com/superagent-ai/vibe0/store"
	"github.com/superagent-ai/vibe0/store/sqlite"
	"github.com/superagent-ai/vibe0/template"
	"github.com/superagent-ai/vibe0/workflow"
)

// --- Stubs ---

type stubSandbox struct{}

func (stubSandbox) Create(ctx context.Context, opts sandbox.CreateOptions) (string, error) {
	return "sbx-" + opts.SessionID, nil
}

func (stubSandbox) Resume(ctx context.Context, sandboxID string) error { return nil }

func (stubSandbox) Exec(ctx context.Context, sandboxID, command string, opts sandbox.ExecOptions) (*sandbox.ExecResult, error) {
	return &sandbox.ExecResult{SandboxID: sandboxID}, nil
}

func (stubSandbox) Host(ctx context.Context, sandboxID string, port int) (string, error) {
	return fmt.Sprintf("preview.test:%d", port), nil
}

func (stubSandbox) Generate(ctx context.Context, sandboxID, prompt string, opts sandbox.GenerateOptions) (*sandbox.LineScanner, error) {
	return sandbox.NewLineScanner(nil, strings.NewReader("")), nil
}

func (stubSandbox) Kill(ctx context.Context, sandboxID string) error { return nil }

type stubGit struct{}

func (stubGit) CurrentUser(ctx context.Context) (*githost.User, error) {
	return &githost.User{Login: "octocat"}, nil
}

func (stubGit) ListRepos(ctx context.Context) ([]*githost.Repo, error) {
	return []*githost.Repo{{ID: 1, FullName: "octocat/app"}}, nil
}

func (stubGit) ListBranches(ctx context.Context, repo string) ([]*githost.Branch, error) {
	return []*githost.Branch{{Name: "main", SHA: "abc"}}, nil
}

func (stubGit) CreateRepo(ctx context.Context, name string) (*githost.Repo, error) {
	return &githost.Repo{ID: 2, Name: name, FullName: "octocat/" + name}, nil
}

func (stubGit) CreatePR(ctx context.Context, opts githost.PROptions) (*githost.PullRequest, error) {
	return &githost.PullRequest{URL: "https://github.com/octocat/app/pull/1", Number: 1, Branch: opts.Branch, State: "open"}, nil
}

func (stubGit) DefaultBranch(ctx context.Context, repo string) (string, error) {
	return "main", nil
}

// --- Harness ---

func newTestHandler(t *testing.T) (*Handler, store.SessionStore) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	st, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	eng := engine.New(
		engine.Config{GitHubToken: "tok", TunnelSettleDelay: time.Millisecond},
		st,
		eventbus.NewInMemoryBus(),
		stubSandbox{},
		stubGit{},
		template.Default(),
		nil,
		workflow.NewRunner(log, 4, 5*time.Second),
		nil,
		log,
	)
	eng.Start(context.Background())
	t.Cleanup(eng.Stop)

	return New(eng, stubGit{}, log), st
}

func doJSON(t *testing.T, h *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	return w
}

// --- Tests ---

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	w := doJSON(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected health response: %d %q", w.Code, w.Body.String())
	}
}

func TestCreateSessionValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing template", `{"repository":"octocat/app"}`, http.StatusBadRequest},
		{"bad repo", `{"template_id":"nextjs","repository":"nope"}`, http.StatusBadRequest},
		{"unknown template", `{"template_id":"rails"}`, http.StatusBadRequest},
		{"invalid json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, "/api/sessions", tt.body)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
		})
	}
}

func TestCreateAndGetSession(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doJSON(t, h, http.MethodPost, "/api/sessions",
		`{"template_id":"nextjs","repository":"octocat/app","created_by":"octocat"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}

	var sess model.Session
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.ID == "" || sess.Status.Phase() != model.PhaseInProgress {
		t.Fatalf("unexpected session: %+v", sess)
	}

	w = doJSON(t, h, http.MethodGet, "/api/sessions/"+sess.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get failed: %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/api/sessions?created_by=octocat", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d", w.Code)
	}
	var sessions []*model.Session
	if err := json.Unmarshal(w.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}

	w = doJSON(t, h, http.MethodGet, "/api/sessions?created_by=hubot", "")
	if err := json.Unmarshal(w.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected empty list, got %d", len(sessions))
	}
}

func TestGetMissingSession(t *testing.T) {
	h, _ := newTestHandler(t)
	w := doJSON(t, h, http.MethodGet, "/api/sessions/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRenameSession(t *testing.T) {
	h, st := newTestHandler(t)

	now := time.Now().UTC()
	sess := &model.Session{ID: "ren1", Name: "New Session", Status: model.StatusRunning, CreatedAt: now, UpdatedAt: now}
	if err := st.CreateSession(sess); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, h, http.MethodPatch, "/api/sessions/ren1", `{"name":"Shop Redesign"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("rename failed: %d %s", w.Code, w.Body.String())
	}
	got, _ := st.GetSession("ren1")
	if got.Name != "Shop Redesign" {
		t.Fatalf("name not updated: %q", got.Name)
	}

	w = doJSON(t, h, http.MethodPatch, "/api/sessions/nope", `{"name":"x"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDeleteSessionRemovesEntries(t *testing.T) {
	h, st := newTestHandler(t)

	now := time.Now().UTC()
	sess := &model.Session{ID: "del1", Status: model.StatusRunning, SandboxID: "sbx", CreatedAt: now, UpdatedAt: now}
	if err := st.CreateSession(sess); err != nil {
		t.Fatal(err)
	}
	entry := &model.Entry{SessionID: "del1", Role: model.RoleUser, Content: "hi", CreatedAt: now}
	if err := st.AddEntry(entry); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, h, http.MethodDelete, "/api/sessions/del1", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete failed: %d %s", w.Code, w.Body.String())
	}
	left, _ := st.ListEntries("del1")
	if len(left) != 0 {
		t.Fatalf("entries survived session delete: %d", len(left))
	}
}

func TestEntryDiff(t *testing.T) {
	h, st := newTestHandler(t)

	now := time.Now().UTC()
	sess := &model.Session{ID: "diff1", Status: model.StatusRunning, CreatedAt: now, UpdatedAt: now}
	if err := st.CreateSession(sess); err != nil {
		t.Fatal(err)
	}
	edit := &model.Entry{
		SessionID: "diff1",
		Role:      model.RoleAssistant,
		Payload:   model.Edit{FilePath: "app/page.tsx", OldString: "foo\nbar", NewString: "foo\nbaz"},
		CreatedAt: now,
	}
	if err := st.AddEntry(edit); err != nil {
		t.Fatal(err)
	}
	text := &model.Entry{SessionID: "diff1", Role: model.RoleAssistant, Content: "done", CreatedAt: now}
	if err := st.AddEntry(text); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/sessions/diff1/entries/%d/diff", edit.ID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("diff failed: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		FilePath string      `json:"file_path"`
		Lines    []diff.Line `json:"lines"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.FilePath != "app/page.tsx" || len(resp.Lines) != 2 {
		t.Fatalf("unexpected diff: %+v", resp)
	}
	if resp.Lines[1].Type != diff.LineModified {
		t.Fatalf("expected modified line, got %q", resp.Lines[1].Type)
	}

	// Text entries have no diff.
	w = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/sessions/diff1/entries/%d/diff", text.ID), "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for text entry, got %d", w.Code)
	}
}

func TestSendMessageValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doJSON(t, h, http.MethodPost, "/api/sessions/nope/entries", `{"content":"hi"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodPost, "/api/sessions/nope/entries", `{"content":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSessionEventsReplayTranscriptAndStatus(t *testing.T) {
	h, st := newTestHandler(t)

	now := time.Now().UTC()
	sess := &model.Session{ID: "sse1", Status: model.StatusRunning, CreatedAt: now, UpdatedAt: now}
	if err := st.CreateSession(sess); err != nil {
		t.Fatal(err)
	}
	entry := &model.Entry{SessionID: "sse1", Role: model.RoleUser, Content: "add a hero", CreatedAt: now}
	if err := st.AddEntry(entry); err != nil {
		t.Fatal(err)
	}

	// A subscriber connecting after the fact sees the existing transcript
	// and the current status before any live events.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/sse1/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event: update") || !strings.Contains(body, `"content":"add a hero"`) {
		t.Fatalf("transcript not replayed: %q", body)
	}
	if !strings.Contains(body, "event: status") || !strings.Contains(body, `"phase":"RUNNING"`) {
		t.Fatalf("status not replayed: %q", body)
	}
	if strings.Index(body, "event: update") > strings.Index(body, "event: status") {
		t.Fatalf("transcript must precede the status frame: %q", body)
	}
}

func TestListTemplates(t *testing.T) {
	h, _ := newTestHandler(t)
	w := doJSON(t, h, http.MethodGet, "/api/templates", "")
	if w.Code != http.StatusOK {
		t.Fatalf("templates failed: %d", w.Code)
	}
	var templates []*template.Template
	if err := json.Unmarshal(w.Body.Bytes(), &templates); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(templates) != 5 {
		t.Fatalf("expected 5 templates, got %d", len(templates))
	}
}

func TestListReposAndBranches(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doJSON(t, h, http.MethodGet, "/api/repos", "")
	if w.Code != http.StatusOK {
		t.Fatalf("repos failed: %d", w.Code)
	}
	var repos []*githost.Repo
	if err := json.Unmarshal(w.Body.Bytes(), &repos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(repos) != 1 || repos[0].FullName != "octocat/app" {
		t.Fatalf("unexpected repos: %+v", repos)
	}

	w = doJSON(t, h, http.MethodGet, "/api/repos/octocat/app/branches", "")
	if w.Code != http.StatusOK {
		t.Fatalf("branches failed: %d", w.Code)
	}
}

func TestCheckURLValidation(t *testing.T) {
	h, _ := newTestHandler(t)
	w := doJSON(t, h, http.MethodPost, "/api/check-url", `{"url":"ftp://nope"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
