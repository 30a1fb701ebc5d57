// Package httpapi provides the HTTP API handler for vibe0.
// It delegates all business logic to the engine.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/superagent-ai/vibe0/diff"
	"github.com/superagent-ai/vibe0/engine"
	"github.com/superagent-ai/vibe0/eventbus"
	"github.com/superagent-ai/vibe0/githost"
	"github.com/superagent-ai/vibe0/model"
	"github.com/superagent-ai/vibe0/store"
)

// Handler provides the HTTP API for vibe0.
type Handler struct {
	engine *engine.Engine
	git    githost.Provider
	log    *logrus.Logger
	router chi.Router
}

// New creates a new HTTP API handler.
func New(eng *engine.Engine, git githost.Provider, log *logrus.Logger) *Handler {
	h := &Handler{engine: eng, git: git, log: log}
	h.router = h.buildRouter()
	return h
}

// Router returns the HTTP router.
func (h *Handler) Router() chi.Router {
	return h.router
}

func (h *Handler) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Post("/sessions", h.handleCreateSession)
			r.Get("/sessions", h.handleListSessions)
			r.Get("/sessions/{id}", h.handleGetSession)
			r.Patch("/sessions/{id}", h.handleRenameSession)
			r.Delete("/sessions/{id}", h.handleDeleteSession)
			r.Get("/sessions/{id}/entries", h.handleListEntries)
			r.Post("/sessions/{id}/entries", h.handleSendMessage)
			r.Delete("/sessions/{id}/entries/{entryID}", h.handleDeleteEntry)
			r.Get("/sessions/{id}/entries/{entryID}/diff", h.handleEntryDiff)
			r.Post("/sessions/{id}/pr", h.handleCreatePR)

			r.Get("/repos", h.handleListRepos)
			r.Get("/repos/{owner}/{repo}/branches", h.handleListBranches)
			r.Get("/templates", h.handleListTemplates)
			r.Post("/check-url", h.handleCheckURL)
		})
		r.Get("/sessions/{id}/events", h.handleSessionEvents)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return r
}

// --- Request/Response types ---

type createSessionRequest struct {
	TemplateID string `json:"template_id"`
	Repository string `json:"repository,omitempty"`
	Message    string `json:"message,omitempty"`
	CreatedBy  string `json:"created_by,omitempty"`
}

type renameSessionRequest struct {
	Name string `json:"name"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type sendMessageResponse struct {
	EntryID   int64  `json:"entry_id"`
	SessionID string `json:"session_id"`
}

type checkURLRequest struct {
	URL string `json:"url"`
}

type checkURLResponse struct {
	Reachable bool `json:"reachable"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Handlers ---

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.TemplateID = strings.TrimSpace(req.TemplateID)
	req.Repository = strings.TrimSpace(req.Repository)
	req.Message = strings.TrimSpace(req.Message)
	if req.TemplateID == "" {
		h.writeError(w, http.StatusBadRequest, "template_id is required")
		return
	}
	if req.Repository != "" && !isValidRepo(req.Repository) {
		h.writeError(w, http.StatusBadRequest, "repository must be in owner/repo format")
		return
	}
	if len([]rune(req.Message)) > 10000 {
		h.writeError(w, http.StatusBadRequest, "message exceeds 10000 characters")
		return
	}

	sess, err := h.engine.CreateSession(engine.CreateRequest{
		TemplateID: req.TemplateID,
		Repository: req.Repository,
		Message:    req.Message,
		CreatedBy:  req.CreatedBy,
	})
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.engine.Store().ListSessions(r.URL.Query().Get("created_by"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list sessions")
		h.log.WithError(err).Error("listing sessions failed")
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	h.writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := h.engine.Store().GetSession(id)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req renameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.engine.RenameSession(id, req.Name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to rename session")
		return
	}
	sess, err := h.engine.Store().GetSession(id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to delete session")
		h.log.WithError(err).WithField("session", id).Error("deleting session failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := h.engine.Store().ListEntries(id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}
	if entries == nil {
		entries = []*model.Entry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		h.writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if len([]rune(req.Content)) > 10000 {
		h.writeError(w, http.StatusBadRequest, "content exceeds 10000 characters")
		return
	}

	entry, err := h.engine.SendMessage(id, req.Content)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, sendMessageResponse{
		EntryID: entry.ID, SessionID: id,
	})
}

func (h *Handler) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}
	if err := h.engine.Store().DeleteEntry(id, entryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "entry not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to delete entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEntryDiff(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}
	entry, err := h.engine.Store().GetEntry(id, entryID)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	edit, ok := entry.Payload.(model.Edit)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "entry is not an edit")
		return
	}

	lines := diff.Compute(edit.OldString, edit.NewString)
	if lines == nil {
		lines = []diff.Line{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"file_path": edit.FilePath,
		"lines":     lines,
	})
}

func (h *Handler) handleCreatePR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pr, err := h.engine.CreatePullRequest(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, pr)
}

func (h *Handler) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := h.engine.Store().GetSession(id)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	flusher.Flush()

	ch := h.engine.Bus().Subscribe(id)
	defer h.engine.Bus().Unsubscribe(id, ch)

	// Replay the transcript and current status so late subscribers catch up
	// before live events. Subscribing first means nothing is dropped between
	// the snapshot and the loop.
	if entries, err := h.engine.Store().ListEntries(id); err == nil {
		for _, entry := range entries {
			if msg, err := eventbus.NewUpdateMessage(id, entry); err == nil {
				h.writeSSE(w, msg)
			}
		}
	}
	if msg, err := eventbus.NewStatusMessage(id, sess.Status); err == nil {
		h.writeSSE(w, msg)
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.writeSSE(w, msg)
			flusher.Flush()
		}
	}
}

func (h *Handler) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.git.ListRepos(r.Context())
	if err != nil {
		if errors.Is(err, githost.ErrNoToken) {
			h.writeError(w, http.StatusUnauthorized, "no access token configured")
			return
		}
		h.writeError(w, http.StatusBadGateway, "failed to list repositories")
		h.log.WithError(err).Error("listing repositories failed")
		return
	}
	if repos == nil {
		repos = []*githost.Repo{}
	}
	h.writeJSON(w, http.StatusOK, repos)
}

func (h *Handler) handleListBranches(w http.ResponseWriter, r *http.Request) {
	repo := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")
	branches, err := h.git.ListBranches(r.Context(), repo)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, "failed to list branches")
		h.log.WithError(err).WithField("repo", repo).Error("listing branches failed")
		return
	}
	if branches == nil {
		branches = []*githost.Branch{}
	}
	h.writeJSON(w, http.StatusOK, branches)
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Templates().List())
}

func (h *Handler) handleCheckURL(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req checkURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		h.writeError(w, http.StatusBadRequest, "url must be http or https")
		return
	}
	h.writeJSON(w, http.StatusOK, checkURLResponse{
		Reachable: h.engine.CheckURL(r.Context(), req.URL),
	})
}

// --- Helpers ---

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Error("encoding response failed")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) writeSSE(w http.ResponseWriter, msg *eventbus.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("encoding SSE message failed")
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Topic, string(data)); err != nil {
		h.log.WithError(err).Debug("writing SSE message failed")
	}
}

func isValidRepo(repo string) bool {
	parts := strings.Split(repo, "/")
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}
