// Package sqlite implements store.SessionStore using SQLite.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/superagent-ai/vibe0/model"
	"github.com/superagent-ai/vibe0/store"
)

// Store manages session and transcript persistence in SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id             TEXT PRIMARY KEY,
			sandbox_id     TEXT NOT NULL DEFAULT '',
			name           TEXT NOT NULL DEFAULT '',
			created_by     TEXT NOT NULL DEFAULT '',
			template_id    TEXT NOT NULL DEFAULT '',
			repository     TEXT NOT NULL DEFAULT '',
			tunnel_url     TEXT NOT NULL DEFAULT '',
			pull_request   TEXT NOT NULL DEFAULT '',
			status         TEXT NOT NULL DEFAULT 'IN_PROGRESS',
			status_message TEXT NOT NULL DEFAULT '',
			created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
			updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_created_by
			ON sessions(created_by);

		CREATE TABLE IF NOT EXISTS entries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			kind       TEXT NOT NULL DEFAULT 'text',
			content    TEXT NOT NULL DEFAULT '',
			payload    TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_entries_session_id
			ON entries(session_id);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session.
func (s *Store) CreateSession(sess *model.Session) error {
	if sess.Status.IsZero() {
		sess.Status = model.StatusInProgress
	}
	pr, err := marshalPR(sess.PullRequest)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, sandbox_id, name, created_by, template_id,
			repository, tunnel_url, pull_request, status, status_message,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.SandboxID, sess.Name, sess.CreatedBy, sess.TemplateID,
		sess.Repository, sess.TunnelURL, pr,
		string(sess.Status.Phase()), sess.Status.Message(),
		sess.CreatedAt, sess.UpdatedAt,
	)
	return err
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(id string) (*model.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, sandbox_id, name, created_by, template_id, repository,
		        tunnel_url, pull_request, status, status_message,
		        created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return sess, err
}

// ListSessions returns sessions newest-first, optionally filtered by creator.
func (s *Store) ListSessions(createdBy string) ([]*model.Session, error) {
	query := `SELECT id, sandbox_id, name, created_by, template_id, repository,
	                 tunnel_url, pull_request, status, status_message,
	                 created_at, updated_at
	          FROM sessions`
	var args []any
	if createdBy != "" {
		query += ` WHERE created_by = ?`
		args = append(args, createdBy)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// PatchSession applies a field-level partial update.
func (s *Store) PatchSession(id string, patch store.SessionPatch) error {
	if patch.IsZero() {
		return nil
	}

	var sets []string
	var args []any
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.SandboxID != nil {
		sets = append(sets, "sandbox_id = ?")
		args = append(args, *patch.SandboxID)
	}
	if patch.Repository != nil {
		sets = append(sets, "repository = ?")
		args = append(args, *patch.Repository)
	}
	if patch.TunnelURL != nil {
		sets = append(sets, "tunnel_url = ?")
		args = append(args, *patch.TunnelURL)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?", "status_message = ?")
		args = append(args, string(patch.Status.Phase()), patch.Status.Message())
	}
	if patch.PullRequest != nil {
		pr, err := marshalPR(patch.PullRequest)
		if err != nil {
			return err
		}
		sets = append(sets, "pull_request = ?")
		args = append(args, pr)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := s.db.Exec(
		`UPDATE sessions SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteSession removes a session and cascades to its transcript entries.
func (s *Store) DeleteSession(id string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AddEntry appends a transcript entry and assigns its ID.
func (s *Store) AddEntry(entry *model.Entry) error {
	payload, err := entry.MarshalPayload()
	if err != nil {
		return err
	}
	result, err := s.db.Exec(
		`INSERT INTO entries (session_id, role, kind, content, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.SessionID, string(entry.Role), string(entry.Kind()),
		entry.Content, payload, entry.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

// ListEntries returns a session's transcript in insertion order.
func (s *Store) ListEntries(sessionID string) ([]*model.Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, role, kind, content, payload, created_at
		 FROM entries
		 WHERE session_id = ?
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetEntry retrieves a single transcript entry.
func (s *Store) GetEntry(sessionID string, id int64) (*model.Entry, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, role, kind, content, payload, created_at
		 FROM entries WHERE session_id = ? AND id = ?`,
		sessionID, id,
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return e, err
}

// DeleteEntry removes a single transcript entry.
func (s *Store) DeleteEntry(sessionID string, id int64) error {
	res, err := s.db.Exec(
		`DELETE FROM entries WHERE session_id = ? AND id = ?`, sessionID, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.Session, error) {
	sess := &model.Session{}
	var phase, statusMessage, pr string
	err := row.Scan(
		&sess.ID, &sess.SandboxID, &sess.Name, &sess.CreatedBy,
		&sess.TemplateID, &sess.Repository, &sess.TunnelURL, &pr,
		&phase, &statusMessage, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	status, err := model.NewStatus(model.Phase(phase), statusMessage)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}
	sess.Status = status
	if pr != "" {
		sess.PullRequest = &model.PullRequest{}
		if err := json.Unmarshal([]byte(pr), sess.PullRequest); err != nil {
			return nil, fmt.Errorf("session %s: decoding pull request: %w", sess.ID, err)
		}
	}
	return sess, nil
}

func scanEntry(row scannable) (*model.Entry, error) {
	e := &model.Entry{}
	var role, kind, payload string
	err := row.Scan(&e.ID, &e.SessionID, &role, &kind, &e.Content, &payload, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Role = model.Role(role)
	p, err := model.UnmarshalPayload(model.EntryKind(kind), payload)
	if err != nil {
		return nil, fmt.Errorf("entry %d: %w", e.ID, err)
	}
	e.Payload = p
	return e, nil
}

func marshalPR(pr *model.PullRequest) (string, error) {
	if pr == nil {
		return "", nil
	}
	data, err := json.Marshal(pr)
	if err != nil {
		return "", fmt.Errorf("encoding pull request: %w", err)
	}
	return string(data), nil
}
