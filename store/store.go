// Package store defines the persistence interface for sessions and their
// transcripts.
package store

import (
	"errors"

	"github.com/superagent-ai/vibe0/model"
)

// ErrNotFound is returned when a session or entry does not exist.
var ErrNotFound = errors.New("not found")

// SessionPatch is a partial-field update of a session. Only non-nil fields
// are written; concurrent writers to different fields do not interfere.
type SessionPatch struct {
	Name        *string
	SandboxID   *string
	Repository  *string
	TunnelURL   *string
	Status      *model.Status
	PullRequest *model.PullRequest
}

// IsZero reports whether the patch carries no updates.
func (p SessionPatch) IsZero() bool {
	return p.Name == nil && p.SandboxID == nil && p.Repository == nil &&
		p.TunnelURL == nil && p.Status == nil && p.PullRequest == nil
}

// SessionStore persists sessions and their transcript entries.
//
// Transcript entries are append-only: they are created, listed in insertion
// order, and individually deleted, but never mutated. Deleting a session
// cascades to all of its entries.
type SessionStore interface {
	CreateSession(sess *model.Session) error
	GetSession(id string) (*model.Session, error)
	// ListSessions returns sessions newest-first, optionally filtered by
	// creator.
	ListSessions(createdBy string) ([]*model.Session, error)
	// PatchSession applies a field-level update. Missing sessions return
	// ErrNotFound.
	PatchSession(id string, patch SessionPatch) error
	// DeleteSession removes a session and all of its transcript entries.
	DeleteSession(id string) error

	AddEntry(entry *model.Entry) error
	// ListEntries returns a session's transcript in insertion order.
	ListEntries(sessionID string) ([]*model.Entry, error)
	GetEntry(sessionID string, id int64) (*model.Entry, error)
	DeleteEntry(sessionID string, id int64) error

	Close() error
}
