// Package model defines the core domain types shared across all vibe0
// packages. It has zero dependencies on other vibe0 packages.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Phase is the lifecycle stage of a session. Provisioning drives a session
// one-way through the boot phases to PhaseRunning; after that the session
// alternates between PhaseRunning and PhaseCustom while the agent works.
type Phase string

const (
	PhaseInProgress     Phase = "IN_PROGRESS"
	PhaseCloningRepo    Phase = "CLONING_REPO"
	PhaseInstallingDeps Phase = "INSTALLING_DEPENDENCIES"
	PhaseStartingDev    Phase = "STARTING_DEV_SERVER"
	PhaseCreatingTunnel Phase = "CREATING_TUNNEL"
	PhaseCustom         Phase = "CUSTOM"
	PhaseRunning        Phase = "RUNNING"
	// PhaseFailed marks a session whose provisioning or agent flow aborted.
	// The status message carries the step error for operator visibility.
	PhaseFailed Phase = "FAILED"
)

// Valid reports whether p is one of the closed set of phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseInProgress, PhaseCloningRepo, PhaseInstallingDeps,
		PhaseStartingDev, PhaseCreatingTunnel, PhaseCustom, PhaseRunning,
		PhaseFailed:
		return true
	}
	return false
}

// Status is a phase plus, for CUSTOM and FAILED only, an associated message.
// Construct values through the package constructors so the "message only
// meaningful in CUSTOM/FAILED" rule holds structurally.
type Status struct {
	phase   Phase
	message string
}

// Boot-sequence and steady-state statuses.
var (
	StatusInProgress     = Status{phase: PhaseInProgress}
	StatusCloningRepo    = Status{phase: PhaseCloningRepo}
	StatusInstallingDeps = Status{phase: PhaseInstallingDeps}
	StatusStartingDev    = Status{phase: PhaseStartingDev}
	StatusCreatingTunnel = Status{phase: PhaseCreatingTunnel}
	StatusRunning        = Status{phase: PhaseRunning}
)

// CustomStatus returns the CUSTOM status carrying a human-readable message
// describing what the agent is currently doing.
func CustomStatus(message string) Status {
	return Status{phase: PhaseCustom, message: message}
}

// FailedStatus returns the FAILED status carrying the failure reason.
func FailedStatus(message string) Status {
	return Status{phase: PhaseFailed, message: message}
}

// NewStatus builds a Status from raw parts, dropping the message for phases
// that do not carry one. Used when rehydrating from storage.
func NewStatus(phase Phase, message string) (Status, error) {
	if !phase.Valid() {
		return Status{}, fmt.Errorf("invalid phase %q", phase)
	}
	if phase != PhaseCustom && phase != PhaseFailed {
		message = ""
	}
	return Status{phase: phase, message: message}, nil
}

// StatusForPhase returns the canonical status for a phase that carries no
// message. Template bootstrap commands declare their target phase this way.
func StatusForPhase(phase Phase) (Status, error) {
	if phase == PhaseCustom || phase == PhaseFailed {
		return Status{}, fmt.Errorf("phase %q requires a message", phase)
	}
	return NewStatus(phase, "")
}

// Phase returns the lifecycle phase.
func (s Status) Phase() Phase { return s.phase }

// Message returns the status detail. Non-empty only for CUSTOM and FAILED.
func (s Status) Message() string { return s.message }

// IsZero reports whether s is the zero value (no phase set).
func (s Status) IsZero() bool { return s.phase == "" }

func (s Status) String() string {
	if s.message != "" {
		return fmt.Sprintf("%s: %s", s.phase, s.message)
	}
	return string(s.phase)
}

type statusJSON struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message,omitempty"`
}

// MarshalJSON encodes the status as {"phase": ..., "message": ...}.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(statusJSON{Phase: s.phase, Message: s.message})
}

// UnmarshalJSON decodes a status, enforcing the message rule.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw statusJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	st, err := NewStatus(raw.Phase, raw.Message)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// PullRequest is the structured result of a created pull request.
type PullRequest struct {
	URL    string `json:"url"`
	Number int    `json:"number"`
	Branch string `json:"branch,omitempty"`
	State  string `json:"state,omitempty"`
	Title  string `json:"title,omitempty"`
}

// Session represents a single vibe0 development session: one sandbox, one
// repository, one transcript.
type Session struct {
	// ID is the session identity, immutable once created.
	ID string `json:"id"`
	// SandboxID is the identity of the remote sandbox, assigned once the
	// first provisioning command has run. Empty until then.
	SandboxID string `json:"sandbox_id,omitempty"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by,omitempty"`
	// TemplateID names the template used to bootstrap the sandbox.
	// Immutable after creation.
	TemplateID string `json:"template_id"`
	// Repository is the backing "owner/repo", supplied by the caller or
	// derived during provisioning.
	Repository  string       `json:"repository,omitempty"`
	TunnelURL   string       `json:"tunnel_url,omitempty"`
	PullRequest *PullRequest `json:"pull_request,omitempty"`
	Status      Status       `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Truncate shortens a string to maxLen runes, adding "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
