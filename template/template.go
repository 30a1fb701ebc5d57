// Package template defines sandbox bootstrap templates: the source
// repository, the ordered start commands, and the agent system prompt for
// each kind of app a session can build.
package template

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/superagent-ai/vibe0/model"
)

// StartCommand is one bootstrap command. Status is the session phase to
// enter before running it; Background commands are started without waiting
// for completion.
type StartCommand struct {
	Command    string      `yaml:"command" json:"command"`
	Status     model.Phase `yaml:"status" json:"status"`
	Background bool        `yaml:"background,omitempty" json:"background,omitempty"`
}

// Template is an immutable, process-wide bootstrap configuration.
type Template struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Repository is the template source, either "owner/repo" or a full
	// GitHub URL.
	Repository    string         `yaml:"repository" json:"repository"`
	Image         string         `yaml:"image,omitempty" json:"image,omitempty"`
	StartCommands []StartCommand `yaml:"start_commands" json:"start_commands"`
	// Secrets are injected into the sandbox environment. Never serialized
	// back out over the API.
	Secrets      map[string]string `yaml:"secrets,omitempty" json:"-"`
	SystemPrompt string            `yaml:"system_prompt" json:"-"`
}

// CloneURL returns the template repository as a git clone URL.
func (t *Template) CloneURL() string {
	if strings.HasPrefix(t.Repository, "https://github.com/") {
		return t.Repository + ".git"
	}
	return "https://github.com/" + t.Repository + ".git"
}

// RepoPath returns the template repository as "owner/repo" without the host
// prefix. Used to derive names for newly created repositories.
func (t *Template) RepoPath() string {
	return strings.TrimPrefix(t.Repository, "https://github.com/")
}

// Validate checks structural requirements of a template.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if t.Repository == "" {
		return fmt.Errorf("template %s: repository is required", t.ID)
	}
	for i, cmd := range t.StartCommands {
		if cmd.Command == "" {
			return fmt.Errorf("template %s: start command %d is empty", t.ID, i)
		}
		if !cmd.Status.Valid() || cmd.Status == model.PhaseCustom || cmd.Status == model.PhaseFailed {
			return fmt.Errorf("template %s: start command %d has invalid status %q", t.ID, i, cmd.Status)
		}
	}
	return nil
}

// Registry holds the loaded templates, indexed by ID. Immutable after load.
type Registry struct {
	templates []*Template
	byID      map[string]*Template
}

// NewRegistry builds a registry from the given templates.
func NewRegistry(templates []*Template) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Template)}
	for _, t := range templates {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		r.templates = append(r.templates, t)
		r.byID[t.ID] = t
	}
	return r, nil
}

// Default returns a registry with the built-in templates.
func Default() *Registry {
	r, err := NewRegistry(builtins())
	if err != nil {
		// The built-in set is static; a failure here is a programming error.
		panic(err)
	}
	return r
}

// Load builds a registry from the built-ins plus templates read from a YAML
// file. File templates with an existing ID override the built-in.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading templates file: %w", err)
	}
	var extra []*Template
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parsing templates file: %w", err)
	}

	merged := builtins()
	for _, t := range extra {
		replaced := false
		for i, b := range merged {
			if b.ID == t.ID {
				merged[i] = t
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, t)
		}
	}
	return NewRegistry(merged)
}

// Get returns the template with the given ID.
func (r *Registry) Get(id string) (*Template, error) {
	t, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", id)
	}
	return t, nil
}

// List returns all templates in load order.
func (r *Registry) List() []*Template {
	out := make([]*Template, len(r.templates))
	copy(out, r.templates)
	return out
}
