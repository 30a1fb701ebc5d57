// Package githost abstracts the git hosting provider used for template
// cloning, repository listing, and pull requests.
package githost

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrNoToken is returned when a provider operation requires an access token
// that was not configured.
var ErrNoToken = errors.New("githost: no access token configured")

// Repo is a repository visible to the authenticated user.
type Repo struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Owner         string    `json:"owner"`
	Private       bool      `json:"private"`
	DefaultBranch string    `json:"default_branch"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Branch is a branch of a repository.
type Branch struct {
	Name      string `json:"name"`
	SHA       string `json:"sha"`
	Protected bool   `json:"protected"`
}

// User is the authenticated account.
type User struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// PROptions configures a new pull request.
type PROptions struct {
	Repo   string // "owner/repo"
	Branch string // source branch
	Base   string // target branch (default: "main")
	Title  string
	Body   string

	// LabelName and LabelColor tag the PR for discoverability. Both are
	// optional; label creation failures are non-fatal.
	LabelName  string
	LabelColor string
}

// PullRequest is the result of CreatePR.
type PullRequest struct {
	URL    string
	Number int
	Branch string
	State  string
	Title  string
}

// Provider is the hosting side of session provisioning.
type Provider interface {
	// CurrentUser returns the authenticated account.
	CurrentUser(ctx context.Context) (*User, error)
	// ListRepos aggregates the user's repositories and those of every
	// organization the user belongs to. Results are deduplicated by
	// repository ID and sorted by most recent update. A failure listing one
	// organization does not fail the whole call.
	ListRepos(ctx context.Context) ([]*Repo, error)
	// ListBranches returns the branches of "owner/repo".
	ListBranches(ctx context.Context, repo string) ([]*Branch, error)
	// CreateRepo creates a private repository under the authenticated user
	// and returns its full name.
	CreateRepo(ctx context.Context, name string) (*Repo, error)
	// CreatePR opens a pull request.
	CreatePR(ctx context.Context, opts PROptions) (*PullRequest, error)
	// DefaultBranch returns the default branch of "owner/repo".
	DefaultBranch(ctx context.Context, repo string) (string, error)
}

// MergeRepos combines repository lists from multiple sources, dropping
// duplicates by ID and ordering by most recent update. Later sources do not
// override earlier ones.
func MergeRepos(lists ...[]*Repo) []*Repo {
	seen := make(map[int64]bool)
	var merged []*Repo
	for _, list := range lists {
		for _, r := range list {
			if r == nil || seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			merged = append(merged, r)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].UpdatedAt.After(merged[j].UpdatedAt)
	})
	return merged
}
