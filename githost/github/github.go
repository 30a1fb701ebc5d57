// Package github implements githost.Provider on the GitHub API.
package github

import (
	"context"
	"fmt"
	"strings"
	"sync"

	gogh "github.com/google/go-github/v68/github"
	"github.com/sirupsen/logrus"

	"github.com/superagent-ai/vibe0/githost"
)

// Provider talks to GitHub with a personal access token.
type Provider struct {
	gh  *gogh.Client
	log *logrus.Logger
}

// New creates a Provider authenticated with the given token. It returns
// githost.ErrNoToken when the token is empty.
func New(token string, log *logrus.Logger) (*Provider, error) {
	if token == "" {
		return nil, githost.ErrNoToken
	}
	return &Provider{
		gh:  gogh.NewClient(nil).WithAuthToken(token),
		log: log,
	}, nil
}

// CurrentUser returns the authenticated account.
func (p *Provider) CurrentUser(ctx context.Context) (*githost.User, error) {
	u, _, err := p.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("getting authenticated user: %w", err)
	}
	return &githost.User{
		Login:     u.GetLogin(),
		Name:      u.GetName(),
		AvatarURL: u.GetAvatarURL(),
	}, nil
}

// ListRepos aggregates the user's repositories with those of each
// organization the user belongs to. The user-repo and organization listings
// run concurrently, as does the per-organization fan-out; a failure in one
// organization is logged and skipped.
func (p *Provider) ListRepos(ctx context.Context) ([]*githost.Repo, error) {
	var (
		userRepos []*githost.Repo
		userErr   error
		orgs      []*gogh.Organization
		orgErr    error
		initWG    sync.WaitGroup
	)
	initWG.Add(2)
	go func() {
		defer initWG.Done()
		userRepos, userErr = p.listUserRepos(ctx)
	}()
	go func() {
		defer initWG.Done()
		orgs, _, orgErr = p.gh.Organizations.List(ctx, "", &gogh.ListOptions{PerPage: 100})
	}()
	initWG.Wait()

	if userErr != nil {
		return nil, userErr
	}
	if orgErr != nil {
		p.log.WithError(orgErr).Warn("listing organizations failed, returning user repos only")
		return githost.MergeRepos(userRepos), nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		orgLists [][]*githost.Repo
	)
	for _, org := range orgs {
		login := org.GetLogin()
		wg.Add(1)
		go func() {
			defer wg.Done()
			repos, err := p.listOrgRepos(ctx, login)
			if err != nil {
				p.log.WithError(err).WithField("org", login).Warn("listing org repos failed, skipping")
				return
			}
			mu.Lock()
			orgLists = append(orgLists, repos)
			mu.Unlock()
		}()
	}
	wg.Wait()

	lists := append([][]*githost.Repo{userRepos}, orgLists...)
	return githost.MergeRepos(lists...), nil
}

func (p *Provider) listUserRepos(ctx context.Context) ([]*githost.Repo, error) {
	var all []*githost.Repo
	opts := &gogh.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: gogh.ListOptions{PerPage: 100},
	}
	for {
		repos, resp, err := p.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("listing user repositories: %w", err)
		}
		for _, r := range repos {
			all = append(all, toRepo(r))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (p *Provider) listOrgRepos(ctx context.Context, org string) ([]*githost.Repo, error) {
	var all []*githost.Repo
	opts := &gogh.RepositoryListByOrgOptions{
		Sort:        "updated",
		ListOptions: gogh.ListOptions{PerPage: 100},
	}
	for {
		repos, resp, err := p.gh.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("listing %s repositories: %w", org, err)
		}
		for _, r := range repos {
			all = append(all, toRepo(r))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListBranches returns the branches of "owner/repo".
func (p *Provider) ListBranches(ctx context.Context, repo string) ([]*githost.Branch, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	var all []*githost.Branch
	opts := &gogh.BranchListOptions{ListOptions: gogh.ListOptions{PerPage: 100}}
	for {
		branches, resp, err := p.gh.Repositories.ListBranches(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("listing branches: %w", err)
		}
		for _, b := range branches {
			all = append(all, &githost.Branch{
				Name:      b.GetName(),
				SHA:       b.GetCommit().GetSHA(),
				Protected: b.GetProtected(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// CreateRepo creates a private repository under the authenticated user.
func (p *Provider) CreateRepo(ctx context.Context, name string) (*githost.Repo, error) {
	r, _, err := p.gh.Repositories.Create(ctx, "", &gogh.Repository{
		Name:    gogh.Ptr(name),
		Private: gogh.Ptr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("creating repository: %w", err)
	}
	return toRepo(r), nil
}

// CreatePR opens a pull request and, when a label is configured, ensures the
// label exists and attaches it. Label failures never fail the PR.
func (p *Provider) CreatePR(ctx context.Context, opts githost.PROptions) (*githost.PullRequest, error) {
	owner, name, err := splitRepo(opts.Repo)
	if err != nil {
		return nil, err
	}

	base := opts.Base
	if base == "" {
		base = "main"
	}

	pr, _, err := p.gh.PullRequests.Create(ctx, owner, name, &gogh.NewPullRequest{
		Title: gogh.Ptr(opts.Title),
		Body:  gogh.Ptr(opts.Body),
		Head:  gogh.Ptr(opts.Branch),
		Base:  gogh.Ptr(base),
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request: %w", err)
	}

	if opts.LabelName != "" {
		p.attachLabel(ctx, owner, name, pr.GetNumber(), opts.LabelName, opts.LabelColor)
	}

	return &githost.PullRequest{
		URL:    pr.GetHTMLURL(),
		Number: pr.GetNumber(),
		Branch: opts.Branch,
		State:  pr.GetState(),
		Title:  pr.GetTitle(),
	}, nil
}

func (p *Provider) attachLabel(ctx context.Context, owner, repo string, number int, label, color string) {
	if _, _, err := p.gh.Issues.GetLabel(ctx, owner, repo, label); err != nil {
		_, _, err = p.gh.Issues.CreateLabel(ctx, owner, repo, &gogh.Label{
			Name:  gogh.Ptr(label),
			Color: gogh.Ptr(color),
		})
		if err != nil {
			p.log.WithError(err).Warn("creating PR label failed")
			return
		}
	}
	_, _, err := p.gh.Issues.AddLabelsToIssue(ctx, owner, repo, number, []string{label})
	if err != nil {
		p.log.WithError(err).Warn("attaching PR label failed")
	}
}

// DefaultBranch returns the default branch of "owner/repo".
func (p *Provider) DefaultBranch(ctx context.Context, repo string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	r, _, err := p.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return "", fmt.Errorf("getting repository: %w", err)
	}
	return r.GetDefaultBranch(), nil
}

func toRepo(r *gogh.Repository) *githost.Repo {
	return &githost.Repo{
		ID:            r.GetID(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Owner:         r.GetOwner().GetLogin(),
		Private:       r.GetPrivate(),
		DefaultBranch: r.GetDefaultBranch(),
		UpdatedAt:     r.GetUpdatedAt().Time,
	}
}

func splitRepo(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format %q, expected \"owner/repo\"", fullName)
	}
	return parts[0], parts[1], nil
}
