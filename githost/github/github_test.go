package github

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/superagent-ai/vibe0/githost"
)

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)

	p, err := New("tok", log)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	p.gh.BaseURL = base
	return p
}

func TestNewRequiresToken(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	if _, err := New("", log); err != githost.ErrNoToken {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestListReposSkipsFailingOrg(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id":1,"name":"mine","full_name":"me/mine","owner":{"login":"me"},"updated_at":"2026-02-01T00:00:00Z"}]`)
	})
	mux.HandleFunc("/user/orgs", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"login":"good"},{"login":"bad"}]`)
	})
	mux.HandleFunc("/orgs/good/repos", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id":2,"name":"lib","full_name":"good/lib","owner":{"login":"good"},"updated_at":"2026-03-01T00:00:00Z"}]`)
	})
	mux.HandleFunc("/orgs/bad/repos", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	p := newTestProvider(t, mux)

	repos, err := p.ListRepos(context.Background())
	if err != nil {
		t.Fatalf("list repos: %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("expected 2 repos, got %+v", repos)
	}
	// Newest-first across the surviving sources.
	if repos[0].FullName != "good/lib" || repos[1].FullName != "me/mine" {
		t.Fatalf("unexpected order: %q, %q", repos[0].FullName, repos[1].FullName)
	}
}

func TestListReposFetchesUserAndOrgListsConcurrently(t *testing.T) {
	var (
		userHit    = make(chan struct{})
		orgsHit    = make(chan struct{})
		sequential atomic.Bool
	)
	awaitOther := func(other <-chan struct{}) {
		select {
		case <-other:
		case <-time.After(2 * time.Second):
			sequential.Store(true)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		close(userHit)
		awaitOther(orgsHit)
		io.WriteString(w, `[]`)
	})
	mux.HandleFunc("/user/orgs", func(w http.ResponseWriter, r *http.Request) {
		close(orgsHit)
		awaitOther(userHit)
		io.WriteString(w, `[]`)
	})
	p := newTestProvider(t, mux)

	if _, err := p.ListRepos(context.Background()); err != nil {
		t.Fatalf("list repos: %v", err)
	}
	if sequential.Load() {
		t.Fatal("user repos and org list were not fetched concurrently")
	}
}
