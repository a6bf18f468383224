package loader

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// GitHubLoader fetches one file from a GitHub repository.
type GitHubLoader struct {
	client *github.Client
	owner  string
	repo   string
	path   string
	ref    string
}

// NewGitHubLoader builds a loader for repository "owner/name". Requests go
// through a rate-limit waiter; a non-empty token authenticates them.
func NewGitHubLoader(repository, filePath, ref, token string) (*GitHubLoader, error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("repository must be owner/name, got %q", repository)
	}

	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}
	return newGitHubLoader(rateLimiter, owner, repo, filePath, ref, token), nil
}

func newGitHubLoader(httpClient *http.Client, owner, repo, filePath, ref, token string) *GitHubLoader {
	client := github.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubLoader{
		client: client,
		owner:  owner,
		repo:   repo,
		path:   filePath,
		ref:    ref,
	}
}

// Load implements Loader.
func (l *GitHubLoader) Load(ctx context.Context) (*Document, error) {
	var opts *github.RepositoryContentGetOptions
	if l.ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: l.ref}
	}

	file, _, _, err := l.client.Repositories.GetContents(ctx, l.owner, l.repo, l.path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", l.path, err)
	}
	if file == nil {
		return nil, fmt.Errorf("%s is not a file", l.path)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", l.path, err)
	}

	return &Document{
		ID:      path.Base(l.path),
		Source:  fmt.Sprintf("github.com/%s/%s/%s", l.owner, l.repo, l.path),
		Content: content,
	}, nil
}
