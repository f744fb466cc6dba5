package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v57/github"
)

// PROpts holds options for opening a pull request.
type PROpts struct {
	Owner  string
	Repo   string
	Branch string
	Base   string // default branch of the repository when empty
	Title  string
	Body   string
}

// PullRequests opens pull requests for fix branches.
type PullRequests struct {
	client *gh.Client
}

// NewPullRequests creates a pull request opener.
func NewPullRequests(client *gh.Client) *PullRequests {
	return &PullRequests{client: client}
}

// Open returns the URL of an open pull request for the branch, creating one
// when none exists.
func (p *PullRequests) Open(ctx context.Context, opts PROpts) (string, error) {
	existing, _, err := p.client.PullRequests.List(ctx, opts.Owner, opts.Repo, &gh.PullRequestListOptions{
		State:       "open",
		Head:        opts.Owner + ":" + opts.Branch,
		ListOptions: gh.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", fmt.Errorf("find PR by branch: %w", err)
	}
	if len(existing) > 0 {
		return existing[0].GetHTMLURL(), nil
	}

	base := opts.Base
	if base == "" {
		repo, _, err := p.client.Repositories.Get(ctx, opts.Owner, opts.Repo)
		if err != nil {
			return "", fmt.Errorf("get repository: %w", err)
		}
		base = repo.GetDefaultBranch()
	}

	pr, _, err := p.client.PullRequests.Create(ctx, opts.Owner, opts.Repo, &gh.NewPullRequest{
		Title: gh.String(opts.Title),
		Head:  gh.String(opts.Branch),
		Base:  gh.String(base),
		Body:  gh.String(opts.Body),
	})
	if err != nil {
		return "", fmt.Errorf("create PR: %w", err)
	}
	return pr.GetHTMLURL(), nil
}
