package github

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

var ownerRepoRe = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/.]+)`)

// ParseOwnerRepo extracts owner and repository name from a GitHub URL.
func ParseOwnerRepo(repoURL string) (owner, repo string, ok bool) {
	m := ownerRepoRe.FindStringSubmatch(repoURL)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// NewAPIClient returns a go-github client authenticated with token. A non-empty
// baseURL points the client at another API host.
func NewAPIClient(ctx context.Context, token, baseURL string) (*gh.Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := gh.NewClient(oauth2.NewClient(ctx, ts))
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse api url: %w", err)
		}
		client.BaseURL = u
	}
	return client, nil
}
