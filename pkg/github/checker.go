// Package github validates repository coordinates before a launch so a bad
// repoUrl fails fast as a queryable container row instead of a dead machine.
package github

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// Checker validates that a GitHub repository exists and is accessible with
// the configured token. Non-GitHub remotes are skipped, not rejected.
type Checker struct {
	gh *github.Client
}

// NewChecker creates a checker. An empty token yields an unauthenticated
// client, which can still validate public repositories.
func NewChecker(token string) *Checker {
	if token == "" {
		return &Checker{gh: github.NewClient(nil)}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Checker{gh: github.NewClient(oauth2.NewClient(context.Background(), ts))}
}

// Check validates repoURL. GitHub repositories are looked up through the API;
// anything else passes without validation.
func (c *Checker) Check(ctx context.Context, repoURL string) error {
	owner, name, ok := ParseRepoURL(repoURL)
	if !ok {
		return nil
	}

	_, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return fmt.Errorf("repository %s/%s is not accessible: %w", owner, name, err)
	}
	return nil
}

var sshRemote = regexp.MustCompile(`^git@github\.com:([^/]+)/(.+?)(?:\.git)?$`)

// ParseRepoURL extracts owner and repo name from a GitHub remote URL. Returns
// ok=false for anything that is not a GitHub remote.
func ParseRepoURL(repoURL string) (owner, name string, ok bool) {
	if m := sshRemote.FindStringSubmatch(repoURL); m != nil {
		return m[1], m[2], true
	}

	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", false
	}
	if u.Host != "github.com" && u.Host != "www.github.com" {
		return "", "", false
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}
