package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/org/gitgateway/pkg/models"
	"golang.org/x/oauth2"
)

// TokenGetter supplies a currently-valid token for a credential identity.
type TokenGetter interface {
	GetToken(ctx context.Context, identity string) (string, error)
}

// GithubPRChecker answers branch-ownership questions by listing open pull
// requests on the target repository.
type GithubPRChecker struct {
	identity string
	tokens   TokenGetter
	baseURL  string
	timeout  time.Duration
}

// NewGithubPRChecker creates a PRChecker using the given token identity.
func NewGithubPRChecker(identity string, tokens TokenGetter, baseURL string) *GithubPRChecker {
	return &GithubPRChecker{
		identity: identity,
		tokens:   tokens,
		baseURL:  baseURL,
		timeout:  10 * time.Second,
	}
}

// HasOpenAgentPR reports whether branch has an open pull request authored
// by one of the trusted logins.
func (c *GithubPRChecker) HasOpenAgentPR(ctx context.Context, repo models.RepoRef, branch string, trustedLogins []string) (bool, error) {
	if len(trustedLogins) == 0 {
		return false, nil
	}
	token, err := c.tokens.GetToken(ctx, c.identity)
	if err != nil {
		return false, fmt.Errorf("pr lookup: %w", err)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = c.timeout

	client := github.NewClient(httpClient)
	if c.baseURL != "" {
		client, err = client.WithEnterpriseURLs(c.baseURL, c.baseURL)
		if err != nil {
			return false, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	prs, _, err := client.PullRequests.List(ctx, repo.Owner, repo.Name, &github.PullRequestListOptions{
		State: "open",
		Head:  repo.Owner + ":" + branch,
	})
	if err != nil {
		return false, fmt.Errorf("pr lookup: %w", err)
	}

	for _, pr := range prs {
		for _, login := range trustedLogins {
			if pr.GetUser().GetLogin() == login {
				return true, nil
			}
		}
	}
	return false, nil
}

var _ PRChecker = (*GithubPRChecker)(nil)
