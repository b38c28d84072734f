package visibility

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/org/gitgateway/pkg/models"
	"golang.org/x/oauth2"
)

// ErrNotVisible means this credential got a 404 for the repository. It does
// NOT mean the repository doesn't exist; the next credential may see it.
var ErrNotVisible = errors.New("repository not visible to credential")

// TokenGetter supplies a currently-valid token for a credential identity.
type TokenGetter interface {
	GetToken(ctx context.Context, identity string) (string, error)
}

// Credential can classify one repository's visibility.
type Credential interface {
	Name() string
	Lookup(ctx context.Context, owner, repo string) (models.Visibility, error)
}

// GithubCredential resolves visibility through the repository metadata
// endpoint using tokens from a TokenGetter identity.
type GithubCredential struct {
	identity string
	tokens   TokenGetter
	baseURL  string // override for tests / GitHub Enterprise
	timeout  time.Duration
}

// NewGithubCredential creates a credential bound to a token identity.
func NewGithubCredential(identity string, tokens TokenGetter, baseURL string) *GithubCredential {
	return &GithubCredential{
		identity: identity,
		tokens:   tokens,
		baseURL:  baseURL,
		timeout:  10 * time.Second,
	}
}

func (c *GithubCredential) Name() string { return c.identity }

// Lookup queries the repository metadata endpoint. The declared visibility
// is validated against the closed set; any other value is treated as a
// lookup failure so a malformed upstream response cannot poison policy.
func (c *GithubCredential) Lookup(ctx context.Context, owner, repo string) (models.Visibility, error) {
	token, err := c.tokens.GetToken(ctx, c.identity)
	if err != nil {
		return models.VisibilityUnknown, fmt.Errorf("credential %s: %w", c.identity, err)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = c.timeout

	client := github.NewClient(httpClient)
	if c.baseURL != "" {
		client, err = client.WithEnterpriseURLs(c.baseURL, c.baseURL)
		if err != nil {
			return models.VisibilityUnknown, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	r, resp, err := client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return models.VisibilityUnknown, ErrNotVisible
		}
		return models.VisibilityUnknown, fmt.Errorf("credential %s: %w", c.identity, err)
	}

	v, ok := models.ParseVisibility(r.GetVisibility())
	if !ok {
		return models.VisibilityUnknown, fmt.Errorf("credential %s: malformed visibility %q", c.identity, r.GetVisibility())
	}
	return v, nil
}

var _ Credential = (*GithubCredential)(nil)
