package ghtoken

import (
	"context"
	"crypto/rsa"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Exchanger turns a long-lived credential into a short-lived access token.
// The production implementation signs a GitHub App assertion and exchanges
// it for an installation token; tests substitute a fake.
type Exchanger interface {
	Exchange(ctx context.Context) (token string, expiresAt time.Time, err error)
}

// appExchanger exchanges a signed App JWT for an installation token.
// It is the only type that ever touches the raw private key.
type appExchanger struct {
	appID          int64
	installationID int64
	key            *rsa.PrivateKey
	baseURL        string // override for tests / GitHub Enterprise
	timeout        time.Duration
}

func newAppExchanger(appID, installationID int64, privateKeyPEM []byte, baseURL string) (*appExchanger, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing app private key: %w", err)
	}
	return &appExchanger{
		appID:          appID,
		installationID: installationID,
		key:            key,
		baseURL:        baseURL,
		timeout:        30 * time.Second,
	}, nil
}

func (e *appExchanger) Exchange(ctx context.Context) (string, time.Time, error) {
	now := time.Now()
	// iat is backdated to absorb clock drift; GitHub caps exp at 10 minutes.
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(e.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(e.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing app assertion: %w", err)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: assertion})
	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = e.timeout

	client := github.NewClient(httpClient)
	if e.baseURL != "" {
		client, err = client.WithEnterpriseURLs(e.baseURL, e.baseURL)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("configuring api base url: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	itok, _, err := client.Apps.CreateInstallationToken(ctx, e.installationID, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("creating installation token: %w", err)
	}
	return itok.GetToken(), itok.GetExpiresAt().Time, nil
}

var _ Exchanger = (*appExchanger)(nil)
