package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/ports"
)

const googleIssuer = "https://accounts.google.com"

// GoogleProvider performs the Google OIDC authorization-code flow and maps
// verified ID tokens to principals.
type GoogleProvider struct {
	config   *oauth2.Config
	verifier *gooidc.IDTokenVerifier
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("google client credentials are required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("google redirect URL is required")
	}

	provider, err := gooidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gooidc.ScopeOpenID, "email", "profile"},
			Endpoint:     provider.Endpoint(),
		},
		verifier: provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// Begin returns the Google authorization URL plus the state and nonce the
// callback must present.
func (p *GoogleProvider) Begin(_ context.Context) (string, string, string, error) {
	state, err := randomToken(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomToken(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	authURL := p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

// Exchange swaps the authorization code for a verified identity.
func (p *GoogleProvider) Exchange(ctx context.Context, assertion ports.FederatedAssertion) (domain.Principal, error) {
	if assertion.Code == "" {
		return domain.Principal{}, errors.New("authorization code is required")
	}

	token, err := p.config.Exchange(ctx, assertion.Code)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("exchange code: %w", err)
	}

	rawID, ok := token.Extra("id_token").(string)
	if !ok || rawID == "" {
		return domain.Principal{}, errors.New("no id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("verify id_token: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Nonce         string `json:"nonce"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return domain.Principal{}, fmt.Errorf("parse id_token claims: %w", err)
	}

	if assertion.Nonce != "" && claims.Nonce != assertion.Nonce {
		return domain.Principal{}, errors.New("invalid nonce")
	}
	if claims.Email == "" || !claims.EmailVerified {
		return domain.Principal{}, errors.New("email not verified")
	}

	name := claims.Name
	if name == "" {
		name = strings.TrimSpace(claims.GivenName + " " + claims.FamilyName)
	}

	return domain.Principal{
		ID:          "google:" + idToken.Subject,
		Email:       claims.Email,
		DisplayName: name,
	}, nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
