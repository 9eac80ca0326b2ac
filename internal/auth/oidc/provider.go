// Package oidc implements OpenID Connect sign-in for ServerSoft: discovery,
// authorization-code exchange, ID token verification and claims extraction.
package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/serversoft/serversoft/internal/config"
	"golang.org/x/oauth2"
)

// ErrEmailNotVerified is returned when the IdP reports the email as unverified.
var ErrEmailNotVerified = errors.New("email address is not verified by the identity provider")

// UserInfo is the identity extracted from a verified ID token.
type UserInfo struct {
	Subject string
	Email   string
	Name    string
}

// OIDCProvider wraps a discovered OIDC provider
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	config   *oauth2.Config
}

// NewOIDCProvider initializes a new OIDC provider using a background context.
func NewOIDCProvider(cfg *config.OIDCConfig) (*OIDCProvider, error) {
	return NewOIDCProviderWithContext(context.Background(), cfg)
}

// NewOIDCProviderWithContext initializes a new OIDC provider with the given
// context, which bounds the discovery request.
func NewOIDCProviderWithContext(ctx context.Context, cfg *config.OIDCConfig) (*OIDCProvider, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("OIDC is not enabled")
	}
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("OIDC client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("OIDC client secret is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	return &OIDCProvider{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
	}, nil
}

// GetAuthURL returns the OAuth2 authorization URL
func (p *OIDCProvider) GetAuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// ExchangeCode exchanges the authorization code for tokens
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	return token, nil
}

// VerifyIDToken verifies and extracts claims from the ID token
func (p *OIDCProvider) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}
	return idToken, nil
}

// Authenticate completes the authorization-code flow and returns the
// verified identity.
func (p *OIDCProvider) Authenticate(ctx context.Context, code string) (*UserInfo, error) {
	token, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("token response has no id_token")
	}
	idToken, err := p.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	return claims.userInfo()
}

type idClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
}

func (c idClaims) userInfo() (*UserInfo, error) {
	if c.Sub == "" {
		return nil, fmt.Errorf("ID token missing 'sub' claim")
	}
	if c.Email == "" {
		return nil, fmt.Errorf("ID token missing 'email' claim")
	}
	// Accounts are linked by email, so an unverified address must not log in.
	if c.EmailVerified != nil && !*c.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	name := c.Name
	if name == "" {
		name = c.Email
	}
	return &UserInfo{Subject: c.Sub, Email: c.Email, Name: name}, nil
}
