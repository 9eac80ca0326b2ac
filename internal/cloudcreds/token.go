package cloudcreds

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// verifyToken calls the provider's account endpoint with the bearer token.
func (v *Verifier) verifyToken(ctx context.Context, provider, token string) error {
	url, ok := v.TokenAccountURLs[provider]
	if !ok {
		return fmt.Errorf("%w: %q has no verification endpoint", ErrUnknownProvider, provider)
	}

	base := v.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", provider, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s: HTTP %d", ErrRejected, provider, resp.StatusCode)
	default:
		return fmt.Errorf("%s: unexpected HTTP %d", provider, resp.StatusCode)
	}
}
