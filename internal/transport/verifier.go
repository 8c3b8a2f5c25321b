package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// OAuth2Verifier implements [IdentityVerifier] against an external identity
// provider's userinfo endpoint, treating the join token as a bearer access
// token. This is the "secure" auth mode's concrete backing: it never issues
// or refreshes tokens itself, only verifies ones already in hand.
type OAuth2Verifier struct {
	UserInfoURL string
	HTTPClient  *http.Client
}

// userInfo is the subset of a standard OIDC userinfo response this verifier
// cares about.
type userInfo struct {
	Subject string `json:"sub"`
}

// Verify exchanges token for the provider's userinfo response and returns
// its subject claim.
func (v *OAuth2Verifier) Verify(ctx context.Context, token string) (string, error) {
	client := v.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	oauthClient := oauth2.NewClient(ctx, ts)
	oauthClient.Timeout = client.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.UserInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("oauth2 verifier: build userinfo request: %w", err)
	}

	resp, err := oauthClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("oauth2 verifier: userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth2 verifier: userinfo returned status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("oauth2 verifier: decode userinfo response: %w", err)
	}
	if info.Subject == "" {
		return "", fmt.Errorf("oauth2 verifier: userinfo response missing sub claim")
	}
	return info.Subject, nil
}

var _ IdentityVerifier = (*OAuth2Verifier)(nil)
