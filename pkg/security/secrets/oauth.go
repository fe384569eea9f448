package secrets

import (
	"context"
	"fmt"
	"time"

	"mercator-hq/jupiter/pkg/core"
)

// staticTokenTTL is how long a token sourced from a static secret
// provider (env vars, a file) is considered valid before the caller
// should re-fetch it. These providers have no actual expiry of their
// own, so this only bounds how stale a cached OAuthToken can get.
const staticTokenTTL = 15 * time.Minute

// OAuthSource adapts a SecretProvider into a core.OAuthTokenSource,
// reading one access token per instance from the secret named
// "oauth-<providerName>", following EnvProvider's own naming convention
// (secrets/env.go); this module does not carry a refreshing OAuth
// client, so the token returned is whatever the backing secret
// currently holds.
type OAuthSource struct {
	provider SecretProvider
	now      func() time.Time
}

// NewOAuthSource wraps provider as a core.OAuthTokenSource.
func NewOAuthSource(provider SecretProvider) *OAuthSource {
	return &OAuthSource{provider: provider, now: time.Now}
}

// GetToken implements core.OAuthTokenSource.
func (s *OAuthSource) GetToken(providerName string) (core.OAuthToken, error) {
	secretName := fmt.Sprintf("oauth-%s", providerName)
	token, err := s.provider.GetSecret(context.Background(), secretName)
	if err != nil {
		return core.OAuthToken{}, fmt.Errorf("secrets: oauth token for %q: %w", providerName, err)
	}
	return core.OAuthToken{
		AccessToken: token,
		ExpiresAt:   s.now().Add(staticTokenTTL),
	}, nil
}
