package core

import "time"

// AuthResolver resolves an opaque bearer token to a named principal.
// The real implementation (a database-backed principal store) lives
// outside this package; this interface is the narrow surface the
// Dispatch Handler consumes.
type AuthResolver interface {
	Resolve(bearer string) (principal string, err error)
}

// OAuthToken is the credential returned by an OAuthTokenSource.
type OAuthToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// OAuthTokenSource supplies a refreshed access token for an
// OAuth-authenticated instance. Refresh policy is internal to the
// implementation and out of scope for this core.
type OAuthTokenSource interface {
	GetToken(providerName string) (OAuthToken, error)
}

// AccountingSink receives one accounting event per completed request.
// Submit must not block the calling request.
type AccountingSink interface {
	Submit(event AccountingEvent)
}

// ConfigSnapshot exposes the current registry and routing rules to the
// Dispatch Handler without it needing to know how configuration is
// loaded or hot-reloaded.
type ConfigSnapshot interface {
	Registry() *Registry
}
