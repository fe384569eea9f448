/*
Package auth resolves the gateway's bearer tokens to named principals.

A Resolver validates a bearer token against a fixed set of configured
principals and implements core.AuthResolver, the narrow interface the
Dispatch Handler calls inline on every request — there is no separate
HTTP middleware layer here, since the Handler already owns the request
lifecycle.

# Basic usage

	resolver := auth.NewResolver([]*auth.Principal{
		{Key: "sk-test-1234567890abcdef", Name: "user-123", Enabled: true},
	})

	principal, err := resolver.Resolve(bearerToken)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

# Security considerations

  - Principal keys are never logged, only the resolved name
  - Rotate keys regularly and generate them with a CSPRNG
  - Per-principal rate limiting is out of scope for this module
*/
package auth
