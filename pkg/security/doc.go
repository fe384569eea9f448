/*
Package security groups the gateway's authentication and secret-loading
subpackages: auth resolves bearer tokens to principals, and secrets
supplies API keys and OAuth tokens to upstream instances. TLS
termination and a pluggable KMS/Vault secret backend are out of scope
for this module — it is a single binary fronting a fixed set of
upstream providers, not a multi-tenant platform with its own cert
lifecycle.

# Secret loading

	provider := secrets.NewEnvProvider("MERCATOR_SECRET_")
	apiKey, err := provider.GetSecret(ctx, "openai-api-key")

	oauthSrc := secrets.NewOAuthSource(provider)
	token, err := oauthSrc.GetToken("anthropic")

# Principal resolution

	resolver := auth.NewResolver(principals)
	name, err := resolver.Resolve(bearerToken)
*/
package security
