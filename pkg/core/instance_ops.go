package core

import "fmt"

// BuildUpstreamURL returns the endpoint URL for one instance, per its
// provider kind. Grounded on `pkg/providers/anthropic/client.go`'s
// `fmt.Sprintf("%s/v1/messages", config.BaseURL)` construction,
// generalized into a small per-kind switch rather than a method on a
// per-provider type — there's no class hierarchy here to hang it off.
func BuildUpstreamURL(inst *Instance) string {
	switch inst.Config.Provider {
	case ProviderAnthropic:
		return inst.Config.BaseURL + "/v1/messages"
	case ProviderGemini:
		return inst.Config.BaseURL + "/v1beta/models/{model}:generateContent"
	case ProviderOpenAI, ProviderAzure, ProviderCustom, ProviderOpenAIResponse:
		return inst.Config.BaseURL + "/v1/chat/completions"
	case ProviderBedrock:
		return inst.Config.BaseURL + "/model/{model}/invoke"
	default:
		return inst.Config.BaseURL
	}
}

// BuildUpstreamHeaders returns the auth and dialect headers for one
// instance. OAuth-authenticated instances receive their bearer token
// from the OAuthTokenSource collaborator (the actual refresh/caching
// logic lives entirely behind that narrow interface); a nil source is
// only valid for bearer-mode instances.
func BuildUpstreamHeaders(inst *Instance, oauth OAuthTokenSource) (map[string]string, error) {
	headers := map[string]string{}

	switch inst.Config.AuthMode {
	case AuthBearer:
		switch inst.Config.Provider {
		case ProviderAnthropic:
			headers["x-api-key"] = inst.Config.APIKey
			version := inst.Config.AnthropicVersion
			if version == "" {
				version = "2023-06-01"
			}
			headers["anthropic-version"] = version
		case ProviderGemini:
			headers["x-goog-api-key"] = inst.Config.APIKey
		default:
			headers["Authorization"] = "Bearer " + inst.Config.APIKey
		}
	case AuthOAuth:
		if oauth == nil {
			return nil, &ConfigError{Instance: inst.Config.Name, Message: "oauth auth_mode configured but no OAuthTokenSource provided"}
		}
		token, err := oauth.GetToken(inst.Config.OAuthProviderName)
		if err != nil {
			return nil, fmt.Errorf("%w: fetching oauth token: %v", ErrUnauthorized, err)
		}
		headers["Authorization"] = "Bearer " + token.AccessToken
	default:
		return nil, &ConfigError{Instance: inst.Config.Name, Message: "unknown auth_mode"}
	}

	return headers, nil
}

// ConfigError is a narrow configuration-error type for instance setup
// mistakes discovered at dispatch time (as opposed to at load time,
// where the out-of-scope config loader is expected to validate).
type ConfigError struct {
	Instance string
	Message  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("instance %q misconfigured: %s", e.Instance, e.Message)
}
