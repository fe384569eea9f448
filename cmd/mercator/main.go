// Mercator Jupiter is a multi-provider LLM API gateway.
//
// It reverse-proxies OpenAI-dialect requests to a configured set of
// upstream instances (OpenAI, Anthropic, Gemini, Azure, or a custom
// endpoint; Bedrock instances can be configured, but a request routed
// to one is rejected as provider-not-configured), providing:
//   - Model-prefix based routing across providers
//   - Weighted priority load balancing with sticky sessions
//   - Health-aware retry/failover across instances
//   - Request/response format conversion and SSE streaming translation
//   - Accounting of completed requests to an embedded SQLite store
//
// Usage:
//
//	# Start the gateway with the default configuration path
//	mercator run
//
//	# Start with a custom configuration file
//	mercator run --config /path/to/gateway.yaml
//
//	# Validate a configuration file without starting the server
//	mercator validate --config /path/to/gateway.yaml
//
//	# Show version information
//	mercator version
package main

func main() {
	Execute()
}
