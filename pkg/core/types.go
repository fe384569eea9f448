// Package core implements the request dispatch pipeline: the weighted
// priority load balancer with sticky sessions, the retry/failover
// executor, the model router, and the accounting event shape that
// ties them together. Format conversion lives in pkg/core/convert and
// the streaming translator lives in pkg/core/stream.
package core

import (
	"fmt"
	"sync"
	"time"
)

// ProviderKind enumerates the upstream API dialects an instance can speak.
type ProviderKind string

const (
	ProviderOpenAI         ProviderKind = "openai"
	ProviderAnthropic      ProviderKind = "anthropic"
	ProviderGemini         ProviderKind = "gemini"
	ProviderAzure          ProviderKind = "azure"
	ProviderBedrock        ProviderKind = "bedrock"
	ProviderOpenAIResponse ProviderKind = "openai_responses"
	ProviderCustom         ProviderKind = "custom"
)

// AuthMode selects how an instance authenticates to its upstream.
type AuthMode string

const (
	AuthBearer AuthMode = "bearer"
	AuthOAuth  AuthMode = "oauth"
)

// CachePolicy controls Anthropic prompt-cache injection for an instance.
type CachePolicy struct {
	AutoCacheSystem  bool `yaml:"auto_cache_system"`
	AutoCacheTools   bool `yaml:"auto_cache_tools"`
	MinSystemTokens  int  `yaml:"min_system_tokens"`
}

// InstanceConfig is the immutable descriptor for one upstream endpoint.
// Once loaded into a registry snapshot it is never mutated; configuration
// reload replaces the whole snapshot rather than editing fields in place.
type InstanceConfig struct {
	Name              string
	DisplayName       string
	Provider          ProviderKind
	BaseURL           string
	AuthMode          AuthMode
	APIKey            string
	OAuthProviderName string
	Priority          int
	Weight            int
	Timeout           time.Duration
	FailureCoolDown   time.Duration
	AnthropicVersion  string
	Cache             CachePolicy
	Tags              map[string]string
}

// InstanceHealth is the mutable per-instance health record. A single
// mutex guards all fields; it lives next to the descriptor it describes
// rather than behind a back-reference, so a health update never needs
// to look anything up by index or name.
type InstanceHealth struct {
	mu                  sync.Mutex
	healthy             bool
	lastFailureAt       time.Time
	consecutiveFailures uint32
	lastSuccessAt       time.Time
}

// NewInstanceHealth returns a health record that starts out healthy.
func NewInstanceHealth() *InstanceHealth {
	return &InstanceHealth{healthy: true}
}

// reportSuccess records a successful call: health.go calls this through
// the Health Tracker rather than having callers touch the record directly.
func (h *InstanceHealth) reportSuccess(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.healthy = true
	h.consecutiveFailures = 0
	h.lastSuccessAt = now
}

// reportFailure records a retryable failure.
func (h *InstanceHealth) reportFailure(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.healthy = false
	h.lastFailureAt = now
	h.consecutiveFailures++
}

// isHealthy is the self-healing read: an unhealthy instance becomes
// healthy again once the cool-down has elapsed, and the read flips the
// stored flag back (the flip is idempotent, so concurrent readers
// racing here is harmless).
func (h *InstanceHealth) isHealthy(now time.Time, coolDown time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.healthy {
		return true
	}
	if !h.lastFailureAt.IsZero() && now.Sub(h.lastFailureAt) >= coolDown {
		h.healthy = true
		return true
	}
	return false
}

// snapshot returns a point-in-time copy for observability endpoints.
func (h *InstanceHealth) snapshot() InstanceHealthView {
	h.mu.Lock()
	defer h.mu.Unlock()
	return InstanceHealthView{
		Healthy:             h.healthy,
		LastFailureAt:       h.lastFailureAt,
		ConsecutiveFailures: h.consecutiveFailures,
		LastSuccessAt:       h.lastSuccessAt,
	}
}

// InstanceHealthView is a read-only copy of InstanceHealth for reporting.
type InstanceHealthView struct {
	Healthy             bool
	LastFailureAt       time.Time
	ConsecutiveFailures uint32
	LastSuccessAt       time.Time
}

// Instance pairs an immutable descriptor with its mutable health cell.
// The registry never hands out a descriptor without its health cell
// attached.
type Instance struct {
	Config InstanceConfig
	Health *InstanceHealth
}

// RoutingRule maps a model-name prefix to a provider (registry key).
type RoutingRule struct {
	Prefix   string
	Provider string
}

// WarningLevel distinguishes a converter warning from an info note.
type WarningLevel string

const (
	WarningLevelWarning WarningLevel = "warning"
	WarningLevelInfo    WarningLevel = "info"
)

// Warning is one entry in a request's conversion-warnings list.
type Warning struct {
	Level   WarningLevel `json:"level"`
	Message string       `json:"message"`
}

// Warnings is an append-only list of conversion warnings for one request.
type Warnings []Warning

// Add appends a warning-level entry.
func (w *Warnings) Add(format string, args ...interface{}) {
	*w = append(*w, Warning{Level: WarningLevelWarning, Message: fmt.Sprintf(format, args...)})
}

// AddInfo appends an info-level entry.
func (w *Warnings) AddInfo(format string, args ...interface{}) {
	*w = append(*w, Warning{Level: WarningLevelInfo, Message: fmt.Sprintf(format, args...)})
}

// AccountingStatus is the terminal status recorded for a request.
type AccountingStatus string

const (
	AccountingSuccess   AccountingStatus = "success"
	AccountingError     AccountingStatus = "error"
	AccountingCancelled AccountingStatus = "cancelled"
)

// AccountingEvent is the record emitted once per completed request.
type AccountingEvent struct {
	RequestID          string
	Timestamp          time.Time
	Principal          string
	Provider           string
	Instance           string
	Model              string
	Endpoint           string
	Status             AccountingStatus
	ErrorKind          string
	InputTokens        int
	OutputTokens       int
	CacheCreationTokens int
	CacheReadTokens    int
	DurationMS         int64
}
