package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"mercator-hq/jupiter/pkg/core/convert"
)

// Dispatcher is the per-request pipeline tying
// auth -> routing -> conversion -> execution -> response shaping, and
// emitting accounting records. Grounded on
// pkg/proxy/handlers/chat.go's handleChatRequest/handleStreamRequest
// shape and pkg/server/server.go's middleware ordering.
type Dispatcher struct {
	Auth       AuthResolver
	OAuth      OAuthTokenSource
	Accounting AccountingSink
	Config     ConfigSnapshot
	Health     *HealthTracker
	Balancer   *Balancer
	Executor   *RetryExecutor
	Transport  *Transport
	Vision     convert.VisionPolicy
	Cache      CachePolicy
	Logger     *slog.Logger
	Now        func() time.Time
}

// NewDispatcher wires a dispatcher from its collaborators, filling in
// reasonable defaults (a real clock, a default vision policy).
func NewDispatcher(registry *Registry, auth AuthResolver, oauth OAuthTokenSource, accounting AccountingSink) *Dispatcher {
	health := NewHealthTracker()
	sessions := NewSessionTable()
	balancer := NewBalancer(health, sessions)
	return &Dispatcher{
		Auth:       auth,
		OAuth:      oauth,
		Accounting: accounting,
		Config:     staticConfigSnapshot{registry: registry},
		Health:     health,
		Balancer:   balancer,
		Executor:   NewRetryExecutor(balancer, health),
		Transport:  NewTransport(),
		Vision:     convert.DefaultVisionPolicy(),
		Logger:     slog.Default().With("component", "core.dispatch"),
		Now:        time.Now,
	}
}

// staticConfigSnapshot adapts a single, non-reloading *Registry to the
// ConfigSnapshot collaborator interface. A hot-reloading config loader
// would implement ConfigSnapshot itself and swap the registry it hands
// back across calls; this is the minimal implementation for a
// dispatcher built directly from a registry.
type staticConfigSnapshot struct {
	registry *Registry
}

func (s staticConfigSnapshot) Registry() *Registry { return s.registry }

// ServeHTTP implements the client-facing POST /v1/chat/completions
// route: OpenAI-dialect request in, OpenAI-dialect response (JSON or
// SSE) out. Path-routed endpoints (azure/bedrock/custom) reuse this
// pipeline with the provider pre-selected; see ServeHTTPWithProvider.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.handle(w, r, "")
}

// ServeHTTPWithProvider handles a path-routed endpoint where the
// provider (registry key) is taken from the URL rather than resolved
// by the Model Router.
func (d *Dispatcher) ServeHTTPWithProvider(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.handle(w, r, provider)
	}
}

func (d *Dispatcher) handle(w http.ResponseWriter, r *http.Request, pinnedProvider string) {
	ctx := r.Context()
	requestID := uuid.NewString()
	start := d.Now()

	principal, err := d.authenticate(r)
	if err != nil {
		d.writeError(w, r.URL.Path, err)
		return
	}

	var req convert.OpenAIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeError(w, r.URL.Path, &ConversionError{Stage: "request-decode", Cause: err})
		return
	}

	snap := d.Config.Registry().Snapshot()

	provider := pinnedProvider
	if provider == "" {
		resolved, err := ResolveModel(snap, req.Model)
		if err != nil {
			d.writeError(w, r.URL.Path, err)
			return
		}
		provider = resolved
	}

	entry, ok := snap.Provider(provider)
	if !ok {
		d.writeError(w, r.URL.Path, &ProviderNotConfiguredError{Provider: provider})
		return
	}

	sessionKey := d.sessionKey(principal, req)

	attempt, instance, err := d.dispatchByKind(ctx, snap, entry.Kind, provider, sessionKey, &req)
	if err != nil {
		d.emitAccounting(requestID, principal, provider, "", req.Model, r.URL.Path, AccountingError, err, convert.OpenAIUsage{}, start)
		d.writeError(w, r.URL.Path, err)
		return
	}

	if req.Stream {
		d.streamResponse(ctx, w, requestID, principal, provider, instance.Config.Name, req.Model, r.URL.Path, entry.Kind, attempt, start)
		return
	}

	d.jsonResponse(w, requestID, principal, provider, instance.Config.Name, req.Model, r.URL.Path, entry.Kind, attempt, start)
}

func (d *Dispatcher) authenticate(r *http.Request) (string, error) {
	authz := r.Header.Get("Authorization")
	token := strings.TrimPrefix(authz, "Bearer ")
	if token == "" || token == authz {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	return d.Auth.Resolve(token)
}

// sessionKey composes the sticky-routing key from the request's
// metadata.user_id field.
func (d *Dispatcher) sessionKey(principal string, req convert.OpenAIRequest) string {
	userID, _ := req.Metadata["user_id"].(string)
	return SessionKey(principal, userID)
}

func (d *Dispatcher) writeError(w http.ResponseWriter, endpoint string, err error) {
	status := HTTPStatusFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": err.Error(),
			"type":    fmt.Sprintf("%T", err),
		},
	})
}

func (d *Dispatcher) emitAccounting(requestID, principal, provider, instance, model, endpoint string, status AccountingStatus, err error, usage convert.OpenAIUsage, start time.Time) {
	var errKind string
	if err != nil {
		errKind = fmt.Sprintf("%T", err)
	}
	d.Accounting.Submit(AccountingEvent{
		RequestID:           requestID,
		Timestamp:           d.Now(),
		Principal:           principal,
		Provider:            provider,
		Instance:            instance,
		Model:               model,
		Endpoint:            endpoint,
		Status:              status,
		ErrorKind:           errKind,
		InputTokens:         usage.PromptTokens,
		OutputTokens:        usage.CompletionTokens,
		CacheCreationTokens: usage.CacheCreationTokens,
		CacheReadTokens:     usage.CacheReadTokens,
		DurationMS:          d.Now().Sub(start).Milliseconds(),
	})
}
