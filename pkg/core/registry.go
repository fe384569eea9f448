package core

import (
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
)

// providerEntry is one registry-key's worth of instances, e.g. all the
// OpenAI instances, or all the instances behind "custom:foo".
type providerEntry struct {
	Kind      ProviderKind
	Instances []*Instance
}

// snapshot is the immutable, atomically-swappable view of the whole
// registry: providers plus routing rules. Readers obtain one snapshot
// at request entry and never see a partial reload.
type snapshot struct {
	generation      string
	providers       map[string]*providerEntry
	rules           []RoutingRule // sorted by descending prefix length
	defaultProvider string
}

// Registry holds the current configuration snapshot and swaps it
// atomically on reload. It never exposes an instance without its
// attached health cell.
type Registry struct {
	current atomic.Pointer[snapshot]
}

// NewRegistry builds a registry from provider instance configs and a
// routing rule set, ready for immediate use.
func NewRegistry(providers map[string][]InstanceConfig, rules []RoutingRule, defaultProvider string) *Registry {
	r := &Registry{}
	r.Swap(providers, rules, defaultProvider)
	return r
}

// Swap atomically replaces the registry contents. In-flight requests
// holding an older snapshot are unaffected; only new requests observe
// the swap.
func (r *Registry) Swap(providers map[string][]InstanceConfig, rules []RoutingRule, defaultProvider string) {
	next := &snapshot{
		generation:      uuid.NewString(),
		providers:       make(map[string]*providerEntry, len(providers)),
		defaultProvider: defaultProvider,
	}

	for name, instances := range providers {
		entry := &providerEntry{Instances: make([]*Instance, 0, len(instances))}
		for _, cfg := range instances {
			entry.Kind = cfg.Provider
			entry.Instances = append(entry.Instances, &Instance{
				Config: cfg,
				Health: NewInstanceHealth(),
			})
		}
		next.providers[name] = entry
	}

	sorted := make([]RoutingRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	next.rules = sorted

	r.current.Store(next)
}

// Snapshot returns the registry's current point-in-time view. Callers
// should capture this once per request and route entirely against it.
func (r *Registry) Snapshot() *snapshot {
	return r.current.Load()
}

// Provider looks up a registry key's instances. The bool is false when
// the key has no configured instances at all.
func (s *snapshot) Provider(name string) (*providerEntry, bool) {
	entry, ok := s.providers[name]
	if !ok || len(entry.Instances) == 0 {
		return nil, false
	}
	return entry, true
}

// Generation identifies the registry snapshot a request was routed
// against, useful for debugging a reload race.
func (s *snapshot) Generation() string { return s.generation }

// ProviderCount reports how many registry keys have at least one
// configured instance, for readiness checks.
func (s *snapshot) ProviderCount() int {
	n := 0
	for _, entry := range s.providers {
		if len(entry.Instances) > 0 {
			n++
		}
	}
	return n
}
