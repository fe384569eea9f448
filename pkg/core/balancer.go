package core

import (
	"math/rand/v2"
)

// Balancer does weighted priority-based selection with sticky
// sessions. Built on round-robin's weighted-list machinery, restructured
// into priority-tier partitioning followed by weight-proportional
// sampling.
type Balancer struct {
	health   *HealthTracker
	sessions *SessionTable
}

// NewBalancer builds a balancer over the given health tracker and
// session table. Both are shared with the rest of the dispatch pipeline.
func NewBalancer(health *HealthTracker, sessions *SessionTable) *Balancer {
	return &Balancer{health: health, sessions: sessions}
}

// SessionCount reports the sticky-session table's current entry count,
// for periodic metrics sampling.
func (b *Balancer) SessionCount() int {
	return b.sessions.Len()
}

// Select picks a healthy instance for (provider, sessionKey): a sticky
// hit returns the previously-bound instance if it's still healthy,
// otherwise priority-tier partitioning followed by weight-proportional
// sampling picks a fresh one. sessionKey may be empty, in which case
// stickiness is skipped entirely.
func (b *Balancer) Select(provider string, entry *providerEntry, sessionKey string) (*Instance, error) {
	return b.selectExcluding(provider, entry, sessionKey, nil)
}

// selectExcluding is Select but additionally excludes instances whose
// Config.Name is in excluded — used by the Retry Executor to avoid
// re-trying an instance within the same logical request.
func (b *Balancer) selectExcluding(provider string, entry *providerEntry, sessionKey string, excluded map[string]bool) (*Instance, error) {
	healthy := b.health.FilterHealthy(entry.Instances)
	if len(excluded) > 0 {
		filtered := healthy[:0:0]
		for _, inst := range healthy {
			if !excluded[inst.Config.Name] {
				filtered = append(filtered, inst)
			}
		}
		healthy = filtered
	}

	if len(healthy) == 0 {
		return nil, &NoHealthyInstanceError{Provider: provider}
	}

	if sessionKey != "" {
		if stickyName, ok := b.sessions.Lookup(sessionKey, provider); ok {
			for _, inst := range healthy {
				if inst.Config.Name == stickyName {
					b.sessions.Record(sessionKey, provider, inst.Config.Name)
					return inst, nil
				}
			}
		}
	}

	chosen := selectByPriorityAndWeight(healthy)

	if sessionKey != "" {
		b.sessions.Record(sessionKey, provider, chosen.Config.Name)
	}

	return chosen, nil
}

// selectByPriorityAndWeight partitions by lowest priority number (highest
// priority) and draws one instance with probability proportional to
// weight within that partition.
func selectByPriorityAndWeight(instances []*Instance) *Instance {
	best := instances[0].Config.Priority
	for _, inst := range instances[1:] {
		if inst.Config.Priority < best {
			best = inst.Config.Priority
		}
	}

	tier := make([]*Instance, 0, len(instances))
	totalWeight := 0
	for _, inst := range instances {
		if inst.Config.Priority == best {
			w := inst.Config.Weight
			if w <= 0 {
				w = 100
			}
			tier = append(tier, inst)
			totalWeight += w
		}
	}

	if len(tier) == 1 {
		return tier[0]
	}

	draw := rand.IntN(totalWeight)
	cursor := 0
	for _, inst := range tier {
		w := inst.Config.Weight
		if w <= 0 {
			w = 100
		}
		cursor += w
		if draw < cursor {
			return inst
		}
	}
	return tier[len(tier)-1]
}
