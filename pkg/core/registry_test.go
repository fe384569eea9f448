package core

import "testing"

func testInstanceConfig(name string, provider ProviderKind, priority, weight int) InstanceConfig {
	return InstanceConfig{
		Name:     name,
		Provider: provider,
		BaseURL:  "https://example.invalid",
		AuthMode: AuthBearer,
		APIKey:   "test-key",
		Priority: priority,
		Weight:   weight,
	}
}

func TestRegistrySnapshotProvider(t *testing.T) {
	reg := NewRegistry(map[string][]InstanceConfig{
		"openai": {testInstanceConfig("openai-primary", ProviderOpenAI, 1, 100)},
	}, nil, "")

	snap := reg.Snapshot()

	entry, ok := snap.Provider("openai")
	if !ok {
		t.Fatal("expected openai provider to be present")
	}
	if len(entry.Instances) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(entry.Instances))
	}
	if entry.Instances[0].Health == nil {
		t.Error("instance must have a health cell attached")
	}

	if _, ok := snap.Provider("missing"); ok {
		t.Error("expected missing provider to be absent")
	}
}

func TestRegistryProviderWithNoInstancesIsAbsent(t *testing.T) {
	reg := NewRegistry(map[string][]InstanceConfig{
		"openai": {},
	}, nil, "")

	if _, ok := reg.Snapshot().Provider("openai"); ok {
		t.Error("a provider entry with zero instances should not be returned")
	}
}

func TestRegistrySwapDoesNotAffectOlderSnapshot(t *testing.T) {
	reg := NewRegistry(map[string][]InstanceConfig{
		"openai": {testInstanceConfig("a", ProviderOpenAI, 1, 100)},
	}, nil, "")

	old := reg.Snapshot()

	reg.Swap(map[string][]InstanceConfig{
		"openai": {testInstanceConfig("b", ProviderOpenAI, 1, 100)},
	}, nil, "")

	entry, _ := old.Provider("openai")
	if entry.Instances[0].Config.Name != "a" {
		t.Error("a previously captured snapshot must not observe a later swap")
	}

	entry, _ = reg.Snapshot().Provider("openai")
	if entry.Instances[0].Config.Name != "b" {
		t.Error("a fresh snapshot must observe the swap")
	}
}

func TestRegistryRulesSortedByDescendingPrefixLength(t *testing.T) {
	reg := NewRegistry(map[string][]InstanceConfig{
		"openai":    {testInstanceConfig("a", ProviderOpenAI, 1, 100)},
		"anthropic": {testInstanceConfig("b", ProviderAnthropic, 1, 100)},
	}, []RoutingRule{
		{Prefix: "gpt", Provider: "openai"},
		{Prefix: "gpt-4-turbo", Provider: "anthropic"},
		{Prefix: "g", Provider: "openai"},
	}, "")

	provider, err := ResolveModel(reg.Snapshot(), "gpt-4-turbo-preview")
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if provider != "anthropic" {
		t.Fatalf("expected anthropic, got %q", provider)
	}
}

func TestRegistrySnapshotGeneration(t *testing.T) {
	reg := NewRegistry(nil, nil, "")
	g1 := reg.Snapshot().Generation()

	reg.Swap(nil, nil, "")
	g2 := reg.Snapshot().Generation()

	if g1 == g2 {
		t.Error("each swap should produce a distinct generation id")
	}
}
