package core

import (
	"context"
	"errors"
	"testing"
)

func newTestRegistry(instances ...*Instance) *Registry {
	cfgs := make([]InstanceConfig, 0, len(instances))
	for _, inst := range instances {
		cfgs = append(cfgs, inst.Config)
	}
	return NewRegistry(map[string][]InstanceConfig{"openai": cfgs}, nil, "openai")
}

func TestExecutorSucceedsOnFirstHealthyInstance(t *testing.T) {
	health := NewHealthTracker()
	sessions := NewSessionTable()
	defer sessions.Close()
	balancer := NewBalancer(health, sessions)
	exec := NewRetryExecutor(balancer, health)

	reg := newTestRegistry(healthyInstance("a", 1, 100))

	calls := 0
	result, inst, err := exec.Execute(context.Background(), reg.Snapshot(), "openai", "", func(ctx context.Context, inst *Instance) (*Attempt, error) {
		calls++
		return &Attempt{Result: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls)
	}
	if inst.Config.Name != "a" {
		t.Fatalf("expected instance %q, got %q", "a", inst.Config.Name)
	}
	if result.Result.(string) != "ok" {
		t.Fatalf("unexpected result %v", result.Result)
	}
}

func TestExecutorFailsOverToNextInstanceOnRetryableError(t *testing.T) {
	health := NewHealthTracker()
	sessions := NewSessionTable()
	defer sessions.Close()
	balancer := NewBalancer(health, sessions)
	exec := NewRetryExecutor(balancer, health)

	a := healthyInstance("a", 1, 100)
	b := healthyInstance("b", 1, 100)
	reg := newTestRegistry(a, b)

	tried := make(map[string]bool)
	_, inst, err := exec.Execute(context.Background(), reg.Snapshot(), "openai", "", func(ctx context.Context, inst *Instance) (*Attempt, error) {
		tried[inst.Config.Name] = true
		if inst.Config.Name == "a" {
			return nil, &UpstreamServerError{Instance: "a", StatusCode: 500}
		}
		return &Attempt{Result: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if inst.Config.Name != "b" {
		t.Fatalf("expected the surviving instance to be %q, got %q", "b", inst.Config.Name)
	}
	if !tried["a"] || !tried["b"] {
		t.Fatalf("expected both instances to have been attempted, got %v", tried)
	}
	if health.IsHealthy(a) {
		t.Fatal("expected the failing instance to be marked unhealthy")
	}
}

func TestExecutorStopsOnNonRetryableError(t *testing.T) {
	health := NewHealthTracker()
	sessions := NewSessionTable()
	defer sessions.Close()
	balancer := NewBalancer(health, sessions)
	exec := NewRetryExecutor(balancer, health)

	a := healthyInstance("a", 1, 100)
	b := healthyInstance("b", 1, 100)
	reg := newTestRegistry(a, b)

	calls := 0
	wantErr := &UpstreamClientError{Instance: "a", StatusCode: 400}
	_, inst, err := exec.Execute(context.Background(), reg.Snapshot(), "openai", "", func(ctx context.Context, inst *Instance) (*Attempt, error) {
		calls++
		return nil, wantErr
	})
	if err != wantErr {
		t.Fatalf("expected the non-retryable error to propagate unchanged, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected only one attempt before stopping, got %d", calls)
	}
	if inst.Config.Name != "a" {
		t.Fatalf("expected the attempted instance to be %q, got %q", "a", inst.Config.Name)
	}
	if !health.IsHealthy(a) {
		t.Fatal("a non-retryable error must not touch the instance's health")
	}
}

func TestExecutorAllInstancesExhausted(t *testing.T) {
	health := NewHealthTracker()
	sessions := NewSessionTable()
	defer sessions.Close()
	balancer := NewBalancer(health, sessions)
	exec := NewRetryExecutor(balancer, health)

	a := healthyInstance("a", 1, 100)
	b := healthyInstance("b", 1, 100)
	reg := newTestRegistry(a, b)

	lastErr := &UpstreamServerError{Instance: "b", StatusCode: 503}
	_, _, err := exec.Execute(context.Background(), reg.Snapshot(), "openai", "", func(ctx context.Context, inst *Instance) (*Attempt, error) {
		if inst.Config.Name == "b" {
			return nil, lastErr
		}
		return nil, &UpstreamServerError{Instance: "a", StatusCode: 500}
	})

	var exhausted *AllInstancesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *AllInstancesExhaustedError, got %T (%v)", err, err)
	}
	if len(exhausted.Attempted) != 2 {
		t.Fatalf("expected both instances recorded as attempted, got %v", exhausted.Attempted)
	}
	if health.IsHealthy(a) || health.IsHealthy(b) {
		t.Fatal("expected both instances to be marked unhealthy after exhausting the budget")
	}
}

func TestExecutorNoHealthyInstanceUpfront(t *testing.T) {
	health := NewHealthTracker()
	sessions := NewSessionTable()
	defer sessions.Close()
	balancer := NewBalancer(health, sessions)
	exec := NewRetryExecutor(balancer, health)

	a := healthyInstance("a", 1, 100)
	health.ReportFailure(a)
	reg := newTestRegistry(a)

	_, _, err := exec.Execute(context.Background(), reg.Snapshot(), "openai", "", func(ctx context.Context, inst *Instance) (*Attempt, error) {
		t.Fatal("attempt should never be called when no instance is healthy")
		return nil, nil
	})
	var noHealthy *NoHealthyInstanceError
	if !errors.As(err, &noHealthy) {
		t.Fatalf("expected *NoHealthyInstanceError, got %T (%v)", err, err)
	}
}

func TestExecutorUnconfiguredProvider(t *testing.T) {
	health := NewHealthTracker()
	sessions := NewSessionTable()
	defer sessions.Close()
	balancer := NewBalancer(health, sessions)
	exec := NewRetryExecutor(balancer, health)
	reg := NewRegistry(nil, nil, "openai")

	_, _, err := exec.Execute(context.Background(), reg.Snapshot(), "openai", "", func(ctx context.Context, inst *Instance) (*Attempt, error) {
		t.Fatal("attempt should never be called for an unconfigured provider")
		return nil, nil
	})
	var notConfigured *ProviderNotConfiguredError
	if !errors.As(err, &notConfigured) {
		t.Fatalf("expected *ProviderNotConfiguredError, got %T (%v)", err, err)
	}
}

func TestExecutorRetryBudgetCappedAtMaxAttempts(t *testing.T) {
	health := NewHealthTracker()
	sessions := NewSessionTable()
	defer sessions.Close()
	balancer := NewBalancer(health, sessions)
	exec := NewRetryExecutor(balancer, health)

	instances := make([]*Instance, 0, 5)
	for i := 0; i < 5; i++ {
		instances = append(instances, healthyInstance(string(rune('a'+i)), 1, 100))
	}
	reg := newTestRegistry(instances...)

	calls := 0
	_, _, err := exec.Execute(context.Background(), reg.Snapshot(), "openai", "", func(ctx context.Context, inst *Instance) (*Attempt, error) {
		calls++
		return nil, &UpstreamServerError{Instance: inst.Config.Name, StatusCode: 500}
	})
	var exhausted *AllInstancesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *AllInstancesExhaustedError, got %T (%v)", err, err)
	}
	if calls != maxAttempts {
		t.Fatalf("expected the retry budget to cap attempts at %d, got %d", maxAttempts, calls)
	}
}

func TestExecutorHonoursStickySessionAcrossAttempts(t *testing.T) {
	health := NewHealthTracker()
	sessions := NewSessionTable()
	defer sessions.Close()
	balancer := NewBalancer(health, sessions)
	exec := NewRetryExecutor(balancer, health)

	a := healthyInstance("a", 1, 100)
	b := healthyInstance("b", 1, 100)
	reg := newTestRegistry(a, b)

	_, first, err := exec.Execute(context.Background(), reg.Snapshot(), "openai", "session-1", func(ctx context.Context, inst *Instance) (*Attempt, error) {
		return &Attempt{Result: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	_, second, err := exec.Execute(context.Background(), reg.Snapshot(), "openai", "session-1", func(ctx context.Context, inst *Instance) (*Attempt, error) {
		return &Attempt{Result: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if second.Config.Name != first.Config.Name {
		t.Fatalf("expected the sticky session to route both requests to %q, got %q", first.Config.Name, second.Config.Name)
	}
}
