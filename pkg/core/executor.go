package core

import "context"

// maxAttempts caps retry budget: at most min(healthy-instance-count, 3)
// attempts.
const maxAttempts = 3

// Attempt is one upstream call outcome, independent of wire dialect.
// Converters and providers fill this in; the executor only cares about
// the error classification.
type Attempt struct {
	Result interface{}
}

// AttemptFunc performs one upstream call against the chosen instance.
// It must return an error classified via ClassifyStatus/Upstream*Error
// types so the executor can tell retryable from non-retryable failures.
type AttemptFunc func(ctx context.Context, inst *Instance) (*Attempt, error)

// RetryExecutor iterates candidate instances for one logical request,
// honouring sticky session, health, and the retryable/non-retryable
// error classification.
type RetryExecutor struct {
	balancer *Balancer
	health   *HealthTracker
}

// NewRetryExecutor builds an executor sharing the balancer and health
// tracker used by the rest of the pipeline.
func NewRetryExecutor(balancer *Balancer, health *HealthTracker) *RetryExecutor {
	return &RetryExecutor{balancer: balancer, health: health}
}

// Execute runs attempt against instances for provider/sessionKey until
// one succeeds, a non-retryable failure occurs, or the budget is spent.
// It returns the instance that ultimately served the request (or the
// last one tried, on failure) alongside the result or error.
func (e *RetryExecutor) Execute(ctx context.Context, reg *snapshot, provider, sessionKey string, attempt AttemptFunc) (*Attempt, *Instance, error) {
	entry, ok := reg.Provider(provider)
	if !ok {
		return nil, nil, &ProviderNotConfiguredError{Provider: provider}
	}

	healthyCount := len(e.health.FilterHealthy(entry.Instances))
	budget := healthyCount
	if budget > maxAttempts {
		budget = maxAttempts
	}
	if budget == 0 {
		return nil, nil, &NoHealthyInstanceError{Provider: provider}
	}

	tried := make(map[string]bool, budget)
	var lastInstance *Instance
	var lastErr error

	for i := 0; i < budget; i++ {
		inst, selErr := e.balancer.selectExcluding(provider, entry, sessionKey, tried)
		if selErr != nil {
			if i == 0 {
				return nil, nil, selErr
			}
			break
		}
		tried[inst.Config.Name] = true
		lastInstance = inst

		result, err := attempt(ctx, inst)
		if err == nil {
			e.health.ReportSuccess(inst)
			metrics.retryAttempts.WithLabelValues(provider, "success").Inc()
			return result, inst, nil
		}

		if !Retryable(err) {
			// Non-retryable: propagate as-is, do not touch health.
			metrics.retryAttempts.WithLabelValues(provider, "non_retryable").Inc()
			return nil, inst, err
		}

		e.health.ReportFailure(inst)
		metrics.retryAttempts.WithLabelValues(provider, "retryable_failure").Inc()
		lastErr = err
	}

	attemptedNames := make([]string, 0, len(tried))
	for name := range tried {
		attemptedNames = append(attemptedNames, name)
	}

	metrics.instancesExhausted.WithLabelValues(provider).Inc()
	return nil, lastInstance, &AllInstancesExhaustedError{
		Provider:  provider,
		Attempted: attemptedNames,
		LastErr:   lastErr,
	}
}
