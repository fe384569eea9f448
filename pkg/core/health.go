package core

import "time"

// HealthTracker marks instances unhealthy on retryable failure and
// recovers them after their configured cool-down. It holds no state of
// its own — all state lives in the InstanceHealth cell next to each
// instance's descriptor — so a HealthTracker value is stateless and
// safe to share.
type HealthTracker struct {
	now func() time.Time
}

// NewHealthTracker returns a tracker using the real clock. Tests can
// construct one with a fake clock via newHealthTrackerWithClock.
func NewHealthTracker() *HealthTracker {
	return newHealthTrackerWithClock(time.Now)
}

func newHealthTrackerWithClock(now func() time.Time) *HealthTracker {
	return &HealthTracker{now: now}
}

// ReportSuccess clears failure state and marks the instance healthy.
func (t *HealthTracker) ReportSuccess(inst *Instance) {
	wasUnhealthy := !inst.Health.snapshot().Healthy
	inst.Health.reportSuccess(t.now())
	if wasUnhealthy {
		metrics.healthFlips.WithLabelValues(string(inst.Config.Provider), "healthy").Inc()
	}
}

// ReportFailure marks an instance unhealthy. Callers must only invoke
// this for retryable failure kinds; non-retryable failures must never
// reach the health tracker.
func (t *HealthTracker) ReportFailure(inst *Instance) {
	inst.Health.reportFailure(t.now())
	metrics.healthFlips.WithLabelValues(string(inst.Config.Provider), "unhealthy").Inc()
}

// IsHealthy reports whether an instance currently accepts traffic. An
// instance marked unhealthy becomes eligible again on its own once its
// cool-down elapses — there's no separate background sweep to "heal" it.
func (t *HealthTracker) IsHealthy(inst *Instance) bool {
	return inst.Health.isHealthy(t.now(), inst.Config.FailureCoolDown)
}

// FilterHealthy returns the subset of instances currently healthy.
func (t *HealthTracker) FilterHealthy(instances []*Instance) []*Instance {
	healthy := make([]*Instance, 0, len(instances))
	for _, inst := range instances {
		if t.IsHealthy(inst) {
			healthy = append(healthy, inst)
		}
	}
	return healthy
}
