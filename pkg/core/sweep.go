package core

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper runs periodic maintenance jobs on a cron schedule (in
// cmd/mercator: the accounting sink's compaction and a sample of the
// session-table and accounting-queue gauges). It runs arbitrary named
// jobs supplied by the caller, since pkg/core cannot import
// pkg/core/accounting without a cycle. The session table's expiry sweep
// is not one of them; it runs on the table's own ticker.
type Sweeper struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewSweeper builds a Sweeper. Jobs are added with AddJob before Start.
func NewSweeper() *Sweeper {
	return &Sweeper{
		cron:   cron.New(),
		logger: slog.Default().With("component", "core.sweeper"),
	}
}

// AddJob schedules fn on the standard five-field cron spec, logging (not
// panicking) if fn returns an error. An invalid spec is returned to the
// caller rather than silently dropped.
func (s *Sweeper) AddJob(name, spec string, fn func() error) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := fn(); err != nil {
			s.logger.Warn("sweep job failed", "job", name, "error", err)
		}
	})
	return err
}

// Start begins running scheduled jobs in the background.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop cancels pending runs and waits for any in-flight job to finish.
func (s *Sweeper) Stop() { <-s.cron.Stop().Done() }
