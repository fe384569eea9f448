// Package accounting implements the core.AccountingSink collaborator: a
// non-blocking submit() backed by a bounded queue and a dedicated drain
// task, persisting accounting events to an embedded SQLite store in the
// single accounting-event shape the dispatch core emits.
package accounting

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"mercator-hq/jupiter/pkg/core"
)

// schema is the accounting table: only the fields on
// core.AccountingEvent, no request/response bodies.
const schema = `
CREATE TABLE IF NOT EXISTS accounting_events (
	request_id TEXT PRIMARY KEY,
	ts TIMESTAMP NOT NULL,
	principal TEXT NOT NULL,
	provider TEXT NOT NULL,
	instance TEXT NOT NULL,
	model TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	status TEXT NOT NULL,
	error_kind TEXT,
	input_tokens INTEGER,
	output_tokens INTEGER,
	cache_creation_tokens INTEGER,
	cache_read_tokens INTEGER,
	duration_ms INTEGER
);
CREATE INDEX IF NOT EXISTS idx_accounting_principal ON accounting_events(principal);
CREATE INDEX IF NOT EXISTS idx_accounting_provider ON accounting_events(provider);
CREATE INDEX IF NOT EXISTS idx_accounting_ts ON accounting_events(ts);
`

// Sink is the core.AccountingSink implementation. Submit never blocks:
// a full queue drops the oldest pending event and logs a warning rather
// than stall the request path.
type Sink struct {
	db     *sql.DB
	queue  chan core.AccountingEvent
	logger *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Config controls the sink's queue depth and database location.
type Config struct {
	Path      string
	QueueSize int
}

// DefaultConfig returns the default database path and a queue depth of
// 1024 events.
func DefaultConfig() Config {
	return Config{Path: "data/accounting.db", QueueSize: 1024}
}

// NewSink opens (creating if necessary) the SQLite database, applies
// the schema, and starts the drain goroutine.
func NewSink(cfg Config) (*Sink, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("accounting: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("accounting: apply schema: %w", err)
	}

	s := &Sink{
		db:     db,
		queue:  make(chan core.AccountingEvent, cfg.QueueSize),
		logger: slog.Default().With("component", "core.accounting"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go s.drainLoop()
	return s, nil
}

// Submit enqueues an event without blocking. When the queue is full the
// oldest pending event is dropped to make room for the new one, and a
// warning is logged.
func (s *Sink) Submit(event core.AccountingEvent) {
	select {
	case s.queue <- event:
	default:
		select {
		case dropped := <-s.queue:
			s.logger.Warn("accounting queue full, dropping oldest event",
				"dropped_request_id", dropped.RequestID)
		default:
		}
		select {
		case s.queue <- event:
		default:
			s.logger.Warn("accounting queue full, dropping event", "request_id", event.RequestID)
		}
	}
}

func (s *Sink) drainLoop() {
	defer close(s.doneCh)
	for {
		select {
		case event := <-s.queue:
			if err := s.persist(event); err != nil {
				s.logger.Error("failed to persist accounting event", "error", err, "request_id", event.RequestID)
			}
		case <-s.stopCh:
			// Drain whatever is left before exiting.
			for {
				select {
				case event := <-s.queue:
					if err := s.persist(event); err != nil {
						s.logger.Error("failed to persist accounting event on shutdown", "error", err)
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) persist(event core.AccountingEvent) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO accounting_events (
			request_id, ts, principal, provider, instance, model, endpoint,
			status, error_kind, input_tokens, output_tokens,
			cache_creation_tokens, cache_read_tokens, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO NOTHING
	`,
		event.RequestID, event.Timestamp, event.Principal, event.Provider,
		event.Instance, event.Model, event.Endpoint, string(event.Status),
		event.ErrorKind, event.InputTokens, event.OutputTokens,
		event.CacheCreationTokens, event.CacheReadTokens, event.DurationMS,
	)
	return err
}

// QueueDepth reports the number of events currently pending in the
// submit queue, for periodic metrics sampling.
func (s *Sink) QueueDepth() int {
	return len(s.queue)
}

// Close stops the drain goroutine (flushing the queue first) and closes
// the database handle.
func (s *Sink) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	select {
	case <-s.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.db.Close()
}

// Compact deletes accounting rows older than retain and runs a WAL
// checkpoint. Called
// periodically by the cron-backed sweep in cmd/mercator rather than on
// a fixed command.
func (s *Sink) Compact(ctx context.Context, retain time.Duration) (deleted int64, err error) {
	cutoff := time.Now().Add(-retain)
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounting_events WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("accounting: compact: %w", err)
	}
	deleted, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("accounting: compact: rows affected: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		s.logger.Warn("wal checkpoint failed", "error", err)
	}
	return deleted, nil
}

