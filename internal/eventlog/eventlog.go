// Package eventlog is the append-only instrument event log. Push never blocks the
// control loop; records are handed to a writer goroutine that persists them to sqlite,
// mirrors them to MQTT and sends push notifications for warnings.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/psu-controller/db"
	"github.com/thatsimonsguy/psu-controller/internal/model"
	"github.com/thatsimonsguy/psu-controller/internal/mqtt"
)

const maxPending = 256

type NotifyFunc func(title, message string) error

type Log struct {
	db     *sql.DB
	pub    mqtt.Publisher
	notify NotifyFunc

	mu      sync.Mutex
	pending []model.EventRecord
	dropped int

	out chan []model.EventRecord
	now func() time.Time
}

// New creates an event log. pub and notify may be nil.
func New(conn *sql.DB, pub mqtt.Publisher, notify NotifyFunc) *Log {
	return &Log{
		db:     conn,
		pub:    pub,
		notify: notify,
		out:    make(chan []model.EventRecord, 16),
		now:    time.Now,
	}
}

func (l *Log) Init() error {
	if _, err := db.GetRecentEvents(l.db, 1); err != nil {
		return fmt.Errorf("event log not readable: %w", err)
	}
	return nil
}

// Push records an event. Safe from any goroutine; never blocks on I/O.
func (l *Log) Push(kind model.EventKind) {
	rec := model.EventRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Severity:  kind.Severity(),
		Timestamp: l.now(),
	}

	l.mu.Lock()
	if len(l.pending) >= maxPending {
		l.pending = l.pending[1:]
		l.dropped++
	}
	l.pending = append(l.pending, rec)
	l.mu.Unlock()

	if rec.Severity == model.SeverityWarning {
		log.Warn().Str("event", string(kind)).Str("id", rec.ID).Msg("Event logged")
	} else {
		log.Info().Str("event", string(kind)).Str("id", rec.ID).Msg("Event logged")
	}
}

// Tick hands pending records to the writer. If the writer is behind they stay queued.
func (l *Log) Tick(usec uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return
	}
	select {
	case l.out <- l.pending:
		l.pending = nil
		if l.dropped > 0 {
			log.Warn().Int("dropped", l.dropped).Msg("Event log overflowed, oldest events dropped")
			l.dropped = 0
		}
	default:
	}
}

// Run writes handed-off batches until ctx is done, then flushes what is left.
func (l *Log) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case batch := <-l.out:
					l.write(batch)
				default:
					l.Flush()
					return
				}
			}
		case batch := <-l.out:
			l.write(batch)
		}
	}
}

// Flush synchronously writes every record not yet handed to the writer.
func (l *Log) Flush() {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	l.write(batch)
}

func (l *Log) Recent(limit int) ([]model.EventRecord, error) {
	return db.GetRecentEvents(l.db, limit)
}

func (l *Log) write(batch []model.EventRecord) {
	if len(batch) == 0 {
		return
	}

	if err := db.InsertEvents(l.db, batch); err != nil {
		log.Error().Err(err).Int("count", len(batch)).Msg("Failed to persist events")
	}

	for _, e := range batch {
		if l.pub != nil {
			if err := l.pub.PublishEvent(e); err != nil {
				log.Warn().Err(err).Str("event", string(e.Kind)).Msg("Failed to publish event")
			}
		}
		if l.notify != nil && e.Severity == model.SeverityWarning {
			if err := l.notify("PSU warning", string(e.Kind)); err != nil {
				log.Warn().Err(err).Str("event", string(e.Kind)).Msg("Failed to send notification")
			}
		}
	}
}
