// Package matchlog records match decisions in ClickHouse for offline
// analysis: which flights bound, which stayed ambiguous, and how often
// direct candidates fail the geometry.
package matchlog

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"flight_matcher/internal/matcher"
)

// flushEvery bounds how long an event sits in the buffer before it is
// written out.
const flushEvery = 30 * time.Second

// batchSize triggers an early flush.
const batchSize = 500

// Logger buffers match events and writes them to ClickHouse in batches.
// A nil Logger discards events, so the daemon runs without ClickHouse.
type Logger struct {
	conn driver.Conn

	mu     sync.Mutex
	buffer []matcher.Event
}

// NewLogger returns a Logger over the given connection.
func NewLogger(conn driver.Conn) *Logger {
	return &Logger{conn: conn}
}

// CreateSchema creates the match event table.
func (l *Logger) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS match_events (
		event_time      DateTime,
		source          LowCardinality(String),
		operator_iata   LowCardinality(String),
		operator_icao   LowCardinality(String),
		flight_number   UInt32,
		route           String,
		callsign        String,
		tier            Int8,
		outcome         LowCardinality(String),
		candidates      UInt16
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(event_time)
	ORDER BY (source, operator_iata, event_time)`
	if err := l.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create matchlog schema: %w", err)
	}
	return nil
}

// Log buffers one event. Implements matcher.EventLogger.
func (l *Logger) Log(ctx context.Context, e matcher.Event) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.buffer = append(l.buffer, e)
	full := len(l.buffer) >= batchSize
	l.mu.Unlock()

	if full {
		if err := l.Flush(ctx); err != nil {
			log.Printf("matchlog: flush failed: %v", err)
		}
	}
}

// Flush writes the buffered events.
func (l *Logger) Flush(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	events := l.buffer
	l.buffer = nil
	l.mu.Unlock()
	if len(events) == 0 {
		return nil
	}

	batch, err := l.conn.PrepareBatch(ctx, `
		INSERT INTO match_events
			(event_time, source, operator_iata, operator_icao, flight_number,
			 route, callsign, tier, outcome, candidates)`)
	if err != nil {
		return fmt.Errorf("prepare matchlog batch: %w", err)
	}
	for _, e := range events {
		if err := batch.Append(
			time.Unix(e.Time, 0),
			e.Source,
			e.OperatorIATA,
			e.OperatorICAO,
			uint32(e.FlightNumber),
			e.Route,
			e.Callsign,
			int8(e.Tier),
			e.Outcome,
			uint16(e.Candidates),
		); err != nil {
			return fmt.Errorf("append matchlog event: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send matchlog batch: %w", err)
	}
	return nil
}

// Run flushes periodically until the context is cancelled, then drains the
// buffer one last time.
func (l *Logger) Run(ctx context.Context) {
	if l == nil {
		return
	}
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := l.Flush(flushCtx); err != nil {
				log.Printf("matchlog: final flush failed: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := l.Flush(ctx); err != nil {
				log.Printf("matchlog: flush failed: %v", err)
			}
		}
	}
}
