// Package routestore persists verified callsign-to-route bindings in
// PostgreSQL and applies the quality policy that decides when a new
// observation may replace an older one.
package routestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Quality tiers, best first. Direct means the scheduled callsign itself was
// observed; Translated a manual override hit; Confirmed a single candidate
// backed by a historical route source; Guessed a single candidate without
// historical backing.
const (
	TierDirect     = 5
	TierTranslated = 3
	TierConfirmed  = 1
	TierGuessed    = 0
)

// MaxErrors is the error count past which a binding is considered burnt and
// may be replaced regardless of tier.
const MaxErrors = 10

// DefaultOutdatedAfter is how long a binding keeps its tier protection.
const DefaultOutdatedAfter = 30 * 24 * time.Hour

// Binding is one verified callsign-route pair.
type Binding struct {
	Callsign     string
	Route        string
	Source       string
	OperatorICAO string
	OperatorIATA string
	FlightNumber int
	Quality      int
	Errors       int
	UpdateTime   int64
	ValidFrom    int64
}

// Store holds verified bindings keyed by (callsign, route).
type Store struct {
	pool *pgxpool.Pool

	// outdatedAfter is the age past which an existing binding loses its
	// tier protection against lower-quality updates.
	outdatedAfter time.Duration

	now func() time.Time
}

// NewStore returns a Store over the given pool.
func NewStore(pool *pgxpool.Pool, outdatedAfter time.Duration) *Store {
	if outdatedAfter <= 0 {
		outdatedAfter = DefaultOutdatedAfter
	}
	return &Store{pool: pool, outdatedAfter: outdatedAfter, now: time.Now}
}

// CreateSchema creates the verified binding table.
func (s *Store) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS flight_routes (
		callsign        TEXT NOT NULL,
		route           TEXT NOT NULL,
		source          TEXT NOT NULL,
		operator_icao   TEXT NOT NULL,
		operator_iata   TEXT NOT NULL,
		flight_number   INTEGER NOT NULL,
		quality         INTEGER NOT NULL,
		errors          INTEGER NOT NULL DEFAULT 0,
		update_time     BIGINT NOT NULL,
		valid_from      BIGINT NOT NULL,
		PRIMARY KEY (callsign, route)
	);

	CREATE INDEX IF NOT EXISTS idx_flight_routes_flight
		ON flight_routes(operator_iata, flight_number);
	CREATE INDEX IF NOT EXISTS idx_flight_routes_update
		ON flight_routes(update_time);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create routestore schema: %w", err)
	}
	return nil
}

// Get returns the binding for a callsign-route pair, or nil if unknown.
func (s *Store) Get(ctx context.Context, callsign, route string) (*Binding, error) {
	var b Binding
	err := s.pool.QueryRow(ctx, `
		SELECT callsign, route, source, operator_icao, operator_iata,
		       flight_number, quality, errors, update_time, valid_from
		FROM flight_routes WHERE callsign = $1 AND route = $2`,
		callsign, route).Scan(
		&b.Callsign, &b.Route, &b.Source, &b.OperatorICAO, &b.OperatorIATA,
		&b.FlightNumber, &b.Quality, &b.Errors, &b.UpdateTime, &b.ValidFrom)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query binding %s %s: %w", callsign, route, err)
	}
	return &b, nil
}

// Put writes a binding under the quality policy. An existing binding is
// replaced when the new one has a higher tier, when the old one has gone
// stale, or when the old one has collected too many errors; a fresh
// higher-tier binding rejects the write. valid_from survives an accepted
// update only while the flight number and operator stay the same, so it
// marks how long this callsign has flown this particular flight. The stored
// error count survives unless resetErrors is set.
func (s *Store) Put(ctx context.Context, b Binding, resetErrors bool) (bool, error) {
	now := s.now().Unix()

	old, err := s.Get(ctx, b.Callsign, b.Route)
	if err != nil {
		return false, err
	}

	if old != nil {
		replaceable := old.Quality < b.Quality ||
			now-old.UpdateTime > int64(s.outdatedAfter.Seconds()) ||
			old.Errors > MaxErrors
		if !replaceable && old.Quality > b.Quality {
			return false, nil
		}
	}

	validFrom := now
	errorCount := 0
	if old != nil {
		if old.FlightNumber == b.FlightNumber && old.OperatorIATA == b.OperatorIATA {
			validFrom = old.ValidFrom
		}
		if !resetErrors {
			errorCount = old.Errors
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO flight_routes
			(callsign, route, source, operator_icao, operator_iata,
			 flight_number, quality, errors, update_time, valid_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (callsign, route) DO UPDATE SET
			source = EXCLUDED.source,
			operator_icao = EXCLUDED.operator_icao,
			operator_iata = EXCLUDED.operator_iata,
			flight_number = EXCLUDED.flight_number,
			quality = EXCLUDED.quality,
			errors = EXCLUDED.errors,
			update_time = EXCLUDED.update_time,
			valid_from = EXCLUDED.valid_from`,
		b.Callsign, b.Route, b.Source, b.OperatorICAO, b.OperatorIATA,
		b.FlightNumber, b.Quality, errorCount, now, validFrom)
	if err != nil {
		return false, fmt.Errorf("put binding %s %s: %w", b.Callsign, b.Route, err)
	}
	return true, nil
}

// FindByFlightNumber returns all bindings of one scheduled flight number,
// newest first.
func (s *Store) FindByFlightNumber(ctx context.Context, operatorIATA string, flightNumber int) ([]Binding, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT callsign, route, source, operator_icao, operator_iata,
		       flight_number, quality, errors, update_time, valid_from
		FROM flight_routes
		WHERE operator_iata = $1 AND flight_number = $2
		ORDER BY update_time DESC`,
		operatorIATA, flightNumber)
	if err != nil {
		return nil, fmt.Errorf("query bindings %s%d: %w", operatorIATA, flightNumber, err)
	}
	return scanBindings(rows)
}

// ListByCallsign returns all bindings of one callsign, newest first.
func (s *Store) ListByCallsign(ctx context.Context, callsign string) ([]Binding, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT callsign, route, source, operator_icao, operator_iata,
		       flight_number, quality, errors, update_time, valid_from
		FROM flight_routes
		WHERE callsign = $1
		ORDER BY update_time DESC`,
		callsign)
	if err != nil {
		return nil, fmt.Errorf("query bindings for %s: %w", callsign, err)
	}
	return scanBindings(rows)
}

func scanBindings(rows pgx.Rows) ([]Binding, error) {
	defer rows.Close()
	var bindings []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.Callsign, &b.Route, &b.Source, &b.OperatorICAO,
			&b.OperatorIATA, &b.FlightNumber, &b.Quality, &b.Errors,
			&b.UpdateTime, &b.ValidFrom); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bindings, nil
}

// RecentCallsigns returns the distinct callsigns bound with at least the
// given tier within the last hours. The matcher treats these as already
// known and does not search for them again.
func (s *Store) RecentCallsigns(ctx context.Context, minTier, hours int) (map[string]bool, error) {
	cutoff := s.now().Unix() - int64(hours)*3600
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT callsign FROM flight_routes
		WHERE quality >= $1 AND update_time > $2`,
		minTier, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query recent callsigns: %w", err)
	}
	defer rows.Close()

	recent := make(map[string]bool)
	for rows.Next() {
		var cs string
		if err := rows.Scan(&cs); err != nil {
			return nil, fmt.Errorf("scan callsign: %w", err)
		}
		recent[cs] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recent, nil
}

// IncreaseError bumps the error counter of a binding after a failed
// geometric check against its route.
func (s *Store) IncreaseError(ctx context.Context, callsign, route string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE flight_routes SET errors = errors + 1
		WHERE callsign = $1 AND route = $2`, callsign, route)
	if err != nil {
		return fmt.Errorf("increase error %s %s: %w", callsign, route, err)
	}
	return nil
}

// ResetError clears the error counter of a binding.
func (s *Store) ResetError(ctx context.Context, callsign, route string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE flight_routes SET errors = 0
		WHERE callsign = $1 AND route = $2`, callsign, route)
	if err != nil {
		return fmt.Errorf("reset error %s %s: %w", callsign, route, err)
	}
	return nil
}
