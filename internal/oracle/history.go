package oracle

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flight_matcher/internal/opensky"
)

// History keeps per-airframe flight history fetched from the OpenSky
// flights API in PostgreSQL and answers route questions from it. It also
// tracks which airframes each operator flies, so refreshes only query the
// relevant fleet.
type History struct {
	pool   *pgxpool.Pool
	client *opensky.Client
}

// NewHistory returns a History over the given pool and API client. The
// client may be nil for a read-only view.
func NewHistory(pool *pgxpool.Pool, client *opensky.Client) *History {
	return &History{pool: pool, client: client}
}

// CreateSchema creates the history tables.
func (h *History) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS opensky_flights (
		icao24            TEXT NOT NULL,
		callsign          TEXT NOT NULL,
		departure_airport TEXT NOT NULL DEFAULT '',
		arrival_airport   TEXT NOT NULL DEFAULT '',
		first_seen        BIGINT NOT NULL,
		last_seen         BIGINT NOT NULL,
		PRIMARY KEY (icao24, first_seen)
	);

	CREATE INDEX IF NOT EXISTS idx_opensky_flights_callsign ON opensky_flights(callsign);

	CREATE TABLE IF NOT EXISTS operator_aircraft (
		operator_icao   TEXT NOT NULL,
		icao24          TEXT NOT NULL,
		last_seen       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		refreshed_at    TIMESTAMPTZ,
		PRIMARY KEY (operator_icao, icao24)
	);
	`
	if _, err := h.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

func (h *History) Name() string { return "opensky-history" }

// HasFlown reports whether the fetched history pins the callsign to exactly
// this route. A callsign seen on more than one distinct route is ambiguous
// and confirms nothing.
func (h *History) HasFlown(ctx context.Context, callsign, route string) (bool, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT DISTINCT departure_airport, arrival_airport
		FROM opensky_flights WHERE callsign = $1`, callsign)
	if err != nil {
		return false, fmt.Errorf("query history for %s: %w", callsign, err)
	}
	defer rows.Close()

	flown := make(map[string]bool)
	for rows.Next() {
		var dep, arr string
		if err := rows.Scan(&dep, &arr); err != nil {
			return false, fmt.Errorf("scan history: %w", err)
		}
		if dep == "" || arr == "" {
			continue
		}
		flown[dep+"-"+arr] = true
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return uniqueRoute(flown, route), nil
}

// uniqueRoute reports whether flown holds exactly one route and it is the
// wanted one.
func uniqueRoute(flown map[string]bool, want string) bool {
	return len(flown) == 1 && flown[want]
}

// RecordOperatorAircraft remembers which airframes an operator was seen
// flying, feeding later history refreshes.
func (h *History) RecordOperatorAircraft(ctx context.Context, operatorICAO string, aircraft map[string]bool) error {
	batch := &pgx.Batch{}
	for icao24 := range aircraft {
		batch.Queue(`
			INSERT INTO operator_aircraft (operator_icao, icao24, last_seen)
			VALUES ($1, $2, NOW())
			ON CONFLICT (operator_icao, icao24) DO UPDATE SET last_seen = NOW()`,
			operatorICAO, strings.ToLower(icao24))
	}
	results := h.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range aircraft {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("record operator aircraft: %w", err)
		}
	}
	return nil
}

// Refresh fetches the flight history of one operator's fleet for the last
// given number of days. Airframes refreshed within the last day are
// skipped; the flights API is heavily rate limited.
func (h *History) Refresh(ctx context.Context, operatorICAO string, days int) error {
	if h.client == nil {
		return fmt.Errorf("history refresh needs an API client")
	}

	rows, err := h.pool.Query(ctx, `
		SELECT icao24 FROM operator_aircraft
		WHERE operator_icao = $1
		  AND (refreshed_at IS NULL OR refreshed_at < NOW() - INTERVAL '1 day')`,
		operatorICAO)
	if err != nil {
		return fmt.Errorf("query operator aircraft: %w", err)
	}
	var fleet []string
	for rows.Next() {
		var icao24 string
		if err := rows.Scan(&icao24); err != nil {
			rows.Close()
			return fmt.Errorf("scan operator aircraft: %w", err)
		}
		fleet = append(fleet, icao24)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	end := time.Now().Unix()
	begin := end - int64(days)*86400
	for _, icao24 := range fleet {
		flights, err := h.client.FlightsByAircraft(ctx, icao24, begin, end)
		if err != nil {
			log.Printf("oracle: history fetch for %s failed: %v", icao24, err)
			continue
		}
		if err := h.storeFlights(ctx, icao24, flights); err != nil {
			return err
		}
		if _, err := h.pool.Exec(ctx, `
			UPDATE operator_aircraft SET refreshed_at = NOW()
			WHERE operator_icao = $1 AND icao24 = $2`,
			operatorICAO, icao24); err != nil {
			return fmt.Errorf("mark aircraft refreshed: %w", err)
		}
	}
	return nil
}

func (h *History) storeFlights(ctx context.Context, icao24 string, flights []opensky.FlightRecord) error {
	batch := &pgx.Batch{}
	for _, f := range flights {
		if f.Callsign == "" || f.DepartureAirport == "" || f.ArrivalAirport == "" {
			continue
		}
		batch.Queue(`
			INSERT INTO opensky_flights
				(icao24, callsign, departure_airport, arrival_airport, first_seen, last_seen)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (icao24, first_seen) DO NOTHING`,
			strings.ToLower(icao24), f.Callsign,
			f.DepartureAirport, f.ArrivalAirport, f.FirstSeen, f.LastSeen)
	}
	results := h.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("store flight history: %w", err)
		}
	}
	return nil
}
