package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RouteLengths resolves a route string to its summed leg length in metres.
// *reference.Directory satisfies it.
type RouteLengths interface {
	RouteLength(route string) (float64, error)
}

// Store persists scheduled flights per source in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateSchema creates the scheduled flight table.
func (s *Store) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS scheduled_flights (
		source          TEXT NOT NULL,
		id              TEXT NOT NULL,
		airline_iata    TEXT NOT NULL,
		airline_icao    TEXT NOT NULL,
		flight_number   INTEGER NOT NULL,
		route           TEXT NOT NULL,
		departure       BIGINT,
		arrival         BIGINT,
		status          TEXT NOT NULL DEFAULT '',
		cancelled       BOOLEAN NOT NULL DEFAULT FALSE,
		diverted        BOOLEAN NOT NULL DEFAULT FALSE,
		redundant       BOOLEAN NOT NULL DEFAULT FALSE,
		overlap         BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (source, id)
	);

	CREATE INDEX IF NOT EXISTS idx_scheduled_flights_departure ON scheduled_flights(departure);
	CREATE INDEX IF NOT EXISTS idx_scheduled_flights_arrival ON scheduled_flights(arrival);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schedule schema: %w", err)
	}
	return nil
}

// Upsert writes the flights of one source, replacing earlier reports of the
// same flight instance.
func (s *Store) Upsert(ctx context.Context, flights []Flight) error {
	batch := &pgx.Batch{}
	for _, f := range flights {
		batch.Queue(`
			INSERT INTO scheduled_flights
				(source, id, airline_iata, airline_icao, flight_number, route,
				 departure, arrival, status, cancelled, diverted, redundant, overlap, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
			ON CONFLICT (source, id) DO UPDATE SET
				airline_iata = EXCLUDED.airline_iata,
				airline_icao = EXCLUDED.airline_icao,
				flight_number = EXCLUDED.flight_number,
				route = EXCLUDED.route,
				departure = EXCLUDED.departure,
				arrival = EXCLUDED.arrival,
				status = EXCLUDED.status,
				cancelled = EXCLUDED.cancelled,
				diverted = EXCLUDED.diverted,
				redundant = EXCLUDED.redundant,
				overlap = EXCLUDED.overlap,
				updated_at = NOW()`,
			f.Source, f.ID, f.AirlineIATA, f.AirlineICAO, f.FlightNumber, f.Route,
			f.Departure, f.Arrival, f.Status, f.Cancelled, f.Diverted, f.Redundant, f.Overlap)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range flights {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert scheduled flight: %w", err)
		}
	}
	return nil
}

// Window returns one source's flights whose stored times fall into a coarse
// window around UTC second t: departures up to 24 hours back, arrivals from
// 300 seconds back up to 24 hours ahead. The precise airborne predicate is
// applied by Active.
func (s *Store) Window(ctx context.Context, source string, t int64) ([]Flight, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source, id, airline_iata, airline_icao, flight_number, route,
		       departure, arrival, status, cancelled, diverted, redundant, overlap
		FROM scheduled_flights
		WHERE source = $1
		  AND ((departure IS NOT NULL AND departure > $2 AND departure < $3)
		    OR (arrival IS NOT NULL AND arrival > $4 AND arrival < $5))`,
		source, t-86400, t, t-300, t+86400)
	if err != nil {
		return nil, fmt.Errorf("query scheduled flights: %w", err)
	}
	defer rows.Close()

	var flights []Flight
	for rows.Next() {
		var f Flight
		if err := rows.Scan(&f.Source, &f.ID, &f.AirlineIATA, &f.AirlineICAO,
			&f.FlightNumber, &f.Route, &f.Departure, &f.Arrival, &f.Status,
			&f.Cancelled, &f.Diverted, &f.Redundant, &f.Overlap); err != nil {
			return nil, fmt.Errorf("scan scheduled flight: %w", err)
		}
		flights = append(flights, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return flights, nil
}

// FlightsOfDay returns one source's flights whose departure or arrival
// falls within the UTC day containing t.
func (s *Store) FlightsOfDay(ctx context.Context, source string, day time.Time) ([]Flight, error) {
	start := day.UTC().Truncate(24 * time.Hour).Unix()
	end := start + 86400
	rows, err := s.pool.Query(ctx, `
		SELECT source, id, airline_iata, airline_icao, flight_number, route,
		       departure, arrival, status, cancelled, diverted, redundant, overlap
		FROM scheduled_flights
		WHERE source = $1
		  AND ((departure IS NOT NULL AND departure >= $2 AND departure < $3)
		    OR (arrival IS NOT NULL AND arrival >= $2 AND arrival < $3))`,
		source, start, end)
	if err != nil {
		return nil, fmt.Errorf("query flights of day: %w", err)
	}
	defer rows.Close()

	var flights []Flight
	for rows.Next() {
		var f Flight
		if err := rows.Scan(&f.Source, &f.ID, &f.AirlineIATA, &f.AirlineICAO,
			&f.FlightNumber, &f.Route, &f.Departure, &f.Arrival, &f.Status,
			&f.Cancelled, &f.Diverted, &f.Redundant, &f.Overlap); err != nil {
			return nil, fmt.Errorf("scan scheduled flight: %w", err)
		}
		flights = append(flights, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return flights, nil
}

// SupportedAirlines returns the distinct airline ICAO codes one source has
// reported flights for. The matcher only searches operators a source covers.
func (s *Store) SupportedAirlines(ctx context.Context, source string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT airline_icao FROM scheduled_flights
		WHERE source = $1 AND airline_icao <> ''`, source)
	if err != nil {
		return nil, fmt.Errorf("query supported airlines: %w", err)
	}
	defer rows.Close()

	var airlines []string
	for rows.Next() {
		var icao string
		if err := rows.Scan(&icao); err != nil {
			return nil, fmt.Errorf("scan airline: %w", err)
		}
		airlines = append(airlines, icao)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return airlines, nil
}

// Collection combines the store with the reference directory and answers the
// question the matcher asks every cycle: which flights of a source are in
// the air right now.
type Collection struct {
	store  *Store
	routes RouteLengths
}

// NewCollection returns a Collection over the given store and route lengths.
func NewCollection(store *Store, routes RouteLengths) *Collection {
	return &Collection{store: store, routes: routes}
}

// Active returns the source's flights airborne at UTC second t. Flights
// whose route does not resolve in the reference directory are skipped with a
// log line; a feed occasionally reports airfields the reference data lacks.
func (c *Collection) Active(ctx context.Context, source string, t int64) ([]Flight, error) {
	window, err := c.store.Window(ctx, source, t)
	if err != nil {
		return nil, err
	}
	var active []Flight
	for _, f := range window {
		length, err := c.routes.RouteLength(f.Route)
		if err != nil {
			log.Printf("schedule: skipping %s %s%d: %v", source, f.AirlineIATA, f.FlightNumber, err)
			continue
		}
		if InBounds(f, length, t) {
			active = append(active, f)
		}
	}
	return active, nil
}
