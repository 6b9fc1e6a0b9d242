package oracle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// FlightRouteDatabase reads a flightroute-style SQLite dump mapping a
// callsign directly to its usual route.
type FlightRouteDatabase struct {
	db *sql.DB
}

// OpenFlightRoute opens the dump read-only.
func OpenFlightRoute(path string) (*FlightRouteDatabase, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open flightroute db: %w", err)
	}
	return &FlightRouteDatabase{db: db}, nil
}

// Close closes the database.
func (f *FlightRouteDatabase) Close() error {
	return f.db.Close()
}

func (f *FlightRouteDatabase) Name() string { return "flightroute" }

// HasFlown reports whether the dump maps the callsign to exactly this
// route.
func (f *FlightRouteDatabase) HasFlown(ctx context.Context, callsign, route string) (bool, error) {
	var stored string
	err := f.db.QueryRowContext(ctx,
		"SELECT route FROM FlightRoute WHERE flight = ?", callsign).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query flightroute for %s: %w", callsign, err)
	}
	return stored == route, nil
}
