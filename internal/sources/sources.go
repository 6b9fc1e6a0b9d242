// Package sources implements the schedule feed adapters: Avinor's airport
// network feed, the FMO, LUX and HAM airport APIs, the Lufthansa Cargo
// schedule export, and the ANAC agency register. Each adapter translates its
// feed's format and local times into schedule.Flight records with UTC
// timestamps.
package sources

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"flight_matcher/internal/reference"
	"flight_matcher/internal/schedule"
)

// Resolver is the subset of the reference directory the adapters use.
// *reference.Directory satisfies it.
type Resolver interface {
	Airport(icao string) (*reference.Airport, error)
	AirportByIATA(iata string) (*reference.Airport, error)
	AirlineByIATA(iata string, hints reference.AirlineHints) (*reference.Airline, error)
	AirlineByICAO(icao string) (*reference.Airline, error)
}

// splitFlightID splits a compact flight id like "SK263" or "DLH8100" into
// the airline designator and the flight number. Two-letter IATA and
// three-letter ICAO prefixes both occur in the feeds.
func splitFlightID(id string) (designator string, number int, err error) {
	id = strings.TrimSpace(id)
	if len(id) > 2 {
		if n, convErr := strconv.Atoi(id[2:]); convErr == nil {
			return id[:2], n, nil
		}
	}
	if len(id) > 3 {
		if n, convErr := strconv.Atoi(id[3:]); convErr == nil {
			return id[:3], n, nil
		}
	}
	return "", 0, fmt.Errorf("unparseable flight id %q", id)
}

// resolveOperator turns a feed's airline designator (IATA or ICAO) into the
// (iata, icao) pair, using the flight number to disambiguate shared IATA
// designators.
func resolveOperator(r Resolver, designator string, flightNumber int) (iata, icao string, err error) {
	switch len(designator) {
	case 2:
		airline, err := r.AirlineByIATA(designator, reference.AirlineHints{FlightNumber: &flightNumber})
		if err != nil || airline == nil {
			return "", "", fmt.Errorf("airline %s unresolved: %w", designator, err)
		}
		return designator, airline.ICAO, nil
	case 3:
		airline, err := r.AirlineByICAO(designator)
		if err != nil || airline == nil {
			return "", "", fmt.Errorf("airline %s unresolved: %w", designator, err)
		}
		return airline.IATA, designator, nil
	}
	return "", "", fmt.Errorf("bad airline designator %q", designator)
}

// airportICAO resolves a three-letter feed code to its ICAO code.
func airportICAO(r Resolver, iata string) (string, error) {
	airport, err := r.AirportByIATA(iata)
	if err != nil {
		return "", err
	}
	if airport == nil {
		return "", fmt.Errorf("missing airport icao for %s", iata)
	}
	return airport.ICAO, nil
}

// joinRoute renders route codes, dropping empty segments.
func joinRoute(codes ...string) string {
	kept := codes[:0]
	for _, c := range codes {
		if c != "" {
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, "-")
}

// flightKey builds the stable per-day flight id the feeds share.
func flightKey(iata string, number int, day time.Time, route string) string {
	return fmt.Sprintf("%s_%d_%s_%s", iata, number, day.Format("2006-01-02"), route)
}

// markRedundant flags flights whose route is wholly contained in a longer
// route of the same flight on the same day. An airport network feed reports
// an A-B-C service three times; only the full itinerary should be matched.
func markRedundant(flights []schedule.Flight) {
	byFlight := make(map[string][]*schedule.Flight)
	for i := range flights {
		f := &flights[i]
		key := fmt.Sprintf("%s_%d_%s", f.AirlineIATA, f.FlightNumber,
			strings.TrimSuffix(f.ID, f.Route))
		byFlight[key] = append(byFlight[key], f)
	}
	for _, set := range byFlight {
		for _, f := range set {
			for _, other := range set {
				if f == other || other.Route == f.Route {
					continue
				}
				if strings.Contains(other.Route, f.Route) {
					f.Redundant = true
				}
			}
		}
	}
}
