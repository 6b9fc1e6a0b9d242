// Package reference provides read-only lookups of airport and airline
// reference data. The data lives in two SQLite databases maintained by
// external preparation scripts; this package never writes to them.
package reference

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"flight_matcher/internal/geodesy"
)

// Airport is an immutable airport record keyed by its four-letter ICAO code.
type Airport struct {
	ICAO      string
	IATA      string
	Name      string
	Latitude  float64
	Longitude float64
	Country   string
	Timezone  string
}

// Airline is an immutable airline record keyed by its three-letter ICAO code.
type Airline struct {
	ICAO string
	IATA string
	Name string
}

// AirlineHints disambiguates shared two-letter IATA designators.
type AirlineHints struct {
	// Name is a display name to match against candidate airline names.
	Name string

	// FlightNumber, when non-nil, activates flight-number based overrides.
	FlightNumber *int
}

// Directory resolves airport and airline codes against the reference
// databases. Safe for concurrent use; reference data is read-only.
type Directory struct {
	airports *sql.DB
	airlines *sql.DB

	mu         sync.Mutex
	legLengths map[string]float64
}

// Open opens the airport and airline databases read-only.
func Open(airportsPath, airlinesPath string) (*Directory, error) {
	airports, err := sql.Open("sqlite", "file:"+airportsPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open airports db: %w", err)
	}
	airlines, err := sql.Open("sqlite", "file:"+airlinesPath+"?mode=ro")
	if err != nil {
		_ = airports.Close()
		return nil, fmt.Errorf("open airlines db: %w", err)
	}
	return &Directory{
		airports:   airports,
		airlines:   airlines,
		legLengths: make(map[string]float64),
	}, nil
}

// Close closes both databases.
func (d *Directory) Close() error {
	err := d.airports.Close()
	if e := d.airlines.Close(); err == nil {
		err = e
	}
	return err
}

// Airport returns the airport with the given ICAO code, or nil if unknown.
func (d *Directory) Airport(icao string) (*Airport, error) {
	if len(icao) != 4 {
		return nil, nil
	}
	var a Airport
	var iata, country, timezone sql.NullString
	err := d.airports.QueryRow(
		"SELECT ICAO, IATA, Name, Latitude, Longitude, Country, Timezone FROM Airports WHERE ICAO = ?",
		strings.ToUpper(icao),
	).Scan(&a.ICAO, &iata, &a.Name, &a.Latitude, &a.Longitude, &country, &timezone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query airport %s: %w", icao, err)
	}
	a.IATA = iata.String
	a.Country = country.String
	a.Timezone = timezone.String
	return &a, nil
}

// AirportByIATA returns the airport with the given three-letter IATA code,
// or nil if unknown.
func (d *Directory) AirportByIATA(iata string) (*Airport, error) {
	if len(iata) != 3 {
		return nil, nil
	}
	var icao string
	err := d.airports.QueryRow(
		"SELECT ICAO FROM Airports WHERE IATA = ?", strings.ToUpper(iata),
	).Scan(&icao)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query airport iata %s: %w", iata, err)
	}
	return d.Airport(icao)
}

// AirlineByICAO returns the airline with the given ICAO code, or nil.
func (d *Directory) AirlineByICAO(icao string) (*Airline, error) {
	if len(icao) != 3 {
		return nil, nil
	}
	var a Airline
	var iata sql.NullString
	err := d.airlines.QueryRow(
		"SELECT ICAO, IATA, Name FROM Airlines WHERE ICAO = ?", strings.ToUpper(icao),
	).Scan(&a.ICAO, &iata, &a.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query airline %s: %w", icao, err)
	}
	a.IATA = iata.String
	return &a, nil
}

// AirlineByIATA resolves a two-letter airline IATA designator. Shared
// designators are disambiguated by the override table and then by name
// similarity against the hint; unresolvable ties return nil.
func (d *Directory) AirlineByIATA(iata string, hints AirlineHints) (*Airline, error) {
	if len(iata) != 2 {
		return nil, nil
	}
	iata = strings.ToUpper(iata)

	name := hints.Name
	if icao, ok := icaoOverrides[iata]; ok {
		return d.AirlineByICAO(icao)
	}
	if hints.FlightNumber != nil {
		if forced := overrideName(iata, *hints.FlightNumber); forced != "" {
			name = forced
		}
	}

	rows, err := d.airlines.Query(
		"SELECT ICAO, IATA, Name FROM Airlines WHERE IATA = ?", iata)
	if err != nil {
		return nil, fmt.Errorf("query airlines iata %s: %w", iata, err)
	}
	defer func() { _ = rows.Close() }()

	var matches []Airline
	for rows.Next() {
		var a Airline
		var aIATA sql.NullString
		if err := rows.Scan(&a.ICAO, &aIATA, &a.Name); err != nil {
			return nil, fmt.Errorf("scan airline: %w", err)
		}
		a.IATA = aIATA.String
		matches = append(matches, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(matches) == 0:
		return nil, nil
	case len(matches) == 1:
		return &matches[0], nil
	case name == "":
		return nil, nil
	}

	best := -1
	bestRatio := -1.0
	tied := false
	for i, a := range matches {
		r := nameSimilarity(a.Name, name)
		switch {
		case r > bestRatio:
			best, bestRatio, tied = i, r, false
		case r == bestRatio:
			tied = true
		}
	}
	if tied {
		return nil, nil
	}
	return &matches[best], nil
}

// LegLength returns the geodesic distance in metres between two airports.
// Results are cached; reference data never changes at runtime.
func (d *Directory) LegLength(a, b string) (float64, error) {
	key := a + "-" + b
	d.mu.Lock()
	if v, ok := d.legLengths[key]; ok {
		d.mu.Unlock()
		return v, nil
	}
	d.mu.Unlock()

	origin, err := d.Airport(a)
	if err != nil {
		return 0, err
	}
	destination, err := d.Airport(b)
	if err != nil {
		return 0, err
	}
	if origin == nil || destination == nil {
		return 0, fmt.Errorf("unknown airport in leg %s", key)
	}

	length := geodesy.Distance(
		origin.Latitude, origin.Longitude,
		destination.Latitude, destination.Longitude)

	d.mu.Lock()
	d.legLengths[key] = length
	d.mu.Unlock()
	return length, nil
}

// RouteLength returns the summed leg length in metres of a route given as
// ICAO codes joined by "-". Routes with fewer than two codes are an error.
func (d *Directory) RouteLength(route string) (float64, error) {
	codes := strings.Split(route, "-")
	if len(codes) < 2 {
		return 0, fmt.Errorf("route %q has fewer than two codes", route)
	}
	var total float64
	for i := 0; i < len(codes)-1; i++ {
		length, err := d.LegLength(codes[i], codes[i+1])
		if err != nil {
			return 0, err
		}
		total += length
	}
	return total, nil
}
