package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"flight_matcher/internal/schedule"
)

// LHCargo reads the Lufthansa Cargo schedule export: a semicolon-separated
// CSV covering a whole season, one row per flight segment with a
// day-of-week frequency mask. Times are local to the airports; the airport
// timezones come from the reference directory.
type LHCargo struct {
	resolver Resolver

	// Path is the CSV file location.
	Path string
}

// NewLHCargo returns the LH Cargo adapter.
func NewLHCargo(resolver Resolver, path string) *LHCargo {
	return &LHCargo{resolver: resolver, Path: path}
}

func (l *LHCargo) Name() string { return "lh_cargo" }

// truck services appear in the schedule with these equipment codes and are
// not flights.
var truckTypes = map[string]bool{"RFC": true, "RFS": true}

// Fetch extracts the flights operating on the given day. Segments of a
// multi-leg flight carry a segment number; when numbered segments exist the
// unnumbered summary row is dropped.
func (l *LHCargo) Fetch(ctx context.Context, now time.Time) ([]schedule.Flight, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("lh_cargo: %w", err)
	}
	defer f.Close()
	return l.parse(f, now.UTC())
}

type lhCargoRow struct {
	flight  schedule.Flight
	segment int
}

func (l *LHCargo) parse(r io.Reader, day time.Time) ([]schedule.Flight, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	// The first line names the schedule period, the second the columns.
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("lh_cargo: read period line: %w", err)
	}
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("lh_cargo: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	var rows []lhCargoRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("lh_cargo: read row: %w", err)
		}
		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		if _, err := strconv.Atoi(field("SNR")); err != nil {
			// Trailer and comment lines.
			continue
		}
		row, err := l.parseRow(field, day)
		if err != nil {
			log.Printf("lh_cargo: %v", err)
			continue
		}
		if row != nil {
			rows = append(rows, *row)
		}
	}

	return dropSummarySegments(rows), nil
}

var lhCargoDays = []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

func (l *LHCargo) parseRow(field func(string) string, day time.Time) (*lhCargoRow, error) {
	if truckTypes[field("ACtype")] {
		return nil, nil
	}
	flightID := field("FNR")
	if len(flightID) < 3 {
		return nil, fmt.Errorf("bad flight id %q", flightID)
	}
	number, err := strconv.Atoi(strings.TrimSpace(flightID[2:]))
	if err != nil {
		return nil, fmt.Errorf("bad flight id %q", flightID)
	}
	iata, icao, err := resolveOperator(l.resolver, field("AL"), number)
	if err != nil {
		return nil, err
	}

	origin, err := l.airportInfo(field("DEP"))
	if err != nil {
		return nil, err
	}
	destination, err := l.airportInfo(field("ARR"))
	if err != nil {
		return nil, err
	}

	originZone, err := time.LoadLocation(origin.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone of %s: %w", origin.ICAO, err)
	}
	destinationZone, err := time.LoadLocation(destination.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone of %s: %w", destination.ICAO, err)
	}

	// Operating period and weekday mask, evaluated in the origin's zone.
	start, err := parseOpDate(field("Start_Op"), originZone)
	if err != nil {
		return nil, fmt.Errorf("bad start of operation %q", field("Start_Op"))
	}
	end, err := parseOpDate(field("End_Op"), originZone)
	if err != nil {
		return nil, fmt.Errorf("bad end of operation %q", field("End_Op"))
	}
	end = end.AddDate(0, 0, 1)
	if day.Before(start) || !day.Before(end) {
		return nil, nil
	}
	var mask strings.Builder
	for _, d := range lhCargoDays {
		mask.WriteString(field(d))
	}
	if !strings.Contains(mask.String(), strconv.Itoa(isoWeekday(day))) {
		return nil, nil
	}

	// DDC and ADC shift departure and arrival dates relative to the
	// operating day of the schedule row.
	ddc, _ := strconv.Atoi(field("DDC"))
	adc, _ := strconv.Atoi(field("ADC"))
	departure, err := atLocalTime(day.AddDate(0, 0, ddc), field("STD"), originZone)
	if err != nil {
		return nil, fmt.Errorf("bad departure time %q", field("STD"))
	}
	arrival, err := atLocalTime(day.AddDate(0, 0, adc), field("STA"), destinationZone)
	if err != nil {
		return nil, fmt.Errorf("bad arrival time %q", field("STA"))
	}

	route := joinRoute(origin.ICAO, destination.ICAO)
	segment, _ := strconv.Atoi(field("SNR"))
	dep := departure.Unix()
	arr := arrival.Unix()
	return &lhCargoRow{
		flight: schedule.Flight{
			ID:           flightKey(iata, number, day, route),
			Source:       l.Name(),
			AirlineIATA:  iata,
			AirlineICAO:  icao,
			FlightNumber: number,
			Route:        route,
			Departure:    &dep,
			Arrival:      &arr,
		},
		segment: segment,
	}, nil
}

func (l *LHCargo) airportInfo(iata string) (*airportRef, error) {
	airport, err := l.resolver.AirportByIATA(iata)
	if err != nil {
		return nil, err
	}
	if airport == nil {
		return nil, fmt.Errorf("missing airport icao for %s", iata)
	}
	return &airportRef{ICAO: airport.ICAO, Timezone: airport.Timezone}, nil
}

type airportRef struct {
	ICAO     string
	Timezone string
}

// dropSummarySegments removes the segment-0 summary rows of flights that
// also appear with numbered segments.
func dropSummarySegments(rows []lhCargoRow) []schedule.Flight {
	segmented := make(map[string]bool)
	for _, r := range rows {
		if r.segment > 0 {
			segmented[fmt.Sprintf("%s_%d", r.flight.AirlineIATA, r.flight.FlightNumber)] = true
		}
	}
	var flights []schedule.Flight
	for _, r := range rows {
		if r.segment == 0 && segmented[fmt.Sprintf("%s_%d", r.flight.AirlineIATA, r.flight.FlightNumber)] {
			continue
		}
		flights = append(flights, r.flight)
	}
	return flights
}

// parseOpDate parses the schedule's "24AUG26" operating dates. The month
// abbreviation is uppercased in the export.
func parseOpDate(s string, zone *time.Location) (time.Time, error) {
	if len(s) == 7 {
		s = s[:2] + strings.ToUpper(s[2:3]) + strings.ToLower(s[3:5]) + s[5:]
	}
	return time.ParseInLocation("02Jan06", s, zone)
}

// atLocalTime combines a calendar day with a "15:04" clock reading in the
// given zone.
func atLocalTime(day time.Time, clock string, zone *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		t.Hour(), t.Minute(), 0, 0, zone), nil
}

func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
