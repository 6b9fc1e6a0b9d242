package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flight_matcher/internal/schedule"
)

const hamURL = "https://rest.api.hamburg-airport.de/v2/flights"

// HAM reads the Hamburg airport REST API. Arrivals and departures are
// separate endpoints; a flight number appearing on both boards is a through
// service and flagged as overlapping.
type HAM struct {
	resolver   Resolver
	httpClient *http.Client
	apiKey     string

	BaseURL string
}

// NewHAM returns the HAM adapter. The API needs a subscription key.
func NewHAM(resolver Resolver, apiKey string) *HAM {
	return &HAM{
		resolver:   resolver,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     apiKey,
		BaseURL:    hamURL,
	}
}

func (h *HAM) Name() string { return "ham" }

type hamFlight struct {
	FlightNumber          string  `json:"flightnumber"`
	AirlineIATA           *string `json:"airline2LCode"`
	OriginIATA            *string `json:"originAirport3LCode"`
	DestinationIATA       *string `json:"destinationAirport3LCode"`
	ViaIATA               *string `json:"viaAirport3LCode"`
	PlannedDepartureTime  *string `json:"plannedDepartureTime"`
	PlannedArrivalTime    *string `json:"plannedArrivalTime"`
	ExpectedDepartureTime *string `json:"expectedDepartureTime"`
	ExpectedArrivalTime   *string `json:"expectedArrivalTime"`
	StatusArrival         string  `json:"flightStatusArrival"`
	StatusDeparture       string  `json:"flightStatusDeparture"`
	Cancelled             bool    `json:"cancelled"`
	Diverted              bool    `json:"diverted"`
}

// Fetch reads both boards.
func (h *HAM) Fetch(ctx context.Context, now time.Time) ([]schedule.Flight, error) {
	arrivals, err := h.fetchBoard(ctx, "arrivals")
	if err != nil {
		return nil, err
	}
	departures, err := h.fetchBoard(ctx, "departures")
	if err != nil {
		return nil, err
	}

	overlapping := make(map[string]bool)
	arriving := make(map[string]bool)
	for _, row := range arrivals {
		arriving[row.FlightNumber] = true
	}
	for _, row := range departures {
		if arriving[row.FlightNumber] {
			overlapping[row.FlightNumber] = true
		}
	}

	var flights []schedule.Flight
	for _, row := range arrivals {
		if f := h.parseFlight(row, false, overlapping); f != nil {
			flights = append(flights, *f)
		}
	}
	for _, row := range departures {
		if f := h.parseFlight(row, true, overlapping); f != nil {
			flights = append(flights, *f)
		}
	}
	return flights, nil
}

func (h *HAM) fetchBoard(ctx context.Context, board string) ([]hamFlight, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		h.BaseURL+"/"+board, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Ocp-Apim-Subscription-Key", h.apiKey)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ham: HTTP %d for %s", resp.StatusCode, board)
	}

	var rows []hamFlight
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("ham: decode %s: %w", board, err)
	}
	return rows, nil
}

func (h *HAM) parseFlight(row hamFlight, departure bool, overlapping map[string]bool) *schedule.Flight {
	if row.AirlineIATA == nil || len(row.FlightNumber) < 4 {
		return nil
	}
	number, err := strconv.Atoi(strings.TrimSpace(row.FlightNumber[3:]))
	if err != nil {
		log.Printf("ham: problem with %q", row.FlightNumber)
		return nil
	}
	iata, icao, err := resolveOperator(h.resolver, *row.AirlineIATA, number)
	if err != nil {
		log.Printf("ham: %v", err)
		return nil
	}

	via := ""
	if row.ViaIATA != nil {
		if via, err = airportICAO(h.resolver, *row.ViaIATA); err != nil {
			log.Printf("ham: %v", err)
			return nil
		}
	}

	var route, status string
	if departure {
		if row.DestinationIATA == nil {
			return nil
		}
		dest, err := airportICAO(h.resolver, *row.DestinationIATA)
		if err != nil {
			log.Printf("ham: %v", err)
			return nil
		}
		route = joinRoute("EDDH", via, dest)
		status = row.StatusDeparture
	} else {
		if row.OriginIATA == nil {
			return nil
		}
		origin, err := airportICAO(h.resolver, *row.OriginIATA)
		if err != nil {
			log.Printf("ham: %v", err)
			return nil
		}
		route = joinRoute(origin, via, "EDDH")
		status = row.StatusArrival
	}

	day, ts, err := hamTimes(row, departure)
	if err != nil {
		log.Printf("ham: bad time for %s: %v", row.FlightNumber, err)
		return nil
	}

	f := &schedule.Flight{
		ID:           flightKey(iata, number, day, route),
		Source:       h.Name(),
		AirlineIATA:  iata,
		AirlineICAO:  icao,
		FlightNumber: number,
		Route:        route,
		Status:       status,
		Cancelled:    row.Cancelled,
		Diverted:     row.Diverted,
		Overlap:      overlapping[row.FlightNumber],
	}
	if departure {
		f.Departure = &ts
	} else {
		f.Arrival = &ts
	}
	return f
}

// hamTimes returns the flight's scheduled day and its best-known timestamp.
// The planned time fixes the day; the expected time supersedes it when set.
func hamTimes(row hamFlight, departure bool) (day time.Time, ts int64, err error) {
	planned, expected := row.PlannedArrivalTime, row.ExpectedArrivalTime
	if departure {
		planned, expected = row.PlannedDepartureTime, row.ExpectedDepartureTime
	}
	if planned == nil {
		return time.Time{}, 0, fmt.Errorf("no planned time")
	}
	when, err := parseHAMTime(*planned)
	if err != nil {
		return time.Time{}, 0, err
	}
	day = when.UTC()
	if expected != nil {
		if when, err = parseHAMTime(*expected); err != nil {
			return time.Time{}, 0, err
		}
	}
	return day, when.Unix(), nil
}

// parseHAMTime parses the API's "2023-01-11T14:40:00.000+01:00[EUROPE/BERLIN]"
// format; the bracketed zone name is redundant and dropped.
func parseHAMTime(s string) (time.Time, error) {
	if len(s) > 29 {
		s = s[:29]
	}
	return time.Parse("2006-01-02T15:04:05.000-07:00", s)
}
