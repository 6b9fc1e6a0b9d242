package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flight_matcher/internal/schedule"
)

const fmoURL = "https://service.fmo.de/arrdep1.xml"

// FMO reads the Münster/Osnabrück airport's arrival and departure board.
// All board times are local Europe/Berlin.
type FMO struct {
	resolver   Resolver
	httpClient *http.Client
	location   *time.Location

	BaseURL string
}

// NewFMO returns the FMO adapter.
func NewFMO(resolver Resolver) (*FMO, error) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	return &FMO{
		resolver:   resolver,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		location:   loc,
		BaseURL:    fmoURL,
	}, nil
}

func (f *FMO) Name() string { return "fmo" }

type fmoBoard struct {
	XMLName xml.Name    `xml:"Flights"`
	Flights []fmoFlight `xml:"Flight"`
}

type fmoFlight struct {
	ID      string `xml:"ID"`
	Type    string `xml:"FTYP"`
	Number  string `xml:"FNR"`
	City    string `xml:"CITY3"`
	Via     string `xml:"VIA3"`
	STDDate string `xml:"STD_DATE"`
	STDTime string `xml:"STD_TIME"`
	ETDDate string `xml:"ETD_DATE"`
	ETDTime string `xml:"ETD_TIME"`
	ATDDate string `xml:"ATD_DATE"`
	ATDTime string `xml:"ATD_TIME"`
	Remark  string `xml:"REM_CODE"`
}

var fmoStatusCodes = map[string]string{
	"GTO":  "gate_open",
	"BOR":  "boarding",
	"GCL":  "gate_closed",
	"TXI":  "taxiing",
	"DEP":  "departed",
	"ARR":  "arrived",
	"DLY":  "delayed",
	"CXXT": "cancelled",
	"CXXO": "cancelled",
}

// Fetch reads and parses the current board.
func (f *FMO) Fetch(ctx context.Context, now time.Time) ([]schedule.Flight, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fmo: HTTP %d", resp.StatusCode)
	}

	var board fmoBoard
	if err := xml.NewDecoder(resp.Body).Decode(&board); err != nil {
		return nil, fmt.Errorf("fmo: decode board: %w", err)
	}
	return f.parseBoard(&board), nil
}

func (f *FMO) parseBoard(board *fmoBoard) []schedule.Flight {
	var flights []schedule.Flight
	for _, row := range board.Flights {
		// The board writes flight numbers as "LH 123"; rows without the
		// space are positioning flights.
		if len(row.Number) < 4 || row.Number[2] != ' ' {
			continue
		}
		iataCode := row.Number[:2]
		number, err := strconv.Atoi(strings.TrimSpace(row.Number[3:]))
		if err != nil {
			log.Printf("fmo: problem with %q", row.Number)
			continue
		}
		iata, icao, err := resolveOperator(f.resolver, iataCode, number)
		if err != nil {
			log.Printf("fmo: %v", err)
			continue
		}

		cityCode, err := airportICAO(f.resolver, row.City)
		if err != nil {
			log.Printf("fmo: %v", err)
			continue
		}
		via := ""
		if row.Via != "" {
			if via, err = airportICAO(f.resolver, row.Via); err != nil {
				log.Printf("fmo: %v", err)
				continue
			}
		}

		when := f.recentTimestamp(row)
		if when == nil {
			log.Printf("fmo: no usable time for %s", row.Number)
			continue
		}
		ts := when.Unix()

		flight := schedule.Flight{
			ID:           row.ID,
			Source:       f.Name(),
			AirlineIATA:  iata,
			AirlineICAO:  icao,
			FlightNumber: number,
			Status:       fmoStatus(row.Remark),
			Cancelled:    strings.HasPrefix(row.Remark, "CXX"),
		}
		if row.Type == "D" {
			flight.Route = joinRoute("EDDG", via, cityCode)
			flight.Departure = &ts
		} else {
			flight.Route = joinRoute(cityCode, via, "EDDG")
			flight.Arrival = &ts
		}
		flights = append(flights, flight)
	}
	return flights
}

// recentTimestamp picks the most recent known time: actual, then estimated,
// then scheduled.
func (f *FMO) recentTimestamp(row fmoFlight) *time.Time {
	pairs := [][2]string{
		{row.ATDDate, row.ATDTime},
		{row.ETDDate, row.ETDTime},
		{row.STDDate, row.STDTime},
	}
	for _, p := range pairs {
		if p[0] == "" {
			continue
		}
		when, err := time.ParseInLocation("02.01.2006 15:04", p[0]+" "+p[1], f.location)
		if err != nil {
			continue
		}
		return &when
	}
	return nil
}

func fmoStatus(code string) string {
	if s, ok := fmoStatusCodes[code]; ok {
		return s
	}
	return code
}
