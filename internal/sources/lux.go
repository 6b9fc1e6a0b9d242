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

const luxURL = "https://www.lux-airport.lu/wp-content/themes/lux-airport/" +
	"flightsinfo.php?arrivalsDepartures_action=getArrivalsDepartures&lang=en"

// LUX reads the Luxembourg airport website's flight info endpoint: one JSON
// document carrying both boards. The feed names airports in prose, so a
// fixed table maps the names back to IATA codes; unknown names are logged
// and their rows skipped. All board times are local Europe/Luxembourg.
type LUX struct {
	resolver   Resolver
	httpClient *http.Client
	location   *time.Location

	BaseURL string
}

// NewLUX returns the LUX adapter.
func NewLUX(resolver Resolver) (*LUX, error) {
	loc, err := time.LoadLocation("Europe/Luxembourg")
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	return &LUX{
		resolver:   resolver,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		location:   loc,
		BaseURL:    luxURL,
	}, nil
}

func (l *LUX) Name() string { return "lux" }

type luxBoard struct {
	Arrivals   []luxFlight `json:"arrivals"`
	Departures []luxFlight `json:"departures"`
}

type luxFlight struct {
	FlightNumber    string `json:"flightNumber"`
	AirlineName     string `json:"airlineName"`
	AirportName     string `json:"airportName"`
	AirportStepover string `json:"airportStepover"`
	ScheduledDate   string `json:"scheduledDate"`
	ScheduledTime   string `json:"scheduledTime"`
	EstimatedTime   string `json:"estimatedTime"`
	StatusCode      string `json:"statusCode"`
	Remarks         string `json:"remarks"`
}

var luxStatusCodes = map[string]string{
	"1":  "closed",
	"2":  "delayed",
	"3":  "taxiing",
	"4":  "scheduled",
	"8":  "cancelled",
	"9":  "expected",
	"10": "take off",
	"11": "boarding",
	"12": "check-in",
	"13": "arrived",
}

// luxAirportNames maps the feed's prose airport names to IATA codes.
var luxAirportNames = map[string]string{
	"Zurich":               "ZRH",
	"Porto":                "OPO",
	"Frankfurt":            "FRA",
	"London-Heathrow":      "LHR",
	"Faro":                 "FAO",
	"Amsterdam":            "AMS",
	"Paris - CDG":          "CDG",
	"Toulouse Blagnac":     "TLS",
	"Podgorica":            "TGD",
	"Lisbon":               "LIS",
	"Madrid":               "MAD",
	"Belgrade":             "BEG",
	"Marseille":            "MRS",
	"Budapest":             "BUD",
	"Venice":               "VCE",
	"Munich":               "MUC",
	"Lanzarote":            "ACE",
	"Gran Canaria":         "LPA",
	"Barcelona":            "BCN",
	"Tenerife South-Reina": "TFS",
	"London-Stansted":      "STN",
	"Athens":               "ATH",
	"Milan-Bergamo":        "BGY",
	"Istanbul":             "IST",
	"Malta":                "MLA",
	"Nice":                 "NCE",
	"Stockholm-Arlanda":    "ARN",
	"London-City":          "LCY",
	"Dublin":               "DUB",
	"Milan-Malpensa":       "MXP",
	"Copenhagen":           "CPH",
	"Geneva":               "GVA",
	"Vienna":               "VIE",
	"Warsaw":               "WAW",
	"Hamburg":              "HAM",
	"Hurghada":             "HRG",
	"Rome-Fiumicino":       "FCO",
	"Berlin-Brandenburg":   "BER",
	"Djerba":               "DJE",
	"Palma de Mallorca":    "PMI",
	"Malaga":               "AGP",
	"Krakow":               "KRK",
	"Prague":               "PRG",
	"Oslo":                 "OSL",
	"Bucarest":             "OTP",
	"Dubai":                "DXB",
	"Bari":                 "BRI",
	"Bologna":              "BLQ",
	"Funchal":              "FNC",
	"San Pedro Airport":    "VXE",
	"Sal":                  "SID",
	"Montpellier":          "MPL",
	"Marsa-Alam":           "RMF",
	"Dakar":                "DSS",
	"Boa Vista":            "BVC",
	"Innsbruck":            "INN",
	"Fuerteventura":        "FUE",
	"Agadir":               "AGA",
}

// Fetch reads and parses both boards. Flight numbers appearing on both are
// flagged as overlapping.
func (l *LUX) Fetch(ctx context.Context, now time.Time) ([]schedule.Flight, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lux: HTTP %d", resp.StatusCode)
	}

	var board luxBoard
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		return nil, fmt.Errorf("lux: decode board: %w", err)
	}
	return l.parseBoard(&board), nil
}

func (l *LUX) parseBoard(board *luxBoard) []schedule.Flight {
	overlapping := make(map[string]bool)
	arriving := make(map[string]bool)
	for _, row := range board.Arrivals {
		arriving[row.FlightNumber] = true
	}
	for _, row := range board.Departures {
		if arriving[row.FlightNumber] {
			overlapping[row.FlightNumber] = true
		}
	}

	var flights []schedule.Flight
	for _, row := range board.Arrivals {
		if f := l.parseFlight(row, false, overlapping); f != nil {
			flights = append(flights, *f)
		}
	}
	for _, row := range board.Departures {
		if f := l.parseFlight(row, true, overlapping); f != nil {
			flights = append(flights, *f)
		}
	}
	return flights
}

func (l *LUX) parseFlight(row luxFlight, departure bool, overlapping map[string]bool) *schedule.Flight {
	if len(row.FlightNumber) < 3 {
		return nil
	}
	iataCode := row.FlightNumber[:2]
	number, err := strconv.Atoi(strings.TrimSpace(row.FlightNumber[2:]))
	if err != nil {
		log.Printf("lux: problem with %q", row.FlightNumber)
		return nil
	}
	iata, icao, err := resolveOperator(l.resolver, iataCode, number)
	if err != nil {
		log.Printf("lux: %v", err)
		return nil
	}

	otherCode, ok := l.namedAirportICAO(row.AirportName)
	if !ok {
		return nil
	}
	via := ""
	if row.AirportStepover != "" {
		parts := strings.Split(row.AirportStepover, " <span>via</span> ")
		if len(parts) < 2 {
			log.Printf("lux: unexpected stepover %q", row.AirportStepover)
			return nil
		}
		if via, ok = l.namedAirportICAO(parts[1]); !ok {
			return nil
		}
	}

	when, err := l.recentTimestamp(row)
	if err != nil {
		log.Printf("lux: bad time for %s: %v", row.FlightNumber, err)
		return nil
	}
	day, err := time.Parse("2006-01-02", row.ScheduledDate)
	if err != nil {
		log.Printf("lux: bad date for %s: %v", row.FlightNumber, err)
		return nil
	}
	ts := when.Unix()

	status := luxStatus(row.StatusCode, row.Remarks)
	f := schedule.Flight{
		Source:       l.Name(),
		AirlineIATA:  iata,
		AirlineICAO:  icao,
		FlightNumber: number,
		Status:       status,
		Cancelled:    status == "cancelled",
		Overlap:      overlapping[row.FlightNumber],
	}
	if departure {
		f.Route = joinRoute("ELLX", via, otherCode)
		f.Departure = &ts
	} else {
		f.Route = joinRoute(otherCode, via, "ELLX")
		f.Arrival = &ts
	}
	f.ID = flightKey(iata, number, day, f.Route)
	return &f
}

// namedAirportICAO maps a prose airport name to an ICAO code via the name
// table and the airport directory.
func (l *LUX) namedAirportICAO(name string) (string, bool) {
	iata, ok := luxAirportNames[name]
	if !ok {
		log.Printf("lux: airport %q is unknown", name)
		return "", false
	}
	code, err := airportICAO(l.resolver, iata)
	if err != nil {
		log.Printf("lux: %v", err)
		return "", false
	}
	return code, true
}

// recentTimestamp combines the scheduled date with the estimated time when
// one is set, otherwise with the scheduled time.
func (l *LUX) recentTimestamp(row luxFlight) (time.Time, error) {
	clock := row.ScheduledTime
	if row.EstimatedTime != "" {
		clock = row.EstimatedTime
	}
	return time.ParseInLocation("2006-01-02T15:04",
		row.ScheduledDate+"T"+clock, l.location)
}

// luxStatus translates a board status code, falling back to the row's own
// remark text for codes the table does not know.
func luxStatus(code, remarks string) string {
	if s, ok := luxStatusCodes[code]; ok {
		return s
	}
	return strings.ToLower(remarks)
}
