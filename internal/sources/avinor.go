package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flight_matcher/internal/schedule"
)

const avinorURL = "https://flydata.avinor.no/XmlFeed.asp"

// avinorAirports is the IATA codes of the network's airports; the feed is
// queried once per airport.
var avinorAirports = []string{
	"AES", "ANX", "ALF", "FDE", "BNN", "BOO", "BGO", "KRS", "EVE", "FRO",
	"OSL", "HAU", "KKN", "MOL", "MJF", "HOV", "MQN", "SDN", "SVJ", "SKN",
	"SSJ", "TOS", "TRF", "TRD", "VDS", "VRY", "SVG",
}

// Avinor reads the Norwegian airport network's public XML flight feed.
type Avinor struct {
	resolver   Resolver
	httpClient *http.Client

	// BaseURL and Airports are overridable for tests.
	BaseURL  string
	Airports []string
}

// NewAvinor returns the Avinor adapter.
func NewAvinor(resolver Resolver) *Avinor {
	return &Avinor{
		resolver:   resolver,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		BaseURL:    avinorURL,
		Airports:   avinorAirports,
	}
}

func (a *Avinor) Name() string { return "avinor" }

// avinorFeed mirrors the XmlFeed document structure.
type avinorFeed struct {
	XMLName xml.Name       `xml:"airport"`
	Name    string         `xml:"name,attr"`
	Flights []avinorFlight `xml:"flights>flight"`
}

type avinorFlight struct {
	UniqueID     string       `xml:"uniqueID,attr"`
	Airline      string       `xml:"airline"`
	FlightID     string       `xml:"flight_id"`
	ScheduleTime string       `xml:"schedule_time"`
	ArrDep       string       `xml:"arr_dep"`
	Airport      string       `xml:"airport"`
	ViaAirport   string       `xml:"via_airport"`
	Status       avinorStatus `xml:"status"`
}

type avinorStatus struct {
	Code string `xml:"code,attr"`
	Time string `xml:"time,attr"`
}

var avinorStatusCodes = map[string]string{
	"A": "arrived",
	"C": "cancelled",
	"D": "departed",
	"E": "new_time",
	"N": "new_info",
}

// Fetch queries every network airport and merges the results, marking
// shorter reports of the same multi-stop service redundant.
func (a *Avinor) Fetch(ctx context.Context, now time.Time) ([]schedule.Flight, error) {
	var flights []schedule.Flight
	for _, iata := range a.Airports {
		airportFlights, err := a.fetchAirport(ctx, iata)
		if err != nil {
			// One unreachable airport must not lose the rest of the network.
			log.Printf("avinor: %s: %v", iata, err)
			continue
		}
		flights = append(flights, airportFlights...)
	}
	markRedundant(flights)
	return flights, nil
}

func (a *Avinor) fetchAirport(ctx context.Context, iata string) ([]schedule.Flight, error) {
	params := url.Values{}
	params.Set("airport", iata)
	params.Set("TimeFrom", "36")
	params.Set("TimeTo", "36")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var feed avinorFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return a.parseFeed(iata, &feed)
}

// parseFeed turns one airport's feed into flights. Rows that cannot be
// resolved are skipped with a log line; the feed mixes in helicopter shuttle
// and general aviation rows that have no airline schedule.
func (a *Avinor) parseFeed(airportIATA string, feed *avinorFeed) ([]schedule.Flight, error) {
	airportCode, err := airportICAO(a.resolver, airportIATA)
	if err != nil {
		return nil, err
	}

	var flights []schedule.Flight
	for _, row := range feed.Flights {
		designator, number, err := splitFlightID(row.FlightID)
		if err != nil {
			continue
		}
		iata, icao, err := resolveOperator(a.resolver, designator, number)
		if err != nil {
			log.Printf("avinor: operator information incomplete for %s: %v", row.FlightID, err)
			continue
		}

		otherCode, err := airportICAO(a.resolver, row.Airport)
		if err != nil {
			log.Printf("avinor: %v", err)
			continue
		}
		var stopovers []string
		if row.ViaAirport != "" {
			ok := true
			for _, via := range strings.Split(row.ViaAirport, ",") {
				viaCode, err := airportICAO(a.resolver, via)
				if err != nil {
					log.Printf("avinor: %v", err)
					ok = false
					break
				}
				stopovers = append(stopovers, viaCode)
			}
			if !ok {
				continue
			}
		}

		// The status time supersedes the scheduled time when present.
		when, err := avinorTime(row)
		if err != nil {
			log.Printf("avinor: bad time for %s: %v", row.FlightID, err)
			continue
		}
		// The flight key carries the scheduled day; rows missing the
		// schedule time fall back to the status time's day.
		day, err := time.Parse(time.RFC3339, row.ScheduleTime)
		if err != nil {
			day = when
		}
		ts := when.Unix()

		f := schedule.Flight{
			Source:       a.Name(),
			AirlineIATA:  iata,
			AirlineICAO:  icao,
			FlightNumber: number,
			Status:       avinorStatusCodes[row.Status.Code],
			Cancelled:    row.Status.Code == "C",
		}
		switch row.ArrDep {
		case "A":
			f.Route = joinRoute(append([]string{otherCode}, append(stopovers, airportCode)...)...)
			f.Arrival = &ts
		case "D":
			f.Route = joinRoute(append([]string{airportCode}, append(stopovers, otherCode)...)...)
			f.Departure = &ts
		default:
			continue
		}
		f.ID = flightKey(iata, number, day.UTC(), f.Route)
		flights = append(flights, f)
	}
	return flights, nil
}

func avinorTime(row avinorFlight) (time.Time, error) {
	if row.Status.Time != "" {
		return time.Parse(time.RFC3339, row.Status.Time)
	}
	return time.Parse(time.RFC3339, row.ScheduleTime)
}
