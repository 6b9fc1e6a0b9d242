package sources

import (
	"encoding/json"
	"testing"
	"time"

	"flight_matcher/internal/reference"
	"flight_matcher/internal/schedule"
)

type fakeResolver struct{}

var fakeAirports = map[string]*reference.Airport{
	"OSL": {ICAO: "ENGM", IATA: "OSL", Timezone: "Europe/Oslo"},
	"LHR": {ICAO: "EGLL", IATA: "LHR", Timezone: "Europe/London"},
	"BGO": {ICAO: "ENBR", IATA: "BGO", Timezone: "Europe/Oslo"},
	"FRA": {ICAO: "EDDF", IATA: "FRA", Timezone: "Europe/Berlin"},
	"MUC": {ICAO: "EDDM", IATA: "MUC", Timezone: "Europe/Berlin"},
	"JFK": {ICAO: "KJFK", IATA: "JFK", Timezone: "America/New_York"},
	"PMI": {ICAO: "LEPA", IATA: "PMI", Timezone: "Europe/Madrid"},
}

var fakeAirlines = map[string]*reference.Airline{
	"SK": {ICAO: "SAS", IATA: "SK", Name: "Scandinavian Airlines"},
	"LH": {ICAO: "DLH", IATA: "LH", Name: "Lufthansa"},
	"BA": {ICAO: "BAW", IATA: "BA", Name: "British Airways"},
	"X3": {ICAO: "TUI", IATA: "X3", Name: "TUIfly"},
}

func (fakeResolver) Airport(icao string) (*reference.Airport, error) {
	for _, a := range fakeAirports {
		if a.ICAO == icao {
			return a, nil
		}
	}
	return nil, nil
}

func (fakeResolver) AirportByIATA(iata string) (*reference.Airport, error) {
	return fakeAirports[iata], nil
}

func (fakeResolver) AirlineByIATA(iata string, hints reference.AirlineHints) (*reference.Airline, error) {
	return fakeAirlines[iata], nil
}

func (fakeResolver) AirlineByICAO(icao string) (*reference.Airline, error) {
	for _, a := range fakeAirlines {
		if a.ICAO == icao {
			return a, nil
		}
	}
	return nil, nil
}

func TestSplitFlightID(t *testing.T) {
	tests := []struct {
		id     string
		prefix string
		number int
		ok     bool
	}{
		{"SK263", "SK", 263, true},
		{"DLH8100", "DLH", 8100, true},
		{" SK263 ", "SK", 263, true},
		{"WF90B", "", 0, false},
		{"SK", "", 0, false},
	}
	for _, tt := range tests {
		prefix, number, err := splitFlightID(tt.id)
		if tt.ok != (err == nil) {
			t.Errorf("splitFlightID(%q) err = %v", tt.id, err)
			continue
		}
		if prefix != tt.prefix || number != tt.number {
			t.Errorf("splitFlightID(%q) = %q, %d", tt.id, prefix, number)
		}
	}
}

func TestMarkRedundant(t *testing.T) {
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	short := schedule.Flight{
		ID: flightKey("SK", 263, day, "ENGM-EGLL"),
		AirlineIATA: "SK", FlightNumber: 263, Route: "ENGM-EGLL",
	}
	full := schedule.Flight{
		ID: flightKey("SK", 263, day, "ENBR-ENGM-EGLL"),
		AirlineIATA: "SK", FlightNumber: 263, Route: "ENBR-ENGM-EGLL",
	}
	other := schedule.Flight{
		ID: flightKey("BA", 761, day, "ENGM-EGLL"),
		AirlineIATA: "BA", FlightNumber: 761, Route: "ENGM-EGLL",
	}

	flights := []schedule.Flight{short, full, other}
	markRedundant(flights)

	if !flights[0].Redundant {
		t.Error("partial itinerary not marked redundant")
	}
	if flights[1].Redundant {
		t.Error("full itinerary marked redundant")
	}
	if flights[2].Redundant {
		t.Error("unrelated flight marked redundant")
	}
}

func TestAvinorParseFeed(t *testing.T) {
	feedXML := `<?xml version="1.0" encoding="ISO-8859-1"?>
<airport name="OSL">
  <flights lastUpdate="2026-08-24T10:00:00Z">
    <flight uniqueID="1">
      <airline>SK</airline>
      <flight_id>SK0263</flight_id>
      <schedule_time>2026-08-24T11:30:00Z</schedule_time>
      <arr_dep>D</arr_dep>
      <airport>LHR</airport>
    </flight>
    <flight uniqueID="2">
      <airline>BA</airline>
      <flight_id>BA761</flight_id>
      <schedule_time>2026-08-24T12:00:00Z</schedule_time>
      <arr_dep>A</arr_dep>
      <airport>LHR</airport>
      <status code="C"/>
    </flight>
    <flight uniqueID="3">
      <airline>SK</airline>
      <flight_id>SK4041</flight_id>
      <schedule_time>2026-08-24T13:00:00Z</schedule_time>
      <arr_dep>D</arr_dep>
      <airport>LHR</airport>
      <via_airport>BGO</via_airport>
    </flight>
    <flight uniqueID="4">
      <airline>WF</airline>
      <flight_id>WF90B</flight_id>
      <schedule_time>2026-08-24T13:30:00Z</schedule_time>
      <arr_dep>D</arr_dep>
      <airport>BGO</airport>
    </flight>
    <flight uniqueID="5">
      <airline>SK</airline>
      <flight_id>SK4043</flight_id>
      <arr_dep>D</arr_dep>
      <airport>LHR</airport>
      <status code="E" time="2026-08-25T09:10:00Z"/>
    </flight>
  </flights>
</airport>`

	a := NewAvinor(fakeResolver{})
	var feed avinorFeed
	if err := decodeXMLString(feedXML, &feed); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	flights, err := a.parseFeed("OSL", &feed)
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if len(flights) != 4 {
		t.Fatalf("flights = %+v", flights)
	}

	dep := flights[0]
	if dep.AirlineICAO != "SAS" || dep.FlightNumber != 263 || dep.Route != "ENGM-EGLL" {
		t.Errorf("departure = %+v", dep)
	}
	if dep.Departure == nil || dep.Arrival != nil {
		t.Errorf("departure times = %v, %v", dep.Departure, dep.Arrival)
	}
	want := time.Date(2026, 8, 24, 11, 30, 0, 0, time.UTC).Unix()
	if *dep.Departure != want {
		t.Errorf("departure = %d, want %d", *dep.Departure, want)
	}

	arr := flights[1]
	if arr.Route != "EGLL-ENGM" || !arr.Cancelled {
		t.Errorf("arrival = %+v", arr)
	}
	if arr.Arrival == nil || arr.Departure != nil {
		t.Errorf("arrival times = %v, %v", arr.Departure, arr.Arrival)
	}

	via := flights[2]
	if via.Route != "ENGM-ENBR-EGLL" {
		t.Errorf("via route = %q", via.Route)
	}

	// A row without a schedule time keys on the status time's day instead
	// of the zero date.
	rescheduled := flights[3]
	if rescheduled.ID != "SK_4043_2026-08-25_ENGM-EGLL" {
		t.Errorf("rescheduled ID = %q", rescheduled.ID)
	}
	want = time.Date(2026, 8, 25, 9, 10, 0, 0, time.UTC).Unix()
	if rescheduled.Departure == nil || *rescheduled.Departure != want {
		t.Errorf("rescheduled departure = %v, want %d", rescheduled.Departure, want)
	}
}

func TestFMOParseBoard(t *testing.T) {
	boardXML := `<?xml version="1.0"?>
<Flights>
  <Flight>
    <ID>fmo-1</ID>
    <FTYP>D</FTYP>
    <FNR>LH 2073</FNR>
    <CITY3>MUC</CITY3>
    <VIA3></VIA3>
    <STD_DATE>24.08.2026</STD_DATE>
    <STD_TIME>10:00</STD_TIME>
    <REM_CODE>BOR</REM_CODE>
  </Flight>
  <Flight>
    <ID>fmo-2</ID>
    <FTYP>A</FTYP>
    <FNR>X3 2135</FNR>
    <CITY3>PMI</CITY3>
    <VIA3></VIA3>
    <STD_DATE>24.08.2026</STD_DATE>
    <STD_TIME>11:15</STD_TIME>
    <ETD_DATE>24.08.2026</ETD_DATE>
    <ETD_TIME>11:40</ETD_TIME>
    <REM_CODE>DLY</REM_CODE>
  </Flight>
  <Flight>
    <ID>fmo-3</ID>
    <FTYP>D</FTYP>
    <FNR>DLH2075</FNR>
    <CITY3>MUC</CITY3>
    <STD_DATE>24.08.2026</STD_DATE>
    <STD_TIME>12:00</STD_TIME>
  </Flight>
</Flights>`

	f, err := NewFMO(fakeResolver{})
	if err != nil {
		t.Fatalf("NewFMO: %v", err)
	}
	var board fmoBoard
	if err := decodeXMLString(boardXML, &board); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	flights := f.parseBoard(&board)
	if len(flights) != 2 {
		t.Fatalf("flights = %+v", flights)
	}

	dep := flights[0]
	if dep.Route != "EDDG-EDDM" || dep.AirlineICAO != "DLH" || dep.FlightNumber != 2073 {
		t.Errorf("departure = %+v", dep)
	}
	berlin, _ := time.LoadLocation("Europe/Berlin")
	want := time.Date(2026, 8, 24, 10, 0, 0, 0, berlin).Unix()
	if dep.Departure == nil || *dep.Departure != want {
		t.Errorf("departure time = %v, want %d", dep.Departure, want)
	}
	if dep.Status != "boarding" {
		t.Errorf("status = %q", dep.Status)
	}

	// The delayed arrival uses the estimated time.
	arr := flights[1]
	if arr.Route != "LEPA-EDDG" {
		t.Errorf("arrival = %+v", arr)
	}
	want = time.Date(2026, 8, 24, 11, 40, 0, 0, berlin).Unix()
	if arr.Arrival == nil || *arr.Arrival != want {
		t.Errorf("arrival time = %v, want %d", arr.Arrival, want)
	}
}

func TestLUXParseBoard(t *testing.T) {
	boardJSON := `{
	  "arrivals": [
	    {
	      "flightNumber": "LH404",
	      "airlineName": "Lufthansa",
	      "airportName": "Frankfurt",
	      "airportStepover": "",
	      "scheduledDate": "2026-08-24",
	      "scheduledTime": "10:30",
	      "estimatedTime": "",
	      "statusCode": "4",
	      "remarks": "Scheduled"
	    },
	    {
	      "flightNumber": "SK4755",
	      "airlineName": "Scandinavian Airlines",
	      "airportName": "Oslo",
	      "airportStepover": "",
	      "scheduledDate": "2026-08-24",
	      "scheduledTime": "12:05",
	      "estimatedTime": "",
	      "statusCode": "99",
	      "remarks": "Diverted"
	    },
	    {
	      "flightNumber": "BA991",
	      "airlineName": "British Airways",
	      "airportName": "Atlantis",
	      "airportStepover": "",
	      "scheduledDate": "2026-08-24",
	      "scheduledTime": "13:00",
	      "estimatedTime": "",
	      "statusCode": "4",
	      "remarks": "Scheduled"
	    }
	  ],
	  "departures": [
	    {
	      "flightNumber": "LH404",
	      "airlineName": "Lufthansa",
	      "airportName": "Frankfurt",
	      "airportStepover": "",
	      "scheduledDate": "2026-08-24",
	      "scheduledTime": "18:00",
	      "estimatedTime": "",
	      "statusCode": "8",
	      "remarks": "Cancelled"
	    },
	    {
	      "flightNumber": "X32135",
	      "airlineName": "TUIfly",
	      "airportName": "Palma de Mallorca",
	      "airportStepover": "Palma de Mallorca <span>via</span> Munich",
	      "scheduledDate": "2026-08-24",
	      "scheduledTime": "11:15",
	      "estimatedTime": "11:40",
	      "statusCode": "2",
	      "remarks": "Delayed"
	    }
	  ]
	}`

	l, err := NewLUX(fakeResolver{})
	if err != nil {
		t.Fatalf("NewLUX: %v", err)
	}
	var board luxBoard
	if err := json.Unmarshal([]byte(boardJSON), &board); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	flights := l.parseBoard(&board)
	if len(flights) != 4 {
		t.Fatalf("flights = %+v", flights)
	}
	lux, _ := time.LoadLocation("Europe/Luxembourg")

	arr := flights[0]
	if arr.Route != "EDDF-ELLX" || arr.AirlineICAO != "DLH" || arr.FlightNumber != 404 {
		t.Errorf("arrival = %+v", arr)
	}
	if arr.ID != "LH_404_2026-08-24_EDDF-ELLX" {
		t.Errorf("arrival ID = %q", arr.ID)
	}
	want := time.Date(2026, 8, 24, 10, 30, 0, 0, lux).Unix()
	if arr.Arrival == nil || *arr.Arrival != want {
		t.Errorf("arrival time = %v, want %d", arr.Arrival, want)
	}
	if !arr.Overlap {
		t.Error("flight number on both boards not flagged")
	}

	// A status code outside the table falls back to the remark text.
	if flights[1].Status != "diverted" {
		t.Errorf("status = %q", flights[1].Status)
	}

	dep := flights[2]
	if dep.Route != "ELLX-EDDF" || !dep.Cancelled || dep.Departure == nil {
		t.Errorf("departure = %+v", dep)
	}

	// The delayed departure routes over its stopover and uses the
	// estimated time.
	via := flights[3]
	if via.Route != "ELLX-EDDM-LEPA" || via.Status != "delayed" {
		t.Errorf("via departure = %+v", via)
	}
	want = time.Date(2026, 8, 24, 11, 40, 0, 0, lux).Unix()
	if via.Departure == nil || *via.Departure != want {
		t.Errorf("via departure time = %v, want %d", via.Departure, want)
	}
}

func TestHAMParseFlight(t *testing.T) {
	h := NewHAM(fakeResolver{}, "test-key")
	iata := "LH"
	origin := "FRA"
	planned := "2026-08-24T14:40:00.000+02:00[EUROPE/BERLIN]"
	expected := "2026-08-24T15:05:00.000+02:00[EUROPE/BERLIN]"

	row := hamFlight{
		FlightNumber:       "LH 036",
		AirlineIATA:        &iata,
		OriginIATA:         &origin,
		PlannedArrivalTime: &planned,
		StatusArrival:      "expected",
	}
	f := h.parseFlight(row, false, map[string]bool{"LH 036": true})
	if f == nil {
		t.Fatal("arrival rejected")
	}
	if f.Route != "EDDF-EDDH" || f.AirlineICAO != "DLH" || f.FlightNumber != 36 {
		t.Errorf("flight = %+v", f)
	}
	if !f.Overlap {
		t.Error("overlap flag lost")
	}
	berlin, _ := time.LoadLocation("Europe/Berlin")
	want := time.Date(2026, 8, 24, 14, 40, 0, 0, berlin).Unix()
	if f.Arrival == nil || *f.Arrival != want {
		t.Errorf("arrival = %v, want %d", f.Arrival, want)
	}

	// The expected time supersedes the planned one.
	row.ExpectedArrivalTime = &expected
	f = h.parseFlight(row, false, nil)
	want = time.Date(2026, 8, 24, 15, 5, 0, 0, berlin).Unix()
	if f == nil || f.Arrival == nil || *f.Arrival != want {
		t.Errorf("expected arrival = %+v, want %d", f, want)
	}

	// Codeshare rows without an airline designator are dropped.
	row.AirlineIATA = nil
	if f = h.parseFlight(row, false, nil); f != nil {
		t.Errorf("flight without airline parsed: %+v", f)
	}
}
