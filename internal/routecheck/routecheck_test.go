package routecheck

import (
	"testing"

	"flight_matcher/internal/position"
	"flight_matcher/internal/reference"
)

type fakeAirports map[string]*reference.Airport

func (f fakeAirports) Airport(icao string) (*reference.Airport, error) {
	return f[icao], nil
}

func testAirports() fakeAirports {
	return fakeAirports{
		"EDDF": {ICAO: "EDDF", Latitude: 50.0333, Longitude: 8.5706},
		"EGLL": {ICAO: "EGLL", Latitude: 51.4775, Longitude: -0.4614},
		"EDDH": {ICAO: "EDDH", Latitude: 53.6304, Longitude: 9.9882},
		"ENGM": {ICAO: "ENGM", Latitude: 60.1939, Longitude: 11.1004},
	}
}

func testChecker() *Checker {
	return New(testAirports(), DefaultThresholds())
}

// airborne returns an observation at the given point heading the given way.
func airborne(lat, lon, heading, verticalRate float64) *position.Observation {
	return &position.Observation{
		Callsign:     "DLH402",
		OperatorICAO: "DLH",
		Latitude:     lat,
		Longitude:    lon,
		Altitude:     10668,
		FlightLevel:  350,
		Heading:      heading,
		VerticalRate: verticalRate,
		Velocity:     250,
	}
}

func TestCheckLegEnRoute(t *testing.T) {
	// Mid-leg between Frankfurt and Heathrow, pointing at Heathrow.
	obs := airborne(50.85, 4.0, 285, 0)
	leg, err := testChecker().CheckLeg(obs, "EDDF", "EGLL")
	if err != nil {
		t.Fatalf("CheckLeg: %v", err)
	}
	if leg == nil {
		t.Fatal("leg = nil, want result")
	}
	if leg.CheckFailed {
		t.Errorf("en-route aircraft failed: %+v", leg)
	}
	if leg.Progress < 0.3 || leg.Progress > 0.7 {
		t.Errorf("progress = %v, want mid-leg", leg.Progress)
	}
	if leg.DeviationRatio > 0.1 {
		t.Errorf("deviation ratio = %v, want near zero", leg.DeviationRatio)
	}
}

func TestCheckLegAbsent(t *testing.T) {
	obs := airborne(50.85, 4.0, 285, 0)
	c := testChecker()

	leg, err := c.CheckLeg(obs, "EDDF", "ZZZZ")
	if err != nil || leg != nil {
		t.Errorf("unknown airport: leg = %+v, err = %v; want nil, nil", leg, err)
	}
	leg, err = c.CheckLeg(obs, "EDDF", "EDDF")
	if err != nil || leg != nil {
		t.Errorf("identical endpoints: leg = %+v, err = %v; want nil, nil", leg, err)
	}
}

func TestCheckLegFailures(t *testing.T) {
	tests := []struct {
		name string
		obs  *position.Observation
	}{
		// Over Madrid while supposedly flying Frankfurt-Heathrow.
		{"far off track", airborne(40.5, -3.6, 330, 0)},
		// Mid-leg, flying the opposite way.
		{"wrong heading", airborne(50.85, 4.0, 105, 0)},
		// Descending hard right after departure.
		{"descent too early", airborne(50.2, 7.9, 285, -10)},
		// Climbing hard on short final.
		{"climb too late", airborne(51.3, -0.1, 285, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leg, err := testChecker().CheckLeg(tt.obs, "EDDF", "EGLL")
			if err != nil {
				t.Fatalf("CheckLeg: %v", err)
			}
			if leg == nil {
				t.Fatal("leg = nil, want result")
			}
			if !leg.CheckFailed {
				t.Errorf("check passed: %+v", leg)
			}
		})
	}
}

func TestCheckLegOnGround(t *testing.T) {
	c := testChecker()

	// Parked at the origin airport.
	atOrigin := airborne(50.035, 8.57, 0, 0)
	atOrigin.OnGround = true
	atOrigin.FlightLevel = 0
	leg, err := c.CheckLeg(atOrigin, "EDDF", "EGLL")
	if err != nil || leg == nil {
		t.Fatalf("CheckLeg: %+v, %v", leg, err)
	}
	if leg.CheckFailed {
		t.Errorf("on-ground at origin failed: %+v", leg)
	}

	// On the ground far from both endpoints.
	elsewhere := airborne(50.85, 4.0, 285, 0)
	elsewhere.OnGround = true
	leg, err = c.CheckLeg(elsewhere, "EDDF", "EGLL")
	if err != nil || leg == nil {
		t.Fatalf("CheckLeg: %+v, %v", leg, err)
	}
	if !leg.CheckFailed {
		t.Errorf("on-ground mid-leg passed: %+v", leg)
	}
}

func TestCheckRoutePicksLeg(t *testing.T) {
	// Midway between Hamburg and Oslo on the second leg of a two-leg route.
	obs := airborne(56.9, 10.5, 10, 0)
	leg, err := testChecker().CheckRoute(obs, "EDDF-EDDH-ENGM")
	if err != nil {
		t.Fatalf("CheckRoute: %v", err)
	}
	if leg == nil {
		t.Fatal("leg = nil, want result")
	}
	if leg.CheckFailed {
		t.Errorf("check failed: %+v", leg)
	}
	if leg.Origin != "EDDH" || leg.Destination != "ENGM" {
		t.Errorf("picked leg %s-%s, want EDDH-ENGM", leg.Origin, leg.Destination)
	}
	if leg.Route != "EDDF-EDDH-ENGM" {
		t.Errorf("route = %q, want full route", leg.Route)
	}
}

func TestCheckRouteRejections(t *testing.T) {
	obs := airborne(50.85, 4.0, 285, 0)
	c := testChecker()

	if _, err := c.CheckRoute(obs, "EDDF"); err == nil {
		t.Error("single-code route must fail")
	}
	leg, err := c.CheckRoute(obs, "EDDF-EDDF")
	if err != nil || leg != nil {
		t.Errorf("A-A route: leg = %+v, err = %v; want nil, nil", leg, err)
	}
	leg, err = c.CheckRoute(obs, "EDDF-ZZZZ-EGLL")
	if err != nil || leg != nil {
		t.Errorf("unknown airport: leg = %+v, err = %v; want nil, nil", leg, err)
	}
}

func TestCheckRouteHeadingFallback(t *testing.T) {
	// Over Madrid: every leg fails on geometry, so the result is the leg
	// whose heading error is smallest, still marked failed.
	obs := airborne(40.5, -3.6, 330, 0)
	leg, err := testChecker().CheckRoute(obs, "EDDF-EDDH-ENGM")
	if err != nil {
		t.Fatalf("CheckRoute: %v", err)
	}
	if leg == nil {
		t.Fatal("leg = nil, want result")
	}
	if !leg.CheckFailed {
		t.Errorf("check passed over Madrid: %+v", leg)
	}
}

func TestHeadingError(t *testing.T) {
	tests := []struct {
		heading, bearing, want float64
	}{
		{90, 90, 0},
		{10, 350, 20},
		{350, 10, 20},
		{180, 0, 180},
		{0, 180, 180},
		{270, 45, 135},
	}
	for _, tt := range tests {
		if got := headingError(tt.heading, tt.bearing); got != tt.want {
			t.Errorf("headingError(%v, %v) = %v, want %v", tt.heading, tt.bearing, got, tt.want)
		}
	}
}
