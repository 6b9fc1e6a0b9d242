package position

import (
	"encoding/json"
	"testing"

	"flight_matcher/internal/callsign"
)

func ptr[T any](v T) *T { return &v }

type fakeRegistrations map[string]string

func (f fakeRegistrations) Registration(icao24 string) string { return f[icao24] }

func validState() RawState {
	return RawState{
		ICAO24:       "3c6675",
		Callsign:     ptr("DLH402  "),
		TimePosition: ptr(int64(1700000000)),
		Latitude:     ptr(50.1),
		Longitude:    ptr(8.6),
		BaroAltitude: ptr(10668.0),
		Heading:      ptr(285.0),
		VerticalRate: ptr(0.0),
		Velocity:     ptr(250.0),
		OnGround:     ptr(false),
	}
}

func TestValidate(t *testing.T) {
	obs := Validate(validState(), Policy{}, fakeRegistrations{"3c6675": "D-AIMA"})
	if obs == nil {
		t.Fatal("valid state rejected")
	}
	if obs.Callsign != "DLH402" || obs.OperatorICAO != "DLH" {
		t.Errorf("callsign = %q operator = %q", obs.Callsign, obs.OperatorICAO)
	}
	if obs.CallsignNumber == nil || *obs.CallsignNumber != 402 {
		t.Errorf("callsign number = %v, want 402", obs.CallsignNumber)
	}
	if obs.FlightLevel != 350 {
		t.Errorf("flight level = %d, want 350", obs.FlightLevel)
	}
	if obs.Registration != "D-AIMA" {
		t.Errorf("registration = %q, want D-AIMA", obs.Registration)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawState)
	}{
		{"no callsign", func(s *RawState) { s.Callsign = nil }},
		{"bad callsign", func(s *RawState) { s.Callsign = ptr("D-AIMA") }},
		{"no position time", func(s *RawState) { s.TimePosition = nil }},
		{"no latitude", func(s *RawState) { s.Latitude = nil }},
		{"no longitude", func(s *RawState) { s.Longitude = nil }},
		{"no altitude", func(s *RawState) { s.BaroAltitude = nil }},
		{"no heading", func(s *RawState) { s.Heading = nil }},
		{"no vertical rate", func(s *RawState) { s.VerticalRate = nil }},
		{"no velocity", func(s *RawState) { s.Velocity = nil }},
		{"no ground flag", func(s *RawState) { s.OnGround = nil }},
		{"on ground", func(s *RawState) { s.OnGround = ptr(true) }},
		{"implausible altitude", func(s *RawState) { s.BaroAltitude = ptr(19000.0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validState()
			tt.mutate(&s)
			if obs := Validate(s, Policy{}, nil); obs != nil {
				t.Errorf("got %+v, want rejection", obs)
			}
		})
	}
}

func TestValidateOnGroundPermitted(t *testing.T) {
	s := validState()
	s.OnGround = ptr(true)
	s.BaroAltitude = ptr(0.0)
	obs := Validate(s, Policy{AllowOnGround: true}, nil)
	if obs == nil || !obs.OnGround {
		t.Fatalf("got %+v, want on-ground observation", obs)
	}
}

func TestValidateOperatorPolicy(t *testing.T) {
	policy := Policy{Callsign: callsign.Policy{
		AcceptedOperators: map[string]bool{"BAW": true},
	}}
	if obs := Validate(validState(), policy, nil); obs != nil {
		t.Errorf("operator outside accepted set passed: %+v", obs)
	}
}

// A canonical callsign survives a second pass through validation unchanged.
func TestValidateIdempotent(t *testing.T) {
	first := Validate(validState(), Policy{}, nil)
	if first == nil {
		t.Fatal("valid state rejected")
	}
	s := validState()
	s.Callsign = ptr(first.Callsign)
	second := Validate(s, Policy{}, nil)
	if second == nil || second.Callsign != first.Callsign {
		t.Errorf("re-validation changed callsign: %+v", second)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	obs := Validate(validState(), Policy{}, nil)
	snap := Snapshot{
		Positions:  map[string]Observation{obs.Callsign: *obs},
		StatesTime: 1700000000,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.StatesTime != snap.StatesTime {
		t.Errorf("states time = %d", got.StatesTime)
	}
	if got.Positions["DLH402"].FlightLevel != 350 {
		t.Errorf("positions lost: %+v", got.Positions)
	}
}
