// Package position turns raw aircraft state vectors into validated
// observations and defines the snapshot format handed from the position-feed
// worker to the matcher.
package position

import (
	"math"

	"flight_matcher/internal/callsign"
)

// MaxFlightLevel is the highest plausible flight level for an airliner
// (Concorde ceiling).
const MaxFlightLevel = 600

// RawState is a single aircraft state vector as delivered by the position
// provider. Optional fields are pointers; a nil field means the provider did
// not report it.
type RawState struct {
	ICAO24       string
	Callsign     *string
	TimePosition *int64
	Latitude     *float64
	Longitude    *float64
	BaroAltitude *float64
	Heading      *float64
	VerticalRate *float64
	Velocity     *float64
	OnGround     *bool
}

// Observation is a validated aircraft state usable for route analysis.
type Observation struct {
	Callsign     string  `json:"callsign"`
	OperatorICAO string  `json:"operator_icao"`
	ICAO24       string  `json:"icao24"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Altitude     float64 `json:"altitude"`
	FlightLevel  int     `json:"flight_level"`
	Heading      float64 `json:"heading"`
	VerticalRate float64 `json:"vertical_rate"`
	Velocity     float64 `json:"velocity"`
	OnGround     bool    `json:"on_ground"`
	Time         int64   `json:"utc"`

	// CallsignNumber is the suffix as an integer for purely numeric
	// suffixes, nil otherwise.
	CallsignNumber *int `json:"callsign_number,omitempty"`

	// Registration is the aircraft registration when the hardware id is
	// known to the registration table.
	Registration string `json:"registration,omitempty"`
}

// Snapshot is the whole-value publication the position-feed worker hands to
// the matcher: every validated observation of one polling cycle keyed by
// canonical callsign, plus the provider's state time.
type Snapshot struct {
	Positions  map[string]Observation `json:"positions"`
	StatesTime int64                  `json:"states_time"`
}

// Policy controls which raw states Validate accepts.
type Policy struct {
	Callsign callsign.Policy

	// AllowOnGround accepts observations of aircraft on the ground.
	// Route verification mostly fails for those, so the default is off.
	AllowOnGround bool
}

// RegistrationLookup maps an aircraft hardware id (icao24) to its
// registration; empty string means unknown.
type RegistrationLookup interface {
	Registration(icao24 string) string
}

// Validate checks a raw state vector and returns a validated observation,
// or nil when the state is unusable: missing fields, a callsign that is not
// an airline callsign, an on-ground aircraft (unless permitted), or a flight
// level above the cap.
func Validate(state RawState, policy Policy, registrations RegistrationLookup) *Observation {
	if state.Callsign == nil {
		return nil
	}
	cs := callsign.Normalize(*state.Callsign, policy.Callsign)
	if cs == nil {
		return nil
	}

	if state.ICAO24 == "" || state.TimePosition == nil ||
		state.Latitude == nil || state.Longitude == nil ||
		state.BaroAltitude == nil || state.Heading == nil ||
		state.VerticalRate == nil || state.Velocity == nil ||
		state.OnGround == nil {
		return nil
	}

	if *state.OnGround && !policy.AllowOnGround {
		return nil
	}

	flightLevel := int(math.Round(*state.BaroAltitude / 0.3048 / 100))
	if flightLevel > MaxFlightLevel {
		return nil
	}

	obs := &Observation{
		Callsign:       cs.Callsign,
		OperatorICAO:   cs.OperatorICAO,
		ICAO24:         state.ICAO24,
		Latitude:       *state.Latitude,
		Longitude:      *state.Longitude,
		Altitude:       *state.BaroAltitude,
		FlightLevel:    flightLevel,
		Heading:        *state.Heading,
		VerticalRate:   *state.VerticalRate,
		Velocity:       *state.Velocity,
		OnGround:       *state.OnGround,
		Time:           *state.TimePosition,
		CallsignNumber: cs.Number,
	}

	if registrations != nil {
		obs.Registration = registrations.Registration(state.ICAO24)
	}

	return obs
}
