// Package routecheck decides whether an aircraft observation is plausibly
// flying a given route, and on which leg of it.
package routecheck

import (
	"fmt"
	"math"
	"strings"

	"flight_matcher/internal/geodesy"
	"flight_matcher/internal/position"
	"flight_matcher/internal/reference"
)

// Thresholds parameterise the per-leg failure criteria. The zero value is
// unusable; use DefaultThresholds.
type Thresholds struct {
	// OnGroundDistance is the maximum distance in metres from either route
	// endpoint at which an on-ground observation is still acceptable.
	OnGroundDistance float64

	// MaxDeviation and MaxDeviationRatio fail a leg together: the detour
	// over the leg length must exceed both.
	MaxDeviation      float64
	MaxDeviationRatio float64

	// HardDeviationRatio fails a leg on its own.
	HardDeviationRatio float64

	// Two mid-leg heading rules. Each fires only inside its progress band
	// and outside a buffer around both endpoints, where headings are
	// dominated by departure turns and arrival procedures.
	HeadingA HeadingRule
	HeadingB HeadingRule

	// DescentProgress / DescentRate fail a leg that is descending fast
	// while still close to the origin.
	DescentProgress float64
	DescentRate     float64

	// ClimbProgress / ClimbRate fail a leg that is climbing fast while
	// already close to the destination.
	ClimbProgress float64
	ClimbRate     float64
}

// HeadingRule fails a leg whose heading points too far away from the
// destination while the aircraft is in the middle of the leg.
type HeadingRule struct {
	MinProgress        float64
	MaxProgress        float64
	MinOriginDistance  float64
	MinDestinationDist float64
	MaxErrorAngle      float64
}

// DefaultThresholds returns the tuned production criteria.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OnGroundDistance:   5000,
		MaxDeviation:       265e3,
		MaxDeviationRatio:  0.15,
		HardDeviationRatio: 0.6,
		HeadingA: HeadingRule{
			MinProgress:        0.12,
			MaxProgress:        0.85,
			MinOriginDistance:  81.5e3,
			MinDestinationDist: 77e3,
			MaxErrorAngle:      61.5,
		},
		HeadingB: HeadingRule{
			MinProgress:        0.10,
			MaxProgress:        0.85,
			MinOriginDistance:  25e3,
			MinDestinationDist: 41e3,
			MaxErrorAngle:      126,
		},
		DescentProgress: 0.20,
		DescentRate:     -5,
		ClimbProgress:   0.80,
		ClimbRate:       5.5,
	}
}

// LegResult is the outcome of checking one observation against one leg.
type LegResult struct {
	Route               string
	Origin              string
	Destination         string
	LegLength           float64
	Deviation           float64
	DeviationRatio      float64
	Progress            float64
	ErrorAngle          float64
	OriginDistance      float64
	DestinationDistance float64
	CheckFailed         bool
}

// AirportLocator resolves an airport code to its record, absent as nil.
// *reference.Directory satisfies it.
type AirportLocator interface {
	Airport(icao string) (*reference.Airport, error)
}

// Checker evaluates observations against routes using a reference directory
// for airport positions.
type Checker struct {
	airports   AirportLocator
	thresholds Thresholds
}

// New returns a Checker with the given airport source and thresholds.
func New(airports AirportLocator, thresholds Thresholds) *Checker {
	return &Checker{airports: airports, thresholds: thresholds}
}

// CheckLeg evaluates a single leg from origin to destination. It returns
// nil when either airport is unknown or origin equals destination; the
// observation geometry cannot be judged then.
func (c *Checker) CheckLeg(obs *position.Observation, origin, destination string) (*LegResult, error) {
	if origin == destination {
		return nil, nil
	}
	a, err := c.airports.Airport(origin)
	if err != nil {
		return nil, err
	}
	b, err := c.airports.Airport(destination)
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, nil
	}

	originDist := geodesy.Distance(a.Latitude, a.Longitude, obs.Latitude, obs.Longitude)
	toDestination := geodesy.Inverse(obs.Latitude, obs.Longitude, b.Latitude, b.Longitude)
	legLength := geodesy.Distance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
	if legLength == 0 {
		return nil, nil
	}

	destinationDist := toDestination.Distance
	deviation := originDist + destinationDist - legLength
	progress := 0.0
	if originDist+destinationDist > 0 {
		progress = originDist / (originDist + destinationDist)
	}
	errorAngle := headingError(obs.Heading, toDestination.InitialBearing)

	r := &LegResult{
		Route:               origin + "-" + destination,
		Origin:              origin,
		Destination:         destination,
		LegLength:           legLength,
		Deviation:           deviation,
		DeviationRatio:      deviation / legLength,
		Progress:            progress,
		ErrorAngle:          errorAngle,
		OriginDistance:      originDist,
		DestinationDistance: destinationDist,
	}

	t := c.thresholds
	switch {
	case obs.OnGround && originDist > t.OnGroundDistance && destinationDist > t.OnGroundDistance:
		r.CheckFailed = true
	case deviation > t.MaxDeviation && r.DeviationRatio > t.MaxDeviationRatio:
		r.CheckFailed = true
	case r.DeviationRatio > t.HardDeviationRatio:
		r.CheckFailed = true
	case t.HeadingA.fails(r):
		r.CheckFailed = true
	case t.HeadingB.fails(r):
		r.CheckFailed = true
	case progress < t.DescentProgress && obs.VerticalRate < t.DescentRate:
		r.CheckFailed = true
	case progress > t.ClimbProgress && obs.VerticalRate > t.ClimbRate:
		r.CheckFailed = true
	}
	return r, nil
}

func (h HeadingRule) fails(r *LegResult) bool {
	return r.Progress > h.MinProgress && r.Progress < h.MaxProgress &&
		r.OriginDistance > h.MinOriginDistance &&
		r.DestinationDistance > h.MinDestinationDist &&
		r.ErrorAngle > h.MaxErrorAngle
}

// CheckRoute evaluates a multi-leg route. The returned result carries the
// leg the aircraft is most plausibly flying: the single successful leg if
// exactly one succeeded, else the leg with the smallest detour, else by
// smallest heading error. A nil result means the route cannot be judged:
// too few codes, an A-A route, or an unknown airport on any leg.
func (c *Checker) CheckRoute(obs *position.Observation, route string) (*LegResult, error) {
	codes := strings.Split(route, "-")
	if len(codes) < 2 {
		return nil, fmt.Errorf("route %q has fewer than two codes", route)
	}
	if len(codes) == 2 && codes[0] == codes[1] {
		return nil, nil
	}

	legs := make([]*LegResult, 0, len(codes)-1)
	for i := 0; i < len(codes)-1; i++ {
		leg, err := c.CheckLeg(obs, codes[i], codes[i+1])
		if err != nil {
			return nil, err
		}
		if leg == nil {
			return nil, nil
		}
		leg.Route = route
		legs = append(legs, leg)
	}

	var succeeded *LegResult
	successes := 0
	for _, leg := range legs {
		if !leg.CheckFailed {
			succeeded = leg
			successes++
		}
	}
	if successes == 1 {
		return succeeded, nil
	}

	best := legs[0]
	for _, leg := range legs[1:] {
		if leg.Deviation < best.Deviation {
			best = leg
		}
	}
	if !best.CheckFailed {
		return best, nil
	}

	best = legs[0]
	for _, leg := range legs[1:] {
		if leg.ErrorAngle < best.ErrorAngle {
			best = leg
		}
	}
	return best, nil
}

// headingError returns the absolute angular difference in degrees between
// the aircraft heading and the bearing towards the destination, folded into
// [0, 180].
func headingError(heading, bearing float64) float64 {
	d := math.Mod(heading-bearing+180, 360)
	if d < 0 {
		d += 360
	}
	return math.Abs(d - 180)
}
