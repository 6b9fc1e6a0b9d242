// Package schedule models scheduled flights from external feeds and decides
// which of them are plausibly in the air at a given moment.
package schedule

import (
	"context"
	"time"
)

// Flight is one scheduled flight as reported by a data source.
type Flight struct {
	// ID is the source's stable identifier for this flight instance.
	ID string

	Source       string
	AirlineIATA  string
	AirlineICAO  string
	FlightNumber int
	Route        string

	// Departure and Arrival are UTC second timestamps; a source reports at
	// least one of them.
	Departure *int64
	Arrival   *int64

	Status    string
	Cancelled bool
	Diverted  bool

	// Redundant marks a flight another source already covers; Overlap marks
	// the same flight reported by both endpoints of a leg.
	Redundant bool
	Overlap   bool
}

// Source is a schedule feed adapter. Each adapter owns its format quirks
// and timezone handling and emits flights with UTC timestamps; deciding
// which of them are airborne is the Collection's job.
type Source interface {
	// Name returns the stable feed name used as storage key.
	Name() string

	// Fetch returns the flights the feed publishes around the given time.
	Fetch(ctx context.Context, now time.Time) ([]Flight, error)
}

// MaxFlightDuration returns the generous upper bound in seconds for how long
// a flight over the given route length in metres can stay in the air,
// including taxi and holding slack.
func MaxFlightDuration(routeLength float64) float64 {
	return 0.00486*routeLength + 1500
}

// InBounds reports whether the flight is plausibly airborne at UTC second t.
// Cancelled and redundant flights are never in bounds. With only one
// endpoint known the other is bounded through MaxFlightDuration; an arrival
// is given 300 seconds of grace.
func InBounds(f Flight, routeLength float64, t int64) bool {
	if f.Cancelled || f.Redundant {
		return false
	}
	maxDuration := int64(MaxFlightDuration(routeLength))
	switch {
	case f.Departure != nil && f.Arrival != nil:
		return *f.Departure < t && t < *f.Arrival
	case f.Departure != nil:
		return *f.Departure < t && *f.Departure+maxDuration > t
	case f.Arrival != nil:
		return *f.Arrival > t-300 && *f.Arrival-maxDuration < t
	}
	return false
}

// EstimateProgress returns the time-based fraction of the flight already
// flown at UTC second t. With a single known endpoint the flight time is
// approximated by MaxFlightDuration. Callers only rely on it inside (0, 1);
// values outside mean the flight has not departed or has landed.
func EstimateProgress(f Flight, routeLength float64, t int64) float64 {
	maxDuration := MaxFlightDuration(routeLength)
	switch {
	case f.Departure != nil && f.Arrival != nil:
		if *f.Arrival == *f.Departure {
			return 0
		}
		return float64(t-*f.Departure) / float64(*f.Arrival-*f.Departure)
	case f.Departure != nil:
		return float64(t-*f.Departure) / maxDuration
	case f.Arrival != nil:
		return (float64(t) - (float64(*f.Arrival) - maxDuration)) / maxDuration
	}
	return 0
}
