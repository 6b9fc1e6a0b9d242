// Package matcher assigns observed callsigns to scheduled flights. Per
// cycle it tries a direct hit on the scheduled callsign first, then the
// manual translation table, and finally searches the snapshot for a single
// geometrically and historically plausible candidate, accumulating
// candidate sets across cycles until the picture is unambiguous.
package matcher

import (
	"context"
	"fmt"
	"log"
	"time"

	"flight_matcher/internal/candidates"
	"flight_matcher/internal/position"
	"flight_matcher/internal/routecheck"
	"flight_matcher/internal/routestore"
	"flight_matcher/internal/schedule"
)

// RouteStore is the subset of the verified-route store the matcher writes.
type RouteStore interface {
	Put(ctx context.Context, b routestore.Binding, resetErrors bool) (bool, error)
	IncreaseError(ctx context.Context, callsign, route string) error
	RecentCallsigns(ctx context.Context, minTier, hours int) (map[string]bool, error)
}

// RouteChecker judges an observation against a route.
// *routecheck.Checker satisfies it.
type RouteChecker interface {
	CheckRoute(obs *position.Observation, route string) (*routecheck.LegResult, error)
}

// RouteLengths resolves a route to its length in metres.
type RouteLengths interface {
	RouteLength(route string) (float64, error)
}

// Oracle confirms candidates against long-term history.
// *oracle.Filter satisfies it.
type Oracle interface {
	Confirm(ctx context.Context, candidates map[string]bool, route string) []string
}

// Translations supplies the manual callsign override table.
// *kv.Client satisfies it.
type Translations interface {
	Translations() (map[string]string, error)
}

// EventLogger records match outcomes for offline analysis.
type EventLogger interface {
	Log(ctx context.Context, e Event)
}

// Event is one match decision.
type Event struct {
	Time         int64
	Source       string
	OperatorIATA string
	OperatorICAO string
	FlightNumber int
	Route        string
	Callsign     string
	Tier         int
	Outcome      string
	Candidates   int
}

// Outcome values.
const (
	OutcomeBound       = "bound"
	OutcomeCheckFailed = "check_failed"
	OutcomeAmbiguous   = "ambiguous"
)

// Config tunes the matching discipline.
type Config struct {
	// MinTier and RecentHours define the recent-bindings set: callsigns
	// bound at least this well within this window are not searched again.
	MinTier     int
	RecentHours int
}

// DefaultConfig returns the production matching parameters.
func DefaultConfig() Config {
	return Config{MinTier: routestore.TierConfirmed, RecentHours: 48}
}

// Matcher runs the per-cycle matching pass.
type Matcher struct {
	cfg          Config
	checker      RouteChecker
	store        RouteStore
	oracle       Oracle
	lengths      RouteLengths
	translations Translations
	sets         *candidates.Store
	events       EventLogger
}

// New returns a Matcher. The event logger may be nil.
func New(cfg Config, checker RouteChecker, store RouteStore, oracle Oracle,
	lengths RouteLengths, translations Translations, sets *candidates.Store,
	events EventLogger) *Matcher {
	return &Matcher{
		cfg:          cfg,
		checker:      checker,
		store:        store,
		oracle:       oracle,
		lengths:      lengths,
		translations: translations,
		sets:         sets,
		events:       events,
	}
}

// RunCycle matches one snapshot against the active flights of every source.
// Flight-level failures are logged and do not abort the cycle.
func (m *Matcher) RunCycle(ctx context.Context, snap *position.Snapshot, flights map[string][]schedule.Flight) error {
	recent, err := m.store.RecentCallsigns(ctx, m.cfg.MinTier, m.cfg.RecentHours)
	if err != nil {
		return fmt.Errorf("load recent callsigns: %w", err)
	}
	translations, err := m.translations.Translations()
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}

	for source, active := range flights {
		for _, f := range active {
			if err := m.matchFlight(ctx, snap, f, recent, translations); err != nil {
				log.Printf("matcher: %s %s%d: %v", source, f.AirlineIATA, f.FlightNumber, err)
			}
		}
	}
	m.sets.Sweep()
	return nil
}

func (m *Matcher) matchFlight(ctx context.Context, snap *position.Snapshot, f schedule.Flight,
	recent map[string]bool, translations map[string]string) error {

	assumed := fmt.Sprintf("%s%d", f.AirlineICAO, f.FlightNumber)
	translated := translations[assumed]

	// Direct match tiers.
	if obs, ok := snap.Positions[assumed]; ok {
		return m.bindDirect(ctx, &obs, f, routestore.TierDirect)
	}
	if recent[assumed] {
		// Already known and not currently airborne under that callsign.
		return nil
	}
	if translated != "" {
		if obs, ok := snap.Positions[translated]; ok {
			return m.bindDirect(ctx, &obs, f, routestore.TierTranslated)
		}
		if recent[translated] {
			return nil
		}
	}

	return m.search(ctx, snap, f, recent)
}

// bindDirect verifies the geometry of a directly identified callsign and
// writes the binding, or charges an error against it.
func (m *Matcher) bindDirect(ctx context.Context, obs *position.Observation, f schedule.Flight, tier int) error {
	leg, err := m.checker.CheckRoute(obs, f.Route)
	if err != nil {
		return err
	}
	if leg == nil {
		return nil
	}
	if leg.CheckFailed {
		m.logEvent(ctx, f, obs.Callsign, tier, OutcomeCheckFailed, 0)
		return m.store.IncreaseError(ctx, obs.Callsign, f.Route)
	}
	return m.bind(ctx, f, obs.Callsign, tier, true)
}

// search scans the snapshot for operator aircraft that fit the route
// geometry, accumulates them across cycles, and binds once exactly one
// plausible candidate remains.
func (m *Matcher) search(ctx context.Context, snap *position.Snapshot, f schedule.Flight, recent map[string]bool) error {
	length, err := m.lengths.RouteLength(f.Route)
	if err != nil {
		return err
	}
	timeProgress := schedule.EstimateProgress(f, length, snap.StatesTime)

	candidatesKey := fmt.Sprintf("candidates:%s_%d_%s", f.AirlineIATA, f.FlightNumber, f.Route)
	failedKey := fmt.Sprintf("failed_candidates:%s_%d_%s", f.AirlineIATA, f.FlightNumber, f.Route)

	for callsign, obs := range snap.Positions {
		if obs.OperatorICAO != f.AirlineICAO || recent[callsign] {
			continue
		}
		obs := obs
		leg, err := m.checker.CheckRoute(&obs, f.Route)
		if err != nil {
			return err
		}
		if leg == nil {
			continue
		}
		if leg.CheckFailed {
			m.sets.Add(failedKey, callsign)
			if err := m.store.IncreaseError(ctx, callsign, f.Route); err != nil {
				return err
			}
			continue
		}
		// Geometry alone is not enough: the aircraft's position along the
		// leg must roughly agree with the schedule. Being somewhat early is
		// tolerated more than being ahead of it.
		lag := leg.Progress - timeProgress
		if lag > -0.4 && lag < 0.2 {
			m.sets.Add(candidatesKey, callsign)
		}
	}

	// Only decide mid-flight; before that the sets are still filling, and
	// after the arrival the aircraft is gone.
	if timeProgress <= 0.1 || timeProgress >= 1 {
		return nil
	}

	members := m.sets.Members(candidatesKey)
	if len(members) == 0 {
		return nil
	}

	first := make(map[string]bool)
	second := make(map[string]bool)
	for callsign := range members {
		if recent[callsign] {
			continue
		}
		if m.sets.Contains(failedKey, callsign) {
			second[callsign] = true
		} else {
			first[callsign] = true
		}
	}

	// Everything accumulated may have bound recently; that is not an
	// ambiguity, just nothing left to decide.
	if len(first) == 0 && len(second) == 0 {
		return nil
	}

	confirmed := m.oracle.Confirm(ctx, first, f.Route)
	if len(confirmed) == 1 {
		return m.bind(ctx, f, confirmed[0], routestore.TierConfirmed, false)
	}
	if len(confirmed) == 0 {
		confirmed = m.oracle.Confirm(ctx, second, f.Route)
		if len(confirmed) == 1 {
			return m.bind(ctx, f, confirmed[0], routestore.TierGuessed, false)
		}
	}

	log.Printf("matcher: ambiguous %s%d on %s: %d candidates, %d confirmed",
		f.AirlineIATA, f.FlightNumber, f.Route, len(first)+len(second), len(confirmed))
	m.logEvent(ctx, f, "", 0, OutcomeAmbiguous, len(first)+len(second))
	return nil
}

func (m *Matcher) bind(ctx context.Context, f schedule.Flight, callsign string, tier int, resetErrors bool) error {
	accepted, err := m.store.Put(ctx, routestore.Binding{
		Callsign:     callsign,
		Route:        f.Route,
		Source:       f.Source,
		OperatorICAO: f.AirlineICAO,
		OperatorIATA: f.AirlineIATA,
		FlightNumber: f.FlightNumber,
		Quality:      tier,
	}, resetErrors)
	if err != nil {
		return err
	}
	if accepted {
		log.Printf("matcher: bound %s to %s%d on %s (tier %d)",
			callsign, f.AirlineIATA, f.FlightNumber, f.Route, tier)
		m.logEvent(ctx, f, callsign, tier, OutcomeBound, 0)
	}
	return nil
}

func (m *Matcher) logEvent(ctx context.Context, f schedule.Flight, callsign string, tier int, outcome string, candidateCount int) {
	if m.events == nil {
		return
	}
	m.events.Log(ctx, Event{
		Time:         time.Now().Unix(),
		Source:       f.Source,
		OperatorIATA: f.AirlineIATA,
		OperatorICAO: f.AirlineICAO,
		FlightNumber: f.FlightNumber,
		Route:        f.Route,
		Callsign:     callsign,
		Tier:         tier,
		Outcome:      outcome,
		Candidates:   candidateCount,
	})
}
