package opensky

import (
	"context"
	"log"
	"strings"
	"time"

	"flight_matcher/internal/position"
)

// SnapshotPublisher receives the validated snapshot of each polling cycle.
// *kv.Client satisfies it.
type SnapshotPublisher interface {
	PublishSnapshot(snap *position.Snapshot) error
}

// Worker polls the live state feed on a fixed period, validates the raw
// states, and publishes one whole snapshot per cycle.
type Worker struct {
	client        *Client
	publisher     SnapshotPublisher
	policy        position.Policy
	registrations position.RegistrationLookup

	// Period is the polling interval; MaxAge drops observations whose
	// position timestamp lags the feed time by more than this.
	Period time.Duration
	MaxAge time.Duration
}

// NewWorker returns a Worker with the default 45 second cycle and 60 second
// observation age limit.
func NewWorker(client *Client, publisher SnapshotPublisher, policy position.Policy, registrations position.RegistrationLookup) *Worker {
	return &Worker{
		client:        client,
		publisher:     publisher,
		policy:        policy,
		registrations: registrations,
		Period:        45 * time.Second,
		MaxAge:        60 * time.Second,
	}
}

// Run polls until the context is cancelled. A failed cycle is logged and the
// next cycle retried on schedule; the feed regularly times out or rate
// limits and recovers on its own.
func (w *Worker) Run(ctx context.Context) {
	for {
		start := time.Now()
		if err := w.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("opensky: cycle failed: %v", err)
		}

		// Sleep out the remainder of the period; a slow cycle starts the
		// next one immediately.
		wait := w.Period - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (w *Worker) cycle(ctx context.Context) error {
	states, err := w.client.States(ctx)
	if err != nil {
		return err
	}

	snap := &position.Snapshot{
		Positions:  make(map[string]position.Observation),
		StatesTime: states.Time,
	}
	stale := 0
	for _, raw := range states.States {
		obs := position.Validate(raw, w.policy, w.registrations)
		if obs == nil {
			continue
		}
		if states.Time-obs.Time > int64(w.MaxAge.Seconds()) {
			stale++
			continue
		}
		snap.Positions[obs.Callsign] = *obs
	}

	if err := w.publisher.PublishSnapshot(snap); err != nil {
		return err
	}
	log.Printf("opensky: published %d positions (%d raw, %d stale)",
		len(snap.Positions), len(states.States), stale)
	return nil
}

// OperatorAircraft returns the distinct airframes of one operator seen in a
// snapshot, keyed by lowercased hardware id.
func OperatorAircraft(snap *position.Snapshot, operatorICAO string) map[string]bool {
	aircraft := make(map[string]bool)
	for _, obs := range snap.Positions {
		if obs.OperatorICAO == operatorICAO && obs.ICAO24 != "" {
			aircraft[strings.ToLower(obs.ICAO24)] = true
		}
	}
	return aircraft
}
