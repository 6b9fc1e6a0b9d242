// Package oracle answers one question from long-term historical data: has
// this callsign ever been seen flying this route? The matcher uses it to
// separate plausible candidates from coincidental geometry.
package oracle

import (
	"context"
	"log"
	"sort"
)

// Provider is one historical route source.
type Provider interface {
	// Name returns the source name for logging.
	Name() string

	// HasFlown reports whether the source has seen the callsign flying
	// exactly this route before.
	HasFlown(ctx context.Context, callsign, route string) (bool, error)
}

// Filter queries all configured providers.
type Filter struct {
	providers []Provider
}

// NewFilter returns a Filter over the given providers. An empty provider
// list confirms nothing.
func NewFilter(providers ...Provider) *Filter {
	return &Filter{providers: providers}
}

// Confirm returns the candidates any provider has seen on the route, in
// sorted order. Provider errors are logged and treated as "not seen"; a
// broken history source must not stall matching.
func (f *Filter) Confirm(ctx context.Context, candidates map[string]bool, route string) []string {
	var confirmed []string
	for callsign := range candidates {
		for _, p := range f.providers {
			seen, err := p.HasFlown(ctx, callsign, route)
			if err != nil {
				log.Printf("oracle: %s failed for %s on %s: %v", p.Name(), callsign, route, err)
				continue
			}
			if seen {
				confirmed = append(confirmed, callsign)
				break
			}
		}
	}
	sort.Strings(confirmed)
	return confirmed
}
