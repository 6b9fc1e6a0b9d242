package opensky

import (
	"context"
	"log"
	"strings"

	"flight_matcher/internal/position"
)

// AircraftRegistration fetches the registration of one airframe from the
// metadata endpoint. An unknown airframe yields an empty string.
func (c *Client) AircraftRegistration(ctx context.Context, icao24 string) (string, error) {
	var meta struct {
		Registration string `json:"registration"`
	}
	err := c.get(ctx, "/metadata/aircraft/icao/"+strings.ToLower(icao24), nil, &meta)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(meta.Registration), nil
}

// MetadataWorker backfills the registration table from the metadata API,
// one snapshot at a time. Lookups are rate limited per pass; airframes the
// table already knows are skipped, so the table converges over a few cycles.
type MetadataWorker struct {
	client *Client
	table  *position.Registrations

	// Limit caps the lookups of one Backfill pass.
	Limit int
}

// NewMetadataWorker returns a MetadataWorker with the default pass limit.
func NewMetadataWorker(client *Client, table *position.Registrations) *MetadataWorker {
	return &MetadataWorker{client: client, table: table, Limit: 20}
}

// Backfill looks up the registrations missing from the snapshot and saves
// the extended table. Individual lookup failures are logged and skipped.
func (m *MetadataWorker) Backfill(ctx context.Context, snap *position.Snapshot) error {
	var missing []string
	for _, obs := range snap.Positions {
		if obs.ICAO24 == "" || obs.Registration != "" {
			continue
		}
		icao24 := strings.ToLower(obs.ICAO24)
		if m.table.Registration(icao24) != "" {
			continue
		}
		missing = append(missing, icao24)
		if len(missing) >= m.Limit {
			break
		}
	}
	if len(missing) == 0 {
		return nil
	}

	entries := make(map[string]string)
	for _, icao24 := range missing {
		reg, err := m.client.AircraftRegistration(ctx, icao24)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("opensky: metadata for %s: %v", icao24, err)
			continue
		}
		if reg != "" {
			entries[icao24] = reg
		}
	}
	if len(entries) == 0 {
		return nil
	}

	m.table.Update(entries)
	return m.table.Save()
}
