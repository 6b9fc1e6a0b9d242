package oracle

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// VRSDatabase reads a Virtual Radar Server style standing-data export: a
// read-only SQLite file with one row per known callsign-route pair.
type VRSDatabase struct {
	db *sql.DB
}

// OpenVRS opens the standing-data file read-only.
func OpenVRS(path string) (*VRSDatabase, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open vrs db: %w", err)
	}
	return &VRSDatabase{db: db}, nil
}

// Close closes the database.
func (v *VRSDatabase) Close() error {
	return v.db.Close()
}

func (v *VRSDatabase) Name() string { return "vrs" }

// HasFlown reports whether the standing data lists the callsign with
// exactly this route. A stored A-B does not confirm a scheduled A-B-C;
// confirmation means the whole route, not a shared leg.
func (v *VRSDatabase) HasFlown(ctx context.Context, callsign, route string) (bool, error) {
	rows, err := v.db.QueryContext(ctx,
		"SELECT Route FROM flight_routes WHERE Callsign = ?", callsign)
	if err != nil {
		return false, fmt.Errorf("query vrs routes for %s: %w", callsign, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var stored string
		if err := rows.Scan(&stored); err != nil {
			return false, fmt.Errorf("scan vrs route: %w", err)
		}
		if stored == route {
			return true, nil
		}
	}
	return false, rows.Err()
}
