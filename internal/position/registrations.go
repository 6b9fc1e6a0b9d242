package position

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Registrations is a file-backed table from aircraft hardware id (icao24,
// lowercased) to registration. The table is loaded once at start and may be
// extended at runtime from online metadata lookups.
type Registrations struct {
	path string

	mu       sync.RWMutex
	byICAO24 map[string]string
}

// LoadRegistrations reads the JSON table at path. A missing file yields an
// empty table; the feed works without registrations, they are decoration.
func LoadRegistrations(path string) (*Registrations, error) {
	r := &Registrations{path: path, byICAO24: make(map[string]string)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registrations: %w", err)
	}
	if err := json.Unmarshal(data, &r.byICAO24); err != nil {
		return nil, fmt.Errorf("parse registrations: %w", err)
	}

	for k, v := range r.byICAO24 {
		lower := strings.ToLower(k)
		if lower != k {
			delete(r.byICAO24, k)
			r.byICAO24[lower] = v
		}
	}
	return r, nil
}

// Registration returns the registration for a hardware id, or "".
func (r *Registrations) Registration(icao24 string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byICAO24[strings.ToLower(icao24)]
}

// Update merges fetched entries into the table. Empty registrations are
// ignored.
func (r *Registrations) Update(entries map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for icao24, reg := range entries {
		if reg == "" {
			continue
		}
		r.byICAO24[strings.ToLower(icao24)] = reg
	}
}

// Save writes the table back to its file.
func (r *Registrations) Save() error {
	r.mu.RLock()
	data, err := json.MarshalIndent(r.byICAO24, "", "  ")
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal registrations: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write registrations: %w", err)
	}
	return nil
}
