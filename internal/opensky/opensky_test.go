package opensky

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"flight_matcher/internal/position"
)

func TestDecodeStateVector(t *testing.T) {
	vec := []any{
		"3c6675", "DLH402  ", "Germany", float64(1700000000), float64(1700000001),
		8.6, 50.1, 10668.0, false, 250.0, 285.0, 0.5,
	}
	s := decodeStateVector(vec)

	if s.ICAO24 != "3c6675" {
		t.Errorf("icao24 = %q", s.ICAO24)
	}
	if s.Callsign == nil || *s.Callsign != "DLH402  " {
		t.Errorf("callsign = %v", s.Callsign)
	}
	if s.TimePosition == nil || *s.TimePosition != 1700000000 {
		t.Errorf("time position = %v", s.TimePosition)
	}
	if s.Longitude == nil || *s.Longitude != 8.6 {
		t.Errorf("longitude = %v", s.Longitude)
	}
	if s.Latitude == nil || *s.Latitude != 50.1 {
		t.Errorf("latitude = %v", s.Latitude)
	}
	if s.BaroAltitude == nil || *s.BaroAltitude != 10668.0 {
		t.Errorf("baro altitude = %v", s.BaroAltitude)
	}
	if s.OnGround == nil || *s.OnGround {
		t.Errorf("on ground = %v", s.OnGround)
	}
	if s.Heading == nil || *s.Heading != 285.0 {
		t.Errorf("heading = %v", s.Heading)
	}
	if s.VerticalRate == nil || *s.VerticalRate != 0.5 {
		t.Errorf("vertical rate = %v", s.VerticalRate)
	}
}

func TestDecodeStateVectorNulls(t *testing.T) {
	// Transponders without a position fix report nulls past the callsign.
	vec := []any{"3c6675", nil, "Germany", nil, nil, nil, nil, nil, nil, nil, nil, nil}
	s := decodeStateVector(vec)
	if s.Callsign != nil || s.TimePosition != nil || s.Latitude != nil {
		t.Errorf("nulls decoded as values: %+v", s)
	}

	// Short vectors must not panic.
	s = decodeStateVector([]any{"3c6675"})
	if s.ICAO24 != "3c6675" || s.Callsign != nil {
		t.Errorf("short vector: %+v", s)
	}
}

func TestStates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/states/all" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"time": 1700000000,
			"states": [][]any{
				{"3c6675", "DLH402  ", "Germany", 1700000000, 1700000001,
					8.6, 50.1, 10668.0, false, 250.0, 285.0, 0.5},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	resp, err := c.States(context.Background())
	if err != nil {
		t.Fatalf("States: %v", err)
	}
	if resp.Time != 1700000000 || len(resp.States) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.States[0].ICAO24 != "3c6675" {
		t.Errorf("state = %+v", resp.States[0])
	}
}

func TestClientCredentialsToken(t *testing.T) {
	tokens := 0
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		tokens++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1", "expires_in": 1800,
		})
	}))
	defer auth.Close()

	var seenAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"time": 1, "states": [][]any{}})
	}))
	defer api.Close()

	c := NewClient(Config{
		BaseURL:      api.URL,
		TokenURL:     auth.URL,
		ClientID:     "id",
		ClientSecret: "secret",
	})
	ctx := context.Background()
	if _, err := c.States(ctx); err != nil {
		t.Fatalf("States: %v", err)
	}
	if seenAuth != "Bearer tok-1" {
		t.Errorf("authorization = %q", seenAuth)
	}
	// A second call reuses the cached token.
	if _, err := c.States(ctx); err != nil {
		t.Fatalf("States: %v", err)
	}
	if tokens != 1 {
		t.Errorf("token fetched %d times, want 1", tokens)
	}
}

type capturePublisher struct {
	snap *position.Snapshot
}

func (p *capturePublisher) PublishSnapshot(s *position.Snapshot) error {
	p.snap = s
	return nil
}

func TestWorkerCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"time": 1700000000,
			"states": [][]any{
				// Fresh and valid.
				{"3c6675", "DLH402", "Germany", 1699999990, 1699999990,
					8.6, 50.1, 10668.0, false, 250.0, 285.0, 0.0},
				// Stale by more than the age limit.
				{"3c6676", "DLH403", "Germany", 1699999900, 1699999900,
					8.7, 50.2, 10668.0, false, 250.0, 285.0, 0.0},
				// Not an airline callsign.
				{"3c6677", "D-ABCD", "Germany", 1699999990, 1699999990,
					8.8, 50.3, 1000.0, false, 60.0, 90.0, 0.0},
			},
		})
	}))
	defer srv.Close()

	pub := &capturePublisher{}
	w := NewWorker(NewClient(Config{BaseURL: srv.URL}), pub, position.Policy{}, nil)
	if err := w.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if pub.snap == nil {
		t.Fatal("no snapshot published")
	}
	if pub.snap.StatesTime != 1700000000 {
		t.Errorf("states time = %d", pub.snap.StatesTime)
	}
	if len(pub.snap.Positions) != 1 {
		t.Fatalf("positions = %v", pub.snap.Positions)
	}
	if _, ok := pub.snap.Positions["DLH402"]; !ok {
		t.Errorf("validated observation missing: %v", pub.snap.Positions)
	}
}
