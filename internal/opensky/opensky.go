// Package opensky is a client for the OpenSky Network REST API: live state
// vectors for the position feed and per-aircraft flight history for the
// route oracle.
package opensky

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"flight_matcher/internal/position"
)

const (
	defaultBaseURL  = "https://opensky-network.org/api"
	defaultTokenURL = "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"
)

// Config holds API endpoint and credential settings. With a client id and
// secret the client uses OAuth2 client credentials; with a username and
// password it falls back to basic auth; anonymous access works with tighter
// rate limits.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// Client talks to the OpenSky REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient returns a Client for the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// StateResponse is one /states/all answer: the server time and the raw
// state vectors already lifted out of their positional JSON arrays.
type StateResponse struct {
	Time   int64
	States []position.RawState
}

// States fetches the current state vectors.
func (c *Client) States(ctx context.Context) (*StateResponse, error) {
	var raw struct {
		Time   int64   `json:"time"`
		States [][]any `json:"states"`
	}
	if err := c.get(ctx, "/states/all", nil, &raw); err != nil {
		return nil, err
	}

	resp := &StateResponse{Time: raw.Time}
	for _, vec := range raw.States {
		resp.States = append(resp.States, decodeStateVector(vec))
	}
	return resp, nil
}

// FlightRecord is one historical flight from the /flights endpoints.
type FlightRecord struct {
	ICAO24           string `json:"icao24"`
	Callsign         string `json:"callsign"`
	FirstSeen        int64  `json:"firstSeen"`
	LastSeen         int64  `json:"lastSeen"`
	DepartureAirport string `json:"estDepartureAirport"`
	ArrivalAirport   string `json:"estArrivalAirport"`
}

// FlightsByAircraft fetches the flights one airframe flew in the given UTC
// second interval. OpenSky limits the interval to 30 days.
func (c *Client) FlightsByAircraft(ctx context.Context, icao24 string, begin, end int64) ([]FlightRecord, error) {
	params := url.Values{}
	params.Set("icao24", strings.ToLower(icao24))
	params.Set("begin", fmt.Sprintf("%d", begin))
	params.Set("end", fmt.Sprintf("%d", end))

	var flights []FlightRecord
	if err := c.get(ctx, "/flights/aircraft", params, &flights); err != nil {
		return nil, err
	}
	for i := range flights {
		flights[i].Callsign = strings.TrimSpace(flights[i].Callsign)
	}
	return flights, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.cfg.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("opensky: %w", err)
	}
	req.Header.Set("User-Agent", "flight_matcher/1.0")

	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("opensky: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("opensky: HTTP %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("opensky: decode error: %w", err)
	}
	return nil
}

// authorize attaches credentials to the request, fetching or refreshing the
// OAuth2 token when client credentials are configured.
func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.cfg.ClientID == "" {
		if c.cfg.Username != "" {
			req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
		}
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || time.Now().After(c.tokenExpiry) {
		if err := c.fetchToken(ctx); err != nil {
			return err
		}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return nil
}

// fetchToken performs the client-credentials grant. Callers hold c.mu.
func (c *Client) fetchToken(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("opensky: token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("opensky: token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("opensky: token HTTP %d", resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("opensky: token decode: %w", err)
	}

	c.token = tok.AccessToken
	// Refresh a minute early so in-flight requests never carry an expired token.
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second)
	return nil
}

// decodeStateVector lifts one positional state array into a RawState.
// Indexes follow the OpenSky API: 0 icao24, 1 callsign, 3 time_position,
// 5 longitude, 6 latitude, 7 baro_altitude, 8 on_ground, 9 velocity,
// 10 true_track, 11 vertical_rate.
func decodeStateVector(vec []any) position.RawState {
	var s position.RawState
	if v, ok := index[string](vec, 0); ok {
		s.ICAO24 = v
	}
	if v, ok := index[string](vec, 1); ok {
		s.Callsign = &v
	}
	if v, ok := index[float64](vec, 3); ok {
		t := int64(v)
		s.TimePosition = &t
	}
	if v, ok := index[float64](vec, 5); ok {
		s.Longitude = &v
	}
	if v, ok := index[float64](vec, 6); ok {
		s.Latitude = &v
	}
	if v, ok := index[float64](vec, 7); ok {
		s.BaroAltitude = &v
	}
	if v, ok := index[bool](vec, 8); ok {
		s.OnGround = &v
	}
	if v, ok := index[float64](vec, 9); ok {
		s.Velocity = &v
	}
	if v, ok := index[float64](vec, 10); ok {
		s.Heading = &v
	}
	if v, ok := index[float64](vec, 11); ok {
		s.VerticalRate = &v
	}
	return s
}

func index[T any](vec []any, i int) (T, bool) {
	var zero T
	if i >= len(vec) || vec[i] == nil {
		return zero, false
	}
	v, ok := vec[i].(T)
	return v, ok
}
