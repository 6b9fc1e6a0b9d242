// Package api provides REST API access to the verified callsign-route
// bindings.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"flight_matcher/internal/routestore"
)

// RouteStore is the subset of the binding store the API reads.
type RouteStore interface {
	ListByCallsign(ctx context.Context, callsign string) ([]routestore.Binding, error)
	FindByFlightNumber(ctx context.Context, operatorIATA string, flightNumber int) ([]routestore.Binding, error)
	RecentCallsigns(ctx context.Context, minTier, hours int) (map[string]bool, error)
}

// Server serves the routes API.
type Server struct {
	store       RouteStore
	port        int
	authEnabled bool
	apiKeys     map[string]bool
}

// Config holds configuration for the routes API server.
type Config struct {
	Port        int
	AuthEnabled bool
	APIKeys     []string
}

// NewServer creates a routes API server.
func NewServer(store RouteStore, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	return &Server{
		store:       store,
		port:        cfg.Port,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
	}
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for browser access.
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/", s.Router())
	})

	addr := ":" + strconv.Itoa(s.port)
	log.Printf("Routes API starting at http://localhost%s", addr)
	if s.authEnabled {
		log.Printf("Authentication: ENABLED (API key required)")
	} else {
		log.Printf("Authentication: DISABLED (open access)")
	}

	return http.ListenAndServe(addr, r)
}

// Router returns the configured chi router for embedding in other servers.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	if s.authEnabled {
		r.Use(s.authMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/routes/callsign/{callsign}", s.handleRoutesByCallsign)
	r.Get("/routes/flight/{operator}/{number}", s.handleRoutesByFlight)
	r.Get("/callsigns/recent", s.handleRecentCallsigns)

	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")

		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// BindingResponse is the JSON form of one verified binding.
type BindingResponse struct {
	Callsign     string `json:"callsign"`
	Route        string `json:"route"`
	Source       string `json:"source"`
	OperatorICAO string `json:"operator_icao"`
	OperatorIATA string `json:"operator_iata"`
	FlightNumber int    `json:"flight_number"`
	Quality      int    `json:"quality"`
	Errors       int    `json:"errors"`
	UpdateTime   string `json:"update_time"`
	ValidFrom    string `json:"valid_from"`
}

func bindingToResponse(b routestore.Binding) BindingResponse {
	return BindingResponse{
		Callsign:     b.Callsign,
		Route:        b.Route,
		Source:       b.Source,
		OperatorICAO: b.OperatorICAO,
		OperatorIATA: b.OperatorIATA,
		FlightNumber: b.FlightNumber,
		Quality:      b.Quality,
		Errors:       b.Errors,
		UpdateTime:   time.Unix(b.UpdateTime, 0).UTC().Format(time.RFC3339),
		ValidFrom:    time.Unix(b.ValidFrom, 0).UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRoutesByCallsign(w http.ResponseWriter, r *http.Request) {
	callsign := strings.ToUpper(chi.URLParam(r, "callsign"))
	if callsign == "" {
		writeError(w, http.StatusBadRequest, "callsign is required")
		return
	}

	bindings, err := s.store.ListByCallsign(r.Context(), callsign)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(bindings) == 0 {
		writeError(w, http.StatusNotFound, "No routes found for callsign")
		return
	}

	results := make([]BindingResponse, 0, len(bindings))
	for _, b := range bindings {
		results = append(results, bindingToResponse(b))
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleRoutesByFlight(w http.ResponseWriter, r *http.Request) {
	operator := strings.ToUpper(chi.URLParam(r, "operator"))
	numberStr := chi.URLParam(r, "number")

	number, err := strconv.Atoi(numberStr)
	if err != nil || operator == "" {
		writeError(w, http.StatusBadRequest, "operator and numeric flight number are required")
		return
	}

	bindings, err := s.store.FindByFlightNumber(r.Context(), operator, number)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(bindings) == 0 {
		writeError(w, http.StatusNotFound, "No routes found for flight")
		return
	}

	results := make([]BindingResponse, 0, len(bindings))
	for _, b := range bindings {
		results = append(results, bindingToResponse(b))
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleRecentCallsigns(w http.ResponseWriter, r *http.Request) {
	minTier := routestore.TierConfirmed
	if v := r.URL.Query().Get("min_tier"); v != "" {
		t, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min_tier must be numeric")
			return
		}
		minTier = t
	}
	hours := 48
	if v := r.URL.Query().Get("hours"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive number")
			return
		}
		hours = h
	}

	recent, err := s.store.RecentCallsigns(r.Context(), minTier, hours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	callsigns := make([]string, 0, len(recent))
	for cs := range recent {
		callsigns = append(callsigns, cs)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"callsigns": callsigns,
		"count":     len(callsigns),
	})
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
