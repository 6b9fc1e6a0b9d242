// Command flight_matcher runs the matching daemon: it polls the live
// position feed, polls the schedule sources, and matches observed callsigns
// against scheduled flights to build the verified route table.
//
// Usage:
//
//	flight_matcher [options]
//
// Options:
//
//	-airports-db PATH     Airports SQLite database (env: AIRPORTS_DB)
//	-airlines-db PATH     Airlines SQLite database (env: AIRLINES_DB)
//	-vrs-db PATH          VRS standing data SQLite database, optional (env: VRS_DB)
//	-flightroute-db PATH  Flight route SQLite database, optional (env: FLIGHTROUTE_DB)
//	-registrations PATH   Registration table JSON file (env: REGISTRATIONS_FILE)
//	-pg-host HOST         PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT         PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB       PostgreSQL database (default: flight_matcher, env: POSTGRES_DATABASE)
//	-pg-user USER         PostgreSQL user (default: flight_matcher, env: POSTGRES_USER)
//	-pg-password PASS     PostgreSQL password (env: POSTGRES_PASSWORD)
//	-clickhouse-host H    ClickHouse host; empty disables event logging (env: CLICKHOUSE_HOST)
//	-nats-url URL         NATS server URL (env: NATS_URL)
//	-kv-bucket NAME       JetStream KV bucket (default: flight_matcher, env: KV_BUCKET)
//	-opensky-client-id    OpenSky OAuth2 client id (env: OPENSKY_CLIENT_ID)
//	-opensky-secret       OpenSky OAuth2 client secret (env: OPENSKY_CLIENT_SECRET)
//	-opensky-user         OpenSky username for basic auth (env: OPENSKY_USER)
//	-opensky-password     OpenSky password for basic auth (env: OPENSKY_PASSWORD)
//	-ham-api-key KEY      Hamburg airport API subscription key; empty disables (env: HAM_API_KEY)
//	-lh-cargo-csv PATH    Lufthansa Cargo schedule CSV; empty disables (env: LH_CARGO_CSV)
//	-anac                 Enable the Brazilian ANAC schedule register
//	-operators LIST       Comma-separated operator ICAOs to accept; empty accepts all
//	-match-period D       Matching cycle period (default: 45s)
//	-board-period D       Airport board polling period (default: 5m)
//	-bulk-period D        Bulk schedule polling period (default: 12h)
//	-history-period D     Oracle history refresh period (default: 6h)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"flight_matcher/internal/callsign"
	"flight_matcher/internal/candidates"
	"flight_matcher/internal/kv"
	"flight_matcher/internal/matcher"
	"flight_matcher/internal/matchlog"
	"flight_matcher/internal/opensky"
	"flight_matcher/internal/oracle"
	"flight_matcher/internal/position"
	"flight_matcher/internal/reference"
	"flight_matcher/internal/routecheck"
	"flight_matcher/internal/routestore"
	"flight_matcher/internal/schedule"
	"flight_matcher/internal/sources"
	"flight_matcher/internal/storage"
)

func main() {
	airportsDB := flag.String("airports-db", envOrDefault("AIRPORTS_DB", "airports.sqb"), "Airports SQLite database")
	airlinesDB := flag.String("airlines-db", envOrDefault("AIRLINES_DB", "airlines.sqb"), "Airlines SQLite database")
	vrsDB := flag.String("vrs-db", envOrDefault("VRS_DB", ""), "VRS standing data SQLite database (optional)")
	flightrouteDB := flag.String("flightroute-db", envOrDefault("FLIGHTROUTE_DB", ""), "Flight route SQLite database (optional)")
	registrationsFile := flag.String("registrations", envOrDefault("REGISTRATIONS_FILE", "registrations.json"), "Registration table JSON file")

	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "flight_matcher"), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "flight_matcher"), "PostgreSQL password")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", "flight_matcher"), "PostgreSQL database")

	chHost := flag.String("clickhouse-host", envOrDefault("CLICKHOUSE_HOST", ""), "ClickHouse host (empty disables event logging)")
	chPort := flag.Int("clickhouse-port", envOrDefaultInt("CLICKHOUSE_PORT", 9000), "ClickHouse port")
	chDB := flag.String("clickhouse-database", envOrDefault("CLICKHOUSE_DATABASE", "flight_matcher"), "ClickHouse database")
	chUser := flag.String("clickhouse-user", envOrDefault("CLICKHOUSE_USER", "default"), "ClickHouse user")
	chPassword := flag.String("clickhouse-password", envOrDefault("CLICKHOUSE_PASSWORD", ""), "ClickHouse password")

	natsURL := flag.String("nats-url", envOrDefault("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	kvBucket := flag.String("kv-bucket", envOrDefault("KV_BUCKET", "flight_matcher"), "JetStream KV bucket")

	osClientID := flag.String("opensky-client-id", envOrDefault("OPENSKY_CLIENT_ID", ""), "OpenSky OAuth2 client id")
	osSecret := flag.String("opensky-secret", envOrDefault("OPENSKY_CLIENT_SECRET", ""), "OpenSky OAuth2 client secret")
	osUser := flag.String("opensky-user", envOrDefault("OPENSKY_USER", ""), "OpenSky username")
	osPassword := flag.String("opensky-password", envOrDefault("OPENSKY_PASSWORD", ""), "OpenSky password")

	hamAPIKey := flag.String("ham-api-key", envOrDefault("HAM_API_KEY", ""), "Hamburg airport API key (empty disables)")
	lhCargoCSV := flag.String("lh-cargo-csv", envOrDefault("LH_CARGO_CSV", ""), "Lufthansa Cargo schedule CSV (empty disables)")
	anacEnabled := flag.Bool("anac", false, "Enable the ANAC schedule register")
	operators := flag.String("operators", envOrDefault("ACCEPTED_OPERATORS", ""), "Comma-separated operator ICAOs to accept (empty accepts all)")

	matchPeriod := flag.Duration("match-period", 45*time.Second, "Matching cycle period")
	boardPeriod := flag.Duration("board-period", 5*time.Minute, "Airport board polling period")
	bulkPeriod := flag.Duration("bulk-period", 12*time.Hour, "Bulk schedule polling period")
	historyPeriod := flag.Duration("history-period", 6*time.Hour, "Oracle history refresh period")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir, err := reference.Open(*airportsDB, *airlinesDB)
	if err != nil {
		fatal("open reference databases: %v", err)
	}
	defer dir.Close()

	pg, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
		Host:     *pgHost,
		Port:     *pgPort,
		Database: *pgDB,
		User:     *pgUser,
		Password: *pgPassword,
	})
	if err != nil {
		fatal("open PostgreSQL: %v", err)
	}
	defer pg.Close()

	scheduleStore := schedule.NewStore(pg.Pool())
	if err := scheduleStore.CreateSchema(ctx); err != nil {
		fatal("schedule schema: %v", err)
	}
	routeStore := routestore.NewStore(pg.Pool(), routestore.DefaultOutdatedAfter)
	if err := routeStore.CreateSchema(ctx); err != nil {
		fatal("route store schema: %v", err)
	}

	kvc, err := kv.Connect(*natsURL, *kvBucket)
	if err != nil {
		fatal("connect NATS: %v", err)
	}
	defer kvc.Close()

	// Event logging is optional; a nil logger discards events.
	var events *matchlog.Logger
	if *chHost != "" {
		conn, err := storage.OpenClickHouse(storage.ClickHouseConfig{
			Host:     *chHost,
			Port:     *chPort,
			Database: *chDB,
			User:     *chUser,
			Password: *chPassword,
		})
		if err != nil {
			fatal("open ClickHouse: %v", err)
		}
		events = matchlog.NewLogger(conn)
		if err := events.CreateSchema(ctx); err != nil {
			fatal("match log schema: %v", err)
		}
		go events.Run(ctx)
	}

	// Position feed.
	osClient := opensky.NewClient(opensky.Config{
		ClientID:     *osClientID,
		ClientSecret: *osSecret,
		Username:     *osUser,
		Password:     *osPassword,
	})
	registrations, err := position.LoadRegistrations(*registrationsFile)
	if err != nil {
		fatal("load registrations: %v", err)
	}
	policy := position.Policy{
		Callsign: callsign.Policy{AcceptedOperators: operatorSet(*operators)},
	}
	worker := opensky.NewWorker(osClient, kvc, policy, registrations)
	go worker.Run(ctx)
	metadata := opensky.NewMetadataWorker(osClient, registrations)

	// Route oracle.
	providers := []oracle.Provider{}
	if *vrsDB != "" {
		vrs, err := oracle.OpenVRS(*vrsDB)
		if err != nil {
			fatal("open VRS database: %v", err)
		}
		defer vrs.Close()
		providers = append(providers, vrs)
	}
	if *flightrouteDB != "" {
		fr, err := oracle.OpenFlightRoute(*flightrouteDB)
		if err != nil {
			fatal("open flight route database: %v", err)
		}
		defer fr.Close()
		providers = append(providers, fr)
	}
	history := oracle.NewHistory(pg.Pool(), osClient)
	if err := history.CreateSchema(ctx); err != nil {
		fatal("history schema: %v", err)
	}
	providers = append(providers, history)

	// Schedule sources.
	srcs := []schedule.Source{sources.NewAvinor(dir)}
	fmo, err := sources.NewFMO(dir)
	if err != nil {
		fatal("fmo source: %v", err)
	}
	srcs = append(srcs, fmo)
	lux, err := sources.NewLUX(dir)
	if err != nil {
		fatal("lux source: %v", err)
	}
	srcs = append(srcs, lux)
	if *hamAPIKey != "" {
		srcs = append(srcs, sources.NewHAM(dir, *hamAPIKey))
	}
	for _, src := range srcs {
		go pollSource(ctx, scheduleStore, src, *boardPeriod)
	}
	if *lhCargoCSV != "" {
		lh := sources.NewLHCargo(dir, *lhCargoCSV)
		srcs = append(srcs, lh)
		go pollSource(ctx, scheduleStore, lh, *bulkPeriod)
	}
	if *anacEnabled {
		anac := sources.NewANAC(dir)
		srcs = append(srcs, anac)
		go pollSource(ctx, scheduleStore, anac, *bulkPeriod)
	}

	go refreshHistory(ctx, kvc, scheduleStore, history, srcs, *historyPeriod)

	m := matcher.New(matcher.DefaultConfig(),
		routecheck.New(dir, routecheck.DefaultThresholds()),
		routeStore,
		oracle.NewFilter(providers...),
		dir,
		kvc,
		candidates.New(candidates.DefaultTTL),
		events,
	)

	collection := schedule.NewCollection(scheduleStore, dir)
	log.Printf("flight_matcher: %d schedule sources, matching every %s", len(srcs), *matchPeriod)
	matchLoop(ctx, m, kvc, collection, metadata, srcs, *matchPeriod)
}

// matchLoop runs one matching cycle per period; a slow cycle starts the next
// one immediately.
func matchLoop(ctx context.Context, m *matcher.Matcher, kvc *kv.Client,
	collection *schedule.Collection, metadata *opensky.MetadataWorker,
	srcs []schedule.Source, period time.Duration) {

	for {
		start := time.Now()
		if err := matchCycle(ctx, m, kvc, collection, metadata, srcs); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("matcher: cycle failed: %v", err)
		}

		wait := period - time.Since(start)
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

func matchCycle(ctx context.Context, m *matcher.Matcher, kvc *kv.Client,
	collection *schedule.Collection, metadata *opensky.MetadataWorker,
	srcs []schedule.Source) error {

	snap, err := kvc.Snapshot()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap == nil || len(snap.Positions) == 0 {
		return nil
	}

	if err := metadata.Backfill(ctx, snap); err != nil {
		log.Printf("matcher: registration backfill: %v", err)
	}

	flights := make(map[string][]schedule.Flight, len(srcs))
	for _, src := range srcs {
		active, err := collection.Active(ctx, src.Name(), snap.StatesTime)
		if err != nil {
			log.Printf("matcher: active flights of %s: %v", src.Name(), err)
			continue
		}
		flights[src.Name()] = active
	}
	return m.RunCycle(ctx, snap, flights)
}

// pollSource fetches a schedule source on its period and upserts the result.
// The first fetch runs immediately.
func pollSource(ctx context.Context, store *schedule.Store, src schedule.Source, period time.Duration) {
	for {
		flights, err := src.Fetch(ctx, time.Now().UTC())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("%s: fetch failed: %v", src.Name(), err)
		} else if err := store.Upsert(ctx, flights); err != nil {
			log.Printf("%s: upsert failed: %v", src.Name(), err)
		} else {
			log.Printf("%s: stored %d flights", src.Name(), len(flights))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(period):
		}
	}
}

// refreshHistory keeps the per-operator airframe sets current and pulls the
// recent flight history of those airframes for the oracle.
func refreshHistory(ctx context.Context, kvc *kv.Client, store *schedule.Store,
	history *oracle.History, srcs []schedule.Source, period time.Duration) {

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(period):
		}

		snap, err := kvc.Snapshot()
		if err != nil || snap == nil {
			continue
		}
		seen := make(map[string]bool)
		for _, src := range srcs {
			airlines, err := store.SupportedAirlines(ctx, src.Name())
			if err != nil {
				log.Printf("history: airlines of %s: %v", src.Name(), err)
				continue
			}
			for _, operator := range airlines {
				if operator == "" || seen[operator] {
					continue
				}
				seen[operator] = true
				aircraft := opensky.OperatorAircraft(snap, operator)
				if len(aircraft) > 0 {
					if err := history.RecordOperatorAircraft(ctx, operator, aircraft); err != nil {
						log.Printf("history: record %s aircraft: %v", operator, err)
					}
				}
				if err := history.Refresh(ctx, operator, 30); err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Printf("history: refresh %s: %v", operator, err)
				}
			}
		}
	}
}

// operatorSet parses the accepted-operators list; empty means accept all.
func operatorSet(list string) map[string]bool {
	if list == "" {
		return nil
	}
	set := make(map[string]bool)
	for _, op := range strings.Split(list, ",") {
		if op = strings.ToUpper(strings.TrimSpace(op)); op != "" {
			set[op] = true
		}
	}
	return set
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
