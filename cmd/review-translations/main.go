// Command review-translations walks yesterday's scheduled flights that never
// got a verified binding and lets the operator record manual callsign
// translations. A translation maps the assumed callsign (operator ICAO plus
// flight number) to the callsign the flight actually flies under; the
// matcher picks the table up on its next cycle.
//
// For each unresolved flight the tool prints the assumed callsign, the IATA
// flight designator and the scheduled route, plus the current translation if
// one exists. Entering a callsign records it, "-" deletes the existing
// translation, an empty line skips.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"flight_matcher/internal/callsign"
	"flight_matcher/internal/kv"
	"flight_matcher/internal/routestore"
	"flight_matcher/internal/schedule"
	"flight_matcher/internal/storage"
)

// missingFlight is one scheduled flight with no verified binding.
type missingFlight struct {
	assumed  string
	iataForm string
	route    string
}

func main() {
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "flight_matcher"), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "flight_matcher"), "PostgreSQL password")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", "flight_matcher"), "PostgreSQL database")

	natsURL := flag.String("nats-url", envOrDefault("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	kvBucket := flag.String("kv-bucket", envOrDefault("KV_BUCKET", "flight_matcher"), "JetStream KV bucket")
	sourceList := flag.String("sources", "avinor,fmo,lux,ham,lh_cargo,anac", "Comma-separated schedule sources to review")

	flag.Parse()

	ctx := context.Background()

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

	kvc, err := kv.Connect(*natsURL, *kvBucket)
	if err != nil {
		fatal("connect NATS: %v", err)
	}
	defer kvc.Close()

	scheduleStore := schedule.NewStore(pg.Pool())
	routeStore := routestore.NewStore(pg.Pool(), 0)

	missing, err := collectMissing(ctx, scheduleStore, routeStore,
		strings.Split(*sourceList, ","))
	if err != nil {
		fatal("%v", err)
	}
	if len(missing) == 0 {
		fmt.Println("no missing flight mappings")
		return
	}

	translations, err := kvc.Translations()
	if err != nil {
		fatal("load translations: %v", err)
	}

	fmt.Println("### missing flight mappings ###")
	reader := bufio.NewReader(os.Stdin)
	for _, f := range missing {
		existing := translations[f.assumed]
		fmt.Printf("%-7s %-6s %s [%s]: ", f.assumed, f.iataForm, f.route, existing)

		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "-" && existing != "":
			if err := kvc.DeleteTranslation(f.assumed); err != nil {
				fatal("delete translation: %v", err)
			}
			fmt.Printf("removed %s -> %s\n", f.assumed, existing)
		default:
			cs := callsign.Normalize(line, callsign.Policy{})
			if cs == nil {
				fmt.Printf("invalid callsign %q, skipped\n", line)
				continue
			}
			if err := kvc.PutTranslation(f.assumed, cs.Callsign); err != nil {
				fatal("store translation: %v", err)
			}
			fmt.Printf("adding %s -> %s\n", f.assumed, cs.Callsign)
		}
	}
}

// collectMissing returns yesterday's flights that have no verified binding
// under their flight number, deduplicated by assumed callsign and sorted.
func collectMissing(ctx context.Context, scheduleStore *schedule.Store,
	routeStore *routestore.Store, srcs []string) ([]missingFlight, error) {

	seen := make(map[string]bool)
	var missing []missingFlight
	yesterday := time.Now().UTC().AddDate(0, 0, -1)

	for _, source := range srcs {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		flights, err := scheduleStore.FlightsOfDay(ctx, source, yesterday)
		if err != nil {
			return nil, fmt.Errorf("flights of %s: %w", source, err)
		}
		for _, f := range flights {
			if f.Cancelled || f.Redundant || f.AirlineIATA == "" || f.AirlineICAO == "" {
				continue
			}
			assumed := fmt.Sprintf("%s%d", f.AirlineICAO, f.FlightNumber)
			if seen[assumed] {
				continue
			}
			seen[assumed] = true

			bindings, err := routeStore.FindByFlightNumber(ctx, f.AirlineIATA, f.FlightNumber)
			if err != nil {
				return nil, fmt.Errorf("bindings of %s: %w", assumed, err)
			}
			if len(bindings) > 0 {
				continue
			}
			missing = append(missing, missingFlight{
				assumed:  assumed,
				iataForm: fmt.Sprintf("%s%d", f.AirlineIATA, f.FlightNumber),
				route:    f.Route,
			})
		}
	}

	sort.Slice(missing, func(i, j int) bool {
		return missing[i].assumed < missing[j].assumed
	})
	return missing, nil
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
