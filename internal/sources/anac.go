package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flight_matcher/internal/schedule"
)

const anacURL = "https://siros.anac.gov.br/siros/registros/diario/diario.csv"

// ANAC reads the Brazilian aviation agency's daily schedule register, a
// semicolon-separated CSV with Portuguese column names and UTC times.
type ANAC struct {
	resolver   Resolver
	httpClient *http.Client

	BaseURL string
}

// NewANAC returns the ANAC adapter.
func NewANAC(resolver Resolver) *ANAC {
	return &ANAC{
		resolver:   resolver,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    anacURL,
	}
}

func (a *ANAC) Name() string { return "anac" }

// anacDays is the register's weekday column order, Monday first.
var anacDays = []string{"Seg", "Ter", "Qua", "Qui", "Sex", "Sáb", "Dom"}

// Fetch downloads the register and extracts the flights operating on the
// given day.
func (a *ANAC) Fetch(ctx context.Context, now time.Time) ([]schedule.Flight, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anac: HTTP %d", resp.StatusCode)
	}
	return a.parse(resp.Body, now.UTC())
}

func (a *ANAC) parse(r io.Reader, day time.Time) ([]schedule.Flight, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	// The first line is a title, the second the column names.
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("anac: read title: %w", err)
	}
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("anac: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	var flights []schedule.Flight
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("anac: read row: %w", err)
		}
		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		f, err := a.parseRow(field, day)
		if err != nil {
			log.Printf("anac: %v", err)
			continue
		}
		if f != nil {
			flights = append(flights, *f)
		}
	}
	return flights, nil
}

func (a *ANAC) parseRow(field func(string) string, day time.Time) (*schedule.Flight, error) {
	start, err := time.Parse("2006-01-02", field("Início Operação"))
	if err != nil {
		return nil, fmt.Errorf("bad operation start %q", field("Início Operação"))
	}
	end, err := time.Parse("2006-01-02", field("Fim Operação"))
	if err != nil {
		return nil, fmt.Errorf("bad operation end %q", field("Fim Operação"))
	}
	end = end.AddDate(0, 0, 1)
	if day.Before(start) || !day.Before(end) {
		return nil, nil
	}
	var mask strings.Builder
	for _, d := range anacDays {
		mask.WriteString(field(d))
	}
	if !strings.Contains(mask.String(), strconv.Itoa(isoWeekday(day))) {
		return nil, nil
	}

	icao := field("Cód. Empresa")
	airline, err := a.resolver.AirlineByICAO(icao)
	if err != nil {
		return nil, err
	}
	iata := ""
	if airline != nil {
		iata = airline.IATA
	}
	number, err := strconv.Atoi(field("Nr. Voo"))
	if err != nil {
		return nil, fmt.Errorf("bad flight number %q", field("Nr. Voo"))
	}
	route := joinRoute(field("Cód Origem"), field("Cód Destino"))
	departure, err := atLocalTime(day, field("Partida Prevista"), time.UTC)
	if err != nil {
		return nil, fmt.Errorf("bad departure %q", field("Partida Prevista"))
	}
	arrival, err := atLocalTime(day, field("Chegada Prevista"), time.UTC)
	if err != nil {
		return nil, fmt.Errorf("bad arrival %q", field("Chegada Prevista"))
	}
	// Overnight legs arrive on the next calendar day.
	if departure.After(arrival) {
		arrival = arrival.AddDate(0, 0, 1)
	}

	dep := departure.Unix()
	arr := arrival.Unix()
	f := &schedule.Flight{
		ID:           flightKey(iata, number, day, route),
		Source:       a.Name(),
		AirlineIATA:  iata,
		AirlineICAO:  icao,
		FlightNumber: number,
		Route:        route,
		Departure:    &dep,
		Arrival:      &arr,
	}
	return f, nil
}
