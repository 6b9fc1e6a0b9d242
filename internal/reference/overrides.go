package reference

import "math"

// icaoOverrides forces an airline ICAO for IATA designators where the
// database answer is wrong or ambiguous for scheduled operations.
var icaoOverrides = map[string]string{
	"QF": "QFA",
	"BA": "BAW",
	"NO": "NOS",
	"4Y": "OCN",
}

// nameOverride forces a display-name hint for a shared IATA designator,
// optionally limited to a flight-number range.
type nameOverride struct {
	name      string
	minFlight int
	maxFlight int
}

// nameOverrides resolves shared IATA designators by flight number.
// Lufthansa uses the 8000-8515 block for Lufthansa Cargo flights.
var nameOverrides = map[string][]nameOverride{
	"LH": {
		{name: "Lufthansa Cargo", minFlight: 8000, maxFlight: 8515},
		{name: "Lufthansa", minFlight: 0, maxFlight: math.MaxInt},
	},
	"LX": {
		{name: "SWISS", minFlight: 0, maxFlight: math.MaxInt},
	},
}

func overrideName(iata string, flightNumber int) string {
	for _, o := range nameOverrides[iata] {
		if flightNumber >= o.minFlight && flightNumber <= o.maxFlight {
			return o.name
		}
	}
	return ""
}
