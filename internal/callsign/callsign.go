// Package callsign validates and canonicalises airline callsigns.
package callsign

import (
	"regexp"
	"strconv"
	"strings"
)

// shapeRe is the Eurocontrol CSS rule ZG00 callsign shape: a three-letter
// operator designator followed by a digit and then up to three more digits,
// up to two digits and a letter, or up to one digit and two letters.
var shapeRe = regexp.MustCompile(
	`^([A-Z]{3})[0-9](([0-9]{0,3})|([0-9]{0,2})([A-Z])|([0-9]?)([A-Z]{2}))$`)

// suffixRe requires the zero-stripped suffix to start with a non-zero digit.
var suffixRe = regexp.MustCompile(`^[1-9]`)

// Policy restricts which callsigns Normalize accepts.
// The zero value accepts every well-formed airline callsign.
type Policy struct {
	// AcceptedOperators, when non-nil, limits accepted operator ICAOs.
	AcceptedOperators map[string]bool

	// DisallowNumeric rejects callsigns with a purely numeric suffix.
	DisallowNumeric bool

	// DisallowAlphanumeric rejects callsigns whose suffix contains letters.
	DisallowAlphanumeric bool
}

// Callsign is a canonicalised callsign: the operator prefix plus the suffix
// with leading zeros removed.
type Callsign struct {
	Callsign     string
	OperatorICAO string

	// Number holds the suffix as an integer when it is purely numeric.
	Number *int
}

// Normalize validates a raw callsign string against the ZG00 shape and
// returns its canonical form, or nil when the input is not an acceptable
// airline callsign. Normalize is idempotent on its own output.
func Normalize(raw string, policy Policy) *Callsign {
	cs := strings.ToUpper(strings.TrimSpace(raw))
	if !shapeRe.MatchString(cs) {
		return nil
	}

	operator := cs[:3]
	suffix := strings.TrimLeft(cs[3:], "0")
	if !suffixRe.MatchString(suffix) {
		return nil
	}

	if policy.AcceptedOperators != nil && !policy.AcceptedOperators[operator] {
		return nil
	}

	result := &Callsign{
		Callsign:     operator + suffix,
		OperatorICAO: operator,
	}

	if isDigits(suffix) {
		if policy.DisallowNumeric {
			return nil
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			return nil
		}
		result.Number = &n
	} else if policy.DisallowAlphanumeric {
		return nil
	}

	return result
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
