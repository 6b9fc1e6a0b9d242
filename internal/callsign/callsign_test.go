package callsign

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw        string
		want       string
		operator   string
		wantNumber int // -1 means no numeric suffix
	}{
		{"  dlh007K ", "DLH7K", "DLH", -1},
		{"BAW0123", "BAW123", "BAW", 123},
		{"DLH400", "DLH400", "DLH", 400},
		{"SAS1", "SAS1", "SAS", 1},
		{"WIF98W", "WIF98W", "WIF", -1},
		{"NOZ1AB", "NOZ1AB", "NOZ", -1},
		{"klm1023", "KLM1023", "KLM", 1023},
	}

	for _, tt := range tests {
		got := Normalize(tt.raw, Policy{})
		if got == nil {
			t.Errorf("Normalize(%q) = nil, want %q", tt.raw, tt.want)
			continue
		}
		if got.Callsign != tt.want {
			t.Errorf("Normalize(%q).Callsign = %q, want %q", tt.raw, got.Callsign, tt.want)
		}
		if got.OperatorICAO != tt.operator {
			t.Errorf("Normalize(%q).OperatorICAO = %q, want %q", tt.raw, got.OperatorICAO, tt.operator)
		}
		if tt.wantNumber == -1 {
			if got.Number != nil {
				t.Errorf("Normalize(%q).Number = %d, want nil", tt.raw, *got.Number)
			}
		} else if got.Number == nil || *got.Number != tt.wantNumber {
			t.Errorf("Normalize(%q).Number = %v, want %d", tt.raw, got.Number, tt.wantNumber)
		}
	}
}

func TestNormalize_Rejects(t *testing.T) {
	rejects := []string{
		"",
		"123ABCD",
		"DLH",        // no suffix
		"DLH0000",    // suffix strips to empty
		"DLH000K",    // stripped suffix starts with a letter
		"DL1234",     // two-letter operator
		"DLHX123",    // letter where the first suffix digit belongs
		"DLH12345",   // suffix too long
		"DLH12ABC",   // too many trailing letters
		"D1H123",     // digit inside operator
	}
	for _, raw := range rejects {
		if got := Normalize(raw, Policy{}); got != nil {
			t.Errorf("Normalize(%q) = %+v, want nil", raw, got)
		}
	}
}

func TestNormalize_Policy(t *testing.T) {
	accepted := map[string]bool{"DLH": true}

	if got := Normalize("BAW123", Policy{AcceptedOperators: accepted}); got != nil {
		t.Errorf("operator outside accepted set: got %+v, want nil", got)
	}
	if got := Normalize("DLH123", Policy{AcceptedOperators: accepted}); got == nil {
		t.Error("operator inside accepted set rejected")
	}
	if got := Normalize("DLH123", Policy{DisallowNumeric: true}); got != nil {
		t.Errorf("numeric suffix with DisallowNumeric: got %+v, want nil", got)
	}
	if got := Normalize("DLH7K", Policy{DisallowAlphanumeric: true}); got != nil {
		t.Errorf("alphanumeric suffix with DisallowAlphanumeric: got %+v, want nil", got)
	}
	if got := Normalize("DLH7K", Policy{DisallowNumeric: true}); got == nil {
		t.Error("alphanumeric suffix must pass when only numeric suffixes are disallowed")
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"BAW0123", "  dlh007K ", "SAS1", "WIF98W"}
	for _, raw := range inputs {
		first := Normalize(raw, Policy{})
		if first == nil {
			t.Fatalf("Normalize(%q) = nil", raw)
		}
		second := Normalize(first.Callsign, Policy{})
		if second == nil {
			t.Fatalf("Normalize(%q) = nil on canonical form", first.Callsign)
		}
		if second.Callsign != first.Callsign {
			t.Errorf("Normalize not idempotent: %q -> %q -> %q", raw, first.Callsign, second.Callsign)
		}
	}
}
