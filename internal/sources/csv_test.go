package sources

import (
	"encoding/xml"
	"io"
	"strings"
	"testing"
	"time"
)

func decodeXMLString(s string, out any) error {
	d := xml.NewDecoder(strings.NewReader(s))
	// Fixtures are ASCII; accept their declared legacy encoding as-is.
	d.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return d.Decode(out)
}

// 2026-08-24 is a Monday.
var testDay = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func TestLHCargoParse(t *testing.T) {
	csvData := strings.Join([]string{
		"Schedule 24AUG26 - 31OCT26",
		"SNR;FNR;AL;DEP;ARR;STD;STA;Start_Op;End_Op;Mo;Tu;We;Th;Fr;Sa;Su;DDC;ADC;ACtype",
		"0;LH8220;LH;FRA;JFK;10:00;12:30;01AUG26;31OCT26;1;;3;;5;;;0;0;77X",
		"1;LH8160;LH;FRA;OSL;08:00;10:05;01AUG26;31OCT26;1;2;3;4;5;;;0;0;77X",
		"2;LH8160;LH;OSL;FRA;11:30;13:40;01AUG26;31OCT26;1;2;3;4;5;;;0;0;77X",
		"0;LH8160;LH;FRA;FRA;08:00;13:40;01AUG26;31OCT26;1;2;3;4;5;;;0;0;77X",
		"0;LH8300;LH;FRA;JFK;09:00;11:30;01AUG26;31OCT26;;2;;4;;;;0;0;77X",
		"0;LH8400;LH;FRA;JFK;09:00;11:30;01AUG26;31OCT26;1;;;;;;;0;0;RFS",
		"Trailer line",
	}, "\n")

	l := NewLHCargo(fakeResolver{}, "unused")
	flights, err := l.parse(strings.NewReader(csvData), testDay)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	// LH8220 operates on Mondays; LH8160 keeps only its numbered segments;
	// LH8300 does not run on Mondays; LH8400 is a truck service.
	if len(flights) != 3 {
		t.Fatalf("flights = %+v", flights)
	}

	f := flights[0]
	if f.FlightNumber != 8220 || f.Route != "EDDF-KJFK" {
		t.Errorf("flight = %+v", f)
	}
	berlin, _ := time.LoadLocation("Europe/Berlin")
	wantDep := time.Date(2026, 8, 24, 10, 0, 0, 0, berlin).Unix()
	if f.Departure == nil || *f.Departure != wantDep {
		t.Errorf("departure = %v, want %d", f.Departure, wantDep)
	}
	newYork, _ := time.LoadLocation("America/New_York")
	wantArr := time.Date(2026, 8, 24, 12, 30, 0, 0, newYork).Unix()
	if f.Arrival == nil || *f.Arrival != wantArr {
		t.Errorf("arrival = %v, want %d", f.Arrival, wantArr)
	}

	for _, f := range flights[1:] {
		if f.FlightNumber != 8160 {
			t.Errorf("unexpected flight %+v", f)
		}
		if f.Route == "EDDF-EDDF" {
			t.Errorf("summary segment kept: %+v", f)
		}
	}
}

func TestANACParse(t *testing.T) {
	csvData := strings.Join([]string{
		"Registro diário",
		"Início Operação;Fim Operação;Seg;Ter;Qua;Qui;Sex;Sáb;Dom;Cód. Empresa;Empresa;Nr. Voo;Nr. Etapa;Cód Origem;Cód Destino;Partida Prevista;Chegada Prevista",
		"2026-08-01;2026-10-31;1;2;3;4;5;6;7;TAM;LATAM Airlines;3054;1;SBGR;SBGL;09:10;10:15",
		"2026-08-01;2026-10-31;1;;;;;;;GLO;GOL;1885;1;SBGL;SBSV;23:30;01:20",
		"2026-08-01;2026-10-31;;2;;;;;;TAM;LATAM Airlines;3055;1;SBGL;SBGR;11:00;12:05",
		"2026-09-01;2026-10-31;1;2;3;4;5;6;7;AZU;Azul;4104;1;SBKP;SBRJ;08:00;09:00",
	}, "\n")

	a := NewANAC(fakeResolver{})
	flights, err := a.parse(strings.NewReader(csvData), testDay)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	// The Tuesday-only flight and the not-yet-operating one drop out.
	if len(flights) != 2 {
		t.Fatalf("flights = %+v", flights)
	}

	f := flights[0]
	if f.AirlineICAO != "TAM" || f.FlightNumber != 3054 || f.Route != "SBGR-SBGL" {
		t.Errorf("flight = %+v", f)
	}
	wantDep := time.Date(2026, 8, 24, 9, 10, 0, 0, time.UTC).Unix()
	if f.Departure == nil || *f.Departure != wantDep {
		t.Errorf("departure = %v, want %d", f.Departure, wantDep)
	}

	// The overnight leg arrives the next day.
	overnight := flights[1]
	wantArr := time.Date(2026, 8, 25, 1, 20, 0, 0, time.UTC).Unix()
	if overnight.Arrival == nil || *overnight.Arrival != wantArr {
		t.Errorf("overnight arrival = %v, want %d", overnight.Arrival, wantArr)
	}
}
