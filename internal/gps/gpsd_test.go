package gps

import (
	"testing"
	"time"
)

func TestGPSDApplyTPV(t *testing.T) {
	g := &gpsdSource{}

	fix, ok := g.applyLine(`{"class":"TPV","mode":3,"time":"2026-08-30T12:00:00.000Z","lat":41.7,"lon":-72.7}`)
	if !ok {
		t.Fatalf("TPV report discarded")
	}
	if !fix.Valid {
		t.Fatalf("mode 3 TPV should be valid")
	}
	if fix.LatDeg != 41.7 || fix.LonDeg != -72.7 {
		t.Fatalf("position = %v, %v", fix.LatDeg, fix.LonDeg)
	}
	want := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if !fix.Time.Equal(want) {
		t.Fatalf("time = %v, want %v", fix.Time, want)
	}
}

func TestGPSDNoFixModes(t *testing.T) {
	g := &gpsdSource{}

	for _, line := range []string{
		`{"class":"TPV","mode":0}`,
		`{"class":"TPV","mode":1,"lat":41.7,"lon":-72.7}`,
		`{"class":"TPV","mode":3}`,
	} {
		fix, ok := g.applyLine(line)
		if !ok {
			t.Fatalf("TPV report discarded: %s", line)
		}
		if fix.Valid {
			t.Fatalf("expected invalid fix for %s", line)
		}
	}
}

func TestGPSDTimeGatedBySky(t *testing.T) {
	g := &gpsdSource{}
	tpv := `{"class":"TPV","mode":3,"time":"2026-08-30T12:00:00.000Z","lat":41.7,"lon":-72.7}`

	// No SKY seen yet: report time is trusted.
	fix, _ := g.applyLine(tpv)
	if fix.Time.IsZero() {
		t.Fatalf("time should be trusted before any SKY report")
	}

	// SKY with no used satellites: time no longer trusted.
	if _, ok := g.applyLine(`{"class":"SKY","satellites":[{"used":false},{"used":false}]}`); ok {
		t.Fatalf("SKY report must not produce a fix")
	}
	fix, _ = g.applyLine(tpv)
	if !fix.Time.IsZero() {
		t.Fatalf("time should be rejected with zero used satellites")
	}
	if !fix.Valid {
		t.Fatalf("position validity must not depend on SKY")
	}

	// Satellites back in use: time trusted again.
	g.applyLine(`{"class":"SKY","satellites":[{"used":true},{"used":false},{"used":true}]}`)
	fix, _ = g.applyLine(tpv)
	if fix.Time.IsZero() {
		t.Fatalf("time should be trusted with used satellites")
	}
}

func TestGPSDDiscardsNoise(t *testing.T) {
	g := &gpsdSource{}
	for _, line := range []string{
		`{"class":"VERSION","release":"3.25"}`,
		`{"class":"WATCH","enable":true}`,
		`{not json`,
	} {
		if _, ok := g.applyLine(line); ok {
			t.Fatalf("expected discard for %s", line)
		}
	}
}
