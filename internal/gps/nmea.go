package gps

import (
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// DecodeSentence parses one NMEA-0183 line into a Fix. The second
// return is false when the line should be skipped: empty input, failed
// checksum, or a sentence type that carries no position (GSV, VTG and
// friends). Skips are not errors; position-bearing sentences whose own
// status field reports "void" or "no fix" come back as ok=true with
// Valid=false.
//
// GGA, GLL and GNS carry time-of-day only; the date is taken from now.
func DecodeSentence(line string, now time.Time) (Fix, bool) {
	line = strings.TrimSpace(line)
	if line == "" || (line[0] != '$' && line[0] != '!') {
		return Fix{}, false
	}

	s, err := nmea.Parse(line)
	if err != nil {
		// Checksum mismatch or malformed framing.
		return Fix{}, false
	}

	var fix Fix
	switch s.DataType() {
	case nmea.TypeRMC:
		m := s.(nmea.RMC)
		fix = Fix{
			LatDeg: m.Latitude,
			LonDeg: m.Longitude,
			Valid:  m.Validity == nmea.ValidRMC,
			Time:   rmcTime(m),
		}
	case nmea.TypeGGA:
		m := s.(nmea.GGA)
		fix = Fix{
			LatDeg: m.Latitude,
			LonDeg: m.Longitude,
			Valid:  m.FixQuality != "" && m.FixQuality != nmea.Invalid,
			Time:   timeOfDay(now, m.Time),
		}
	case nmea.TypeGLL:
		m := s.(nmea.GLL)
		fix = Fix{
			LatDeg: m.Latitude,
			LonDeg: m.Longitude,
			Valid:  m.Validity == nmea.ValidGLL,
			Time:   timeOfDay(now, m.Time),
		}
	case nmea.TypeGNS:
		m := s.(nmea.GNS)
		fix = Fix{
			LatDeg: m.Latitude,
			LonDeg: m.Longitude,
			Valid:  gnsHasFix(m.Mode),
			Time:   timeOfDay(now, m.Time),
		}
	default:
		return Fix{}, false
	}

	if fix.LatDeg < -90 || fix.LatDeg > 90 || fix.LonDeg < -180 || fix.LonDeg > 180 {
		return Fix{}, false
	}
	return fix, true
}

// gnsHasFix reports whether any constellation in the GNS mode
// indicator contributes a fix.
func gnsHasFix(modes []string) bool {
	for _, m := range modes {
		if m != nmea.NoFixGNS {
			return true
		}
	}
	return false
}

func rmcTime(m nmea.RMC) time.Time {
	if !m.Date.Valid || !m.Time.Valid {
		return time.Time{}
	}
	return time.Date(2000+m.Date.YY, time.Month(m.Date.MM), m.Date.DD,
		m.Time.Hour, m.Time.Minute, m.Time.Second, m.Time.Millisecond*int(time.Millisecond), time.UTC)
}

// timeOfDay combines a time-only NMEA field with the current date,
// shifting by a day when the receiver clock straddles midnight.
func timeOfDay(now time.Time, t nmea.Time) time.Time {
	if !t.Valid || now.IsZero() {
		return time.Time{}
	}
	now = now.UTC()
	candidate := time.Date(now.Year(), now.Month(), now.Day(),
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
	switch {
	case candidate.Sub(now) > 12*time.Hour:
		candidate = candidate.AddDate(0, 0, -1)
	case now.Sub(candidate) > 12*time.Hour:
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
