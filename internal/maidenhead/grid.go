// Package maidenhead converts geographic coordinates to Maidenhead grid
// square locators as used in amateur radio location exchange.
package maidenhead

import (
	"fmt"
	"math"
)

const (
	fieldLetters = "ABCDEFGHIJKLMNOPQR"
	subLetters   = "abcdefghijklmnopqrstuvwx"
)

// ToGrid converts a position to a Maidenhead locator with 4 or 6
// characters. Out-of-range inputs are reported, not clamped.
func ToGrid(latDeg, lonDeg float64, precision int) (string, error) {
	if precision != 4 && precision != 6 {
		return "", fmt.Errorf("maidenhead: precision must be 4 or 6, got %d", precision)
	}
	if math.IsNaN(latDeg) || math.IsInf(latDeg, 0) || latDeg < -90 || latDeg > 90 {
		return "", fmt.Errorf("maidenhead: latitude %v out of range [-90,90]", latDeg)
	}
	if math.IsNaN(lonDeg) || math.IsInf(lonDeg, 0) || lonDeg < -180 || lonDeg > 180 {
		return "", fmt.Errorf("maidenhead: longitude %v out of range [-180,180]", lonDeg)
	}

	adjLat := latDeg + 90.0
	adjLon := lonDeg + 180.0

	// The north pole and the antimeridian sit on the inclusive upper edge;
	// fold them into the last cell.
	if adjLat >= 180 {
		adjLat = math.Nextafter(180, 0)
	}
	if adjLon >= 360 {
		adjLon = math.Nextafter(360, 0)
	}

	out := make([]byte, 0, 6)
	out = append(out, fieldLetters[int(adjLon/20)], fieldLetters[int(adjLat/10)])
	out = append(out, byte('0'+int(math.Mod(adjLon, 20)/2)), byte('0'+int(math.Mod(adjLat, 10))))
	if precision == 6 {
		out = append(out, subLetters[int(math.Mod(adjLon, 2)*12)], subLetters[int(math.Mod(adjLat, 1)*24)])
	}
	return string(out), nil
}
