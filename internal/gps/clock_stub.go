//go:build !linux

package gps

import (
	"fmt"
	"time"
)

func setSystemClock(time.Time) error {
	return fmt.Errorf("setting the system clock is not supported on this platform")
}
