package gps

import (
	"time"

	"autogrid/internal/logging"
)

// ClockPolicy rate-limits stepping the system clock toward GPS time.
type ClockPolicy struct {
	Enabled bool

	// MinInterval is the minimum spacing between adjustments, floored
	// at 60s. No adjustment happens more often than this regardless of
	// drift magnitude.
	MinInterval time.Duration

	// MaxDrift is the drift at or below which the clock is left alone.
	// Defaults to 2s.
	MaxDrift time.Duration

	// MaxFixAge is how fresh a fix must be before its time is trusted
	// for drift computation. Defaults to 10s.
	MaxFixAge time.Duration
}

// clockSync is driven from the GPS read goroutine only; no locking.
type clockSync struct {
	policy     ClockPolicy
	lg         *logging.Logger
	lastAdjust time.Time
}

func newClockSync(p ClockPolicy, lg *logging.Logger) *clockSync {
	if p.MinInterval < 60*time.Second {
		p.MinInterval = 60 * time.Second
	}
	if p.MaxDrift <= 0 {
		p.MaxDrift = 2 * time.Second
	}
	if p.MaxFixAge <= 0 {
		p.MaxFixAge = 10 * time.Second
	}
	return &clockSync{policy: p, lg: lg}
}

// decide reports whether the clock should be stepped for this fix.
func (c *clockSync) decide(now, receivedAt time.Time, fix Fix) bool {
	if !c.policy.Enabled {
		return false
	}
	if !fix.Valid || fix.Time.IsZero() {
		return false
	}
	if age := now.Sub(receivedAt); age < 0 || age > c.policy.MaxFixAge {
		return false
	}
	drift := now.Sub(fix.Time)
	if drift < 0 {
		drift = -drift
	}
	if drift <= c.policy.MaxDrift {
		return false
	}
	if !c.lastAdjust.IsZero() && now.Sub(c.lastAdjust) < c.policy.MinInterval {
		return false
	}
	return true
}

// maybeAdjust evaluates the policy against the wall clock at decision
// time; receivedAt is the instant the fix came off the stream, so a
// fix that sat around before the decision is rejected by the age gate.
func (c *clockSync) maybeAdjust(receivedAt time.Time, fix Fix) {
	now := time.Now().UTC()
	if !c.decide(now, receivedAt, fix) {
		return
	}
	// Record the attempt instant either way so a denied syscall is not
	// retried more often than MinInterval.
	c.lastAdjust = now
	if err := setSystemClock(fix.Time); err != nil {
		c.lg.Warnf("clock sync: set failed: %v", err)
		return
	}
	c.lg.Infof("clock sync: system clock stepped to %s", fix.Time.UTC().Format(time.RFC3339))
}
