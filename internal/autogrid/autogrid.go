// Package autogrid runs the control loop that ties GPS state to
// outbound grid-square updates: poll the current fix, poll target
// application states, and push the locator to every detected
// application whenever it changes (or the application just appeared).
package autogrid

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"autogrid/internal/apps"
	"autogrid/internal/gps"
	"autogrid/internal/logging"
	"autogrid/internal/maidenhead"
)

// GPSService is the slice of the GPS manager the loop depends on.
type GPSService interface {
	Snapshot(now time.Time) gps.Snapshot
	Fatal() <-chan error
}

// Communicator is the slice of the application layer the loop depends on.
type Communicator interface {
	States(now time.Time) []apps.TargetSnapshot
	SendGrid(ctx context.Context, name apps.Name, grid string) error
}

type Config struct {
	// HeartbeatInterval paces ticks while any target is detected;
	// SleepInterval while none is.
	HeartbeatInterval time.Duration
	SleepInterval     time.Duration

	// UpdateInterval paces positional re-checks.
	UpdateInterval time.Duration

	GridPrecision int

	// GridEpsilonDeg is how far a coordinate must move before the grid
	// square is recomputed.
	GridEpsilonDeg float64
}

type AutoGrid struct {
	cfg  Config
	gps  GPSService
	comm Communicator
	lg   *logging.Logger

	// Written by the run loop, read by the status endpoint.
	grid atomic.Value // string

	gridLat      float64
	gridLon      float64
	lastPosCheck time.Time
	started      time.Time
}

func New(cfg Config, gpsSvc GPSService, comm Communicator, lg *logging.Logger) *AutoGrid {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.SleepInterval <= 0 {
		cfg.SleepInterval = 5 * time.Second
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 2 * time.Second
	}
	if cfg.GridPrecision != 6 {
		cfg.GridPrecision = 4
	}
	if cfg.GridEpsilonDeg <= 0 {
		cfg.GridEpsilonDeg = 0.0001
	}
	a := &AutoGrid{cfg: cfg, gps: gpsSvc, comm: comm, lg: lg, started: time.Now().UTC()}
	a.grid.Store("")
	return a
}

// Run drives the loop until ctx is canceled (returns nil) or the GPS
// source fails terminally (returns that error).
func (a *AutoGrid) Run(ctx context.Context) error {
	a.lg.Infof("control loop started (precision %d)", a.cfg.GridPrecision)

	for {
		anyDetected := a.tick(ctx, time.Now().UTC())

		interval := a.cfg.SleepInterval
		if anyDetected {
			interval = a.cfg.HeartbeatInterval
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.lg.Infof("control loop stopping")
			return nil
		case err := <-a.gps.Fatal():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// tick runs one decision cycle and reports whether any target is
// currently detected.
func (a *AutoGrid) tick(ctx context.Context, now time.Time) bool {
	states := a.comm.States(now)
	snap := a.gps.Snapshot(now)

	a.refreshGrid(now, snap)
	grid := a.Grid()

	anyDetected := false
	for _, t := range states {
		if t.State != apps.StateDetected {
			continue
		}
		anyDetected = true
		// A target that just became Detected has an empty LastSentGrid,
		// so it always receives the current grid, changed or not.
		if grid == "" || t.LastSentGrid == grid {
			continue
		}
		if err := a.comm.SendGrid(ctx, t.Name, grid); err != nil {
			if ctx.Err() != nil {
				return anyDetected
			}
			a.lg.Warnf("update to %s not delivered: %v", t.Name, err)
		}
	}
	return anyDetected
}

// Grid returns the current locator, or "" when no usable fix exists yet.
func (a *AutoGrid) Grid() string {
	v, _ := a.grid.Load().(string)
	return v
}

// refreshGrid recomputes the locator when a fresh valid fix moved more
// than epsilon since the last conversion. Positional re-checks are
// paced by UpdateInterval; a stale or invalid fix leaves the previous
// grid in place but nothing new is derived from it.
func (a *AutoGrid) refreshGrid(now time.Time, snap gps.Snapshot) {
	if !snap.Valid || snap.Stale {
		return
	}
	cur := a.Grid()
	if cur != "" && now.Sub(a.lastPosCheck) < a.cfg.UpdateInterval {
		return
	}
	a.lastPosCheck = now

	if cur != "" &&
		math.Abs(snap.LatDeg-a.gridLat) <= a.cfg.GridEpsilonDeg &&
		math.Abs(snap.LonDeg-a.gridLon) <= a.cfg.GridEpsilonDeg {
		return
	}

	grid, err := maidenhead.ToGrid(snap.LatDeg, snap.LonDeg, a.cfg.GridPrecision)
	if err != nil {
		a.lg.Warnf("grid conversion rejected fix: %v", err)
		return
	}
	a.gridLat = snap.LatDeg
	a.gridLon = snap.LonDeg
	if grid != cur {
		a.lg.Infof("grid square %s -> %s (lat %.6f lon %.6f)", orNone(cur), grid, snap.LatDeg, snap.LonDeg)
		a.grid.Store(grid)
	}
}

// Status is the snapshot served by the status endpoint.
type Status struct {
	Service   string                `json:"service"`
	NowUTC    string                `json:"now_utc"`
	UptimeSec int64                 `json:"uptime_sec"`
	Grid      string                `json:"grid,omitempty"`
	GPS       gps.Snapshot          `json:"gps"`
	Targets   []apps.TargetSnapshot `json:"targets"`
}

func (a *AutoGrid) Status(now time.Time) Status {
	return Status{
		Service:   "autogrid",
		NowUTC:    now.Format(time.RFC3339Nano),
		UptimeSec: int64(now.Sub(a.started).Seconds()),
		Grid:      a.Grid(),
		GPS:       a.gps.Snapshot(now),
		Targets:   a.comm.States(now),
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
