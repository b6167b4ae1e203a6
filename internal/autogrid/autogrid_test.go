package autogrid

import (
	"context"
	"errors"
	"testing"
	"time"

	"autogrid/internal/apps"
	"autogrid/internal/gps"
)

type fakeGPS struct {
	snap  gps.Snapshot
	fatal chan error
}

func (f *fakeGPS) Snapshot(time.Time) gps.Snapshot { return f.snap }
func (f *fakeGPS) Fatal() <-chan error             { return f.fatal }

type fakeComm struct {
	states []apps.TargetSnapshot
	sent   []string
	err    error
}

func (f *fakeComm) States(time.Time) []apps.TargetSnapshot { return f.states }

func (f *fakeComm) SendGrid(_ context.Context, name apps.Name, grid string) error {
	f.sent = append(f.sent, string(name)+":"+grid)
	if f.err != nil {
		return f.err
	}
	for i := range f.states {
		if f.states[i].Name == name {
			f.states[i].LastSentGrid = grid
		}
	}
	return nil
}

func validSnap() gps.Snapshot {
	return gps.Snapshot{Valid: true, LatDeg: 41.7, LonDeg: -72.7}
}

func TestTickSendsToDetectedTargets(t *testing.T) {
	fg := &fakeGPS{snap: validSnap(), fatal: make(chan error, 1)}
	fc := &fakeComm{states: []apps.TargetSnapshot{
		{Name: apps.WSJTX, State: apps.StateDetected},
		{Name: apps.JS8Call, State: apps.StateUndetected},
	}}
	a := New(Config{}, fg, fc, nil)

	now := time.Now().UTC()
	if !a.tick(context.Background(), now) {
		t.Fatalf("tick should report a detected target")
	}
	if a.Grid() != "FN31" {
		t.Fatalf("grid = %q, want FN31", a.Grid())
	}
	if len(fc.sent) != 1 || fc.sent[0] != "wsjt-x:FN31" {
		t.Fatalf("sent = %v", fc.sent)
	}

	// Unchanged grid is not resent.
	a.tick(context.Background(), now.Add(5*time.Second))
	if len(fc.sent) != 1 {
		t.Fatalf("unchanged grid resent: %v", fc.sent)
	}
}

func TestTickResendsAfterRedetection(t *testing.T) {
	fg := &fakeGPS{snap: validSnap(), fatal: make(chan error, 1)}
	fc := &fakeComm{states: []apps.TargetSnapshot{
		{Name: apps.WSJTX, State: apps.StateDetected},
	}}
	a := New(Config{}, fg, fc, nil)

	now := time.Now().UTC()
	a.tick(context.Background(), now)
	if len(fc.sent) != 1 {
		t.Fatalf("sent = %v", fc.sent)
	}

	// An application restart shows up as a cleared LastSentGrid; the
	// same grid must go out again.
	fc.states[0].LastSentGrid = ""
	a.tick(context.Background(), now.Add(5*time.Second))
	if len(fc.sent) != 2 {
		t.Fatalf("redetected target not updated: %v", fc.sent)
	}
}

func TestTickWithoutFix(t *testing.T) {
	fg := &fakeGPS{snap: gps.Snapshot{Stale: true}, fatal: make(chan error, 1)}
	fc := &fakeComm{states: []apps.TargetSnapshot{
		{Name: apps.WSJTX, State: apps.StateDetected},
	}}
	a := New(Config{}, fg, fc, nil)

	a.tick(context.Background(), time.Now().UTC())
	if a.Grid() != "" {
		t.Fatalf("grid derived from stale snapshot: %q", a.Grid())
	}
	if len(fc.sent) != 0 {
		t.Fatalf("sent without a grid: %v", fc.sent)
	}
}

func TestRefreshGridEpsilon(t *testing.T) {
	fg := &fakeGPS{snap: validSnap(), fatal: make(chan error, 1)}
	a := New(Config{UpdateInterval: 2 * time.Second}, fg, &fakeComm{}, nil)

	now := time.Now().UTC()
	a.refreshGrid(now, validSnap())
	if a.Grid() != "FN31" {
		t.Fatalf("grid = %q", a.Grid())
	}

	// Movement within epsilon does not trigger a recompute.
	jitter := validSnap()
	jitter.LatDeg += 0.00005
	a.refreshGrid(now.Add(3*time.Second), jitter)
	if a.gridLat != 41.7 {
		t.Fatalf("reference position moved on jitter: %v", a.gridLat)
	}

	// A real move inside the pacing window is deferred.
	moved := validSnap()
	moved.LatDeg = 42.7
	a.refreshGrid(now.Add(4*time.Second), moved)
	if a.Grid() != "FN31" {
		t.Fatalf("recompute not paced: %q", a.Grid())
	}

	// And applied once the window passes.
	a.refreshGrid(now.Add(7*time.Second), moved)
	if a.Grid() != "FN32" {
		t.Fatalf("grid = %q after move, want FN32", a.Grid())
	}
}

func TestRunStopsOnFatalGPS(t *testing.T) {
	fatal := make(chan error, 1)
	fatal <- errors.New("gps gone")
	fg := &fakeGPS{snap: gps.Snapshot{Stale: true}, fatal: fatal}
	a := New(Config{SleepInterval: 10 * time.Millisecond}, fg, &fakeComm{}, nil)

	err := a.Run(context.Background())
	if err == nil || err.Error() != "gps gone" {
		t.Fatalf("Run = %v, want gps gone", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	fg := &fakeGPS{snap: gps.Snapshot{Stale: true}, fatal: make(chan error, 1)}
	a := New(Config{SleepInterval: time.Minute}, fg, &fakeComm{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run = %v, want nil on cancel", err)
	}
}

func TestStatus(t *testing.T) {
	fg := &fakeGPS{snap: validSnap(), fatal: make(chan error, 1)}
	fc := &fakeComm{states: []apps.TargetSnapshot{
		{Name: apps.WSJTX, State: apps.StateDetected},
	}}
	a := New(Config{}, fg, fc, nil)
	a.tick(context.Background(), time.Now().UTC())

	st := a.Status(time.Now().UTC())
	if st.Service != "autogrid" {
		t.Fatalf("service = %q", st.Service)
	}
	if st.Grid != "FN31" {
		t.Fatalf("grid = %q", st.Grid)
	}
	if len(st.Targets) != 1 || !st.GPS.Valid {
		t.Fatalf("status = %+v", st)
	}
}
