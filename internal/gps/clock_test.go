package gps

import (
	"testing"
	"time"
)

func TestClockSyncDecide(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	validFix := func(drift time.Duration) Fix {
		return Fix{Valid: true, Time: now.Add(-drift)}
	}

	cases := []struct {
		name       string
		policy     ClockPolicy
		lastAdjust time.Time
		receivedAt time.Time
		fix        Fix
		want       bool
	}{
		{
			name:       "drift above threshold",
			policy:     ClockPolicy{Enabled: true},
			receivedAt: now,
			fix:        validFix(5 * time.Second),
			want:       true,
		},
		{
			name:       "drift within tolerance",
			policy:     ClockPolicy{Enabled: true},
			receivedAt: now,
			fix:        validFix(1500 * time.Millisecond),
			want:       false,
		},
		{
			name:       "disabled",
			policy:     ClockPolicy{},
			receivedAt: now,
			fix:        validFix(5 * time.Second),
			want:       false,
		},
		{
			name:       "rate limited",
			policy:     ClockPolicy{Enabled: true},
			lastAdjust: now.Add(-30 * time.Second),
			receivedAt: now,
			fix:        validFix(5 * time.Second),
			want:       false,
		},
		{
			name:       "rate limit expired",
			policy:     ClockPolicy{Enabled: true},
			lastAdjust: now.Add(-90 * time.Second),
			receivedAt: now,
			fix:        validFix(5 * time.Second),
			want:       true,
		},
		{
			name:       "stale fix",
			policy:     ClockPolicy{Enabled: true},
			receivedAt: now.Add(-20 * time.Second),
			fix:        validFix(5 * time.Second),
			want:       false,
		},
		{
			name:       "fix without time",
			policy:     ClockPolicy{Enabled: true},
			receivedAt: now,
			fix:        Fix{Valid: true},
			want:       false,
		},
		{
			name:       "invalid fix",
			policy:     ClockPolicy{Enabled: true},
			receivedAt: now,
			fix:        Fix{Time: now.Add(-5 * time.Second)},
			want:       false,
		},
	}
	for _, c := range cases {
		cs := newClockSync(c.policy, nil)
		cs.lastAdjust = c.lastAdjust
		if got := cs.decide(now, c.receivedAt, c.fix); got != c.want {
			t.Fatalf("%s: decide = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestClockSyncIgnoresStaleReceipt(t *testing.T) {
	cs := newClockSync(ClockPolicy{Enabled: true}, nil)

	// Valid fix with a huge drift, but the fix came off the stream 20s
	// ago; the age gate must reject it before any adjustment attempt.
	fix := Fix{Valid: true, Time: time.Now().UTC().Add(-time.Hour)}
	cs.maybeAdjust(time.Now().UTC().Add(-20*time.Second), fix)
	if !cs.lastAdjust.IsZero() {
		t.Fatalf("adjustment attempted for a stale receipt")
	}
}

func TestClockSyncDefaults(t *testing.T) {
	cs := newClockSync(ClockPolicy{Enabled: true, MinInterval: 5 * time.Second}, nil)
	if cs.policy.MinInterval != 60*time.Second {
		t.Fatalf("MinInterval = %v, want floor of 60s", cs.policy.MinInterval)
	}
	if cs.policy.MaxDrift != 2*time.Second {
		t.Fatalf("MaxDrift = %v, want 2s", cs.policy.MaxDrift)
	}
	if cs.policy.MaxFixAge != 10*time.Second {
		t.Fatalf("MaxFixAge = %v, want 10s", cs.policy.MaxFixAge)
	}
}
