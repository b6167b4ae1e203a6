package gps

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"autogrid/internal/logging"
)

// Config controls the GPS service. Exactly one source is active for the
// process lifetime; changing sources requires a restart.
type Config struct {
	Source  Source
	Network NetworkConfig
	Serial  SerialConfig
	GPSD    GPSDConfig

	// UpdateInterval paces positional re-checks downstream and, together
	// with StaleAfterIntervals, defines the staleness window.
	UpdateInterval      time.Duration
	StaleAfterIntervals int

	// MaxRetries is how many consecutive connect/stream failures are
	// retried (RetryInterval apart) before the source error is fatal.
	MaxRetries    int
	RetryInterval time.Duration

	Clock ClockPolicy
}

type Service struct {
	cfg Config
	src source
	lg  *logging.Logger

	clock *clockSync

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	fatal chan error
	last  atomic.Value // state
}

type state struct {
	fix        Fix
	receivedAt time.Time
	lastErr    string
}

func New(cfg Config, lg *logging.Logger) (*Service, error) {
	var src source
	switch cfg.Source {
	case SourceNetwork:
		src = &networkSource{cfg: cfg.Network}
	case SourceSerial:
		src = &serialSource{cfg: cfg.Serial}
	case SourceGPSD:
		src = &gpsdSource{cfg: cfg.GPSD}
	default:
		return nil, fmt.Errorf("gps: unsupported source %q", cfg.Source)
	}
	return newService(cfg, lg, src), nil
}

func newService(cfg Config, lg *logging.Logger, src source) *Service {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 2 * time.Second
	}
	if cfg.StaleAfterIntervals <= 0 {
		cfg.StaleAfterIntervals = 3
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	s := &Service{
		cfg:   cfg,
		src:   src,
		lg:    lg,
		clock: newClockSync(cfg.Clock, lg),
		fatal: make(chan error, 1),
	}
	s.last.Store(state{})
	return s
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(runCtx)
	}()
	return nil
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// Closing the source unblocks any pending read.
	_ = s.src.Close()
	s.wg.Wait()
}

// Fatal delivers the terminal source error once the retry budget is
// exhausted. The channel is buffered; the service goroutine exits after
// sending.
func (s *Service) Fatal() <-chan error { return s.fatal }

func (s *Service) Snapshot(now time.Time) Snapshot {
	if s == nil {
		return Snapshot{}
	}
	st := s.last.Load().(state)
	out := Snapshot{
		Source:    s.cfg.Source,
		Valid:     st.fix.Valid,
		LatDeg:    st.fix.LatDeg,
		LonDeg:    st.fix.LonDeg,
		LastError: st.lastErr,
	}
	if st.receivedAt.IsZero() {
		out.Stale = true
	} else {
		out.ReceivedUTC = st.receivedAt.UTC().Format(time.RFC3339Nano)
		out.Stale = now.Sub(st.receivedAt) > s.staleWindow()
	}
	if !st.fix.Time.IsZero() {
		out.FixTimeUTC = st.fix.Time.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (s *Service) staleWindow() time.Duration {
	return s.cfg.UpdateInterval * time.Duration(s.cfg.StaleAfterIntervals)
}

func (s *Service) run(ctx context.Context) {
	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.src.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			s.setError(err.Error())
			if failures > s.cfg.MaxRetries {
				s.escalate(err)
				return
			}
			s.lg.Warnf("gps %s connect failed (%d/%d): %v", s.src.Name(), failures, s.cfg.MaxRetries, err)
			if !sleepCtx(ctx, s.cfg.RetryInterval) {
				return
			}
			continue
		}

		// Close may have raced with the connect in flight, in which case
		// the source reopened after Close already closed it and nothing
		// would ever unblock the read loop.
		if ctx.Err() != nil {
			_ = s.src.Close()
			return
		}

		s.lg.Infof("gps %s connected", s.src.Name())
		gotFix, err := s.readLoop(ctx)
		_ = s.src.Close()
		if ctx.Err() != nil {
			return
		}

		// A working stream resets the consecutive-failure budget.
		if gotFix {
			failures = 0
		}
		failures++
		s.setError(err.Error())
		if failures > s.cfg.MaxRetries {
			s.escalate(err)
			return
		}
		s.lg.Warnf("gps %s stream failed (%d/%d): %v", s.src.Name(), failures, s.cfg.MaxRetries, err)
		if !sleepCtx(ctx, s.cfg.RetryInterval) {
			return
		}
	}
}

// readLoop publishes valid fixes until the stream fails. Reports
// whether at least one valid fix was seen on this connection.
func (s *Service) readLoop(ctx context.Context) (bool, error) {
	got := false
	for {
		fix, err := s.src.ReadFix()
		if err != nil {
			return got, err
		}
		if ctx.Err() != nil {
			return got, ctx.Err()
		}
		if !fix.Valid {
			s.lg.Debugf("gps %s: record without active fix", s.src.Name())
			continue
		}

		got = true
		now := time.Now().UTC()
		s.last.Store(state{fix: fix, receivedAt: now})
		s.clock.maybeAdjust(now, fix)
	}
}

func (s *Service) escalate(err error) {
	ferr := fmt.Errorf("gps %s: giving up after %d retries: %w", s.src.Name(), s.cfg.MaxRetries, err)
	s.lg.Errorf("%v", ferr)
	select {
	case s.fatal <- ferr:
	default:
	}
}

// setError records the last stream error without touching the fix; a
// transient failure must not flip validity, staleness covers that.
func (s *Service) setError(msg string) {
	st := s.last.Load().(state)
	st.lastErr = msg
	s.last.Store(st)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
