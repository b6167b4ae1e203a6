// Package apps detects whether the target applications are running, via
// their inbound UDP heartbeat traffic, and delivers grid-square updates
// to each over its own channel: a UDP datagram protocol for WSJT-X, a
// line-based TCP command for JS8Call.
package apps

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"autogrid/internal/js8call"
	"autogrid/internal/logging"
	"autogrid/internal/wsjtx"
)

type Name string

const (
	WSJTX   Name = "wsjt-x"
	JS8Call Name = "js8call"
)

type State string

const (
	StateUndetected State = "undetected"
	StateDetected   State = "detected"
	StateLost       State = "lost"
)

type Config struct {
	// WSJTXPort receives WSJT-X heartbeat/status datagrams and doubles
	// as the reply path for location updates.
	WSJTXPort int

	// JS8CallUDPPort receives JS8Call API traffic; any datagram on it
	// counts as liveness.
	JS8CallUDPPort int

	// JS8CallTCPAddr is where STATION.SET_GRID commands go.
	JS8CallTCPAddr string

	// DetectionTimeout flips a Detected target to Lost when no
	// heartbeat arrives for this long.
	DetectionTimeout time.Duration

	MaxRetries    int
	RetryInterval time.Duration
}

type target struct {
	state         State
	lastHeartbeat time.Time

	// gen counts Detected transitions; a send that started before a
	// redetection must not record its grid as delivered to the new
	// application instance.
	gen uint64

	// WSJT-X replies go to the source of its last datagram, carrying
	// the instance ID it announced.
	addr *net.UDPAddr
	id   string

	lastSentGrid string
}

type TargetSnapshot struct {
	Name             Name   `json:"name"`
	State            State  `json:"state"`
	LastHeartbeatUTC string `json:"last_heartbeat_utc,omitempty"`
	LastSentGrid     string `json:"last_sent_grid,omitempty"`
}

// Communicator runs one heartbeat listener per target. Targets are
// created once and only ever change state; reopening an application is
// expected and normal.
type Communicator struct {
	cfg Config
	lg  *logging.Logger

	mu      sync.Mutex
	targets map[Name]*target

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	listeners []*net.UDPConn
}

func NewCommunicator(cfg Config, lg *logging.Logger) *Communicator {
	if cfg.DetectionTimeout <= 0 {
		cfg.DetectionTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	return &Communicator{
		cfg: cfg,
		lg:  lg,
		targets: map[Name]*target{
			WSJTX:   {state: StateUndetected},
			JS8Call: {state: StateUndetected},
		},
	}
}

func (c *Communicator) Start(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("communicator is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}

	wsjtxConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: c.cfg.WSJTXPort})
	if err != nil {
		return fmt.Errorf("bind wsjt-x heartbeat port %d: %w", c.cfg.WSJTXPort, err)
	}
	js8Conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: c.cfg.JS8CallUDPPort})
	if err != nil {
		_ = wsjtxConn.Close()
		return fmt.Errorf("bind js8call heartbeat port %d: %w", c.cfg.JS8CallUDPPort, err)
	}
	c.listeners = []*net.UDPConn{wsjtxConn, js8Conn}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		c.listenLoop(wsjtxConn, c.handleWSJTX)
	}()
	go func() {
		defer c.wg.Done()
		c.listenLoop(js8Conn, c.handleJS8Call)
	}()
	go func() {
		// Closing the listeners unblocks the read loops on shutdown.
		defer c.wg.Done()
		<-runCtx.Done()
		for _, l := range c.listeners {
			_ = l.Close()
		}
	}()

	c.lg.Infof("listening for heartbeats: wsjt-x udp/%d, js8call udp/%d", c.cfg.WSJTXPort, c.cfg.JS8CallUDPPort)
	return nil
}

func (c *Communicator) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

func (c *Communicator) listenLoop(conn *net.UDPConn, handle func([]byte, *net.UDPAddr)) {
	buf := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		handle(buf[:n], addr)
	}
}

func (c *Communicator) handleWSJTX(data []byte, addr *net.UDPAddr) {
	msg, err := wsjtx.Decode(data)
	if err != nil {
		c.lg.Debugf("wsjt-x: ignoring datagram from %s: %v", addr, err)
		return
	}
	switch msg.Type {
	case wsjtx.TypeHeartbeat, wsjtx.TypeStatus:
		c.markSeen(WSJTX, addr, msg.ID)
	default:
		c.lg.Debugf("wsjt-x: message type %d from %s", msg.Type, addr)
	}
}

func (c *Communicator) handleJS8Call(_ []byte, addr *net.UDPAddr) {
	c.markSeen(JS8Call, addr, "")
}

func (c *Communicator) markSeen(name Name, addr *net.UDPAddr, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.targets[name]
	t.lastHeartbeat = time.Now().UTC()
	if addr != nil {
		t.addr = addr
	}
	if id != "" {
		t.id = id
	}
	if t.state != StateDetected {
		t.state = StateDetected
		t.gen++
		// A freshly (re)started application has no memory of earlier
		// updates, so the next tick must send even an unchanged grid.
		t.lastSentGrid = ""
		c.lg.Infof("%s detected", name)
	}
}

// States returns a snapshot of every target, applying the
// Detected-to-Lost transition for targets whose heartbeats dried up.
// The transition fires exactly once per timeout expiry.
func (c *Communicator) States(now time.Time) []TargetSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]TargetSnapshot, 0, len(c.targets))
	for _, name := range []Name{WSJTX, JS8Call} {
		t := c.targets[name]
		if t.state == StateDetected && now.Sub(t.lastHeartbeat) > c.cfg.DetectionTimeout {
			t.state = StateLost
			c.lg.Infof("%s no longer detected", name)
		}
		snap := TargetSnapshot{Name: name, State: t.state, LastSentGrid: t.lastSentGrid}
		if !t.lastHeartbeat.IsZero() {
			snap.LastHeartbeatUTC = t.lastHeartbeat.Format(time.RFC3339Nano)
		}
		out = append(out, snap)
	}
	return out
}

// SendGrid delivers a grid update to a Detected target, retrying
// transient failures. Exhausting the retry budget marks the target Lost
// and is not fatal; detection simply resumes.
func (c *Communicator) SendGrid(ctx context.Context, name Name, grid string) error {
	c.mu.Lock()
	t, ok := c.targets[name]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("unknown target %q", name)
	}
	if t.state != StateDetected {
		c.mu.Unlock()
		return fmt.Errorf("%s is not detected", name)
	}
	addr := t.addr
	id := t.id
	gen := t.gen
	c.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		var err error
		switch name {
		case WSJTX:
			err = c.sendWSJTX(addr, id, grid)
		case JS8Call:
			err = js8call.SetGrid(ctx, c.cfg.JS8CallTCPAddr, grid)
		default:
			return fmt.Errorf("unknown target %q", name)
		}
		if err == nil {
			c.recordSent(t, gen, grid)
			c.lg.Infof("sent grid %s to %s", grid, name)
			return nil
		}
		lastErr = err
		c.lg.Warnf("grid update to %s failed (%d/%d): %v", name, attempt, c.cfg.MaxRetries, err)
		if attempt < c.cfg.MaxRetries {
			if !sleepCtx(ctx, c.cfg.RetryInterval) {
				return ctx.Err()
			}
		}
	}

	c.mu.Lock()
	if t.state == StateDetected {
		t.state = StateLost
		c.lg.Infof("%s marked lost after failed updates", name)
	}
	c.mu.Unlock()
	return fmt.Errorf("grid update to %s failed after %d attempts: %w", name, c.cfg.MaxRetries, lastErr)
}

// recordSent marks the grid as delivered unless the target was
// redetected while the send was in flight; the new application
// instance still gets its guaranteed update on the next tick.
func (c *Communicator) recordSent(t *target, gen uint64, grid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.gen != gen {
		return false
	}
	t.lastSentGrid = grid
	return true
}

// sendWSJTX fires a location-change packet from a one-shot socket so
// the heartbeat listener's bound port is left untouched.
func (c *Communicator) sendWSJTX(addr *net.UDPAddr, id, grid string) error {
	if addr == nil {
		return fmt.Errorf("wsjt-x address not yet known")
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	_, err = conn.Write(wsjtx.LocationChangePacket(id, grid))
	return err
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
