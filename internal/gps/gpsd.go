package gps

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

type GPSDConfig struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// gpsdSource speaks the gpsd JSON protocol directly: connect, enable
// watching, then decode newline-delimited reports. TPV yields position
// and time; SKY is consulted only for time-sync quality. Everything
// else (VERSION, DEVICES, WATCH echoes) is ignored.
type gpsdSource struct {
	cfg GPSDConfig

	mu   sync.Mutex
	conn net.Conn

	scanner *bufio.Scanner

	skySeen  bool
	satsUsed int
}

const gpsdWatchCommand = "?WATCH={\"enable\":true,\"json\":true};\n"

func (g *gpsdSource) Name() Source { return SourceGPSD }

func (g *gpsdSource) Connect(ctx context.Context) error {
	host := g.cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := g.cfg.Port
	if port <= 0 {
		port = 2947
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	d := &net.Dialer{Timeout: g.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if _, err := conn.Write([]byte(gpsdWatchCommand)); err != nil {
		_ = conn.Close()
		return err
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), 256*1024)
	g.scanner = sc
	return nil
}

type gpsdTPV struct {
	Class string   `json:"class"`
	Mode  *int     `json:"mode"`
	Time  string   `json:"time"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
}

type gpsdSKY struct {
	Satellites []struct {
		Used bool `json:"used"`
	} `json:"satellites"`
}

func (g *gpsdSource) ReadFix() (Fix, error) {
	for {
		if !g.scanner.Scan() {
			err := g.scanner.Err()
			if err == nil {
				err = io.EOF
			}
			return Fix{}, err
		}
		line := strings.TrimSpace(g.scanner.Text())
		if line == "" {
			continue
		}
		fix, ok := g.applyLine(line)
		if !ok {
			continue
		}
		return fix, nil
	}
}

// applyLine decodes one gpsd report. Only TPV produces a Fix.
func (g *gpsdSource) applyLine(line string) (Fix, bool) {
	var base struct {
		Class string `json:"class"`
	}
	if err := json.Unmarshal([]byte(line), &base); err != nil {
		// Malformed report; discard it, the stream itself is fine.
		return Fix{}, false
	}

	switch strings.ToUpper(base.Class) {
	case "TPV":
		var tpv gpsdTPV
		if err := json.Unmarshal([]byte(line), &tpv); err != nil {
			return Fix{}, false
		}
		return g.applyTPV(tpv), true
	case "SKY":
		var sky gpsdSKY
		if err := json.Unmarshal([]byte(line), &sky); err != nil {
			return Fix{}, false
		}
		g.skySeen = true
		used := 0
		for _, sat := range sky.Satellites {
			if sat.Used {
				used++
			}
		}
		g.satsUsed = used
		return Fix{}, false
	default:
		return Fix{}, false
	}
}

func (g *gpsdSource) applyTPV(tpv gpsdTPV) Fix {
	fix := Fix{Source: SourceGPSD}

	mode := 0
	if tpv.Mode != nil {
		mode = *tpv.Mode
	}
	if tpv.Lat != nil {
		fix.LatDeg = *tpv.Lat
	}
	if tpv.Lon != nil {
		fix.LonDeg = *tpv.Lon
	}
	// mode < 2 means no fix regardless of any reported coordinates.
	fix.Valid = mode >= 2 && tpv.Lat != nil && tpv.Lon != nil &&
		fix.LatDeg >= -90 && fix.LatDeg <= 90 && fix.LonDeg >= -180 && fix.LonDeg <= 180

	// Trust the report time for clock sync only while satellites are in
	// use (per the last SKY report, when one has been seen).
	if strings.TrimSpace(tpv.Time) != "" && (!g.skySeen || g.satsUsed > 0) {
		if t, err := time.Parse(time.RFC3339Nano, tpv.Time); err == nil {
			fix.Time = t.UTC()
		}
	}
	return fix
}

func (g *gpsdSource) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return nil
	}
	err := g.conn.Close()
	g.conn = nil
	return err
}
