package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

type NetworkConfig struct {
	Host string
	Port int
	// Protocol is "tcp" or "udp".
	Protocol string
	// Timeout bounds the TCP dial.
	Timeout time.Duration
}

// networkSource reads NMEA text lines from a remote host. TCP keeps a
// persistent connection; UDP receives datagrams and splits them into
// lines.
type networkSource struct {
	cfg NetworkConfig

	mu   sync.Mutex
	conn net.Conn

	scanner *bufio.Scanner
	pending []string
}

func (n *networkSource) Name() Source { return SourceNetwork }

func (n *networkSource) Connect(ctx context.Context) error {
	proto := strings.ToLower(strings.TrimSpace(n.cfg.Protocol))
	if proto == "" {
		proto = "tcp"
	}
	if proto != "tcp" && proto != "udp" {
		return fmt.Errorf("gps network: unsupported protocol %q", proto)
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	d := &net.Dialer{Timeout: n.cfg.Timeout}
	conn, err := d.DialContext(ctx, proto, addr)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()

	n.scanner = nil
	n.pending = nil
	if proto == "tcp" {
		sc := bufio.NewScanner(conn)
		// NMEA sentences are typically < 82 chars, but allow headroom.
		sc.Buffer(make([]byte, 0, 256), 4096)
		n.scanner = sc
	}
	return nil
}

func (n *networkSource) ReadFix() (Fix, error) {
	for {
		line, err := n.nextLine()
		if err != nil {
			return Fix{}, err
		}
		fix, ok := DecodeSentence(line, time.Now().UTC())
		if !ok {
			continue
		}
		fix.Source = SourceNetwork
		return fix, nil
	}
}

func (n *networkSource) nextLine() (string, error) {
	if n.scanner != nil {
		if !n.scanner.Scan() {
			err := n.scanner.Err()
			if err == nil {
				err = io.EOF
			}
			return "", err
		}
		return strings.TrimSpace(n.scanner.Text()), nil
	}

	// UDP: one datagram may carry several sentences.
	for len(n.pending) == 0 {
		conn := n.currentConn()
		if conn == nil {
			return "", net.ErrClosed
		}
		buf := make([]byte, 2048)
		nr, err := conn.Read(buf)
		if err != nil {
			return "", err
		}
		for _, l := range strings.Split(string(buf[:nr]), "\n") {
			if l = strings.TrimSpace(l); l != "" {
				n.pending = append(n.pending, l)
			}
		}
	}
	line := n.pending[0]
	n.pending = n.pending[1:]
	return line, nil
}

func (n *networkSource) currentConn() net.Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn
}

func (n *networkSource) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}
