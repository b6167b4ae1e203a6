// Package js8call talks to the JS8Call TCP API. Connections are opened
// per command and closed right after, so companion tools polling the
// same port are never blocked out.
package js8call

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

const (
	dialTimeout     = 5 * time.Second
	responseTimeout = 2 * time.Second
)

type command struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SetGrid sends STATION.SET_GRID with the given locator over a
// short-lived TCP connection to addr.
func SetGrid(ctx context.Context, addr, grid string) error {
	d := &net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("js8call dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	msg, err := json.Marshal(command{Type: "STATION.SET_GRID", Value: grid})
	if err != nil {
		return err
	}
	msg = append(msg, '\n')

	_ = conn.SetWriteDeadline(time.Now().Add(dialTimeout))
	if _, err := conn.Write(msg); err != nil {
		return fmt.Errorf("js8call write: %w", err)
	}

	// Read the response best-effort; JS8Call may or may not answer.
	_ = conn.SetReadDeadline(time.Now().Add(responseTimeout))
	buf := make([]byte, 1024)
	_, _ = conn.Read(buf)
	return nil
}
