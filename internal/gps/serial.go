package gps

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
)

type SerialConfig struct {
	Device  string
	Baud    int
	Timeout time.Duration
}

// serialSource reads NMEA text lines from a local serial receiver.
type serialSource struct {
	cfg SerialConfig

	mu   sync.Mutex
	port io.ReadWriteCloser

	scanner *bufio.Scanner
}

func (s *serialSource) Name() Source { return SourceSerial }

func (s *serialSource) Connect(_ context.Context) error {
	baud := s.cfg.Baud
	if baud <= 0 {
		baud = 9600
	}
	port, err := serial.Open(serial.OpenOptions{
		PortName:        s.cfg.Device,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.port = port
	s.mu.Unlock()

	sc := bufio.NewScanner(port)
	sc.Buffer(make([]byte, 0, 256), 4096)
	s.scanner = sc
	return nil
}

func (s *serialSource) ReadFix() (Fix, error) {
	for {
		if !s.scanner.Scan() {
			err := s.scanner.Err()
			if err == nil {
				err = io.EOF
			}
			return Fix{}, err
		}
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		fix, ok := DecodeSentence(line, time.Now().UTC())
		if !ok {
			continue
		}
		fix.Source = SourceSerial
		return fix, nil
	}
}

func (s *serialSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
