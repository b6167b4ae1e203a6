package gps

import "time"

// Source identifies the GPS ingestion backend.
type Source string

const (
	SourceNetwork Source = "network"
	SourceSerial  Source = "serial"
	SourceGPSD    Source = "gpsd"
)

// Fix is one reported position/time sample. A Fix with Valid=false
// carries no trustworthy coordinates and must never be converted to a
// grid square. Time is the receiver-reported UTC instant, or zero when
// the record carried no usable time.
type Fix struct {
	LatDeg float64
	LonDeg float64
	Valid  bool
	Time   time.Time
	Source Source
}

// Snapshot is the externally visible GPS state at one instant.
type Snapshot struct {
	Source Source `json:"source"`
	Valid  bool   `json:"valid"`
	Stale  bool   `json:"stale"`

	LatDeg float64 `json:"lat_deg,omitempty"`
	LonDeg float64 `json:"lon_deg,omitempty"`

	FixTimeUTC  string `json:"fix_time_utc,omitempty"`
	ReceivedUTC string `json:"received_utc,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}
