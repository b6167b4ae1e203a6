// Package wsjtx encodes and decodes the subset of the WSJT-X UDP
// message protocol this program needs: recognizing heartbeat/status
// datagrams for presence detection and building location-change packets
// that carry a grid square.
//
// Wire format: big-endian, header of magic number (uint32), schema
// (uint32) and message type (int32), then type-specific fields. Strings
// are QStrings: int32 byte length (-1 for null) followed by UTF-8.
package wsjtx

import (
	"encoding/binary"
	"fmt"
)

const (
	Magic         = 0xadbccbda
	SchemaVersion = 3
)

const (
	TypeHeartbeat      = 0
	TypeStatus         = 1
	TypeLocationChange = 11
)

const headerLen = 12

// Message is the decoded header of an inbound datagram plus the
// instance ID that every WSJT-X message starts with.
type Message struct {
	Type int32
	ID   string
}

// Decode parses the header and instance ID of an inbound datagram.
// Datagrams without the WSJT-X magic number are rejected.
func Decode(b []byte) (Message, error) {
	if len(b) < headerLen+4 {
		return Message{}, fmt.Errorf("wsjtx: short datagram (%d bytes)", len(b))
	}
	if binary.BigEndian.Uint32(b[0:4]) != Magic {
		return Message{}, fmt.Errorf("wsjtx: bad magic")
	}
	// Schema is not checked strictly; all schemas share the header.
	msgType := int32(binary.BigEndian.Uint32(b[8:12]))

	id, _, err := readQString(b[headerLen:])
	if err != nil {
		return Message{}, fmt.Errorf("wsjtx: id field: %w", err)
	}
	return Message{Type: msgType, ID: id}, nil
}

// LocationChangePacket builds a type-11 packet instructing the given
// WSJT-X instance to adopt a new grid square. WSJT-X expects the
// location string prefixed with "GRID:".
func LocationChangePacket(id, grid string) []byte {
	if id == "" {
		id = "WSJT-X"
	}
	out := make([]byte, 0, headerLen+8+len(id)+len(grid)+5)
	out = binary.BigEndian.AppendUint32(out, Magic)
	out = binary.BigEndian.AppendUint32(out, SchemaVersion)
	out = binary.BigEndian.AppendUint32(out, uint32(TypeLocationChange))
	out = appendQString(out, id)
	out = appendQString(out, "GRID:"+grid)
	return out
}

func appendQString(out []byte, s string) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(int32(len(s))))
	return append(out, s...)
}

func readQString(b []byte) (string, int, error) {
	if len(b) < 4 {
		return "", 0, fmt.Errorf("truncated length")
	}
	n := int32(binary.BigEndian.Uint32(b[0:4]))
	if n < 0 {
		// Null QString.
		return "", 4, nil
	}
	if int(n) > len(b)-4 {
		return "", 0, fmt.Errorf("truncated payload (%d of %d bytes)", len(b)-4, n)
	}
	return string(b[4 : 4+n]), 4 + int(n), nil
}
