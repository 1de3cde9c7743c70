// Package gnss reads UBX frames from a u-blox receiver and logs them as
// decoded text.
package gnss

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// UBX framing constants.
const (
	Sync1 = 0xB5
	Sync2 = 0x62

	headerLen   = 6
	checksumLen = 2
	// MaxFrameLen is the largest possible frame: header, a 16-bit payload
	// length and the checksum.
	MaxFrameLen = headerLen + 0xFFFF + checksumLen
)

var (
	// ErrChecksum is returned for a frame whose checksum does not match.
	ErrChecksum = errors.New("ubx checksum mismatch")
	// ErrShortFrame is returned for a buffer too short to hold its frame.
	ErrShortFrame = errors.New("ubx frame truncated")
)

var syncWord = []byte{Sync1, Sync2}

// Frame is one UBX message.
type Frame struct {
	Class   byte
	ID      byte
	Payload []byte
}

// Checksum computes the 8-bit Fletcher checksum over class, id, length and
// payload, i.e. the frame without its sync word and checksum.
func Checksum(body []byte) (a, b byte) {
	for _, c := range body {
		a += c
		b += a
	}
	return a, b
}

// Encode returns the wire form of f.
func (f Frame) Encode() []byte {
	out := make([]byte, 0, headerLen+len(f.Payload)+checksumLen)
	out = append(out, Sync1, Sync2, f.Class, f.ID)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(f.Payload)))
	out = append(out, f.Payload...)
	a, b := Checksum(out[2:])
	return append(out, a, b)
}

// ParseFrame validates a complete wire frame and returns it. The payload
// aliases raw.
func ParseFrame(raw []byte) (Frame, error) {
	if len(raw) < headerLen+checksumLen || raw[0] != Sync1 || raw[1] != Sync2 {
		return Frame{}, ErrShortFrame
	}
	n := int(binary.LittleEndian.Uint16(raw[4:6]))
	if len(raw) != headerLen+n+checksumLen {
		return Frame{}, fmt.Errorf("%w: length field %d, have %d bytes", ErrShortFrame, n, len(raw))
	}
	a, b := Checksum(raw[2 : headerLen+n])
	if a != raw[headerLen+n] || b != raw[headerLen+n+1] {
		return Frame{}, ErrChecksum
	}
	return Frame{Class: raw[2], ID: raw[3], Payload: raw[headerLen : headerLen+n]}, nil
}

// Splitter is a bufio.SplitFunc that yields complete, checksum-valid UBX
// frames. Bytes before a sync word (NMEA sentences, noise) are skipped, and
// a frame with a bad checksum is dropped by resynchronizing past its sync
// word. A partial frame at EOF is discarded.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for {
		i := bytes.Index(data[advance:], syncWord)
		if i < 0 {
			// keep a trailing first sync byte, it may start the next frame
			skip := len(data)
			if !atEOF && skip > advance && data[skip-1] == Sync1 {
				skip--
			}
			return skip, nil, nil
		}
		start := advance + i
		rest := data[start:]

		if len(rest) < headerLen {
			if atEOF {
				return len(data), nil, nil
			}
			return start, nil, nil
		}
		total := headerLen + int(binary.LittleEndian.Uint16(rest[4:6])) + checksumLen
		if len(rest) < total {
			if atEOF {
				return len(data), nil, nil
			}
			return start, nil, nil
		}

		frame := rest[:total]
		if _, err := ParseFrame(frame); err != nil {
			advance = start + 2
			continue
		}
		return start + total, frame, nil
	}
}
