package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -destination=mocks.go -package=modem . Transport,Dialer

// DefaultReadTimeout bounds a single Read on a serial transport so that
// exchange deadlines and cancellation are observed between reads.
const DefaultReadTimeout = 100 * time.Millisecond

// Transport represents an established, bidirectional byte stream to a
// cellular modem.
//
// A Transport is assumed to be already connected and ready for use. Read is
// expected to return (0, nil) when no data arrived within the transport's
// own read timeout, as serial ports do. ResetInputBuffer discards bytes
// received but not yet read, so stale output from a previous exchange is not
// attributed to the next command.
type Transport interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

// Dialer opens a Transport to a modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port or a test double) and is intended to be used during modem
// construction only.
type Dialer interface {
	// Dial creates and returns a connected Transport. It should respect
	// cancellation provided by the context.
	Dial(ctx context.Context) (Transport, error)
}

// SerialDialer opens a modem over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. /dev/ttyUSB2.
	PortName string
	// Mode overrides the serial line settings. When nil the port is opened
	// at BaudRate (or 115200) with 8N1 framing.
	Mode *serial.Mode
	// BaudRate is used when Mode is nil.
	BaudRate int
	// ReadTimeout bounds each Read. Zero selects DefaultReadTimeout.
	ReadTimeout time.Duration
}

// Dial opens the serial port described by d.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = 115200
		}
		mode = &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}

	timeout := d.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", d.PortName, err)
	}

	return port, nil
}
