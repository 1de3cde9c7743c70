package modem

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"i4.energy/across/drivetest/at"
)

// TestTransport is a scripted Transport for tests. Each written command is
// looked up in the script and its next queued response becomes readable.
// The last queued response of a command repeats. Unscripted commands get no
// answer. Read behaves like a serial port with a short read timeout: it
// returns (0, nil) after a brief pause when nothing is pending.
type TestTransport struct {
	mu      sync.Mutex
	script  map[string][]string
	pending []byte
	writes  []string
	closed  bool

	// ReadErr, WriteErr and ResetErr are returned by the respective calls
	// when set.
	ReadErr  error
	WriteErr error
	ResetErr error
}

// NewTestTransport creates an empty script.
func NewTestTransport() *TestTransport {
	return &TestTransport{script: make(map[string][]string)}
}

// Respond queues responses for cmd, consumed one per write.
func (t *TestTransport) Respond(cmd string, responses ...string) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script[cmd] = append(t.script[cmd], responses...)
	return t
}

// Dial implements Dialer so a TestTransport can be passed to the builder
// directly.
func (t *TestTransport) Dial(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *TestTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, io.ErrClosedPipe
	}
	if t.WriteErr != nil {
		return 0, t.WriteErr
	}

	cmd := strings.TrimSuffix(string(p), at.CRLF)
	t.writes = append(t.writes, cmd)

	queue := t.script[cmd]
	if len(queue) == 0 {
		return len(p), nil
	}
	t.pending = append(t.pending, queue[0]...)
	if len(queue) > 1 {
		t.script[cmd] = queue[1:]
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.EOF
	}
	if t.ReadErr != nil {
		t.mu.Unlock()
		return 0, t.ReadErr
	}
	if len(t.pending) == 0 {
		t.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	t.mu.Unlock()
	return n, nil
}

func (t *TestTransport) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ResetErr != nil {
		return t.ResetErr
	}
	t.pending = nil
	return nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Writes returns every command written so far, without terminators.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// Count returns how many times cmd was written.
func (t *TestTransport) Count(cmd string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, w := range t.writes {
		if w == cmd {
			n++
		}
	}
	return n
}
