package modem

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"i4.energy/across/drivetest/at"
)

// Modem drives a cellular modem over a Transport with one command/response
// exchange at a time.
type Modem struct {
	// mu serializes exchanges so that responses are never interleaved.
	mu        sync.Mutex
	transport Transport
	config    Config
	logger    *slog.Logger
	closed    bool
}

// Result is the outcome of a single exchange. Text is the decoded response,
// which may be empty when the modem said nothing within the window. A
// non-nil Err marks the response as unusable.
type Result struct {
	Command string
	Text    string
	Err     error
}

// Usable reports whether the exchange produced a response that can be
// inspected.
func (r Result) Usable() bool {
	return r.Err == nil
}

// OK reports whether the response is usable and holds an OK line.
func (r Result) OK() bool {
	return r.Err == nil && at.HasOK(r.Text)
}

// Lines returns the non-empty response lines.
func (r Result) Lines() []string {
	return at.Lines(r.Text)
}

// rejection names the final result code of a refused response, or quotes
// the whole text when the modem reported no error.
func rejection(text string) string {
	if final, ok := at.FinalResult(text); ok && final != at.OK {
		return final
	}
	return fmt.Sprintf("answered %q", text)
}

// New creates a Modem with the given configuration and dials its transport.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial modem: %w", err)
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	return &Modem{
		transport: transport,
		config:    config,
		logger:    config.logger,
	}, nil
}

// Close releases the transport. After Close every exchange fails with
// ErrTransport.
func (m *Modem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrAlreadyClosed
	}
	m.closed = true
	return m.transport.Close()
}

// Exchange writes cmd terminated by CRLF, then collects everything the
// modem sends until timeout elapses. Pending input is discarded before the
// write. Cancelling ctx ends the read window early.
func (m *Modem) Exchange(ctx context.Context, cmd string, timeout time.Duration) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	res := m.exchange(ctx, cmd, timeout)
	elapsed := time.Since(start)

	m.config.observer.ObserveExchange(cmd, elapsed, res.Err)
	m.logger.Debug("exchange",
		"command", cmd,
		"response", res.Text,
		"elapsed", elapsed,
		"error", res.Err,
	)
	return res
}

func (m *Modem) exchange(ctx context.Context, cmd string, timeout time.Duration) Result {
	res := Result{Command: cmd}

	if m.closed {
		res.Err = fmt.Errorf("%w: %w", ErrTransport, ErrAlreadyClosed)
		return res
	}

	if err := m.transport.ResetInputBuffer(); err != nil {
		res.Err = fmt.Errorf("%w: reset input: %w", ErrTransport, err)
		return res
	}

	if _, err := m.transport.Write([]byte(cmd + at.CRLF)); err != nil {
		res.Err = fmt.Errorf("%w: write %q: %w", ErrTransport, cmd, err)
		return res
	}

	var (
		buf      bytes.Buffer
		chunk    = make([]byte, 512)
		deadline = time.Now().Add(timeout)
	)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		n, err := m.transport.Read(chunk)
		buf.Write(chunk[:n])
		if err != nil {
			res.Err = fmt.Errorf("%w: read after %q: %w", ErrTransport, cmd, err)
			return res
		}
	}

	raw := buf.Bytes()
	if !utf8.Valid(raw) {
		res.Err = fmt.Errorf("%w: %d bytes after %q", ErrDecode, len(raw), cmd)
		return res
	}
	res.Text = strings.TrimSpace(string(raw))
	return res
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
