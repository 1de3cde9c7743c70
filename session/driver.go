// Package session runs one modem command session: configure, wait for the
// network, then either sample telemetry or cycle flight mode, appending
// every result to the modem log.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"i4.energy/across/drivetest/logfile"
	"i4.energy/across/drivetest/modem"
)

// Stream names the modem log in published records.
const Stream = "modem"

// Flight cycle event markers.
const (
	MarkerPumping    = "Pumping Data To Server..."
	MarkerFlightMode = "Flight Mode Active..."
)

// Modem is the command surface the driver uses. *modem.Modem implements it.
type Modem interface {
	Configure(ctx context.Context, commands []string) (modem.ConfigurationOutcome, error)
	AwaitRegistration(ctx context.Context, attempts int, interval time.Duration) (modem.RegistrationStatus, error)
	CheckRegistration(ctx context.Context) (modem.RegistrationStatus, modem.Result)
	QuerySignal(ctx context.Context, commands []string) []modem.Result
	Sample(ctx context.Context) modem.SignalSample
	SetRadio(ctx context.Context, enable bool) modem.Result
	Pump(ctx context.Context, count int) modem.PumpResult
}

// Sink receives every record after it reached the log, and every sample.
// Sink errors are logged and otherwise ignored.
type Sink interface {
	PublishRecord(ctx context.Context, rec logfile.Record) error
	PublishSample(ctx context.Context, sample modem.SignalSample) error
}

// StateObserver is implemented by sinks that track the session state.
type StateObserver interface {
	ObserveState(state string)
}

// Status is a point-in-time view of a session.
type Status struct {
	Mode       string              `json:"mode"`
	State      string              `json:"state"`
	Records    int                 `json:"records"`
	LogPath    string              `json:"log_path,omitempty"`
	LastRecord string              `json:"last_record,omitempty"`
	LastSample *modem.SignalSample `json:"last_sample,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Driver is the session state machine.
type Driver struct {
	modem  Modem
	config Config
	logger *slog.Logger
	sinks  []Sink
	now    func() time.Time

	mu         sync.RWMutex
	state      State
	records    int
	logPath    string
	lastRecord string
	lastSample *modem.SignalSample
	err        error
}

type Option func(*Driver)

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

func WithSinks(sinks ...Sink) Option {
	return func(d *Driver) { d.sinks = append(d.sinks, sinks...) }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

func NewDriver(m Modem, config Config, opts ...Option) (*Driver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	d := &Driver{
		modem:  m,
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
		state:  StateUnconfigured,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Status returns the current session view. It is safe to call from any
// goroutine.
func (d *Driver) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Status{
		Mode:       d.config.Mode.String(),
		State:      d.state.String(),
		Records:    d.records,
		LogPath:    d.logPath,
		LastRecord: d.lastRecord,
		LastSample: d.lastSample,
	}
	if d.err != nil {
		s.Error = d.err.Error()
	}
	return s
}

// State returns the current state.
func (d *Driver) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Run drives the session until it fails, completes its configured cycles
// or ctx is cancelled. Cancellation returns ctx.Err() after the log file
// has been flushed and closed.
func (d *Driver) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateUnconfigured {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.state = StateConfiguring
	d.mu.Unlock()
	d.notifyState(StateConfiguring)

	if _, err := d.modem.Configure(ctx, d.config.Configuration); err != nil {
		return d.fail(ctx, err)
	}
	d.logger.Info("modem configured, waiting for reboot", "settle", d.config.RebootSettle)
	if err := sleep(ctx, d.config.RebootSettle); err != nil {
		return d.stop(err)
	}

	d.setState(StateRegistering)
	status, err := d.modem.AwaitRegistration(ctx, d.config.RegistrationAttempts, d.config.PollInterval)
	if err != nil {
		return d.fail(ctx, err)
	}
	d.logger.Info("registered", "operator", status.Operator, "act", status.AcT)

	d.modem.QuerySignal(ctx, d.config.Signal)
	if err := ctx.Err(); err != nil {
		return d.stop(err)
	}

	w, err := logfile.Open(d.config.OutputDir, d.config.LogBase)
	if err != nil {
		return d.fail(ctx, err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			d.logger.Error("close modem log", "error", err)
		}
	}()
	d.mu.Lock()
	d.logPath = w.Path()
	d.mu.Unlock()
	d.logger.Info("modem log opened", "path", w.Path())

	switch d.config.Mode {
	case FlightCycle:
		d.setState(StateFlightCycle)
		err = d.runFlightCycle(ctx, w)
	default:
		d.setState(StateTelemetry)
		err = d.runTelemetry(ctx, w)
	}

	switch {
	case err == nil:
		d.setState(StateStopped)
		return nil
	case ctx.Err() != nil:
		return d.stop(ctx.Err())
	default:
		return d.fail(ctx, err)
	}
}

func (d *Driver) runTelemetry(ctx context.Context, w *logfile.Writer) error {
	for cycle := 0; d.config.Cycles == 0 || cycle < d.config.Cycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		sample := d.modem.Sample(ctx)
		// an interrupted sample is incomplete and never recorded
		if err := ctx.Err(); err != nil {
			return err
		}

		ts := d.now()
		if err := d.append(ctx, w, logfile.Record{Stream: Stream, Time: ts, Line: TelemetryLine(ts, sample)}); err != nil {
			return err
		}

		d.mu.Lock()
		d.lastSample = &sample
		d.mu.Unlock()
		for _, s := range d.sinks {
			if err := s.PublishSample(ctx, sample); err != nil {
				d.logger.Warn("publish sample", "error", err)
			}
		}
	}
	return nil
}

func (d *Driver) runFlightCycle(ctx context.Context, w *logfile.Writer) error {
	for cycle := 0; d.config.Cycles == 0 || cycle < d.config.Cycles; cycle++ {
		for _, enable := range []bool{true, false} {
			if err := ctx.Err(); err != nil {
				return err
			}

			d.modem.SetRadio(ctx, enable)

			if enable {
				if err := sleep(ctx, d.config.SettleDelay); err != nil {
					return err
				}
				status, res := d.modem.CheckRegistration(ctx)
				if status.Attached {
					if err := d.event(ctx, w, MarkerPumping); err != nil {
						return err
					}
					result := d.modem.Pump(ctx, d.config.PumpCount)
					d.logger.Info("pump complete",
						"sent", result.Sent,
						"attempted", result.Attempted,
						"stopped_early", result.Stopped,
					)
				} else {
					d.logger.Warn("not attached after enabling radio", "response", res.Text, "error", res.Err)
				}
			} else {
				if err := d.event(ctx, w, MarkerFlightMode); err != nil {
					return err
				}
			}

			if err := sleep(ctx, d.config.DwellDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) event(ctx context.Context, w *logfile.Writer, marker string) error {
	ts := d.now()
	return d.append(ctx, w, logfile.Record{Stream: Stream, Time: ts, Line: EventLine(ts, marker)})
}

func (d *Driver) append(ctx context.Context, w *logfile.Writer, rec logfile.Record) error {
	if err := w.Append(rec.Line); err != nil {
		return fmt.Errorf("append modem record: %w", err)
	}

	d.mu.Lock()
	d.records++
	d.lastRecord = rec.Line
	d.mu.Unlock()

	d.logger.Debug("record", "line", rec.Line)
	for _, s := range d.sinks {
		if err := s.PublishRecord(ctx, rec); err != nil {
			d.logger.Warn("publish record", "error", err)
		}
	}
	return nil
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	d.notifyState(s)
}

func (d *Driver) notifyState(s State) {
	d.logger.Debug("session state", "state", s.String())
	for _, sink := range d.sinks {
		if o, ok := sink.(StateObserver); ok {
			o.ObserveState(s.String())
		}
	}
}

// fail ends the session in StateFailed, unless the failure was caused by
// cancellation.
func (d *Driver) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return d.stop(ctx.Err())
	}
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
	d.setState(StateFailed)
	d.logger.Error("session failed", "error", err)
	return err
}

func (d *Driver) stop(err error) error {
	d.setState(StateStopped)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		d.logger.Info("session stopped", "reason", err)
	}
	return err
}

// TelemetryLine formats a telemetry record.
func TelemetryLine(ts time.Time, s modem.SignalSample) string {
	return logfile.Stamp(ts, strings.Join([]string{s.RF, s.TCP, s.EPS, s.Legacy}, ":"))
}

// EventLine formats a flight cycle event record.
func EventLine(ts time.Time, marker string) string {
	return logfile.Stamp(ts, "'#"+marker+"'")
}

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
