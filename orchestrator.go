package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"i4.energy/across/drivetest/gnss"
	"i4.energy/across/drivetest/logfile"
	"i4.energy/across/drivetest/metrics"
	"i4.energy/across/drivetest/modem"
	"i4.energy/across/drivetest/session"
)

// Task is one independently running part of a drive test.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunTasks runs every task concurrently and waits for all of them. A failing
// task does not stop the others. Errors caused by cancellation of ctx are
// not failures. The first failure is returned.
func RunTasks(ctx context.Context, logger *slog.Logger, tasks ...Task) error {
	var g errgroup.Group

	for _, t := range tasks {
		g.Go(func() error {
			logger.Info("task started", "task", t.Name)
			err := t.Run(ctx)
			switch {
			case err == nil:
				logger.Info("task finished", "task", t.Name)
				return nil
			case ctx.Err() != nil && errors.Is(err, ctx.Err()):
				logger.Info("task stopped", "task", t.Name)
				return nil
			default:
				logger.Error("task failed", "task", t.Name, "error", err)
				return fmt.Errorf("%s: %w", t.Name, err)
			}
		})
	}

	return g.Wait()
}

// Tracker exposes the live session and stream to the status server. Both
// are set once their task has dialed its port.
type Tracker struct {
	mu      sync.RWMutex
	driver  *session.Driver
	stream  *gnss.Stream
	gnssLog string
}

// GNSSStatus is a point-in-time view of the GNSS stream.
type GNSSStatus struct {
	Frames  int64  `json:"frames"`
	Dropped int64  `json:"dropped"`
	LogPath string `json:"log_path,omitempty"`
}

// Snapshot returns the session and stream views, nil for a part that is not
// running.
func (t *Tracker) Snapshot() (*session.Status, *GNSSStatus) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var sess *session.Status
	if t.driver != nil {
		s := t.driver.Status()
		sess = &s
	}
	var g *GNSSStatus
	if t.stream != nil {
		g = &GNSSStatus{
			Frames:  t.stream.Frames(),
			Dropped: t.stream.Dropped(),
			LogPath: t.gnssLog,
		}
	}
	return sess, g
}

func (t *Tracker) setDriver(d *session.Driver) {
	t.mu.Lock()
	t.driver = d
	t.mu.Unlock()
}

func (t *Tracker) setStream(s *gnss.Stream, logPath string) {
	t.mu.Lock()
	t.stream = s
	t.gnssLog = logPath
	t.mu.Unlock()
}

// App wires the configured tasks together.
type App struct {
	Config  *Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Sinks receive every record and sample, in addition to Metrics.
	Sinks   []session.Sink
	Tracker *Tracker

	ModemDialer modem.Dialer
	GNSSDialer  modem.Dialer
	Commands    modem.Commands
	Timeouts    modem.Timeouts
	Session     session.Config
}

// NewApp builds an App that talks to the serial ports named in config.
func NewApp(config *Config, logger *slog.Logger, m *metrics.Metrics, sinks ...session.Sink) *App {
	commands := modem.DefaultCommands(config.APN)

	sess := session.DefaultConfig()
	sess.Mode = config.SessionMode()
	sess.Configuration = commands.Configuration
	sess.Signal = commands.Signal
	sess.RegistrationAttempts = config.RegistrationRetries
	sess.PumpCount = config.PumpCount
	sess.Cycles = config.Cycles
	sess.OutputDir = config.OutputDir

	return &App{
		Config:  config,
		Logger:  logger,
		Metrics: m,
		Sinks:   sinks,
		Tracker: &Tracker{},
		ModemDialer: modem.SerialDialer{
			PortName: config.ModemPort,
			BaudRate: config.ModemBaud,
		},
		GNSSDialer: modem.SerialDialer{
			PortName: config.GNSSPort,
			BaudRate: config.GNSSBaud,
		},
		Commands: commands,
		Timeouts: modem.DefaultTimeouts(),
		Session:  sess,
	}
}

// Tasks returns the tasks for the configured mode.
func (a *App) Tasks() []Task {
	var tasks []Task
	if a.Config.RunsGNSS() {
		tasks = append(tasks, Task{Name: "gnss", Run: a.runGNSS})
	}
	if a.Config.RunsModem() {
		tasks = append(tasks, Task{Name: a.Session.Mode.String(), Run: a.runModem})
	}
	return tasks
}

func (a *App) sinks() []session.Sink {
	sinks := make([]session.Sink, 0, len(a.Sinks)+1)
	if a.Metrics != nil {
		sinks = append(sinks, a.Metrics)
	}
	return append(sinks, a.Sinks...)
}

func (a *App) runModem(ctx context.Context) error {
	logger := a.Logger.With("component", "modem")

	builder := modem.NewConfigBuilder().
		WithDialer(a.ModemDialer).
		WithCommands(a.Commands).
		WithTimeouts(a.Timeouts).
		WithStrictAttachMatch(a.Config.StrictAttachMatch).
		WithLogger(logger)
	if a.Metrics != nil {
		builder = builder.WithObserver(a.Metrics)
	}
	modemConfig, err := builder.Build()
	if err != nil {
		return fmt.Errorf("modem config: %w", err)
	}

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Error("close modem", "error", err)
		}
	}()

	driver, err := session.NewDriver(m, a.Session,
		session.WithLogger(a.Logger.With("component", "session")),
		session.WithSinks(a.sinks()...),
	)
	if err != nil {
		return err
	}
	a.Tracker.setDriver(driver)

	return driver.Run(ctx)
}

func (a *App) runGNSS(ctx context.Context) error {
	logger := a.Logger.With("component", "gnss")

	port, err := a.GNSSDialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial gnss: %w", err)
	}
	defer closeLogged(logger, "gnss port", port)

	w, err := logfile.Open(a.Config.OutputDir, gnss.StreamName)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "gnss log", w)

	var sinks []gnss.Sink
	for _, s := range a.sinks() {
		sinks = append(sinks, s)
	}
	stream := gnss.NewStream(port, w,
		gnss.WithLogger(logger),
		gnss.WithSinks(sinks...),
	)
	a.Tracker.setStream(stream, w.Path())
	logger.Info("gnss log opened", "path", w.Path())

	return stream.Run(ctx)
}

func closeLogged(logger *slog.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error("close "+what, "error", err)
	}
}
