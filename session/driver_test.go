package session_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/drivetest/logfile"
	"i4.energy/across/drivetest/modem"
	"i4.energy/across/drivetest/session"
)

var fixedTime = time.Date(2024, 9, 16, 13, 23, 58, 0, time.Local)

type fakeModem struct {
	mu sync.Mutex

	configureErr error
	registerErr  error
	attached     []bool
	sample       modem.SignalSample

	calls []string
}

func (f *fakeModem) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeModem) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeModem) Configure(ctx context.Context, commands []string) (modem.ConfigurationOutcome, error) {
	f.record("configure")
	if f.configureErr != nil {
		return modem.ConfigurationOutcome{}, f.configureErr
	}
	return modem.ConfigurationOutcome{OK: true}, nil
}

func (f *fakeModem) AwaitRegistration(ctx context.Context, attempts int, interval time.Duration) (modem.RegistrationStatus, error) {
	f.record("register")
	if f.registerErr != nil {
		return modem.RegistrationStatus{}, f.registerErr
	}
	return modem.RegistrationStatus{Attached: true, Operator: "Orange F", AcT: modem.AcTLTEM}, nil
}

func (f *fakeModem) CheckRegistration(ctx context.Context) (modem.RegistrationStatus, modem.Result) {
	f.record("check")
	f.mu.Lock()
	defer f.mu.Unlock()
	attached := true
	if len(f.attached) > 0 {
		attached = f.attached[0]
		f.attached = f.attached[1:]
	}
	return modem.RegistrationStatus{Attached: attached}, modem.Result{}
}

func (f *fakeModem) QuerySignal(ctx context.Context, commands []string) []modem.Result {
	f.record("signal")
	return nil
}

func (f *fakeModem) Sample(ctx context.Context) modem.SignalSample {
	f.record("sample")
	return f.sample
}

func (f *fakeModem) SetRadio(ctx context.Context, enable bool) modem.Result {
	if enable {
		f.record("radio-on")
	} else {
		f.record("radio-off")
	}
	return modem.Result{}
}

func (f *fakeModem) Pump(ctx context.Context, count int) modem.PumpResult {
	f.record("pump")
	return modem.PumpResult{Attempted: count, Sent: count}
}

type recordingSink struct {
	mu      sync.Mutex
	records []logfile.Record
	samples []modem.SignalSample
	states  []string
}

func (s *recordingSink) PublishRecord(ctx context.Context, rec logfile.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) PublishSample(ctx context.Context, sample modem.SignalSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	return errors.New("broker unavailable")
}

func (s *recordingSink) ObserveState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func testConfig(t *testing.T, mode session.Mode) session.Config {
	t.Helper()
	c := session.DefaultConfig()
	c.Mode = mode
	c.RegistrationAttempts = 3
	c.PollInterval = 0
	c.RebootSettle = 0
	c.SettleDelay = 0
	c.DwellDelay = 0
	c.OutputDir = t.TempDir()
	return c
}

func logLines(t *testing.T, d *session.Driver) []string {
	t.Helper()
	path := d.Status().LogPath
	require.NotEmpty(t, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestDriverTelemetry(t *testing.T) {
	fm := &fakeModem{sample: modem.SignalSample{
		RF:     "#RFSTS: 001,100,-90",
		TCP:    "#MSG: None",
		EPS:    "+CEREG: 0,5",
		Legacy: "+CREG: 0,5",
	}}
	sink := &recordingSink{}
	config := testConfig(t, session.Telemetry)
	config.Cycles = 3

	d, err := session.NewDriver(fm, config,
		session.WithSinks(sink),
		session.WithClock(func() time.Time { return fixedTime }),
	)
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background()))

	want := "2024-09-16 13:23:58:#RFSTS: 001,100,-90:#MSG: None:+CEREG: 0,5:+CREG: 0,5"
	assert.Equal(t, []string{want, want, want}, logLines(t, d))
	assert.Equal(t, []string{"configure", "register", "signal", "sample", "sample", "sample"}, fm.Calls())

	status := d.Status()
	assert.Equal(t, "stopped", status.State)
	assert.Equal(t, 3, status.Records)
	assert.Equal(t, want, status.LastRecord)
	require.NotNil(t, status.LastSample)

	assert.Len(t, sink.records, 3)
	assert.Equal(t, session.Stream, sink.records[0].Stream)
	assert.Len(t, sink.samples, 3)
	assert.Equal(t, []string{"configuring", "registering", "telemetry", "stopped"}, sink.states)
}

func TestDriverFlightCycle(t *testing.T) {
	t.Run("Alternates pumping and flight mode", func(t *testing.T) {
		fm := &fakeModem{}
		config := testConfig(t, session.FlightCycle)
		config.Cycles = 2

		d, err := session.NewDriver(fm, config, session.WithClock(func() time.Time { return fixedTime }))
		require.NoError(t, err)
		require.NoError(t, d.Run(context.Background()))

		pumping := "2024-09-16 13:23:58:'#Pumping Data To Server...'"
		flight := "2024-09-16 13:23:58:'#Flight Mode Active...'"
		assert.Equal(t, []string{pumping, flight, pumping, flight}, logLines(t, d))
		assert.Equal(t, []string{
			"configure", "register", "signal",
			"radio-on", "check", "pump", "radio-off",
			"radio-on", "check", "pump", "radio-off",
		}, fm.Calls())
	})

	t.Run("Skips the burst when not attached", func(t *testing.T) {
		fm := &fakeModem{attached: []bool{false, true}}
		config := testConfig(t, session.FlightCycle)
		config.Cycles = 2

		d, err := session.NewDriver(fm, config, session.WithClock(func() time.Time { return fixedTime }))
		require.NoError(t, err)
		require.NoError(t, d.Run(context.Background()))

		lines := logLines(t, d)
		require.Len(t, lines, 3)
		assert.Contains(t, lines[0], "Flight Mode Active")
		assert.Contains(t, lines[1], "Pumping Data To Server")
		assert.Contains(t, lines[2], "Flight Mode Active")
	})
}

func TestDriverFailures(t *testing.T) {
	t.Run("Configuration failure", func(t *testing.T) {
		fm := &fakeModem{configureErr: modem.ErrConfiguration}
		d, err := session.NewDriver(fm, testConfig(t, session.Telemetry))
		require.NoError(t, err)

		err = d.Run(context.Background())
		assert.ErrorIs(t, err, modem.ErrConfiguration)
		assert.Equal(t, session.StateFailed, d.State())
		assert.Equal(t, []string{"configure"}, fm.Calls())
		assert.Empty(t, d.Status().LogPath)
		assert.NotEmpty(t, d.Status().Error)
	})

	t.Run("Registration failure", func(t *testing.T) {
		fm := &fakeModem{registerErr: modem.ErrRegistrationTimeout}
		config := testConfig(t, session.Telemetry)
		d, err := session.NewDriver(fm, config)
		require.NoError(t, err)

		err = d.Run(context.Background())
		assert.ErrorIs(t, err, modem.ErrRegistrationTimeout)
		assert.Equal(t, session.StateFailed, d.State())
		assert.Equal(t, []string{"configure", "register"}, fm.Calls())

		entries, err := os.ReadDir(config.OutputDir)
		require.NoError(t, err)
		assert.Empty(t, entries, "no log file before registration")
	})

	t.Run("Run twice", func(t *testing.T) {
		fm := &fakeModem{configureErr: modem.ErrConfiguration}
		d, err := session.NewDriver(fm, testConfig(t, session.Telemetry))
		require.NoError(t, err)

		d.Run(context.Background())
		assert.ErrorIs(t, d.Run(context.Background()), session.ErrAlreadyStarted)
	})

	t.Run("Concurrent runs start one session", func(t *testing.T) {
		fm := &fakeModem{configureErr: modem.ErrConfiguration}
		d, err := session.NewDriver(fm, testConfig(t, session.Telemetry))
		require.NoError(t, err)

		const runs = 8
		errs := make(chan error, runs)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for range runs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				errs <- d.Run(context.Background())
			}()
		}
		close(start)
		wg.Wait()
		close(errs)

		rejected := 0
		for err := range errs {
			if errors.Is(err, session.ErrAlreadyStarted) {
				rejected++
			}
		}
		assert.Equal(t, runs-1, rejected)
		assert.Equal(t, []string{"configure"}, fm.Calls())
	})
}

func TestDriverCancellation(t *testing.T) {
	fm := &fakeModem{sample: modem.SignalSample{TCP: "#MSG: None"}}
	d, err := session.NewDriver(fm, testConfig(t, session.Telemetry))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.Status().Records >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("driver did not stop after cancellation")
	}
	assert.Equal(t, session.StateStopped, d.State())

	// every appended record is complete and on disk
	lines := logLines(t, d)
	assert.Equal(t, d.Status().Records, len(lines))
	for _, l := range lines {
		assert.True(t, strings.HasSuffix(l, ":#MSG: None::"), l)
	}
}

func TestDriverCancelledDuringDelay(t *testing.T) {
	fm := &fakeModem{}
	config := testConfig(t, session.FlightCycle)
	config.DwellDelay = time.Hour

	d, err := session.NewDriver(fm, config)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.Status().Records == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("dwell delay ignored cancellation")
	}
}

func TestNewDriverValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*session.Config)
	}{
		{"unknown mode", func(c *session.Config) { c.Mode = 0 }},
		{"too many attempts", func(c *session.Config) { c.RegistrationAttempts = 16 }},
		{"negative attempts", func(c *session.Config) { c.RegistrationAttempts = -1 }},
		{"negative delay", func(c *session.Config) { c.DwellDelay = -time.Second }},
		{"no output dir", func(c *session.Config) { c.OutputDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := session.DefaultConfig()
			tt.mutate(&c)
			_, err := session.NewDriver(&fakeModem{}, c)
			assert.ErrorIs(t, err, session.ErrInvalidConfig)
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := session.ParseMode("flight-cycle")
	require.NoError(t, err)
	assert.Equal(t, session.FlightCycle, m)

	m, err = session.ParseMode("Telemetry")
	require.NoError(t, err)
	assert.Equal(t, session.Telemetry, m)

	_, err = session.ParseMode("gnss")
	assert.ErrorIs(t, err, session.ErrInvalidConfig)
}

func TestLineFormats(t *testing.T) {
	sample := modem.SignalSample{RF: "rf", TCP: "tcp", EPS: "eps", Legacy: "nw"}
	assert.Equal(t, "2024-09-16 13:23:58:rf:tcp:eps:nw", session.TelemetryLine(fixedTime, sample))
	assert.Equal(t, "2024-09-16 13:23:58:'#Flight Mode Active...'", session.EventLine(fixedTime, session.MarkerFlightMode))
}
