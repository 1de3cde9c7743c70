package modem

import (
	"io"
	"log/slog"
	"time"

	"i4.energy/across/drivetest/at"
)

// Observer receives exchange and registration measurements. The metrics
// package provides the Prometheus implementation.
type Observer interface {
	ObserveExchange(command string, elapsed time.Duration, err error)
	ObserveRegistration(attempts int, attached bool, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveExchange(string, time.Duration, error)   {}
func (nopObserver) ObserveRegistration(int, bool, time.Duration) {}

// Commands holds the command strings a session issues. DefaultCommands
// returns the set for a Telit LE910 class LTE-M modem.
type Commands struct {
	// Configuration is sent in order by Configure. The last entry reboots
	// the modem.
	Configuration []string
	// Signal is sent once by QuerySignal after registration.
	Signal []string

	Operator  string
	EPSStatus string
	RegStatus string
	RFStatus  string
	RadioOn   string
	RadioOff  string

	// EchoHost and EchoPort address the TCP echo server used by Probe and Pump.
	EchoHost string
	EchoPort int
	// EchoMessage is sent by Probe and looked for in the echoed data.
	EchoMessage string
	// ReceiveSize is the byte count requested from the socket by Probe.
	ReceiveSize int
	// PumpPayload is sent repeatedly by Pump. It carries its own Ctrl-Z.
	PumpPayload string
}

const (
	DefaultEchoHost    = "echo.u-blox.com"
	DefaultEchoPort    = 7
	DefaultEchoMessage = "TCP_TEST_OK"
	DefaultReceiveSize = 1500
)

// DefaultCommands returns the command set for the given APN.
func DefaultCommands(apn string) Commands {
	return Commands{
		Configuration: []string{
			at.CmdAt,
			at.CmdDeregister,
			at.SetPDPContext(apn),
			at.CmdAutoSelect,
			at.CmdWirelessNetwork,
			at.CmdIoTTechnology,
			at.CmdBand,
			at.CmdReboot,
		},
		Signal: []string{
			at.CmdExtSignal,
			at.CmdContextDeactivate,
			at.CmdContextActivate,
		},
		Operator:    at.CmdOperatorStatus,
		EPSStatus:   at.CmdEPSRegStatus,
		RegStatus:   at.CmdRegStatus,
		RFStatus:    at.CmdRFStatus,
		RadioOn:     at.CmdRadioOn,
		RadioOff:    at.CmdRadioOff,
		EchoHost:    DefaultEchoHost,
		EchoPort:    DefaultEchoPort,
		EchoMessage: DefaultEchoMessage,
		ReceiveSize: DefaultReceiveSize,
		PumpPayload: PumpPayload,
	}
}

// PumpPayload is the filler block sent by Pump, terminated by Ctrl-Z.
const PumpPayload = "aasdgajgfsdfhgafdsakjfgadskjfgiweuryaioweuryiuwyfhaksjdbvdsmbvkdshakfhdaklsfhklahfksdfhakdashfklsdhfkasdfkshalkfhafklhdsafdksjahfkdashfklahfdklsajfhkasdhfahieuwryioqyeifofiufbvyiyviyvqioiqoviuytvqiobyvqotbvyqtvyqoityvqoitbvqtvbytebvqityvetbvyitvybtvqiytqboitvyotvyqityqiwebvotyibwevytibvweytiwytvibakhksgdkjasj" + at.CtrlZ

// Timeouts holds the read window of each exchange kind. An exchange always
// waits for its full window.
type Timeouts struct {
	Configure    time.Duration
	Registration time.Duration
	Signal       time.Duration
	Status       time.Duration
	RFStatus     time.Duration
	Probe        time.Duration
	Radio        time.Duration
	Pump         time.Duration
	PumpDial     time.Duration
}

// DefaultTimeouts returns the read windows used against real hardware.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Configure:    2 * time.Second,
		Registration: 2 * time.Second,
		Signal:       2 * time.Second,
		Status:       time.Second,
		RFStatus:     2 * time.Second,
		Probe:        time.Second,
		Radio:        time.Second,
		Pump:         5 * time.Second,
		PumpDial:     10 * time.Second,
	}
}

func (t *Timeouts) setDefaults() {
	d := DefaultTimeouts()
	for _, f := range []struct{ v, def *time.Duration }{
		{&t.Configure, &d.Configure},
		{&t.Registration, &d.Registration},
		{&t.Signal, &d.Signal},
		{&t.Status, &d.Status},
		{&t.RFStatus, &d.RFStatus},
		{&t.Probe, &d.Probe},
		{&t.Radio, &d.Radio},
		{&t.Pump, &d.Pump},
		{&t.PumpDial, &d.PumpDial},
	} {
		if *f.v <= 0 {
			*f.v = *f.def
		}
	}
}

// Config is built with NewConfigBuilder.
type Config struct {
	dialer            Dialer
	commands          Commands
	timeouts          Timeouts
	strictAttachMatch bool
	observer          Observer
	logger            *slog.Logger
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.commands.Operator == "" {
		c.commands = DefaultCommands("")
	}
	c.timeouts.setDefaults()
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

func (b *ConfigBuilder) WithCommands(c Commands) *ConfigBuilder {
	b.config.commands = c
	return b
}

// WithTimeouts sets the exchange windows. Zero fields keep their defaults.
func (b *ConfigBuilder) WithTimeouts(t Timeouts) *ConfigBuilder {
	b.config.timeouts = t
	return b
}

// WithStrictAttachMatch makes the attachment check parse the access
// technology of the +COPS line and require LTE-M, rather than accepting any
// operator response that contains the character 8.
func (b *ConfigBuilder) WithStrictAttachMatch(strict bool) *ConfigBuilder {
	b.config.strictAttachMatch = strict
	return b
}

func (b *ConfigBuilder) WithObserver(o Observer) *ConfigBuilder {
	b.config.observer = o
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
