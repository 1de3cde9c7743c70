package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxRegistrationAttempts bounds the registration polling budget.
const MaxRegistrationAttempts = 15

var (
	// ErrInvalidConfig is returned by NewDriver for a Config that fails
	// validation.
	ErrInvalidConfig = errors.New("invalid session config")

	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("session already started")
)

// Mode selects what the session does once the modem is registered. It is
// fixed for the lifetime of a session.
type Mode int

const (
	// Telemetry samples signal quality and probes the TCP echo path in a
	// tight loop.
	Telemetry Mode = iota + 1
	// FlightCycle alternates a data burst with flight mode.
	FlightCycle
)

func (m Mode) String() string {
	switch m {
	case Telemetry:
		return "telemetry"
	case FlightCycle:
		return "flight-cycle"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "telemetry":
		return Telemetry, nil
	case "flight-cycle", "flight":
		return FlightCycle, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
	}
}

// Config holds everything a Driver needs besides the modem itself.
type Config struct {
	Mode Mode

	// Configuration is sent once before registration.
	Configuration []string
	// Signal is queried once after registration for diagnostics.
	Signal []string

	// RegistrationAttempts is the polling budget, 0 to 15.
	RegistrationAttempts int
	PollInterval         time.Duration
	// RebootSettle is waited after configuration, which ends with a reboot.
	RebootSettle time.Duration

	// SettleDelay is waited after enabling the radio before checking the
	// attachment. DwellDelay is waited after every flight cycle phase.
	SettleDelay time.Duration
	DwellDelay  time.Duration
	PumpCount   int

	// Cycles stops the session after that many loop iterations. Zero runs
	// until cancelled.
	Cycles int

	OutputDir string
	LogBase   string
}

// DefaultConfig returns the timing used against real hardware.
func DefaultConfig() Config {
	return Config{
		Mode:                 Telemetry,
		RegistrationAttempts: MaxRegistrationAttempts,
		PollInterval:         time.Second,
		RebootSettle:         2 * time.Second,
		SettleDelay:          10 * time.Second,
		DwellDelay:           10 * time.Second,
		PumpCount:            5,
		OutputDir:            ".",
		LogBase:              "modem",
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Mode != Telemetry && c.Mode != FlightCycle:
		return fmt.Errorf("%w: unknown mode %v", ErrInvalidConfig, c.Mode)
	case c.RegistrationAttempts < 0 || c.RegistrationAttempts > MaxRegistrationAttempts:
		return fmt.Errorf("%w: registration attempts %d outside 0..%d", ErrInvalidConfig, c.RegistrationAttempts, MaxRegistrationAttempts)
	case c.PollInterval < 0 || c.RebootSettle < 0 || c.SettleDelay < 0 || c.DwellDelay < 0:
		return fmt.Errorf("%w: negative delay", ErrInvalidConfig)
	case c.PumpCount < 0:
		return fmt.Errorf("%w: negative pump count", ErrInvalidConfig)
	case c.Cycles < 0:
		return fmt.Errorf("%w: negative cycle count", ErrInvalidConfig)
	case c.OutputDir == "" || c.LogBase == "":
		return fmt.Errorf("%w: output directory and log base name are required", ErrInvalidConfig)
	}
	return nil
}
