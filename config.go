package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"i4.energy/across/drivetest/session"
)

// Operating modes.
const (
	ModeBoth  = "both"
	ModeGNSS  = "gnss"
	ModeModem = "modem"
	ModePump  = "pump"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the application configuration
type Config struct {
	// Mode selects the tasks: both (GNSS + telemetry), gnss, modem
	// (telemetry only) or pump (GNSS + flight cycle)
	Mode string
	// ModemPort is the modem's serial port (e.g. "/dev/ttyUSB2")
	ModemPort string
	ModemBaud int
	// GNSSPort is the receiver's serial port (e.g. "/dev/ttyACM0")
	GNSSPort string
	GNSSBaud int
	// RegistrationRetries bounds the network registration polls (0-15)
	RegistrationRetries int
	// OutputDir receives the modem, GNSS and diagnostic logs
	OutputDir string
	APN       string
	// PumpCount is the number of payloads sent per flight cycle burst
	PumpCount int
	// Cycles stops the modem session after that many loop iterations, 0 runs
	// until interrupted
	Cycles int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// StatusAddress is the status server listen address, empty disables it
	StatusAddress string
	// MQTTBroker is the broker URL (e.g. "tcp://localhost:1883"), empty
	// disables the record mirror
	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string
	MQTTUsername    string
	MQTTPassword    string
	// StrictAttachMatch requires the LTE-M access technology in the +COPS
	// response instead of accepting any response containing an 8
	StrictAttachMatch bool
}

// RunsGNSS reports whether the mode includes the GNSS stream.
func (c *Config) RunsGNSS() bool {
	return c.Mode == ModeBoth || c.Mode == ModeGNSS || c.Mode == ModePump
}

// RunsModem reports whether the mode includes a modem session.
func (c *Config) RunsModem() bool {
	return c.Mode == ModeBoth || c.Mode == ModeModem || c.Mode == ModePump
}

// SessionMode returns the modem session mode for c.Mode.
func (c *Config) SessionMode() session.Mode {
	if c.Mode == ModePump {
		return session.FlightCycle
	}
	return session.Telemetry
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeBoth, ModeGNSS, ModeModem, ModePump:
	default:
		return fmt.Errorf("%w: mode %q, want one of both, gnss, modem, pump", ErrInvalidConfig, c.Mode)
	}
	if c.RunsModem() && c.ModemPort == "" {
		return fmt.Errorf("%w: modem port is required in mode %s", ErrInvalidConfig, c.Mode)
	}
	if c.RunsGNSS() && c.GNSSPort == "" {
		return fmt.Errorf("%w: GNSS port is required in mode %s", ErrInvalidConfig, c.Mode)
	}
	if c.RegistrationRetries < 0 || c.RegistrationRetries > session.MaxRegistrationAttempts {
		return fmt.Errorf("%w: retries %d outside 0..%d", ErrInvalidConfig, c.RegistrationRetries, session.MaxRegistrationAttempts)
	}
	if c.ModemBaud <= 0 || c.GNSSBaud <= 0 {
		return fmt.Errorf("%w: baud rates must be positive", ErrInvalidConfig)
	}
	if c.PumpCount < 0 || c.Cycles < 0 {
		return fmt.Errorf("%w: pump count and cycles must not be negative", ErrInvalidConfig)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output directory is required", ErrInvalidConfig)
	}
	return nil
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.Mode = ModeBoth
		c.ModemPort = "/dev/ttyUSB2"
		c.ModemBaud = 115200
		c.GNSSPort = "/dev/ttyACM0"
		c.GNSSBaud = 230400
		c.RegistrationRetries = session.MaxRegistrationAttempts
		c.OutputDir = "output"
		c.APN = "wbdata"
		c.PumpCount = 5
		c.LogLevel = "info"
		c.StatusAddress = "127.0.0.1:8080"
		c.MQTTClientID = "drivetest"
		c.MQTTTopicPrefix = "drivetest"
		return nil
	}
}

// WithDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func WithDotEnv(path string) ConfigOption {
	return func(c *Config) error {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		// a variable that is set but empty clears the value, which
		// disables the status server or the MQTT mirror
		str := func(key string, dst *string) {
			if v, ok := os.LookupEnv(key); ok {
				*dst = v
			}
		}
		num := func(key string, dst *int) error {
			if v := os.Getenv(key); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, key, v)
				}
				*dst = n
			}
			return nil
		}

		str("MODE", &c.Mode)
		str("MODEM_PORT", &c.ModemPort)
		str("GNSS_PORT", &c.GNSSPort)
		str("OUTPUT_DIR", &c.OutputDir)
		str("APN", &c.APN)
		str("LOG_LEVEL", &c.LogLevel)
		str("STATUS_ADDRESS", &c.StatusAddress)
		str("MQTT_BROKER", &c.MQTTBroker)
		str("MQTT_CLIENT_ID", &c.MQTTClientID)
		str("MQTT_TOPIC_PREFIX", &c.MQTTTopicPrefix)
		str("MQTT_USERNAME", &c.MQTTUsername)
		str("MQTT_PASSWORD", &c.MQTTPassword)

		for key, dst := range map[string]*int{
			"MODEM_BAUD":           &c.ModemBaud,
			"GNSS_BAUD":            &c.GNSSBaud,
			"REGISTRATION_RETRIES": &c.RegistrationRetries,
			"PUMP_COUNT":           &c.PumpCount,
			"CYCLES":               &c.Cycles,
		} {
			if err := num(key, dst); err != nil {
				return err
			}
		}

		if v := os.Getenv("STRICT_ATTACH_MATCH"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: STRICT_ATTACH_MATCH=%q", ErrInvalidConfig, v)
			}
			c.StrictAttachMatch = b
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags that were set
// explicitly
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		atoi := func(f *flag.Flag, dst *int) {
			n, convErr := strconv.Atoi(f.Value.String())
			if convErr != nil {
				err = fmt.Errorf("%w: -%s=%q is not a number", ErrInvalidConfig, f.Name, f.Value)
				return
			}
			*dst = n
		}

		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "mode":
				c.Mode = f.Value.String()
			case "modem-port":
				c.ModemPort = f.Value.String()
			case "modem-baud":
				atoi(f, &c.ModemBaud)
			case "gnss-port":
				c.GNSSPort = f.Value.String()
			case "gnss-baud":
				atoi(f, &c.GNSSBaud)
			case "retries":
				atoi(f, &c.RegistrationRetries)
			case "output-dir":
				c.OutputDir = f.Value.String()
			case "apn":
				c.APN = f.Value.String()
			case "pump-count":
				atoi(f, &c.PumpCount)
			case "cycles":
				atoi(f, &c.Cycles)
			case "log-level":
				c.LogLevel = f.Value.String()
			case "status-address":
				c.StatusAddress = f.Value.String()
			case "mqtt-broker":
				c.MQTTBroker = f.Value.String()
			case "mqtt-client-id":
				c.MQTTClientID = f.Value.String()
			case "mqtt-topic-prefix":
				c.MQTTTopicPrefix = f.Value.String()
			case "strict-attach-match":
				c.StrictAttachMatch = f.Value.String() == "true"
			}
		})
		return err
	}
}
