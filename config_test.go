package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/drivetest/session"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("drivetest", flag.ContinueOnError)
	fs.String("mode", ModeBoth, "")
	fs.String("modem-port", "", "")
	fs.Int("modem-baud", 115200, "")
	fs.String("gnss-port", "", "")
	fs.Int("retries", 15, "")
	fs.String("output-dir", "output", "")
	fs.Int("pump-count", 5, "")
	fs.Int("cycles", 0, "")
	fs.String("status-address", "", "")
	fs.Bool("strict-attach-match", false, "")
	return fs
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(WithDefaults())
	require.NoError(t, err)

	assert.Equal(t, ModeBoth, config.Mode)
	assert.Equal(t, 115200, config.ModemBaud)
	assert.Equal(t, 230400, config.GNSSBaud)
	assert.Equal(t, session.MaxRegistrationAttempts, config.RegistrationRetries)
	assert.Equal(t, "output", config.OutputDir)
	assert.Equal(t, "wbdata", config.APN)
	assert.Empty(t, config.MQTTBroker)
	assert.NoError(t, config.Validate())
}

func TestLoadConfigPrecedence(t *testing.T) {
	t.Setenv("MODE", ModeModem)
	t.Setenv("MODEM_PORT", "/dev/env-modem")
	t.Setenv("REGISTRATION_RETRIES", "10")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")

	fs := newFlagSet()
	require.NoError(t, fs.Parse([]string{"-modem-port", "/dev/flag-modem", "-cycles", "3", "-strict-attach-match"}))

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(fs))
	require.NoError(t, err)

	assert.Equal(t, ModeModem, config.Mode)
	assert.Equal(t, "/dev/flag-modem", config.ModemPort)
	assert.Equal(t, 10, config.RegistrationRetries, "unset flags keep the env value")
	assert.Equal(t, 3, config.Cycles)
	assert.True(t, config.StrictAttachMatch)
	assert.Equal(t, "tcp://broker:1883", config.MQTTBroker)
}

func TestWithEnvEmptyDisables(t *testing.T) {
	t.Setenv("STATUS_ADDRESS", "")
	t.Setenv("MQTT_BROKER", "")

	config, err := LoadConfig(WithDefaults(), func(c *Config) error {
		c.MQTTBroker = "tcp://from-dotenv:1883"
		return nil
	}, WithEnv())
	require.NoError(t, err)

	assert.Empty(t, config.StatusAddress, "empty STATUS_ADDRESS turns the status server off")
	assert.Empty(t, config.MQTTBroker)
	assert.Equal(t, "wbdata", config.APN, "unset variables keep their value")
}

func TestWithEnvRejectsNumbers(t *testing.T) {
	t.Setenv("PUMP_COUNT", "many")

	_, err := LoadConfig(WithDefaults(), WithEnv())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestWithDotEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		_, err := LoadConfig(WithDotEnv(filepath.Join(t.TempDir(), ".env")))
		assert.NoError(t, err)
	})

	t.Run("file feeds the environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("APN=internet.test\n"), 0o644))
		t.Setenv("APN", "")
		os.Unsetenv("APN")

		config, err := LoadConfig(WithDefaults(), WithDotEnv(path), WithEnv())
		require.NoError(t, err)
		assert.Equal(t, "internet.test", config.APN)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"unknown mode", func(c *Config) { c.Mode = "radio" }, false},
		{"retries above cap", func(c *Config) { c.RegistrationRetries = 16 }, false},
		{"zero retries", func(c *Config) { c.RegistrationRetries = 0 }, true},
		{"negative retries", func(c *Config) { c.RegistrationRetries = -1 }, false},
		{"gnss mode without modem port", func(c *Config) { c.Mode = ModeGNSS; c.ModemPort = "" }, true},
		{"modem mode without modem port", func(c *Config) { c.Mode = ModeModem; c.ModemPort = "" }, false},
		{"pump mode without gnss port", func(c *Config) { c.Mode = ModePump; c.GNSSPort = "" }, false},
		{"zero baud", func(c *Config) { c.GNSSBaud = 0 }, false},
		{"negative cycles", func(c *Config) { c.Cycles = -1 }, false},
		{"no output dir", func(c *Config) { c.OutputDir = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfig(WithDefaults())
			require.NoError(t, err)
			tt.modify(config)

			err = config.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestConfigModes(t *testing.T) {
	tests := []struct {
		mode     string
		gnss     bool
		modem    bool
		sessMode session.Mode
	}{
		{ModeBoth, true, true, session.Telemetry},
		{ModeGNSS, true, false, session.Telemetry},
		{ModeModem, false, true, session.Telemetry},
		{ModePump, true, true, session.FlightCycle},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			c := &Config{Mode: tt.mode}
			assert.Equal(t, tt.gnss, c.RunsGNSS())
			assert.Equal(t, tt.modem, c.RunsModem())
			if tt.modem {
				assert.Equal(t, tt.sessMode, c.SessionMode())
			}
		})
	}
}
