package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"i4.energy/across/drivetest/logfile"
	"i4.energy/across/drivetest/metrics"
	"i4.energy/across/drivetest/mqtt"
	"i4.energy/across/drivetest/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.String("mode", ModeBoth, "Operating mode (both, gnss, modem, pump)")
	flag.String("modem-port", "/dev/ttyUSB2", "Serial port of the modem")
	flag.Int("modem-baud", 115200, "Baud rate of the modem port")
	flag.String("gnss-port", "/dev/ttyACM0", "Serial port of the GNSS receiver")
	flag.Int("gnss-baud", 230400, "Baud rate of the GNSS port")
	flag.Int("retries", session.MaxRegistrationAttempts, "Network registration polls (0-15)")
	flag.String("output-dir", "output", "Directory for the measurement and diagnostic logs")
	flag.String("apn", "wbdata", "APN of the PDP context")
	flag.Int("pump-count", 5, "Payloads sent per flight cycle burst")
	flag.Int("cycles", 0, "Stop the modem session after this many cycles (0 runs until interrupted)")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("status-address", "127.0.0.1:8080", "Listen address of the status server (empty disables)")
	flag.String("mqtt-broker", "", "MQTT broker URL for the record mirror (empty disables)")
	flag.String("mqtt-client-id", "drivetest", "MQTT client ID")
	flag.String("mqtt-topic-prefix", "drivetest", "MQTT topic prefix")
	flag.Bool("strict-attach-match", false, "Require the LTE-M access technology in the operator response instead of any 8")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithDotEnv(".env"), WithEnv(), WithFlags(flag.CommandLine))
	if err == nil {
		err = config.Validate()
	}
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 2
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	diagnostics, err := openDiagnostics(config.OutputDir)
	if err != nil {
		slog.Error("Failed to open diagnostic log", "error", err)
		return 1
	}
	defer diagnostics.Close()

	logger := slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stderr, diagnostics), &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var stateNames []string
	for _, s := range session.States() {
		stateNames = append(stateNames, s.String())
	}
	m := metrics.New(registry, stateNames...)

	var sinks []session.Sink
	if config.MQTTBroker != "" {
		publisher, err := mqtt.New(mqtt.Config{
			Broker:      config.MQTTBroker,
			ClientID:    config.MQTTClientID,
			Username:    config.MQTTUsername,
			Password:    config.MQTTPassword,
			TopicPrefix: config.MQTTTopicPrefix,
		}, logger.With("component", "mqtt"))
		if err != nil {
			logger.Error("Failed to create MQTT publisher", "error", err)
			return 2
		}
		if err := publisher.Connect(ctx); err != nil {
			logger.Warn("MQTT connect failed, records are only written locally", "error", err)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	app := NewApp(config, logger, m, sinks...)

	var httpServer *http.Server
	if config.StatusAddress != "" {
		httpServer = &http.Server{
			Addr:    config.StatusAddress,
			Handler: NewServer(logger.With("component", "server"), config.Mode, app.Tracker, registry),
		}
		go func() {
			logger.Info("Starting status server", "address", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Status server failed", "error", err)
			}
		}()
	}

	logger.Info("Starting drive test",
		"mode", config.Mode,
		"modem_port", config.ModemPort,
		"gnss_port", config.GNSSPort,
		"output_dir", config.OutputDir,
		"diagnostics", diagnostics.Name(),
	)

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("Failed to notify systemd", "error", err)
	}
	go keepAlive(ctx, logger)

	runErr := RunTasks(ctx, logger, app.Tasks()...)

	daemon.SdNotify(false, daemon.SdNotifyStopping)

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to gracefully shutdown server", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("Drive test failed", "error", runErr)
		return 1
	}
	logger.Info("Drive test finished")
	return 0
}

// openDiagnostics opens <dir>/drivetest_<timestamp>.log for the process log.
func openDiagnostics(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, logfile.FileName("drivetest", time.Now()))
	return os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
}

// keepAlive pings the systemd watchdog at half its interval when the unit
// enables it.
func keepAlive(ctx context.Context, logger *slog.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("Failed to read watchdog settings", "error", err)
		return
	}
	if interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
