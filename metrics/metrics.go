// Package metrics exposes session measurements as Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"i4.energy/across/drivetest/logfile"
	"i4.energy/across/drivetest/modem"
)

const namespace = "drivetest"

// Metrics implements modem.Observer and the record/sample sinks of the
// session and GNSS streams. A nil *Metrics is a valid no-op.
type Metrics struct {
	exchanges        *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	registrations    *prometheus.CounterVec
	registrationTime prometheus.Histogram
	records          *prometheus.CounterVec
	radio            *prometheus.GaugeVec
	state            *prometheus.GaugeVec
	states           []string
}

// New creates the collectors and registers them with reg. states lists
// every session state name so that exactly one of them reads 1.
func New(reg prometheus.Registerer, states ...string) *Metrics {
	m := &Metrics{
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modem_exchanges_total",
			Help:      "Command exchanges with the modem by command and result.",
		}, []string{"command", "result"}),
		exchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modem_exchange_duration_seconds",
			Help:      "Duration of command exchanges, including the read window.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15},
		}, []string{"command"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modem_registrations_total",
			Help:      "Network registration waits by outcome.",
		}, []string{"result"}),
		registrationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modem_registration_seconds",
			Help:      "Time from the first operator poll to LTE attachment.",
			Buckets:   prometheus.LinearBuckets(1, 4, 10),
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_records_total",
			Help:      "Records appended to the measurement logs by stream.",
		}, []string{"stream"}),
		radio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "modem_radio",
			Help:      "Last sampled radio measurement (rsrp, rssi, rsrq, sinr_db, quality).",
		}, []string{"metric"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current modem session state.",
		}, []string{"state"}),
		states: states,
	}

	reg.MustRegister(
		m.exchanges,
		m.exchangeDuration,
		m.registrations,
		m.registrationTime,
		m.records,
		m.radio,
		m.state,
	)
	return m
}

// Exchanges returns the exchange counter.
func (m *Metrics) Exchanges() *prometheus.CounterVec {
	return m.exchanges
}

// ObserveExchange counts an exchange. Payload exchanges share one label.
func (m *Metrics) ObserveExchange(command string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	cmd := CommandLabel(command)
	m.exchanges.WithLabelValues(cmd, resultLabel(err)).Inc()
	m.exchangeDuration.WithLabelValues(cmd).Observe(elapsed.Seconds())
}

// ObserveRegistration records a registration wait.
func (m *Metrics) ObserveRegistration(attempts int, attached bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	if !attached {
		m.registrations.WithLabelValues("timeout").Inc()
		return
	}
	m.registrations.WithLabelValues("attached").Inc()
	m.registrationTime.Observe(elapsed.Seconds())
}

// PublishRecord counts a log record.
func (m *Metrics) PublishRecord(_ context.Context, rec logfile.Record) error {
	if m == nil {
		return nil
	}
	m.records.WithLabelValues(rec.Stream).Inc()
	return nil
}

// PublishSample exports the radio measurements of a sample.
func (m *Metrics) PublishSample(_ context.Context, sample modem.SignalSample) error {
	if m == nil || sample.Radio == nil {
		return nil
	}
	r := sample.Radio
	m.radio.WithLabelValues("rsrp").Set(r.RSRP)
	m.radio.WithLabelValues("rssi").Set(r.RSSI)
	m.radio.WithLabelValues("rsrq").Set(r.RSRQ)
	m.radio.WithLabelValues("sinr_db").Set(float64(r.SINRdB))
	m.radio.WithLabelValues("quality").Set(r.Quality)
	return nil
}

// ObserveState marks state as the current session state.
func (m *Metrics) ObserveState(state string) {
	if m == nil {
		return
	}
	for _, s := range m.states {
		m.state.WithLabelValues(s).Set(0)
	}
	m.state.WithLabelValues(state).Set(1)
}

// CommandLabel reduces a command to a bounded label value: the command
// name without arguments, or "payload" for socket data.
func CommandLabel(command string) string {
	if !strings.HasPrefix(strings.ToUpper(command), "AT") {
		return "payload"
	}
	if i := strings.IndexAny(command, "=?"); i >= 0 {
		return command[:i]
	}
	return command
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, modem.ErrDecode):
		return "decode_error"
	case errors.Is(err, modem.ErrTransport):
		return "transport_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
