package modem

import (
	"context"
	"strings"

	"i4.energy/across/drivetest/at"
)

// SignalSample is one telemetry measurement. The text fields hold the
// matched status lines joined by a space. Radio is nil when the RF status
// line could not be parsed.
type SignalSample struct {
	RF     string        `json:"rf"`
	TCP    string        `json:"tcp"`
	EPS    string        `json:"eps"`
	Legacy string        `json:"legacy"`
	Radio  *RadioMetrics `json:"radio,omitempty"`
}

// QuerySignal issues each diagnostic command once and logs its response.
func (m *Modem) QuerySignal(ctx context.Context, commands []string) []Result {
	results := make([]Result, 0, len(commands))
	for _, cmd := range commands {
		res := m.Exchange(ctx, cmd, m.config.timeouts.Signal)
		if res.Usable() {
			m.logger.Info("signal status", "command", cmd, "response", res.Text)
		} else {
			m.logger.Warn("signal status unavailable", "command", cmd, "error", res.Err)
		}
		results = append(results, res)
	}
	return results
}

// NetworkStatus runs a registration status query and keeps the +CEREG,
// +CREG and +COPS lines.
func (m *Modem) NetworkStatus(ctx context.Context, cmd string) []string {
	res := m.Exchange(ctx, cmd, m.config.timeouts.Status)
	if !res.Usable() {
		m.logger.Debug("network status unavailable", "command", cmd, "error", res.Err)
		return nil
	}
	return at.Filter(res.Text, at.PrefixEPSReg, at.PrefixReg, at.PrefixOperator)
}

// RFStatus runs the RF status query and keeps the #RFSTS lines.
func (m *Modem) RFStatus(ctx context.Context) []string {
	res := m.Exchange(ctx, m.config.commands.RFStatus, m.config.timeouts.RFStatus)
	if !res.Usable() {
		m.logger.Debug("rf status unavailable", "error", res.Err)
		return nil
	}
	return at.Filter(res.Text, at.PrefixRFStatus)
}

// Sample runs the probe, both network status queries and the RF status
// query, in that order, and assembles the result.
func (m *Modem) Sample(ctx context.Context) SignalSample {
	probe := m.Probe(ctx)
	eps := m.NetworkStatus(ctx, m.config.commands.EPSStatus)
	legacy := m.NetworkStatus(ctx, m.config.commands.RegStatus)
	rf := m.RFStatus(ctx)

	sample := SignalSample{
		RF:     strings.Join(rf, " "),
		TCP:    probe.String(),
		EPS:    strings.Join(eps, " "),
		Legacy: strings.Join(legacy, " "),
	}
	if radio, err := ParseRadio(rf); err == nil {
		sample.Radio = radio
	} else if len(rf) > 0 {
		m.logger.Debug("rf status not parsed", "error", err)
	}
	return sample
}
