package modem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"i4.energy/across/drivetest/at"
)

// AcTLTEM is the +COPS access technology reported for an LTE-M attachment.
const AcTLTEM = 8

// Exchange is one command and the response text it produced.
type Exchange struct {
	Command  string
	Response string
}

// ConfigurationOutcome records every exchange performed by Configure.
// OK is set only when every command succeeded.
type ConfigurationOutcome struct {
	OK        bool
	Exchanges []Exchange
}

// RegistrationStatus is the parsed answer to the operator query.
type RegistrationStatus struct {
	Attached bool
	Mode     int
	Operator string
	// AcT is the access technology, or -1 when the modem did not report one.
	AcT int
	Raw string
}

// Configure sends commands in order and stops at the first one whose
// response is unusable or lacks an OK line.
func (m *Modem) Configure(ctx context.Context, commands []string) (ConfigurationOutcome, error) {
	var outcome ConfigurationOutcome

	for _, cmd := range commands {
		res := m.Exchange(ctx, cmd, m.config.timeouts.Configure)
		outcome.Exchanges = append(outcome.Exchanges, Exchange{Command: cmd, Response: res.Text})

		if !res.Usable() {
			return outcome, fmt.Errorf("%w: %s: %w", ErrConfiguration, cmd, res.Err)
		}
		if !at.HasOK(res.Text) {
			return outcome, fmt.Errorf("%w: %s: %s", ErrConfiguration, cmd, rejection(res.Text))
		}
		m.logger.Info("configuration command accepted", "command", cmd)
	}

	outcome.OK = true
	return outcome, nil
}

// CheckRegistration issues a single operator query.
func (m *Modem) CheckRegistration(ctx context.Context) (RegistrationStatus, Result) {
	res := m.Exchange(ctx, m.config.commands.Operator, m.config.timeouts.Registration)
	if !res.Usable() {
		return RegistrationStatus{AcT: -1}, res
	}
	return ParseRegistration(res.Text, m.config.strictAttachMatch), res
}

// AwaitRegistration polls the operator query up to attempts times, interval
// apart, until the modem reports an LTE-M attachment. Unusable responses
// count as failed attempts.
func (m *Modem) AwaitRegistration(ctx context.Context, attempts int, interval time.Duration) (RegistrationStatus, error) {
	start := time.Now()

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return RegistrationStatus{AcT: -1}, err
		}

		status, res := m.CheckRegistration(ctx)
		if status.Attached {
			elapsed := time.Since(start)
			m.config.observer.ObserveRegistration(attempt, true, elapsed)
			m.logger.Info("network registered",
				"attempt", attempt,
				"operator", status.Operator,
				"elapsed", elapsed,
			)
			return status, nil
		}

		m.logger.Info("searching for LTE network",
			"attempt", attempt,
			"max_attempts", attempts,
			"response", res.Text,
			"error", res.Err,
		)

		if attempt < attempts {
			if err := sleep(ctx, interval); err != nil {
				return status, err
			}
		}
	}

	m.config.observer.ObserveRegistration(attempts, false, time.Since(start))
	return RegistrationStatus{AcT: -1}, fmt.Errorf("%w after %d attempts", ErrRegistrationTimeout, attempts)
}

// ParseRegistration reads the +COPS line of an operator query response.
// Any response containing the character 8 counts as attached. With strict
// set, the access technology field must be LTE-M instead.
func ParseRegistration(text string, strict bool) RegistrationStatus {
	status := RegistrationStatus{AcT: -1, Raw: text}

	for _, line := range at.Filter(text, at.PrefixOperator) {
		match, ok := at.Extract(line)
		if !ok {
			continue
		}
		if v, err := match.Int("mode"); err == nil {
			status.Mode = v
		}
		status.Operator, _ = match.Get("oper")
		if v, err := match.Int("act"); err == nil {
			status.AcT = v
		}
		break
	}

	if strict {
		status.Attached = status.AcT == AcTLTEM
	} else {
		status.Attached = strings.Contains(text, "8")
	}
	return status
}
