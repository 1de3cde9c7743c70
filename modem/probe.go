package modem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"i4.energy/across/drivetest/at"
)

// Probe stages in execution order.
const (
	StageContext      = "context"
	StageDial         = "dial"
	StageSend         = "send"
	StagePayload      = "payload"
	StageTerminate    = "terminate"
	StageReceive      = "receive"
	StageSocketInfo   = "socket-info"
	StageSocketStatus = "socket-status"
	StageShutdown     = "shutdown"
)

// StageOutcome records one probe stage. Err wraps ErrProbeStage when the
// stage did not produce its expected response.
type StageOutcome struct {
	Stage    string
	Command  string
	Response string
	Err      error
}

// ProbeResult is the outcome of a TCP echo probe.
type ProbeResult struct {
	Stages []StageOutcome
	// Echo is the received line holding the echo message, empty when the
	// message did not come back.
	Echo         string
	SocketInfo   string
	SocketStatus string
}

// String renders the summary written to the telemetry log:
// "#MSG: <echo>" or "#MSG: None", then the socket info and status lines.
func (p ProbeResult) String() string {
	parts := []string{"#MSG:"}
	if p.Echo != "" {
		parts = append(parts, p.Echo)
	} else {
		parts = append(parts, "None")
	}
	if p.SocketInfo != "" {
		parts = append(parts, p.SocketInfo)
	}
	if p.SocketStatus != "" {
		parts = append(parts, p.SocketStatus)
	}
	return strings.Join(parts, " ")
}

// Failed returns the stages that did not succeed.
func (p ProbeResult) Failed() []StageOutcome {
	var failed []StageOutcome
	for _, s := range p.Stages {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// Probe exercises the TCP echo path: it checks the PDP context, opens a
// socket to the echo server, sends the echo message, reads it back, reports
// socket info and status, and closes the socket. A failed stage is recorded
// and the remaining stages still run.
func (m *Modem) Probe(ctx context.Context) ProbeResult {
	var (
		result  ProbeResult
		c       = m.config.commands
		timeout = m.config.timeouts.Probe
	)

	m.stage(ctx, &result, StageContext, at.CmdContextStatus, timeout, at.HasOK)
	m.stage(ctx, &result, StageDial, at.SocketDial(c.EchoHost, c.EchoPort), timeout, at.HasOK)
	m.stage(ctx, &result, StageSend, at.CmdSocketSend, timeout, hasPrompt)
	m.stage(ctx, &result, StagePayload, c.EchoMessage, timeout, nil)
	m.stage(ctx, &result, StageTerminate, at.CtrlZ, timeout, at.HasOK)

	recv := m.stage(ctx, &result, StageReceive, at.SocketReceive(c.ReceiveSize), timeout, func(text string) bool {
		return strings.Contains(text, c.EchoMessage)
	})
	for _, line := range recv.Lines() {
		if strings.Contains(line, c.EchoMessage) {
			result.Echo = line
			break
		}
	}

	info := m.stage(ctx, &result, StageSocketInfo, at.CmdSocketInfo, timeout, at.HasOK)
	result.SocketInfo = firstSocketLine(info, at.PrefixSocketInfo)
	status := m.stage(ctx, &result, StageSocketStatus, at.CmdSocketStatus, timeout, at.HasOK)
	result.SocketStatus = firstSocketLine(status, at.PrefixSocketStat)

	m.stage(ctx, &result, StageShutdown, at.CmdSocketShutdown, timeout, at.HasOK)

	m.logger.Debug("tcp probe", "summary", result.String(), "failed_stages", len(result.Failed()))
	return result
}

func (m *Modem) stage(ctx context.Context, result *ProbeResult, stage, cmd string, timeout time.Duration, expect func(string) bool) Result {
	res := m.Exchange(ctx, cmd, timeout)
	outcome := StageOutcome{Stage: stage, Command: cmd, Response: res.Text}

	switch {
	case !res.Usable():
		outcome.Err = fmt.Errorf("%w: %s: %w", ErrProbeStage, stage, res.Err)
	case expect != nil && !expect(res.Text):
		outcome.Err = fmt.Errorf("%w: %s: %s", ErrProbeStage, stage, rejection(res.Text))
	}

	result.Stages = append(result.Stages, outcome)
	return res
}

func hasPrompt(text string) bool {
	return strings.Contains(text, strings.TrimSpace(at.Prompt))
}

// firstSocketLine returns the first line with prefix that reports on
// socket 1.
func firstSocketLine(res Result, prefix string) string {
	for _, line := range at.Filter(res.Text, prefix) {
		match, ok := at.Extract(line)
		if !ok {
			continue
		}
		if id, _ := match.Get("connid"); id == "1" {
			return line
		}
	}
	return ""
}

// PumpResult is the outcome of a data burst.
type PumpResult struct {
	Attempted int
	Sent      int
	// Stopped is set when a send was not acknowledged and the burst ended
	// early.
	Stopped bool
}

// Pump activates the PDP context, opens a socket to the echo server and
// sends the pump payload up to count times, stopping at the first send
// without an OK. The socket is always shut down, even when ctx is
// cancelled.
func (m *Modem) Pump(ctx context.Context, count int) PumpResult {
	var (
		result  PumpResult
		c       = m.config.commands
		timeout = m.config.timeouts.Pump
	)

	activate := m.Exchange(ctx, at.CmdContextActivate, timeout)
	m.logger.Debug("pump context", "response", activate.Text, "error", activate.Err)
	dial := m.Exchange(ctx, at.SocketDial(c.EchoHost, c.EchoPort), m.config.timeouts.PumpDial)
	m.logger.Debug("pump dial", "response", dial.Text, "error", dial.Err)

	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			break
		}
		result.Attempted++
		m.Exchange(ctx, at.CmdSocketSend, timeout)
		msg := m.Exchange(ctx, c.PumpPayload, timeout)
		if !msg.OK() {
			m.logger.Warn("pump send not acknowledged", "send", result.Attempted, "response", msg.Text, "error", msg.Err)
			result.Stopped = true
			break
		}
		result.Sent++
	}

	shutdown := m.Exchange(context.WithoutCancel(ctx), at.CmdSocketShutdown, timeout)
	m.logger.Debug("pump shutdown", "response", shutdown.Text, "error", shutdown.Err)
	return result
}
