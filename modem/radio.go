package modem

import "context"

// SetRadio enables full functionality or switches the modem to flight
// mode. The response is returned for logging; it is not interpreted.
func (m *Modem) SetRadio(ctx context.Context, enable bool) Result {
	cmd := m.config.commands.RadioOff
	if enable {
		cmd = m.config.commands.RadioOn
	}
	res := m.Exchange(ctx, cmd, m.config.timeouts.Radio)
	m.logger.Info("radio mode set", "command", cmd, "enable", enable, "response", res.Text, "error", res.Err)
	return res
}
