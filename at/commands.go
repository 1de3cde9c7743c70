package at

import "fmt"

// Command literals understood by the Telit LE910 family firmware. They are
// configuration data: the engine issues them verbatim and never composes
// arbitrary AT grammar.
const (
	CmdAt              = "AT"
	CmdDeregister      = "AT+COPS=2"
	CmdAutoSelect      = "AT+COPS=0"
	CmdWirelessNetwork = "AT+WS46=30"
	CmdIoTTechnology   = "AT#WS46=0,0"
	CmdBand            = "AT#BND=0,0,524420,0,0"
	CmdReboot          = "AT#REBOOT"

	CmdOperatorStatus = "AT+COPS?"
	CmdEPSRegStatus   = "AT+CEREG?"
	CmdRegStatus      = "AT+CREG?"
	CmdExtSignal      = "AT+CESQ"
	CmdRFStatus       = "AT#RFSTS"

	CmdContextStatus     = "AT#SGACT?"
	CmdContextDeactivate = "AT#SGACT=1,0"
	CmdContextActivate   = "AT#SGACT=1,1"
	CmdSocketSend        = "AT#SSEND=1"
	CmdSocketInfo        = "AT#SI"
	CmdSocketStatus      = "AT#SS"
	CmdSocketShutdown    = "AT#SH=1"

	CmdRadioOn  = "AT+CFUN=1"
	CmdRadioOff = "AT+CFUN=4"
)

// SetPDPContext defines PDP context 1 as IP with the given APN.
func SetPDPContext(apn string) string {
	return fmt.Sprintf(`AT+CGDCONT=1,"IP","%s"`, apn)
}

// SocketDial opens socket 1 on context 1 to host:port in command mode.
func SocketDial(host string, port int) string {
	return fmt.Sprintf(`AT#SD=1,0,%d,"%s",0,0,1`, port, host)
}

// SocketReceive reads at most n bytes pending on socket 1.
func SocketReceive(n int) string {
	return fmt.Sprintf("AT#SRECV=1,%d", n)
}
