package at

const (
	// Terminal Control
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1a"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcSocketRing = "SRING:"
	UrcNewMsg     = "+CMTI:"
	UrcCall       = "RING"

	// Information response prefixes
	PrefixOperator   = "+COPS:"
	PrefixEPSReg     = "+CEREG:"
	PrefixReg        = "+CREG:"
	PrefixExtSignal  = "+CESQ:"
	PrefixRFStatus   = "#RFSTS:"
	PrefixSocketInfo = "#SI:"
	PrefixSocketStat = "#SS:"
)

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CSQ: ...)
	TypePrompt                     // Data input prompt
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	case TypeData:
		return "data"
	case TypePrompt:
		return "prompt"
	default:
		return "unknown"
	}
}
