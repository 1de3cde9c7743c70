package session

import "fmt"

// State is a session lifecycle state.
type State int

const (
	StateUnconfigured State = iota
	StateConfiguring
	StateRegistering
	StateTelemetry
	StateFlightCycle
	// StateFailed is terminal: configuration or registration did not
	// succeed, or the log could not be written.
	StateFailed
	// StateStopped is terminal: the session was cancelled or finished its
	// cycles.
	StateStopped
)

var stateNames = map[State]string{
	StateUnconfigured: "unconfigured",
	StateConfiguring:  "configuring",
	StateRegistering:  "registering",
	StateTelemetry:    "telemetry",
	StateFlightCycle:  "flight-cycle",
	StateFailed:       "failed",
	StateStopped:      "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// States lists every state, in lifecycle order.
func States() []State {
	return []State{
		StateUnconfigured,
		StateConfiguring,
		StateRegistering,
		StateTelemetry,
		StateFlightCycle,
		StateFailed,
		StateStopped,
	}
}
