package relay

import "github.com/gluk-w/webtail/internal/message"

// GateState is the send state of a session.
type GateState int

const (
	Paused GateState = iota
	Sending
	Terminated
)

func (s GateState) String() string {
	switch s {
	case Paused:
		return "paused"
	case Sending:
		return "sending"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Action is what the sender does with one queued envelope.
type Action int

const (
	// Send writes the envelope to the server.
	Send Action = iota
	// Drop discards the envelope.
	Drop
	// Control means the envelope only changed the gate.
	Control
	// Stop ends the session.
	Stop
)

// Gate decides which queued envelopes reach the server. It starts Paused;
// data arriving while Paused is dropped rather than buffered.
type Gate struct {
	state GateState
}

func NewGate() *Gate {
	return &Gate{state: Paused}
}

func (g *Gate) State() GateState {
	return g.state
}

// Apply advances the gate for env and returns what to do with it.
func (g *Gate) Apply(env message.Envelope) Action {
	if g.state == Terminated {
		return Stop
	}
	if env.Kind == message.KindControl {
		switch env.Control.Signal {
		case message.Start, message.Resume:
			g.state = Sending
			return Control
		case message.Pause:
			g.state = Paused
			return Control
		case message.Stop:
			g.state = Terminated
			return Stop
		}
	}
	if g.state == Sending {
		return Send
	}
	return Drop
}
