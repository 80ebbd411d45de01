package message

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownKind is returned when a payload names an envelope kind or
// control signal this build does not know.
var ErrUnknownKind = errors.New("unknown message kind")

// Signal is a control signal exchanged between tailer, client and server.
type Signal uint8

const (
	FileFound Signal = iota
	FileRemoved
	NewFileFound
	TailingStarted
	Start
	Stop
	Pause
	Resume
)

var signalNames = [...]string{
	FileFound:      "FileFound",
	FileRemoved:    "FileRemoved",
	NewFileFound:   "NewFileFound",
	TailingStarted: "TailingStarted",
	Start:          "Start",
	Stop:           "Stop",
	Pause:          "Pause",
	Resume:         "Resume",
}

func (s Signal) String() string {
	if int(s) < len(signalNames) {
		return signalNames[s]
	}
	return fmt.Sprintf("Signal(%d)", uint8(s))
}

func (s Signal) valid() bool {
	return int(s) < len(signalNames)
}

func (s Signal) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("%w: signal %d", ErrUnknownKind, uint8(s))
	}
	return []byte(signalNames[s]), nil
}

func (s *Signal) UnmarshalText(b []byte) error {
	for i, name := range signalNames {
		if name == string(b) {
			*s = Signal(i)
			return nil
		}
	}
	return fmt.Errorf("%w: signal %q", ErrUnknownKind, b)
}

// LogRecord is one reconstructed log line. ReplaceLastRow marks a record
// that supersedes the previously emitted record of the same identity.
type LogRecord struct {
	Text           string
	Identity       Identity
	ReplaceLastRow bool
	Timestamp      time.Time
}

// ControlSignal carries a Signal for an identity.
type ControlSignal struct {
	Signal    Signal
	Identity  Identity
	Timestamp time.Time
}

// Kind tags the variant held by an Envelope.
type Kind uint8

const (
	KindRecord Kind = iota
	KindControl
	KindDisconnect
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "Data"
	case KindControl:
		return "System"
	case KindDisconnect:
		return "ClientDisconnect"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Envelope is the tagged union of a log record, a control signal or the
// client disconnect sentinel. Only the field matching Kind is meaningful.
type Envelope struct {
	Kind    Kind
	Record  LogRecord
	Control ControlSignal
}

// NewRecord wraps a log record stamped with the current time.
func NewRecord(text string, id Identity, replaceLastRow bool) Envelope {
	return Envelope{
		Kind: KindRecord,
		Record: LogRecord{
			Text:           text,
			Identity:       id,
			ReplaceLastRow: replaceLastRow,
			Timestamp:      now(),
		},
	}
}

// NewControl wraps a control signal stamped with the current time.
func NewControl(id Identity, sig Signal) Envelope {
	return Envelope{
		Kind:    KindControl,
		Control: ControlSignal{Signal: sig, Identity: id, Timestamp: now()},
	}
}

// Disconnect returns the sentinel published when a client session ends.
func Disconnect() Envelope {
	return Envelope{Kind: KindDisconnect}
}

// IsSignal reports whether e is a control envelope carrying sig.
func (e Envelope) IsSignal(sig Signal) bool {
	return e.Kind == KindControl && e.Control.Signal == sig
}

// Identity returns the identity the envelope belongs to. The disconnect
// sentinel has none.
func (e Envelope) Identity() Identity {
	switch e.Kind {
	case KindRecord:
		return e.Record.Identity
	case KindControl:
		return e.Control.Identity
	default:
		return Identity{}
	}
}

// WithIdentity returns a copy of e re-addressed to id.
func (e Envelope) WithIdentity(id Identity) Envelope {
	switch e.Kind {
	case KindRecord:
		e.Record.Identity = id
	case KindControl:
		e.Control.Identity = id
	}
	return e
}

func now() time.Time {
	return time.Now().UTC()
}
