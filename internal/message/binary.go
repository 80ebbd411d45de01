package message

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Binary form: each envelope is a CBOR array
//
//	[kind, [identityKind, application, pod], text, replaceLastRow, signal, unixNanos]
//
// Fields that do not apply to the kind are zero. A zero timestamp encodes as 0.
type binaryIdentity struct {
	_           struct{} `cbor:",toarray"`
	Kind        uint8
	Application string
	Pod         string
}

type binaryEnvelope struct {
	_              struct{} `cbor:",toarray"`
	Kind           uint8
	Identity       binaryIdentity
	Text           string
	ReplaceLastRow bool
	Signal         uint8
	Timestamp      int64
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("message: cbor encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("message: cbor decoder: %v", err))
	}
}

// EncodeBinary returns the compact binary form of e.
func EncodeBinary(e Envelope) ([]byte, error) {
	var be binaryEnvelope
	switch e.Kind {
	case KindRecord:
		be = binaryEnvelope{
			Kind:           uint8(KindRecord),
			Identity:       toBinaryIdentity(e.Record.Identity),
			Text:           e.Record.Text,
			ReplaceLastRow: e.Record.ReplaceLastRow,
			Timestamp:      toNanos(e.Record.Timestamp),
		}
	case KindControl:
		if !e.Control.Signal.valid() {
			return nil, fmt.Errorf("%w: signal %d", ErrUnknownKind, uint8(e.Control.Signal))
		}
		be = binaryEnvelope{
			Kind:      uint8(KindControl),
			Identity:  toBinaryIdentity(e.Control.Identity),
			Signal:    uint8(e.Control.Signal),
			Timestamp: toNanos(e.Control.Timestamp),
		}
	case KindDisconnect:
		be = binaryEnvelope{Kind: uint8(KindDisconnect)}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, e.Kind)
	}
	return encMode.Marshal(be)
}

// DecodeBinary parses the compact binary form.
func DecodeBinary(b []byte) (Envelope, error) {
	var be binaryEnvelope
	if err := decMode.Unmarshal(b, &be); err != nil {
		return Envelope{}, fmt.Errorf("decode binary envelope: %w", err)
	}

	switch Kind(be.Kind) {
	case KindRecord:
		id, err := fromBinaryIdentity(be.Identity)
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{Kind: KindRecord, Record: LogRecord{
			Text:           be.Text,
			Identity:       id,
			ReplaceLastRow: be.ReplaceLastRow,
			Timestamp:      fromNanos(be.Timestamp),
		}}, nil
	case KindControl:
		id, err := fromBinaryIdentity(be.Identity)
		if err != nil {
			return Envelope{}, err
		}
		sig := Signal(be.Signal)
		if !sig.valid() {
			return Envelope{}, fmt.Errorf("%w: signal %d", ErrUnknownKind, be.Signal)
		}
		return Envelope{Kind: KindControl, Control: ControlSignal{
			Signal:    sig,
			Identity:  id,
			Timestamp: fromNanos(be.Timestamp),
		}}, nil
	case KindDisconnect:
		return Disconnect(), nil
	default:
		return Envelope{}, fmt.Errorf("%w: kind %d", ErrUnknownKind, be.Kind)
	}
}

func toBinaryIdentity(id Identity) binaryIdentity {
	return binaryIdentity{Kind: uint8(id.Kind), Application: id.Application, Pod: id.Pod}
}

func fromBinaryIdentity(b binaryIdentity) (Identity, error) {
	switch IdentityKind(b.Kind) {
	case SinglePod:
		return NewSinglePod(b.Application), nil
	case MultiPod:
		return NewMultiPod(b.Application, b.Pod), nil
	default:
		return Identity{}, fmt.Errorf("%w: kind %d", ErrInvalidIdentity, b.Kind)
	}
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
