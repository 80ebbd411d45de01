package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// naiveLayout is a zone-less UTC timestamp, the form browsers already parse
// for this feed.
const naiveLayout = "2006-01-02T15:04:05.999999999"

type naiveTime time.Time

func (t naiveTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(naiveLayout))
}

func (t *naiveTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(naiveLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
	}
	*t = naiveTime(parsed.UTC())
	return nil
}

type recordJSON struct {
	Type           string    `json:"type"`
	Row            string    `json:"row"`
	Application    Identity  `json:"application"`
	ReplaceLastRow bool      `json:"replace_last_row"`
	Timestamp      naiveTime `json:"timestamp"`
}

type signalJSON struct {
	Type        string    `json:"type"`
	Application Identity  `json:"application"`
	Message     Signal    `json:"message"`
	Timestamp   naiveTime `json:"timestamp"`
}

func (r LogRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Type:           KindRecord.String(),
		Row:            r.Text,
		Application:    r.Identity,
		ReplaceLastRow: r.ReplaceLastRow,
		Timestamp:      naiveTime(r.Timestamp),
	})
}

func (r *LogRecord) UnmarshalJSON(b []byte) error {
	var v recordJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = LogRecord{
		Text:           v.Row,
		Identity:       v.Application,
		ReplaceLastRow: v.ReplaceLastRow,
		Timestamp:      time.Time(v.Timestamp),
	}
	return nil
}

func (c ControlSignal) MarshalJSON() ([]byte, error) {
	return json.Marshal(signalJSON{
		Type:        KindControl.String(),
		Application: c.Identity,
		Message:     c.Signal,
		Timestamp:   naiveTime(c.Timestamp),
	})
}

func (c *ControlSignal) UnmarshalJSON(b []byte) error {
	var v signalJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*c = ControlSignal{
		Signal:    v.Message,
		Identity:  v.Application,
		Timestamp: time.Time(v.Timestamp),
	}
	return nil
}

// MarshalJSON encodes the externally tagged form:
// {"Data":{...}}, {"System":{...}} or "ClientDisconnect".
func (e Envelope) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindRecord:
		return json.Marshal(map[string]LogRecord{KindRecord.String(): e.Record})
	case KindControl:
		return json.Marshal(map[string]ControlSignal{KindControl.String(): e.Control})
	case KindDisconnect:
		return json.Marshal(KindDisconnect.String())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, e.Kind)
	}
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var tag string
		if err := json.Unmarshal(b, &tag); err != nil {
			return err
		}
		if tag != KindDisconnect.String() {
			return fmt.Errorf("%w: %q", ErrUnknownKind, tag)
		}
		*e = Disconnect()
		return nil
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(b, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return fmt.Errorf("%w: expected exactly one variant, got %d", ErrUnknownKind, len(tagged))
	}
	for tag, raw := range tagged {
		switch tag {
		case KindRecord.String():
			var r LogRecord
			if err := json.Unmarshal(raw, &r); err != nil {
				return fmt.Errorf("decode %s: %w", tag, err)
			}
			*e = Envelope{Kind: KindRecord, Record: r}
		case KindControl.String():
			var c ControlSignal
			if err := json.Unmarshal(raw, &c); err != nil {
				return fmt.Errorf("decode %s: %w", tag, err)
			}
			*e = Envelope{Kind: KindControl, Control: c}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownKind, tag)
		}
	}
	return nil
}

// EncodeJSON returns the JSON form of e.
func EncodeJSON(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeJSON parses the JSON form of an envelope.
func DecodeJSON(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
