package tailer

import (
	"strings"

	"github.com/gluk-w/webtail/internal/message"
)

// assembler rebuilds records from the chunks returned by line reads.
// A chunk without a trailing newline opens a record; the chunk that
// completes it is emitted with ReplaceLastRow so viewers overwrite the
// earlier render of the partial text. Callers flush an open record before
// reading its continuation.
type assembler struct {
	id       message.Identity
	pending  strings.Builder
	open     bool
	rendered int
}

func newAssembler(id message.Identity) *assembler {
	return &assembler{id: id}
}

// feed consumes one chunk and returns the records it completes.
func (a *assembler) feed(chunk string) []message.Envelope {
	body, terminated := strings.CutSuffix(chunk, "\n")
	if !terminated {
		a.pending.WriteString(chunk)
		a.open = true
		return nil
	}
	body = strings.TrimSuffix(body, "\r")

	if a.open {
		// A bare newline closes the open record; it only needs emitting if
		// viewers have not seen its full text yet.
		if body == "" && a.rendered == a.pending.Len() {
			a.reset()
			return nil
		}
		a.pending.WriteString(body)
		text := a.pending.String()
		a.reset()
		return []message.Envelope{message.NewRecord(text, a.id, true)}
	}

	if body == "" {
		return nil
	}
	return []message.Envelope{message.NewRecord(body, a.id, false)}
}

// flush renders an open record that has been waiting for its
// continuation. Repeated flushes only emit when more text arrived.
func (a *assembler) flush() (message.Envelope, bool) {
	if !a.open || a.pending.Len() == a.rendered {
		return message.Envelope{}, false
	}
	replace := a.rendered > 0
	a.rendered = a.pending.Len()
	return message.NewRecord(a.pending.String(), a.id, replace), true
}

func (a *assembler) reset() {
	a.pending.Reset()
	a.open = false
	a.rendered = 0
}
