// Package sse reads server-sent-event streams as defined by the HTML living
// standard: "event:", "data:" and "id:" fields, ":" comment lines, and
// blank-line dispatch. "retry:" is accepted and ignored.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// maxLine bounds a single field line. Progress payloads are small JSON
// documents but segment lists can grow with long transcripts.
const maxLine = 1 << 20

// Event is one dispatched server-sent event.
type Event struct {
	// Type is the "event:" field, or "message" when absent.
	Type string
	// Data is the concatenation of all "data:" lines joined with "\n".
	Data string
	// ID is the last "id:" field seen on the stream.
	ID string
}

// Reader parses events from an underlying byte stream.
type Reader struct {
	sc     *bufio.Scanner
	lastID string
	err    error
}

// NewReader returns a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	return &Reader{sc: sc}
}

// Next returns the next event. It returns io.EOF once the stream ends
// cleanly; an event that was still being assembled at EOF (no terminating
// blank line) is dispatched first.
func (r *Reader) Next() (Event, error) {
	if r.err != nil {
		return Event{}, r.err
	}

	var (
		typ     string
		data    strings.Builder
		hasData bool
	)

	dispatch := func() Event {
		ev := Event{Type: typ, Data: data.String(), ID: r.lastID}
		if ev.Type == "" {
			ev.Type = "message"
		}
		return ev
	}

	for r.sc.Scan() {
		line := strings.TrimSuffix(r.sc.Text(), "\r")
		if line == "" {
			if hasData {
				return dispatch(), nil
			}
			// Events without data are discarded.
			typ = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			typ = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				r.lastID = value
			}
		}
	}

	if err := r.sc.Err(); err != nil {
		r.err = err
	} else {
		r.err = io.EOF
	}
	if hasData {
		return dispatch(), nil
	}
	return Event{}, r.err
}

// ErrLineTooLong is returned when a single line exceeds the reader's limit.
var ErrLineTooLong = bufio.ErrTooLong
