// Package stream is the SSE streaming translator that rewrites an
// upstream event stream into the client dialect while tallying token
// usage. It never buffers more than the current event.
package stream

import (
	"bufio"
	"io"
	"strings"
)

// RawEvent is one parsed SSE event: an optional event-type line and the
// joined data payload. Grounded on
// pkg/providers/anthropic/streaming.go's readEvent, generalized so both
// Anthropic's named-event framing and OpenAI/Gemini's data-only framing
// share one reader.
type RawEvent struct {
	Type string
	Data string
}

// EventReader reads one SSE event at a time from an upstream body.
type EventReader struct {
	scanner *bufio.Scanner
}

// NewEventReader wraps an upstream response body.
func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{scanner: bufio.NewScanner(r)}
}

// Next reads the next SSE event. It returns io.EOF when the stream ends
// normally (including the "[DONE]" sentinel case reaching an empty
// server close, which callers detect via Data == "[DONE]").
func (r *EventReader) Next() (*RawEvent, error) {
	var eventType string
	var dataLines []string

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if eventType != "" || len(dataLines) > 0 {
				break
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data:"))
		}
		// Other SSE fields (id, retry) are ignored.
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	if eventType == "" && len(dataLines) == 0 {
		return nil, io.EOF
	}

	return &RawEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}, nil
}
