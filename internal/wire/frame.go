// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package wire implements the event-stream framing and the typed update
// events the halcyon server emits during a generation.
//
// STREAMING: Robust frame parsing with a single malformed-frame policy
package wire

import (
	"bufio"
	"io"
	"strings"
)

// MaxFrameSize is the maximum accepted size for a single frame (64KB).
// Oversized frames are dropped rather than failing the stream.
const MaxFrameSize = 64 * 1024

// Frame is one delimited record of the event stream: an event name (the
// last `event:` line, possibly empty) and the joined `data:` payload.
type Frame struct {
	Event string
	Data  string
}

// Decoder reads frames from a streaming response body. It tolerates
// arbitrary chunk boundaries: the underlying bufio.Reader re-assembles
// lines split across reads, so the frame sequence is identical whether
// the bytes arrive in one chunk or one byte at a time.
type Decoder struct {
	reader *bufio.Reader
}

// NewDecoder creates a frame decoder over a streaming body.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(r)}
}

// Next returns the next complete frame.
//
// Records are separated by a blank line. Within a record the last
// `event:` line wins and all `data:` lines are stripped of the marker,
// trimmed, and joined with newlines. A non-empty partial record still
// buffered at end of stream is flushed as a final frame. Returns io.EOF
// when the stream is exhausted.
func (d *Decoder) Next() (Frame, error) {
	var (
		event     string
		dataLines []string
		size      int
		oversized bool
	)

	flush := func() (Frame, bool) {
		if oversized || len(dataLines) == 0 {
			return Frame{}, false
		}
		data := strings.TrimSpace(strings.Join(dataLines, "\n"))
		if data == "" {
			return Frame{}, false
		}
		return Frame{Event: event, Data: data}, true
	}

	for {
		line, err := d.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// Flush a trailing partial frame before reporting EOF.
				if line != "" {
					d.consumeLine(line, &event, &dataLines, &size, &oversized)
				}
				if f, ok := flush(); ok {
					return f, nil
				}
				return Frame{}, io.EOF
			}
			return Frame{}, err
		}

		line = strings.TrimRight(line, "\r\n")

		// Blank line ends the record.
		if line == "" {
			if f, ok := flush(); ok {
				return f, nil
			}
			// Empty or dropped record: keep scanning.
			event = ""
			dataLines = nil
			size = 0
			oversized = false
			continue
		}

		d.consumeLine(line, &event, &dataLines, &size, &oversized)
	}
}

// consumeLine folds one record line into the accumulating frame state.
func (d *Decoder) consumeLine(line string, event *string, dataLines *[]string, size *int, oversized *bool) {
	switch {
	case strings.HasPrefix(line, "event:"):
		// Last event: line wins.
		*event = strings.TrimSpace(line[len("event:"):])

	case strings.HasPrefix(line, "data:"):
		payload := strings.TrimSpace(line[len("data:"):])
		*size += len(payload)
		if *size > MaxFrameSize {
			*oversized = true
			*dataLines = nil
			return
		}
		if !*oversized {
			*dataLines = append(*dataLines, payload)
		}

	case strings.HasPrefix(line, ":"):
		// Keepalive comment.

	default:
		// Unknown fields (id:, retry:) are ignored.
	}
}
