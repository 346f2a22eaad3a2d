package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
	readSize     = 4096
)

// Decoder splits a chunked byte stream into events.
// Incomplete trailing lines are carried over to the next Feed.
type Decoder struct {
	buf    []byte
	logger *slog.Logger
}

func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// Feed appends a chunk and returns the events of every completed line.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.buf = append(d.buf, chunk...)

	var events []Event
	consumed := 0
	for {
		i := bytes.IndexByte(d.buf[consumed:], '\n')
		if i < 0 {
			break
		}
		if ev, ok := d.parseLine(d.buf[consumed : consumed+i]); ok {
			events = append(events, ev)
		}
		consumed += i + 1
	}

	if consumed > 0 {
		rest := make([]byte, len(d.buf)-consumed)
		copy(rest, d.buf[consumed:])
		d.buf = rest
	}
	return events
}

// Flush handles a final line that was not newline terminated.
func (d *Decoder) Flush() []Event {
	if len(d.buf) == 0 {
		return nil
	}
	line := d.buf
	d.buf = nil
	if ev, ok := d.parseLine(line); ok {
		return []Event{ev}
	}
	return nil
}

// Pending returns the number of buffered bytes not yet forming a line.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

func (d *Decoder) parseLine(line []byte) (Event, bool) {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Event{}, false
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 || string(payload) == doneSentinel {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		// Partial and non-JSON records are normal mid-stream
		d.logger.Debug("Skipping undecodable stream record", "error", err, "bytes", len(payload))
		return Event{}, false
	}
	return ev, true
}

// Decode reads r to EOF and calls fn for each event in order.
// Read failures are reported as *StreamFailure; errors from fn are returned unchanged.
func Decode(ctx context.Context, r io.Reader, logger *slog.Logger, fn func(Event) error) error {
	dec := NewDecoder(logger)
	buf := make([]byte, readSize)

	for {
		if err := ctx.Err(); err != nil {
			return &StreamFailure{Err: fmt.Errorf("stream cancelled: %w", err)}
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			for _, ev := range dec.Feed(buf[:n]) {
				if err := fn(ev); err != nil {
					return err
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return &StreamFailure{Err: fmt.Errorf("failed to read stream: %w", readErr)}
		}
	}

	for _, ev := range dec.Flush() {
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}
