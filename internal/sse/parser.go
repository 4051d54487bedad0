package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// StreamErrorSentinel marks an in-band error payload. Frames whose data starts with it are never dispatched.
const StreamErrorSentinel = "[stream-error]"

// DefaultEventType is used when a frame carries no event field.
const DefaultEventType = "message"

// Event is a single dispatched frame.
type Event struct {
	Type  string
	Data  gjson.Result
	Raw   string
	ID    string
	Retry int // milliseconds, -1 when unset
}

// Handler receives decoded events and errors. Either callback may be nil.
type Handler struct {
	OnEvent func(Event)
	OnError func(error)
}

func (h Handler) event(e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

func (h Handler) error(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// Options tunes dispatch.
type Options struct {
	// Delay is awaited after each dispatched event.
	Delay time.Duration
}

// PayloadError reports a frame whose data is not valid JSON. The frame is dropped and decoding continues.
type PayloadError struct {
	Type string
	Raw  string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("sse: invalid %s payload: %q", e.Type, e.Raw)
}

// frame accumulates fields until a blank line.
type frame struct {
	eventType string
	data      []string
	id        string
	retry     int
}

func newFrame() frame {
	return frame{eventType: DefaultEventType, retry: -1}
}

// Decode reads r until EOF, grouping lines into frames and dispatching them to h.
//
// Lines are split on "\n" with a trailing "\r" removed. Lines starting with ":" are comments.
// A frame with an empty payload or a payload starting with [StreamErrorSentinel] is skipped.
// An unterminated frame at EOF is discarded. Read errors, including cancellation of ctx,
// are reported through h.OnError and returned.
func Decode(ctx context.Context, r io.Reader, h Handler, opts Options) error {
	br := bufio.NewReader(r)
	cur := newFrame()

	for {
		if err := ctx.Err(); err != nil {
			h.error(err)
			return err
		}

		line, err := br.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			h.error(err)
			return err
		}

		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")

		if line == "" {
			e, ok := cur.dispatch(h)
			cur = newFrame()
			if !ok {
				continue
			}

			h.event(e)
			if err := wait(ctx, opts.Delay); err != nil {
				h.error(err)
				return err
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		cur.field(line)
	}
}

// field applies a single "name: value" line to the frame.
func (f *frame) field(line string) {
	name, value, _ := strings.Cut(line, ":")

	switch name {
	case "event":
		if t := strings.TrimSpace(value); t != "" {
			f.eventType = t
		}
	case "data":
		f.data = append(f.data, strings.TrimPrefix(value, " "))
	case "id":
		f.id = strings.TrimSpace(value)
	case "retry":
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n >= 0 {
			f.retry = n
		}
	}
}

// dispatch builds the event for a completed frame. Payload errors are reported to h.
func (f *frame) dispatch(h Handler) (Event, bool) {
	raw := strings.Join(f.data, "\n")
	if strings.TrimSpace(raw) == "" || strings.HasPrefix(raw, StreamErrorSentinel) {
		return Event{}, false
	}

	if !gjson.Valid(raw) {
		h.error(&PayloadError{Type: f.eventType, Raw: raw})
		return Event{}, false
	}

	return Event{
		Type:  f.eventType,
		Data:  gjson.Parse(raw),
		Raw:   raw,
		ID:    f.id,
		Retry: f.retry,
	}, true
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
