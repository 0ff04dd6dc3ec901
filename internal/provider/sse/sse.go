// Package sse reads text/event-stream bodies produced by completion services.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strings"
)

const maxLineBytes = 1 << 20 // 1 MiB

// Event is a single dispatched server-sent event.
type Event struct {
	Name string
	Data string
}

// Events yields events from r in order. Comment lines and unknown fields are
// ignored; multi-line data fields are joined with "\n".
func Events(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

		var (
			name string
			data []string
		)
		dispatch := func() bool {
			if len(data) == 0 {
				name = ""
				return true
			}
			ev := Event{Name: name, Data: strings.Join(data, "\n")}
			name, data = "", nil
			return yield(ev, nil)
		}

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				if !dispatch() {
					return
				}
				continue
			}
			if strings.HasPrefix(line, ":") {
				continue
			}

			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				name = value
			case "data":
				data = append(data, value)
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Event{}, fmt.Errorf("read event stream: %w", err))
			return
		}
		dispatch()
	}
}
