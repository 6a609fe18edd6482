package sse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteEvent writes e in text/event-stream framing.
func WriteEvent(w io.Writer, e Event) error {
	var b strings.Builder
	if e.Name != "" {
		fmt.Fprintf(&b, "event: %s\n", e.Name)
	}
	for _, line := range strings.Split(e.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// ReadEvents parses a text/event-stream from r and calls fn for each complete event.
// It returns when r is exhausted or fails.
func ReadEvents(r io.Reader, fn func(Event)) error {
	scanner := bufio.NewScanner(r)

	var name string
	var data []string
	dispatch := func() {
		if name == "" && data == nil {
			return
		}
		fn(Event{Name: name, Data: strings.Join(data, "\n")})
		name, data = "", nil
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			dispatch()
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
	return scanner.Err()
}
