package ingest

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Event is one Server-Sent Event.
type Event struct {
	Type  string
	Data  string
	ID    string
	Retry int // milliseconds, 0 when unset
}

// Reader reads SSE events from a stream.
type Reader struct {
	reader *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{reader: bufio.NewReader(r)}
}

// Next returns the next complete event. A trailing event without a blank
// line is returned before io.EOF.
func (s *Reader) Next() (*Event, error) {
	event := &Event{Type: "message"}
	var dataLines []string
	pending := func() bool {
		return len(dataLines) > 0 || event.Type != "message" || event.ID != ""
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF && line != "" {
				s.field(event, &dataLines, strings.TrimSuffix(line, "\r"))
			}
			if err == io.EOF && pending() {
				event.Data = strings.Join(dataLines, "\n")
				return event, nil
			}
			return nil, err
		}

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			if pending() {
				event.Data = strings.Join(dataLines, "\n")
				return event, nil
			}
			continue
		}
		s.field(event, &dataLines, line)
	}
}

func (s *Reader) field(event *Event, dataLines *[]string, line string) {
	if strings.HasPrefix(line, ":") {
		return // comment / keep-alive
	}

	field, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "event":
		event.Type = value
	case "data":
		*dataLines = append(*dataLines, value)
	case "id":
		event.ID = value
	case "retry":
		if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
			event.Retry = ms
		}
	}
}
