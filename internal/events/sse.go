package events

import (
	"bufio"
	"io"
	"strings"
)

// Message is a single Server-Sent Event as it appears on the wire.
type Message struct {
	// Event is the "event:" field; empty for the default event type.
	Event string

	// ID is the "id:" field, empty if the server sent none.
	ID string

	// Data is assembled from one or more "data:" lines joined with "\n".
	Data string
}

// Scanner reads Server-Sent Events from an io.Reader.
//
// Events are delimited by blank lines. Comment lines (starting with ":")
// and unknown fields are ignored. A block without data lines dispatches
// nothing.
type Scanner struct {
	reader  *bufio.Reader
	current Message
	lastID  string
	err     error
}

// NewScanner creates a scanner that reads events from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event. It returns false at EOF or on a read
// error; call Err to tell them apart.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.current = Message{}

	var data []string
	var event string
	hasData := false

	dispatch := func() {
		s.current = Message{Event: event, ID: s.lastID, Data: strings.Join(data, "\n")}
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.err = err
			if err == io.EOF && hasData {
				dispatch()
				return true
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				dispatch()
				return true
			}
			event = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			field, value = line, ""
		} else {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			event = value
		case "id":
			// The last event ID persists across events.
			if !strings.Contains(value, "\x00") {
				s.lastID = value
			}
		}
	}
}

// Message returns the event parsed by the last successful Next.
func (s *Scanner) Message() Message {
	return s.current
}

// Err returns the error that stopped the scanner, or nil on a clean EOF.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
