package estratto

import (
	"bufio"
	"encoding/json"
	"io"

	"primanota/internal/models"
)

// Event types carried on the progress channel.
const (
	EventProgress   = "progress"
	EventWaiting    = "waiting"
	EventChunkError = "chunk_error"
	EventDone       = "done"
)

// Event is one type-tagged message on the server-to-client progress
// stream. The stream is newline-delimited JSON: one event per line,
// flushed as produced, terminated by a single done event.
type Event struct {
	Type string `json:"type"`

	// progress / waiting / chunk_error
	Chunk       int    `json:"chunk,omitempty"`
	TotalChunks int    `json:"total_chunks,omitempty"`
	Found       int    `json:"found,omitempty"`
	WaitSeconds int    `json:"wait_seconds,omitempty"`
	Error       string `json:"error,omitempty"`

	// done
	Transactions []models.BankTransaction `json:"transactions,omitempty"`
	FailedChunks []int                    `json:"failed_chunks,omitempty"`
	Warnings     []string                 `json:"warnings,omitempty"`
	StartChunk   int                      `json:"start_chunk"`
	EndChunk     int                      `json:"end_chunk,omitempty"`
	HasMore      bool                     `json:"has_more"`
	NextStart    *int                     `json:"next_start_chunk,omitempty"`
}

// EventSink receives progress events as the window advances.
type EventSink func(Event)

// WriteEvent encodes one event as a JSON line.
func WriteEvent(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// EventReader decodes newline-delimited events from a stream, reading
// incrementally as bytes arrive.
type EventReader struct {
	scanner *bufio.Scanner
}

func NewEventReader(r io.Reader) *EventReader {
	sc := bufio.NewScanner(r)
	// A done event carries a whole window's transactions in one line.
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &EventReader{scanner: sc}
}

// Next returns the next event, or io.EOF when the stream ends. Blank lines
// are skipped.
func (r *EventReader) Next() (Event, error) {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return Event{}, err
		}
		return ev, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}
