package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EventType enumerates the JSONL event types.
type EventType string

const (
	EventRunStart    EventType = "run_start"
	EventStep        EventType = "step"
	EventRunComplete EventType = "run_complete"
)

// Event is a single line of the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Step      *StepRecord    `json:"step,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Writer writes trace events to an append-only JSONL stream. It is safe for
// concurrent use.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	runID string
	enc   *json.Encoder
	now   func() time.Time
}

// NewWriter creates a trace writer that writes to the given io.Writer.
func NewWriter(w io.Writer, runID string) *Writer {
	return &Writer{
		w:     w,
		runID: runID,
		enc:   json.NewEncoder(w),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// NewFileWriter creates a trace writer that appends to a JSONL file.
func NewFileWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return NewWriter(f, runID), nil
}

// RunID returns the id stamped on every event.
func (tw *Writer) RunID() string { return tw.runID }

// Close closes the underlying writer when it is closable.
func (tw *Writer) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if c, ok := tw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Emit writes a single trace event.
func (tw *Writer) Emit(eventType EventType, data map[string]any) error {
	return tw.write(Event{Type: eventType, Data: data})
}

// EmitRunStart emits a run_start event naming the flow and configuration.
func (tw *Writer) EmitRunStart(flow string, config map[string]string) error {
	data := map[string]any{"flow": flow}
	if len(config) > 0 {
		data["config"] = config
	}
	return tw.Emit(EventRunStart, data)
}

// EmitStep emits one step record.
func (tw *Writer) EmitStep(rec StepRecord) error {
	return tw.write(Event{Type: EventStep, Step: &rec})
}

// EmitRunComplete emits a run_complete event.
func (tw *Writer) EmitRunComplete(status Status, steps int, duration time.Duration) error {
	return tw.Emit(EventRunComplete, map[string]any{
		"status":   string(status),
		"steps":    steps,
		"duration": duration.String(),
	})
}

// WriteTrace emits a whole run: run_start, one step event per record and
// run_complete.
func (tw *Writer) WriteTrace(flow string, config map[string]string, t Trace, duration time.Duration) error {
	if err := tw.EmitRunStart(flow, config); err != nil {
		return err
	}
	for _, rec := range t {
		if err := tw.EmitStep(rec); err != nil {
			return err
		}
	}
	return tw.EmitRunComplete(t.Status(), len(t), duration)
}

func (tw *Writer) write(evt Event) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	evt.Timestamp = tw.now()
	evt.RunID = tw.runID
	return tw.enc.Encode(evt)
}

// ReadEvents parses a JSONL stream written by Writer.
func ReadEvents(r io.Reader) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB max line

	var events []Event
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var evt Event
		if err := json.Unmarshal(b, &evt); err != nil {
			return events, fmt.Errorf("line %d: invalid JSON: %w", line, err)
		}
		events = append(events, evt)
	}
	return events, scanner.Err()
}

// Steps extracts the trace recorded for runID from events. An empty runID
// selects the first run in the stream.
func Steps(events []Event, runID string) Trace {
	var out Trace
	for _, evt := range events {
		if runID == "" {
			runID = evt.RunID
		}
		if evt.RunID == runID && evt.Type == EventStep && evt.Step != nil {
			out = append(out, *evt.Step)
		}
	}
	return out
}
