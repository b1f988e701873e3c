package bridge

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

const (
	ansiYellow = "\u001b[93m"
	ansiGreen  = "\u001b[92m"
	ansiRed    = "\u001b[91m"
	ansiDim    = "\u001b[2m"
	ansiReset  = "\u001b[0m"
)

// TextWriter renders events for a terminal: deltas inline, tool activity as
// dim annotations.
type TextWriter struct {
	W     io.Writer
	Color bool

	mu       sync.Mutex
	closed   bool
	midDelta bool
	labelled bool
}

// NewTextWriter returns a terminal sink writing to w.
func NewTextWriter(w io.Writer, color bool) *TextWriter {
	return &TextWriter{W: w, Color: color}
}

func (t *TextWriter) paint(code, s string) string {
	if !t.Color {
		return s
	}
	return code + s + ansiReset
}

func (t *TextWriter) Send(ev Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if ev.Terminal() {
		t.closed = true
	}

	var err error
	switch d := ev.Data.(type) {
	case DeltaData:
		if !t.labelled {
			_, err = fmt.Fprint(t.W, t.paint(ansiYellow, "Assistant")+": ")
			t.labelled = true
		}
		if err == nil {
			_, err = fmt.Fprint(t.W, d.Text)
		}
		t.midDelta = true
		return err
	case ToolCallData:
		err = t.line(t.paint(ansiGreen, "tool") + ": " + d.Name + " " + t.paint(ansiDim, compactJSON(d.Input)))
	case ToolResultData:
		status := "ok"
		if !d.Success {
			status = "failed: " + d.Error
		}
		err = t.line(t.paint(ansiDim, "result: "+d.Name+" "+status))
	case DoneData:
		if t.midDelta {
			_, err = fmt.Fprintln(t.W)
		}
	case ErrorData:
		err = t.line(t.paint(ansiRed, "error") + ": " + d.Message)
	}
	return err
}

func (t *TextWriter) line(s string) error {
	if t.midDelta {
		if _, err := fmt.Fprintln(t.W); err != nil {
			return err
		}
		t.midDelta = false
		t.labelled = false
	}
	_, err := fmt.Fprintln(t.W, s)
	return err
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
