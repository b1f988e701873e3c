// Package bridge maps loop output onto the outward client event stream.
//
// The outward contract is a sequence of named events (delta, tool_call,
// tool_result, done, error) terminated by exactly one done or error. Sinks
// refuse further events after a terminal one.
package bridge

import (
	"errors"

	"github.com/petasbytes/toolstream/internal/chat"
)

// Outward event names.
const (
	EventDelta      = "delta"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventDone       = "done"
	EventError      = "error"
)

// ErrClosed is returned by a sink asked to send after a terminal event.
var ErrClosed = errors.New("bridge: stream already terminated")

// Event is one outward event.
type Event struct {
	Name string
	Data any
}

// Terminal reports whether e ends the outward stream.
func (e Event) Terminal() bool { return e.Name == EventDone || e.Name == EventError }

// Sink consumes outward events one at a time, without buffering.
type Sink interface {
	Send(ev Event) error
}

// DeltaData is the payload of a delta event.
type DeltaData struct {
	Text string `json:"text"`
}

// ToolCallData is the payload of a tool_call event.
type ToolCallData struct {
	CallID string         `json:"call_id"`
	Name   string         `json:"name"`
	Input  map[string]any `json:"input"`
}

// ToolResultData is the payload of a tool_result event.
type ToolResultData struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DoneData is the payload of the final done event. MessageID is null when no
// assistant message was persisted.
type DoneData struct {
	MessageID *string `json:"message_id"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
}

// FromCanonical maps an adapter event to its outward form. An adapter's done
// only ends one model invocation, so it has no outward counterpart; the loop
// emits Done when the whole turn is finalized.
func FromCanonical(ev chat.Event) (Event, bool) {
	switch ev.Kind {
	case chat.KindDelta:
		return Event{Name: EventDelta, Data: DeltaData{Text: ev.Text}}, true
	case chat.KindToolCall:
		return ToolCall(ev.Call), true
	case chat.KindError:
		return Error(ev.Message), true
	default:
		return Event{}, false
	}
}

// ToolCall returns the tool_call event for call.
func ToolCall(call chat.ToolCall) Event {
	input := call.Input
	if input == nil {
		input = map[string]any{}
	}
	return Event{Name: EventToolCall, Data: ToolCallData{CallID: call.ID, Name: call.Name, Input: input}}
}

// ToolResult returns the tool_result event for res.
func ToolResult(res chat.ToolResult) Event {
	return Event{Name: EventToolResult, Data: ToolResultData{
		CallID:  res.CallID,
		Name:    res.Name,
		Success: res.Outcome.Success,
		Data:    res.Outcome.Data,
		Error:   res.Outcome.Error,
	}}
}

// Done returns the terminal done event; an empty messageID encodes as null.
func Done(messageID string) Event {
	d := DoneData{}
	if messageID != "" {
		d.MessageID = &messageID
	}
	return Event{Name: EventDone, Data: d}
}

// Error returns the terminal error event.
func Error(message string) Event {
	return Event{Name: EventError, Data: ErrorData{Message: message}}
}
