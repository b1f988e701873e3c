package chat

// Kind tags the variant carried by an Event.
type Kind string

const (
	KindDelta    Kind = "delta"
	KindToolCall Kind = "tool_call"
	KindDone     Kind = "done"
	KindError    Kind = "error"
)

// FinishReason explains why an adapter invocation stopped.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
	FinishOther     FinishReason = "other"
)

// Event is the canonical tagged union every adapter emits.
// Only the fields belonging to Kind are meaningful.
type Event struct {
	Kind         Kind
	Text         string       // delta
	Call         ToolCall     // tool_call
	FinishReason FinishReason // done
	Message      string       // error
}

// Delta returns a text fragment event.
func Delta(text string) Event { return Event{Kind: KindDelta, Text: text} }

// ToolCallEvent returns a tool_call event for a fully parsed call.
func ToolCallEvent(call ToolCall) Event { return Event{Kind: KindToolCall, Call: call} }

// Done returns a terminal completion event.
func Done(reason FinishReason) Event { return Event{Kind: KindDone, FinishReason: reason} }

// Error returns a terminal failure event.
func Error(message string) Event { return Event{Kind: KindError, Message: message} }

// Terminal reports whether no further events may follow e.
func (e Event) Terminal() bool {
	return e.Kind == KindDone || e.Kind == KindError
}
