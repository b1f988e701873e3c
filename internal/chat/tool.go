package chat

import "encoding/json"

// ToolCall is a complete tool invocation requested by the model.
type ToolCall struct {
	ID    string         `json:"call_id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// InputJSON returns the call input serialized as a JSON object.
func (c ToolCall) InputJSON() string {
	if len(c.Input) == 0 {
		return "{}"
	}
	b, err := json.Marshal(c.Input)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ToolSpec advertises a tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema of the input object
}

// ToolChoiceMode selects how the model may use the advertised tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceTool     ToolChoiceMode = "tool"
)

// ToolChoice constrains tool selection; Name is used with ToolChoiceTool.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// ToolOutcome is what a tool executor reports for one call.
type ToolOutcome struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Failure returns a failed outcome carrying msg.
func Failure(msg string) ToolOutcome { return ToolOutcome{Success: false, Error: msg} }

// Payload serializes the outcome as the JSON text stored and replayed to models.
func (o ToolOutcome) Payload() string {
	b, err := json.Marshal(o)
	if err != nil {
		b, _ = json.Marshal(Failure("tool output could not be encoded: " + err.Error()))
	}
	return string(b)
}

// ToolResult pairs an outcome with the call that produced it.
type ToolResult struct {
	CallID  string
	Name    string
	Outcome ToolOutcome
}
