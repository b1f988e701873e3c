package chat

// Role is the author of a transcript turn or persisted message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one vendor-canonical transcript entry.
//
// An assistant turn may declare ToolCalls; each declared call must be answered
// by exactly one following tool turn whose ToolCallID matches. Adapters rely on
// that pairing when reshaping the transcript for their wire format.
type Turn struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // assistant only
	ToolCallID string     // tool only
	Name       string     // tool only: the tool that produced Content
}

// Transcript is the ordered working transcript for a single user turn.
type Transcript []Turn

// UserTurn returns a user text turn.
func UserTurn(text string) Turn { return Turn{Role: RoleUser, Content: text} }

// AssistantTurn returns an assistant text turn.
func AssistantTurn(text string) Turn { return Turn{Role: RoleAssistant, Content: text} }

// ToolCallTurn returns an assistant turn declaring calls, with no text.
func ToolCallTurn(calls []ToolCall) Turn {
	return Turn{Role: RoleAssistant, ToolCalls: append([]ToolCall(nil), calls...)}
}

// ToolResultTurn returns the tool turn answering res.
func ToolResultTurn(res ToolResult) Turn {
	return Turn{Role: RoleTool, ToolCallID: res.CallID, Name: res.Name, Content: res.Outcome.Payload()}
}
