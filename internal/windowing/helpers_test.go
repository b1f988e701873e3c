package windowing_test

import (
	"github.com/petasbytes/toolstream/internal/chat"
	"github.com/petasbytes/toolstream/internal/windowing"
)

// Calls builds an assistant turn declaring calls with the given ids.
func Calls(ids ...string) chat.Turn {
	calls := make([]chat.ToolCall, 0, len(ids))
	for _, id := range ids {
		calls = append(calls, chat.ToolCall{ID: id, Name: "t"})
	}
	return chat.ToolCallTurn(calls)
}

// Result builds a tool turn answering id with content s.
func Result(id, s string) chat.Turn {
	return chat.Turn{Role: chat.RoleTool, ToolCallID: id, Content: s}
}

func User(s string) chat.Turn { return chat.UserTurn(s) }
func Asst(s string) chat.Turn { return chat.AssistantTurn(s) }
func Sys(s string) chat.Turn  { return chat.Turn{Role: chat.RoleSystem, Content: s} }

// groupsEqual is a small utility used by grouping tests.
func groupsEqual(got, want []windowing.Group) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
