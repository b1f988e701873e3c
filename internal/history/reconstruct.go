// Package history rebuilds a working transcript from persisted messages.
package history

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/petasbytes/toolstream/internal/chat"
	"github.com/petasbytes/toolstream/memory"
)

// missingOutput replays a tool row whose output was never recorded.
var missingOutput = chat.Failure("tool output was not recorded").Payload()

// CallID derives the replayed call id for a persisted tool row.
func CallID(messageID string) string {
	return "call_" + strings.ReplaceAll(messageID, "-", "")
}

// Reconstruct maps rows (ordered by sequence) onto transcript turns.
//
// User, assistant and system rows map one to one. Each maximal run of tool
// rows becomes a single assistant turn declaring one call per row, followed by
// one tool turn per row in the same order. Rows with unknown roles are skipped.
func Reconstruct(rows []memory.Message, log *slog.Logger) chat.Transcript {
	if log == nil {
		log = slog.Default()
	}
	out := make(chat.Transcript, 0, len(rows))
	var run []memory.Message

	flush := func() {
		if len(run) == 0 {
			return
		}
		calls := make([]chat.ToolCall, 0, len(run))
		results := make([]chat.Turn, 0, len(run))
		for _, m := range run {
			id := CallID(m.ID)
			calls = append(calls, chat.ToolCall{ID: id, Name: m.ToolName, Input: decodeInput(m, log)})
			output := m.ToolOutput
			if output == "" {
				output = missingOutput
			}
			results = append(results, chat.Turn{Role: chat.RoleTool, ToolCallID: id, Name: m.ToolName, Content: output})
		}
		out = append(out, chat.ToolCallTurn(calls))
		out = append(out, results...)
		run = run[:0]
	}

	for _, m := range rows {
		switch m.Role {
		case chat.RoleTool:
			run = append(run, m)
		case chat.RoleUser, chat.RoleAssistant, chat.RoleSystem:
			flush()
			out = append(out, chat.Turn{Role: m.Role, Content: m.Content})
		default:
			log.Warn("skipping message with unrecognized role", "message_id", m.ID, "role", m.Role, "sequence", m.Sequence)
		}
	}
	flush()
	return out
}

func decodeInput(m memory.Message, log *slog.Logger) map[string]any {
	input := map[string]any{}
	if len(m.ToolInput) == 0 {
		return input
	}
	if err := json.Unmarshal(m.ToolInput, &input); err != nil || input == nil {
		log.Warn("replaying tool row with unreadable input as {}", "message_id", m.ID, "tool", m.ToolName)
		return map[string]any{}
	}
	return input
}
