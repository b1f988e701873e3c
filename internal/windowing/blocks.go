package windowing

import (
	"log/slog"

	"github.com/petasbytes/toolstream/internal/chat"
)

// GroupKind denotes the atomic unit type when preparing a send window.
type GroupKind int

const (
	GroupSingleton GroupKind = iota
	// GroupExchange is an assistant tool-call turn plus its result turns.
	GroupExchange
	// GroupPinned is a system turn; it is always sent.
	GroupPinned
)

// Group describes a contiguous span of turns [Start, End) in the transcript.
type Group struct {
	Kind  GroupKind
	Start int // inclusive
	End   int // exclusive
}

// GroupBlocks groups turns into atomic units that preserve call/result pairing.
// Invariants:
//   - An exchange is an assistant turn declaring N calls immediately followed
//     by exactly N tool turns whose ids are the declared ids.
//   - Result order may differ from call order; ids must match as a set.
//   - Anything else, including orphaned tool turns, is a singleton.
func GroupBlocks(turns chat.Transcript) []Group {
	groups := make([]Group, 0, len(turns))
	for i := 0; i < len(turns); {
		t := turns[i]
		if t.Role == chat.RoleSystem {
			groups = append(groups, Group{Kind: GroupPinned, Start: i, End: i + 1})
			i++
			continue
		}
		if t.Role == chat.RoleAssistant && len(t.ToolCalls) > 0 {
			n := len(t.ToolCalls)
			reason := exchangeReason(turns, i)
			if reason == "" {
				groups = append(groups, Group{Kind: GroupExchange, Start: i, End: i + 1 + n})
				i += 1 + n
				continue
			}
			slog.Debug("windowing: exclude exchange", "reason", reason, "idx", i)
		}
		groups = append(groups, Group{Kind: GroupSingleton, Start: i, End: i + 1})
		i++
	}
	return groups
}

// exchangeReason returns "" when turns[i] and its followers form a complete
// exchange, otherwise a short reason code.
func exchangeReason(turns chat.Transcript, i int) string {
	calls := turns[i].ToolCalls
	want := make(map[string]struct{}, len(calls))
	for _, c := range calls {
		want[c.ID] = struct{}{}
	}
	if len(want) != len(calls) {
		return "duplicate_call_ids"
	}
	if i+len(calls) >= len(turns) {
		return "missing_results"
	}
	for j := i + 1; j <= i+len(calls); j++ {
		r := turns[j]
		if r.Role != chat.RoleTool {
			return "missing_results"
		}
		if _, ok := want[r.ToolCallID]; !ok {
			return "extra_results"
		}
		delete(want, r.ToolCallID)
	}
	return ""
}
