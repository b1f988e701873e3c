package windowing

import (
	"unicode/utf8"

	"github.com/petasbytes/toolstream/internal/chat"
)

// TokenCounter estimates input-token cost for turns or groups.
type TokenCounter interface {
	CountTurn(t chat.Turn) int
	CountGroup(g Group, all chat.Transcript) int
}

// HeuristicCounter is the deterministic default estimator.
// Rules:
//   - content: rune count plus a fixed overhead
//   - each declared tool call: runes of name and serialized input plus overhead
type HeuristicCounter struct{}

// Fixed per-block overhead; changing this requires updating the guard test.
const blockOverhead = 4

func (HeuristicCounter) CountTurn(t chat.Turn) int {
	total := utf8.RuneCountInString(t.Content) + blockOverhead
	for _, c := range t.ToolCalls {
		total += utf8.RuneCountInString(c.Name) + utf8.RuneCountInString(c.InputJSON()) + blockOverhead
	}
	return total
}

func (h HeuristicCounter) CountGroup(g Group, all chat.Transcript) int {
	total := 0
	for i := g.Start; i < g.End && i < len(all); i++ {
		total += h.CountTurn(all[i])
	}
	return total
}
