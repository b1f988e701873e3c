package windowing

import (
	"log/slog"

	"github.com/petasbytes/toolstream/internal/chat"
)

// Stats summarizes the result of window preparation.
//
// Fields:
//   - Total: estimated tokens for pinned and included groups.
//   - Budget: the input token budget used.
//   - IncludedGroups: number of non-pinned groups included.
//   - SkippedGroups: non-pinned groups left out.
//   - OverBudgetNewest: true when pinned turns plus the newest group exceed Budget.
type Stats struct {
	Total            int
	Budget           int
	IncludedGroups   int
	SkippedGroups    int
	OverBudgetNewest bool
}

// PrepareSendWindow returns the turns to send: every pinned system turn plus
// the longest suffix of whole groups that fits budget.
//
// Rules:
//   - Include whole groups scanning newest→oldest while total ≤ budget.
//   - If the newest group alone does not fit, return only pinned turns and set OverBudgetNewest.
//   - If budget ≤ 0, return only pinned turns (OverBudgetNewest set when any groups exist).
func PrepareSendWindow(turns chat.Transcript, budget int, c TokenCounter) (chat.Transcript, Stats) {
	if len(turns) == 0 {
		return nil, Stats{Budget: budget}
	}

	var pinned chat.Transcript
	pinnedCost := 0
	var groups []Group
	for _, g := range GroupBlocks(turns) {
		if g.Kind == GroupPinned {
			pinned = append(pinned, turns[g.Start])
			pinnedCost += c.CountGroup(g, turns)
			continue
		}
		groups = append(groups, g)
	}

	if budget <= 0 {
		return pinned, Stats{Budget: budget, SkippedGroups: len(groups), OverBudgetNewest: len(groups) > 0}
	}

	total := pinnedCost
	included := 0
	startIdx := len(groups)
	for gi := len(groups) - 1; gi >= 0; gi-- {
		cost := c.CountGroup(groups[gi], turns)
		if included == 0 && total+cost > budget {
			slog.Debug("windowing: newest group over budget", "budget", budget, "cost", cost, "pinned", pinnedCost)
			return pinned, Stats{Total: pinnedCost, Budget: budget, SkippedGroups: len(groups), OverBudgetNewest: true}
		}
		if total+cost > budget {
			break
		}
		total += cost
		included++
		startIdx = gi
	}

	window := make(chat.Transcript, 0, len(pinned)+len(turns))
	window = append(window, pinned...)
	for _, g := range groups[startIdx:] {
		window = append(window, turns[g.Start:g.End]...)
	}
	return window, Stats{
		Total:          total,
		Budget:         budget,
		IncludedGroups: included,
		SkippedGroups:  len(groups) - included,
	}
}
