package telemetry

import (
	"context"

	"github.com/petasbytes/toolstream/internal/metrics"
)

// EmitTurnCompleted records the counters of a finished turn together with
// local text features of the user input and the final assistant content.
func EmitTurnCompleted(ctx context.Context, outcome string, c metrics.TurnCounters, user, assistant string) {
	if !ObserveEnabled() {
		return
	}
	turnID, _ := TurnIDFromContext(ctx)
	Emit(EventTurnCompleted, map[string]any{
		"turn_id":            turnID,
		"outcome":            outcome,
		"iterations":         c.Iterations,
		"deltas":             c.Deltas,
		"tool_calls":         c.ToolCalls,
		"tool_failures":      c.ToolFailures,
		"dropped_tool_calls": c.DroppedToolCalls,
	})

	u := metrics.CountFeatures(user)
	a := metrics.CountFeatures(assistant)
	Emit(EventLocalFeatures, map[string]any{
		"turn_id":          turnID,
		"features_version": "2",
		"user":             featureFields(u),
		"assistant":        featureFields(a),
	})
}

func featureFields(f metrics.Features) map[string]any {
	return map[string]any{
		"bytes": f.Bytes,
		"runes": f.Runes,
		"words": f.Words,
		"lines": f.Lines,
	}
}
