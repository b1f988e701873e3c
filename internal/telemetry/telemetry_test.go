package telemetry_test

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/toolstream/internal/metrics"
	"github.com/petasbytes/toolstream/internal/telemetry"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
	return dir
}

func readEvents(t *testing.T) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(".agent/events.jsonl")
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestEmit_HappyPath(t *testing.T) {
	chdirTemp(t)
	t.Setenv("AGT_OBSERVE_JSON", "1")

	telemetry.Emit("test_event", map[string]any{"foo": "bar", "num": 42})

	events := readEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, "test_event", events[0]["event"])
	assert.Equal(t, "bar", events[0]["foo"])
	assert.Equal(t, float64(42), events[0]["num"])
	ts, ok := events[0]["time"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339Nano, ts)
	assert.NoError(t, err)
}

func TestEmit_MapIsolation(t *testing.T) {
	chdirTemp(t)
	t.Setenv("AGT_OBSERVE_JSON", "1")

	fields := map[string]any{"key": "value"}
	telemetry.Emit("test", fields)

	assert.Equal(t, map[string]any{"key": "value"}, fields)
}

func TestEmit_Gating_Off_NoWrites(t *testing.T) {
	if telemetry.ObserveEnabled() {
		t.Skip("observation enabled at process start")
	}
	chdirTemp(t)

	telemetry.Emit("test", map[string]any{"a": 1})

	_, err := os.Stat(".agent")
	assert.True(t, os.IsNotExist(err), "expected no .agent directory when observation is off")
}

func TestEmitTurnCompleted_WritesCountersAndFeatures(t *testing.T) {
	chdirTemp(t)
	t.Setenv("AGT_OBSERVE_JSON", "1")

	ctx := telemetry.WithTurnID(context.Background(), "turn-xyz")
	c := metrics.TurnCounters{Iterations: 2, Deltas: 3, ToolCalls: 1}
	telemetry.EmitTurnCompleted(ctx, "done", c, "list schemas please", "main\ntemp")

	events := readEvents(t)
	require.Len(t, events, 2)
	assert.Equal(t, telemetry.EventTurnCompleted, events[0]["event"])
	assert.Equal(t, "turn-xyz", events[0]["turn_id"])
	assert.Equal(t, float64(2), events[0]["iterations"])
	assert.Equal(t, float64(1), events[0]["tool_calls"])

	assert.Equal(t, telemetry.EventLocalFeatures, events[1]["event"])
	asst, ok := events[1]["assistant"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), asst["lines"])
}

func TestTurnID_RoundTrip(t *testing.T) {
	ctx := telemetry.WithTurnID(context.Background(), "turn-123")
	got, ok := telemetry.TurnIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "turn-123", got)
}

func TestTurnID_EmptyIDRejectedOnRead(t *testing.T) {
	ctx := telemetry.WithTurnID(context.Background(), "")
	got, ok := telemetry.TurnIDFromContext(ctx)
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestTurnID_LastWriteWins(t *testing.T) {
	ctx := telemetry.WithTurnID(telemetry.WithTurnID(context.Background(), "t1"), "t2")
	got, _ := telemetry.TurnIDFromContext(ctx)
	assert.Equal(t, "t2", got)
}

func TestEnsureTurnID(t *testing.T) {
	ctx, id := telemetry.EnsureTurnID(context.Background())
	assert.True(t, strings.HasPrefix(id, "turn-"))
	got, ok := telemetry.TurnIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, id, got)

	ctx2, id2 := telemetry.EnsureTurnID(ctx)
	assert.Equal(t, id, id2)
	assert.Equal(t, ctx, ctx2)
}

func TestCountDropped(t *testing.T) {
	telemetry.CountDropped(context.Background()) // no counter: no-op

	var n int
	ctx := telemetry.WithDropCounter(context.Background(), &n)
	telemetry.CountDropped(ctx)
	telemetry.CountDropped(telemetry.WithTurnID(ctx, "t"))
	assert.Equal(t, 2, n)
}
