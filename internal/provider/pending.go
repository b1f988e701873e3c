package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/petasbytes/toolstream/internal/chat"
	"github.com/petasbytes/toolstream/internal/telemetry"
)

// pendingCall accumulates the fragments of one streamed tool call.
type pendingCall struct {
	id   string
	name strings.Builder
	args strings.Builder
}

// pendingCalls maps a vendor positional index to its accumulator. It lives
// for exactly one adapter invocation.
type pendingCalls struct {
	provider string
	log      *slog.Logger
	byIndex  map[int]*pendingCall
}

func newPendingCalls(provider string, log *slog.Logger) *pendingCalls {
	return &pendingCalls{provider: provider, log: log, byIndex: make(map[int]*pendingCall)}
}

// add merges one chunk's contribution. A non-empty id replaces the previous
// one; name and argument fragments are appended.
func (p *pendingCalls) add(index int, id, name, args string) {
	pc, ok := p.byIndex[index]
	if !ok {
		pc = &pendingCall{}
		p.byIndex[index] = pc
	}
	if id != "" {
		pc.id = id
	}
	pc.name.WriteString(name)
	pc.args.WriteString(args)
}

func (p *pendingCalls) open() bool { return len(p.byIndex) > 0 }

// drain parses every accumulator in index order and resets the map. Calls
// without a name or with an argument buffer that is not a JSON object are
// dropped and reported.
func (p *pendingCalls) drain(ctx context.Context) []chat.ToolCall {
	if len(p.byIndex) == 0 {
		return nil
	}
	indices := make([]int, 0, len(p.byIndex))
	for idx := range p.byIndex {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	calls := make([]chat.ToolCall, 0, len(indices))
	for _, idx := range indices {
		pc := p.byIndex[idx]
		call, ok := decodeCall(ctx, p.log, p.provider, pc.id, pc.name.String(), []byte(pc.args.String()))
		if ok {
			calls = append(calls, call)
		}
	}
	p.byIndex = make(map[int]*pendingCall)
	return calls
}

// decodeCall validates a complete call. It is shared by streamed accumulators
// and by protocols that deliver calls whole.
func decodeCall(ctx context.Context, log *slog.Logger, provider, id, name string, raw []byte) (chat.ToolCall, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		reportDropped(ctx, log, provider, name, "missing tool name", len(raw))
		return chat.ToolCall{}, false
	}
	input := map[string]any{}
	if trimmed := strings.TrimSpace(string(raw)); trimmed != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil || parsed == nil {
			reportDropped(ctx, log, provider, name, "arguments are not a JSON object", len(raw))
			return chat.ToolCall{}, false
		}
		input = parsed
	}
	if id == "" {
		id = newCallID()
	}
	return chat.ToolCall{ID: id, Name: name, Input: input}, true
}

func reportDropped(ctx context.Context, log *slog.Logger, provider, name, reason string, size int) {
	log.WarnContext(ctx, "dropping malformed tool call", "tool", name, "reason", reason, "args_bytes", size)
	telemetry.CountDropped(ctx)
	turnID, _ := telemetry.TurnIDFromContext(ctx)
	telemetry.Emit(telemetry.EventToolCallDropped, map[string]any{
		"turn_id":   turnID,
		"provider":  provider,
		"tool_name": name,
		"reason":    reason,
		"args_size": size,
	})
}

// newCallID mints an id for vendors that do not assign one.
func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// emitCalls yields each call; it reports false once the consumer stops.
func emitCalls(yield func(chat.Event) bool, calls []chat.ToolCall) bool {
	for _, c := range calls {
		if !yield(chat.ToolCallEvent(c)) {
			return false
		}
	}
	return true
}

// eofReason is the finish reason for a stream that ended without a marker.
func eofReason(emitted int) chat.FinishReason {
	if emitted > 0 {
		return chat.FinishToolCalls
	}
	return chat.FinishOther
}
