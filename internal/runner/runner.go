package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/petasbytes/toolstream/internal/bridge"
	"github.com/petasbytes/toolstream/internal/chat"
	"github.com/petasbytes/toolstream/internal/history"
	"github.com/petasbytes/toolstream/internal/metrics"
	"github.com/petasbytes/toolstream/internal/provider"
	"github.com/petasbytes/toolstream/internal/telemetry"
	"github.com/petasbytes/toolstream/internal/windowing"
	"github.com/petasbytes/toolstream/memory"
)

// DefaultMaxIterations bounds adapter invocations per turn when Config leaves it unset.
const DefaultMaxIterations = 10

var (
	// ErrIterationCeiling ends a turn whose model kept requesting tools past
	// the ceiling without producing any text.
	ErrIterationCeiling = errors.New("runner: iteration ceiling reached without a final answer")
	// ErrWindowOverBudget is returned when the newest transcript group alone
	// exceeds Config.WindowBudget.
	ErrWindowOverBudget = errors.New("runner: newest transcript group exceeds the window budget")
	// ErrProviderFailed wraps an error event emitted by an adapter.
	ErrProviderFailed = errors.New("runner: provider stream failed")
)

// Executor runs one tool call. A returned error is treated like a failed outcome.
type Executor interface {
	Execute(ctx context.Context, name string, input map[string]any) (chat.ToolOutcome, error)
}

// AdapterFactory resolves a provider and model name to an adapter.
type AdapterFactory func(providerName, model string) (provider.Adapter, error)

// Config holds per-turn limits and request parameters.
type Config struct {
	MaxIterations int
	Temperature   *float64
	MaxTokens     int
	ToolChoice    chat.ToolChoice
	// WindowBudget trims the transcript sent to the model; zero disables windowing.
	WindowBudget int
	// SystemPrompt is prepended to every dispatch and never persisted.
	SystemPrompt string
	// DefaultProvider and DefaultModel fill in a TurnRequest that leaves them empty.
	DefaultProvider string
	DefaultModel    string
}

// Runner owns no per-turn state; one Runner serves concurrent turns.
type Runner struct {
	Adapters AdapterFactory
	Executor Executor
	Store    memory.Store
	Tools    []chat.ToolSpec
	Config   Config
	Logger   *slog.Logger
	Counter  windowing.TokenCounter
}

// New returns a Runner with the heuristic token counter and the default logger.
func New(adapters AdapterFactory, exec Executor, store memory.Store, tools []chat.ToolSpec, cfg Config) *Runner {
	return &Runner{
		Adapters: adapters,
		Executor: exec,
		Store:    store,
		Tools:    tools,
		Config:   cfg,
		Logger:   slog.Default(),
		Counter:  windowing.HeuristicCounter{},
	}
}

// TurnRequest is one user message addressed to a conversation.
type TurnRequest struct {
	ConversationID string
	Content        string
	Provider       string
	Model          string
}

// turn is the state of one RunTurn call.
type turn struct {
	r          *Runner
	req        TurnRequest
	sink       bridge.Sink
	log        *slog.Logger
	transcript chat.Transcript
	content    strings.Builder
	counters   metrics.TurnCounters
	dropped    int
}

// RunTurn persists the user message, runs the tool loop and delivers exactly
// one terminal event to sink. It returns nil when the turn finalized with
// done, the error behind the error event otherwise, or the sink's error if
// delivery failed.
func (r *Runner) RunTurn(ctx context.Context, req TurnRequest, sink bridge.Sink) error {
	ctx, turnID := telemetry.EnsureTurnID(ctx)
	if req.Provider == "" {
		req.Provider = r.Config.DefaultProvider
	}
	if req.Model == "" {
		req.Model = r.Config.DefaultModel
	}
	t := &turn{
		r:    r,
		req:  req,
		sink: sink,
		log:  r.logger().With("turn_id", turnID, "conversation", req.ConversationID),
	}
	ctx = telemetry.WithDropCounter(ctx, &t.dropped)
	telemetry.Emit(telemetry.EventTurnStarted, map[string]any{
		"turn_id":  turnID,
		"provider": req.Provider,
		"model":    req.Model,
	})

	err := t.run(ctx)
	t.counters.DroppedToolCalls = t.dropped
	outcome := "done"
	if err != nil {
		outcome = "error"
	}
	telemetry.EmitTurnCompleted(ctx, outcome, t.counters, req.Content, t.content.String())
	return err
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) maxIterations() int {
	if r.Config.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return r.Config.MaxIterations
}

func (t *turn) run(ctx context.Context) error {
	adapter, err := t.r.Adapters(t.req.Provider, t.req.Model)
	if err != nil {
		return t.fail(err)
	}
	if _, err := t.r.Store.Append(ctx, t.req.ConversationID, memory.Message{Role: chat.RoleUser, Content: t.req.Content}); err != nil {
		return t.fail(fmt.Errorf("runner: persist user message: %w", err))
	}
	rows, err := t.r.Store.ListBySequence(ctx, t.req.ConversationID)
	if err != nil {
		return t.fail(fmt.Errorf("runner: load history: %w", err))
	}
	t.transcript = history.Reconstruct(rows, t.log)
	if t.r.Config.SystemPrompt != "" {
		t.transcript = append(chat.Transcript{{Role: chat.RoleSystem, Content: t.r.Config.SystemPrompt}}, t.transcript...)
	}

	ceiling := t.r.maxIterations()
	for iter := 1; ; iter++ {
		if iter > ceiling {
			return t.finishAtCeiling(ctx)
		}
		t.counters.Iterations = iter
		turnID, _ := telemetry.TurnIDFromContext(ctx)
		telemetry.Emit(telemetry.EventIterationStarted, map[string]any{"turn_id": turnID, "iteration": iter})

		window, err := t.window(ctx)
		if err != nil {
			return t.fail(err)
		}
		calls, done, err := t.dispatch(ctx, adapter, window)
		if err != nil {
			return err
		}
		if done.Kind == chat.KindError {
			t.log.ErrorContext(ctx, "provider stream failed", "provider", t.req.Provider, "message", done.Message)
			return fmt.Errorf("%w: %s", ErrProviderFailed, done.Message)
		}
		if len(calls) == 0 {
			if done.FinishReason == chat.FinishToolCalls {
				t.log.WarnContext(ctx, "model reported tool calls but none were usable; finalizing", "iteration", iter)
			}
			return t.finalize(ctx)
		}
		if err := t.execute(ctx, calls); err != nil {
			return err
		}
	}
}

// window applies the configured token budget to the transcript.
func (t *turn) window(ctx context.Context) (chat.Transcript, error) {
	budget := t.r.Config.WindowBudget
	if budget <= 0 {
		return t.transcript, nil
	}
	counter := t.r.Counter
	if counter == nil {
		counter = windowing.HeuristicCounter{}
	}
	window, stats := windowing.PrepareSendWindow(t.transcript, budget, counter)
	turnID, _ := telemetry.TurnIDFromContext(ctx)
	telemetry.Emit(telemetry.EventWindowPrepared, map[string]any{
		"turn_id":            turnID,
		"model":              t.req.Model,
		"budget":             stats.Budget,
		"total_estimated":    stats.Total,
		"included_groups":    stats.IncludedGroups,
		"skipped_groups":     stats.SkippedGroups,
		"over_budget_newest": stats.OverBudgetNewest,
	})
	t.log.DebugContext(ctx, "window prepared", "budget", stats.Budget, "total", stats.Total,
		"included_groups", stats.IncludedGroups, "skipped_groups", stats.SkippedGroups)

	// Sending a window without the newest group would answer a question nobody asked.
	if stats.OverBudgetNewest {
		return nil, ErrWindowOverBudget
	}
	return window, nil
}

// dispatch consumes one adapter invocation. It returns the tool calls seen
// and the terminal event. A non-nil error means the sink failed and the turn
// must stop without further events.
func (t *turn) dispatch(ctx context.Context, adapter provider.Adapter, window chat.Transcript) ([]chat.ToolCall, chat.Event, error) {
	req := provider.Request{
		Transcript:  window,
		Tools:       t.r.Tools,
		ToolChoice:  t.r.Config.ToolChoice,
		Temperature: t.r.Config.Temperature,
		MaxTokens:   t.r.Config.MaxTokens,
	}
	var calls []chat.ToolCall
	terminal := chat.Done(chat.FinishOther)
	for ev := range adapter.StreamChat(ctx, req) {
		switch ev.Kind {
		case chat.KindDelta:
			t.counters.Deltas++
			t.content.WriteString(ev.Text)
		case chat.KindToolCall:
			calls = append(calls, ev.Call)
		case chat.KindDone:
			terminal = ev
		case chat.KindError:
			terminal = ev
			calls = nil
		}
		if out, ok := bridge.FromCanonical(ev); ok {
			if err := t.sink.Send(out); err != nil {
				return nil, terminal, t.sinkFailed(ctx, err)
			}
		}
		if ev.Terminal() {
			break
		}
	}
	return calls, terminal, nil
}

// execute runs calls sequentially and appends them with their results to the transcript.
func (t *turn) execute(ctx context.Context, calls []chat.ToolCall) error {
	turnID, _ := telemetry.TurnIDFromContext(ctx)
	results := make([]chat.Turn, 0, len(calls))
	for _, call := range calls {
		start := time.Now()
		outcome, err := t.r.Executor.Execute(ctx, call.Name, call.Input)
		if err != nil {
			msg := err.Error()
			if outcome.Error != "" {
				msg = outcome.Error
			}
			outcome = chat.Failure(msg)
		}
		t.counters.ObserveToolResult(outcome.Success)

		res := chat.ToolResult{CallID: call.ID, Name: call.Name, Outcome: outcome}
		resultTurn := chat.ToolResultTurn(res)
		fields := map[string]any{
			"turn_id":     turnID,
			"tool_name":   call.Name,
			"duration_ms": time.Since(start).Milliseconds(),
			"input_size":  len(call.InputJSON()),
			"output_size": len(resultTurn.Content),
			"error":       nil,
		}
		if !outcome.Success {
			// Keep raw failure text out of telemetry.
			fields["error"] = "tool error"
		}
		telemetry.Emit(telemetry.EventToolExec, fields)

		if _, err := t.r.Store.Append(ctx, t.req.ConversationID, memory.NewToolMessage(call, outcome)); err != nil {
			return t.fail(fmt.Errorf("runner: persist tool result: %w", err))
		}
		if err := t.sink.Send(bridge.ToolResult(res)); err != nil {
			return t.sinkFailed(ctx, err)
		}
		results = append(results, resultTurn)
	}
	t.transcript = append(t.transcript, chat.ToolCallTurn(calls))
	t.transcript = append(t.transcript, results...)
	return nil
}

// finalize persists non-blank accumulated text and emits done.
func (t *turn) finalize(ctx context.Context) error {
	var messageID string
	if text := t.content.String(); strings.TrimSpace(text) != "" {
		stored, err := t.r.Store.Append(ctx, t.req.ConversationID, memory.Message{Role: chat.RoleAssistant, Content: text})
		if err != nil {
			return t.fail(fmt.Errorf("runner: persist assistant message: %w", err))
		}
		messageID = stored.ID
	}
	if err := t.sink.Send(bridge.Done(messageID)); err != nil {
		return t.sinkFailed(ctx, err)
	}
	return nil
}

func (t *turn) finishAtCeiling(ctx context.Context) error {
	t.log.WarnContext(ctx, "iteration ceiling reached", "max_iterations", t.r.maxIterations(), "tool_calls", t.counters.ToolCalls)
	if strings.TrimSpace(t.content.String()) != "" {
		return t.finalize(ctx)
	}
	return t.fail(ErrIterationCeiling)
}

// fail emits the terminal error event for err and returns err.
func (t *turn) fail(err error) error {
	t.log.Error("turn failed", "error", err)
	if sendErr := t.sink.Send(bridge.Error(err.Error())); sendErr != nil {
		return errors.Join(err, sendErr)
	}
	return err
}

func (t *turn) sinkFailed(ctx context.Context, err error) error {
	t.log.WarnContext(ctx, "client stream closed; abandoning turn", "error", err)
	return fmt.Errorf("runner: deliver event: %w", err)
}
