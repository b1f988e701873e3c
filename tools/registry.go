package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/time/rate"

	"github.com/petasbytes/toolstream/internal/chat"
)

// Registry executes registered tools by name.
type Registry struct {
	defs    map[string]ToolDefinition
	order   []string
	schemas map[string]*jsonschema.Schema
	limiter *rate.Limiter
	timeout time.Duration
	log     *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRateLimit caps tool executions to perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) RegistryOption {
	return func(r *Registry) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithTimeout bounds each execution.
func WithTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.timeout = d }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry compiles every definition's schema. Duplicate names and invalid
// schemas are construction errors.
func NewRegistry(defs []ToolDefinition, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		defs:    make(map[string]ToolDefinition, len(defs)),
		schemas: make(map[string]*jsonschema.Schema, len(defs)),
		limiter: rate.NewLimiter(rate.Inf, 0),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	c := jsonschema.NewCompiler()
	for _, d := range defs {
		if d.Name == "" || d.Function == nil {
			return nil, fmt.Errorf("tools: definition %q is incomplete", d.Name)
		}
		if _, dup := r.defs[d.Name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", d.Name)
		}
		url := "mem://tools/" + d.Name + ".json"
		if d.InputSchema != nil {
			doc, err := toSchemaValue(d.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("tools: schema for %q: %w", d.Name, err)
			}
			if err := c.AddResource(url, doc); err != nil {
				return nil, fmt.Errorf("tools: schema for %q: %w", d.Name, err)
			}
			sch, err := c.Compile(url)
			if err != nil {
				return nil, fmt.Errorf("tools: compile schema for %q: %w", d.Name, err)
			}
			r.schemas[d.Name] = sch
		}
		r.defs[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return r, nil
}

// Specs advertises the registered tools in registration order.
func (r *Registry) Specs() []chat.ToolSpec {
	out := make([]chat.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name].Spec())
	}
	return out
}

// Names lists the registered tool names in registration order.
func (r *Registry) Names() []string { return append([]string(nil), r.order...) }

// Execute runs one call. Unknown tools, invalid input and handler failures
// are reported as failed outcomes; the returned error is non-nil only when
// ctx ends before the call could start.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (chat.ToolOutcome, error) {
	d, ok := r.defs[name]
	if !ok {
		return chat.Failure(fmt.Sprintf("unknown tool %q", name)), nil
	}
	if input == nil {
		input = map[string]any{}
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return chat.Failure("input is not serializable: " + err.Error()), nil
	}
	if sch := r.schemas[name]; sch != nil {
		v, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return chat.Failure("input is not valid JSON: " + err.Error()), nil
		}
		if err := sch.Validate(v); err != nil {
			return chat.Failure("invalid input: " + validationMessage(err)), nil
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return chat.Failure("rate limited: " + err.Error()), err
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	data, err := d.Function(ctx, raw)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return chat.Failure("timeout"), nil
		}
		r.log.DebugContext(ctx, "tool failed", "tool", name, "error", err)
		return chat.Failure(err.Error()), nil
	}
	return chat.ToolOutcome{Success: true, Data: data}, nil
}

func toSchemaValue(schema map[string]any) (any, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// validationMessage flattens a multi-line schema validation error.
func validationMessage(err error) string {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "-"))
	}
	return strings.Join(lines, "; ")
}
