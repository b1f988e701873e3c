package provider

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"github.com/petasbytes/toolstream/internal/chat"
)

// APIVersion is the Messages API version the SDK negotiates.
const APIVersion = "2023-06-01"

const defaultAnthropicMaxTokens = 1024

// anthropicAdapter maps block start/delta/stop events onto canonical events.
// Tool input arrives as input_json_delta fragments keyed by block index.
type anthropicAdapter struct {
	client anthropic.Client
	model  anthropic.Model
	log    *slog.Logger
}

func newAnthropicAdapter(apiKey, model string, o options, log *slog.Logger) *anthropicAdapter {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(o.httpClient),
	}
	if o.baseURL != "" {
		opts = append(opts, option.WithBaseURL(o.baseURL+"/"))
	}
	return &anthropicAdapter{client: anthropic.NewClient(opts...), model: anthropic.Model(model), log: log}
}

func (a *anthropicAdapter) buildParams(req Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: defaultAnthropicMaxTokens,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	var results []anthropic.ContentBlockParamUnion
	flushResults := func() {
		if len(results) > 0 {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(results...))
			results = nil
		}
	}
	for _, t := range req.Transcript {
		if t.Role != chat.RoleTool {
			flushResults()
		}
		switch t.Role {
		case chat.RoleSystem:
			if t.Content != "" {
				params.System = append(params.System, anthropic.TextBlockParam{Text: t.Content})
			}
		case chat.RoleUser:
			if t.Content != "" {
				params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
			}
		case chat.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if t.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t.Content))
			}
			for _, c := range t.ToolCalls {
				input := c.Input
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    c.ID,
					Name:  c.Name,
					Input: input,
				}})
			}
			if len(blocks) > 0 {
				params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
			}
		case chat.RoleTool:
			// Results answering one assistant turn share a single user message.
			isError := gjson.Get(t.Content, "success").Exists() && !gjson.Get(t.Content, "success").Bool()
			results = append(results, anthropic.NewToolResultBlock(t.ToolCallID, t.Content, isError))
		}
	}
	flushResults()

	for _, spec := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: spec.Parameters["properties"],
				Required:   requiredFields(spec.Parameters),
			},
		}})
	}
	if len(params.Tools) > 0 {
		params.ToolChoice = anthropicToolChoice(req.ToolChoice)
	}
	return params
}

func anthropicToolChoice(tc chat.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch tc.Mode {
	case chat.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case chat.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case chat.ToolChoiceTool:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: tc.Name}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

func requiredFields(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (a *anthropicAdapter) StreamChat(ctx context.Context, req Request) iter.Seq[chat.Event] {
	return func(yield func(chat.Event) bool) {
		stream := a.client.Messages.NewStreaming(ctx, a.buildParams(req))
		defer stream.Close()

		pending := newPendingCalls(Anthropic, a.log)
		var stopReason anthropic.StopReason
		for stream.Next() {
			switch ev := stream.Current().AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if ev.ContentBlock.Type == "tool_use" {
					pending.add(int(ev.Index), ev.ContentBlock.ID, ev.ContentBlock.Name, "")
				}
			case anthropic.ContentBlockDeltaEvent:
				switch d := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if d.Text != "" && !yield(chat.Delta(d.Text)) {
						return
					}
				case anthropic.InputJSONDelta:
					pending.add(int(ev.Index), "", "", d.PartialJSON)
				}
			case anthropic.MessageDeltaEvent:
				if ev.Delta.StopReason != "" {
					stopReason = ev.Delta.StopReason
				}
			case anthropic.MessageStopEvent:
				if !emitCalls(yield, pending.drain(ctx)) {
					return
				}
				yield(chat.Done(anthropicFinishReason(stopReason)))
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(chat.Error(anthropicTransportError(err).Error()))
			return
		}
		calls := pending.drain(ctx)
		if !emitCalls(yield, calls) {
			return
		}
		yield(chat.Done(eofReason(len(calls))))
	}
}

func anthropicTransportError(err error) *TransportError {
	te := &TransportError{Provider: Anthropic, Err: err}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		te.Status = apiErr.StatusCode
		if msg := gjson.Get(apiErr.RawJSON(), "error.message").String(); msg != "" {
			te.Err = errors.New(msg)
		}
	}
	return te
}

func anthropicFinishReason(r anthropic.StopReason) chat.FinishReason {
	switch strings.ToLower(string(r)) {
	case "end_turn", "stop_sequence":
		return chat.FinishStop
	case "tool_use":
		return chat.FinishToolCalls
	case "max_tokens":
		return chat.FinishLength
	default:
		return chat.FinishOther
	}
}
