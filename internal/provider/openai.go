package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/petasbytes/toolstream/internal/chat"
)

// openAIAdapter speaks the Chat Completions streaming protocol. OpenRouter
// exposes the same shape under a different root.
type openAIAdapter struct {
	name    string
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	log     *slog.Logger
}

func newOpenAIAdapter(name, apiKey, baseURL, model string, o options, log *slog.Logger) *openAIAdapter {
	return &openAIAdapter{name: name, apiKey: apiKey, baseURL: baseURL, model: model, client: o.httpClient, log: log}
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    *string       `json:"content"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

type oaiToolCall struct {
	Index    *int   `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type oaiTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Tools       []oaiTool    `json:"tools,omitempty"`
	ToolChoice  any          `json:"tool_choice,omitempty"`
	Stream      bool         `json:"stream"`
	Temperature *float64     `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
}

type oaiChunk struct {
	Choices []struct {
		Delta struct {
			Content   string        `json:"content"`
			ToolCalls []oaiToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (a *openAIAdapter) buildRequest(req Request) oaiRequest {
	out := oaiRequest{Model: a.model, Stream: true, Temperature: req.Temperature, MaxTokens: req.MaxTokens}
	for _, t := range req.Transcript {
		m := oaiMessage{Role: string(t.Role)}
		switch {
		case t.Role == chat.RoleAssistant && len(t.ToolCalls) > 0:
			if t.Content != "" {
				m.Content = strPtr(t.Content)
			}
			for _, c := range t.ToolCalls {
				tc := oaiToolCall{ID: c.ID, Type: "function"}
				tc.Function.Name = c.Name
				tc.Function.Arguments = c.InputJSON()
				m.ToolCalls = append(m.ToolCalls, tc)
			}
		case t.Role == chat.RoleTool:
			m.Content = strPtr(t.Content)
			m.ToolCallID = t.ToolCallID
		default:
			m.Content = strPtr(t.Content)
		}
		out.Messages = append(out.Messages, m)
	}
	for _, spec := range req.Tools {
		var tool oaiTool
		tool.Type = "function"
		tool.Function.Name = spec.Name
		tool.Function.Description = spec.Description
		tool.Function.Parameters = spec.Parameters
		out.Tools = append(out.Tools, tool)
	}
	if len(out.Tools) > 0 {
		out.ToolChoice = oaiToolChoice(req.ToolChoice)
	}
	return out
}

func oaiToolChoice(tc chat.ToolChoice) any {
	switch tc.Mode {
	case chat.ToolChoiceRequired:
		return "required"
	case chat.ToolChoiceNone:
		return "none"
	case chat.ToolChoiceTool:
		return map[string]any{"type": "function", "function": map[string]any{"name": tc.Name}}
	default:
		return "auto"
	}
}

func (a *openAIAdapter) StreamChat(ctx context.Context, req Request) iter.Seq[chat.Event] {
	return func(yield func(chat.Event) bool) {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+a.apiKey)
		header.Set("Accept", "text/event-stream")
		resp, err := postJSON(ctx, a.client, a.name, a.baseURL+"/chat/completions", header, a.buildRequest(req))
		if err != nil {
			yield(chat.Error(err.Error()))
			return
		}
		defer resp.Body.Close()

		pending := newPendingCalls(a.name, a.log)
		sse := newSSEReader(resp.Body)
		for {
			_, data, err := sse.next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(chat.Error((&TransportError{Provider: a.name, Err: err}).Error()))
				return
			}
			if strings.TrimSpace(string(data)) == "[DONE]" {
				break
			}
			if msg, ok := vendorError(data); ok {
				yield(chat.Error(a.name + ": " + msg))
				return
			}
			var chunk oaiChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				a.log.WarnContext(ctx, "skipping undecodable chunk", "error", err)
				continue
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !yield(chat.Delta(choice.Delta.Content)) {
						return
					}
				}
				for pos, tc := range choice.Delta.ToolCalls {
					idx := pos
					if tc.Index != nil {
						idx = *tc.Index
					}
					pending.add(idx, tc.ID, tc.Function.Name, tc.Function.Arguments)
				}
				if choice.FinishReason != nil && *choice.FinishReason != "" {
					calls := pending.drain(ctx)
					if !emitCalls(yield, calls) {
						return
					}
					yield(chat.Done(oaiFinishReason(*choice.FinishReason)))
					return
				}
			}
		}

		calls := pending.drain(ctx)
		if !emitCalls(yield, calls) {
			return
		}
		yield(chat.Done(eofReason(len(calls))))
	}
}

func oaiFinishReason(r string) chat.FinishReason {
	switch r {
	case "stop":
		return chat.FinishStop
	case "tool_calls", "function_call":
		return chat.FinishToolCalls
	case "length":
		return chat.FinishLength
	default:
		return chat.FinishOther
	}
}

func strPtr(s string) *string { return &s }
