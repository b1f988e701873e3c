package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"

	"github.com/petasbytes/toolstream/internal/chat"
)

// ollamaAdapter speaks /api/chat NDJSON streaming. Tool calls arrive whole
// inside a message chunk.
type ollamaAdapter struct {
	host   string
	model  string
	client *http.Client
	log    *slog.Logger
}

func newOllamaAdapter(host, model string, o options, log *slog.Logger) *ollamaAdapter {
	return &ollamaAdapter{host: host, model: model, client: o.httpClient, log: log}
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments,omitempty"`
	} `json:"function"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []oaiTool       `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChunk struct {
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason"`
}

func (a *ollamaAdapter) buildRequest(ctx context.Context, req Request) ollamaRequest {
	out := ollamaRequest{Model: a.model, Stream: true}
	for _, t := range req.Transcript {
		m := ollamaMessage{Role: string(t.Role), Content: t.Content}
		for _, c := range t.ToolCalls {
			var tc ollamaToolCall
			tc.Function.Name = c.Name
			tc.Function.Arguments = json.RawMessage(c.InputJSON())
			m.ToolCalls = append(m.ToolCalls, tc)
		}
		if t.Role == chat.RoleTool {
			m.ToolName = t.Name
		}
		out.Messages = append(out.Messages, m)
	}

	switch req.ToolChoice.Mode {
	case chat.ToolChoiceNone:
	case chat.ToolChoiceRequired, chat.ToolChoiceTool:
		a.log.DebugContext(ctx, "ollama has no forced tool choice; using auto", "mode", req.ToolChoice.Mode)
		fallthrough
	default:
		for _, spec := range req.Tools {
			var tool oaiTool
			tool.Type = "function"
			tool.Function.Name = spec.Name
			tool.Function.Description = spec.Description
			tool.Function.Parameters = spec.Parameters
			out.Tools = append(out.Tools, tool)
		}
	}

	opts := map[string]any{}
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(opts) > 0 {
		out.Options = opts
	}
	return out
}

func (a *ollamaAdapter) StreamChat(ctx context.Context, req Request) iter.Seq[chat.Event] {
	return func(yield func(chat.Event) bool) {
		resp, err := postJSON(ctx, a.client, Ollama, a.host+"/api/chat", nil, a.buildRequest(ctx, req))
		if err != nil {
			yield(chat.Error(err.Error()))
			return
		}
		defer resp.Body.Close()

		emitted := 0
		dec := json.NewDecoder(resp.Body)
		for {
			var raw json.RawMessage
			err := dec.Decode(&raw)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(chat.Error((&TransportError{Provider: Ollama, Err: err}).Error()))
				return
			}
			if msg, ok := vendorError(raw); ok {
				yield(chat.Error(Ollama + ": " + msg))
				return
			}
			var chunk ollamaChunk
			if err := json.Unmarshal(raw, &chunk); err != nil {
				a.log.WarnContext(ctx, "skipping undecodable chunk", "error", err)
				continue
			}
			if chunk.Message.Content != "" {
				if !yield(chat.Delta(chunk.Message.Content)) {
					return
				}
			}
			for _, tc := range chunk.Message.ToolCalls {
				call, ok := decodeCall(ctx, a.log, Ollama, "", tc.Function.Name, tc.Function.Arguments)
				if !ok {
					continue
				}
				emitted++
				if !yield(chat.ToolCallEvent(call)) {
					return
				}
			}
			if chunk.Done {
				yield(chat.Done(ollamaFinishReason(chunk.DoneReason, emitted)))
				return
			}
		}
		yield(chat.Done(eofReason(emitted)))
	}
}

func ollamaFinishReason(r string, emitted int) chat.FinishReason {
	switch r {
	case "stop", "":
		if emitted > 0 {
			return chat.FinishToolCalls
		}
		return chat.FinishStop
	case "length":
		return chat.FinishLength
	default:
		return chat.FinishOther
	}
}
