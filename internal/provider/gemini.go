package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/petasbytes/toolstream/internal/chat"
)

// geminiAdapter speaks streamGenerateContent with alt=sse. Function calls
// arrive whole, so no accumulation is needed.
type geminiAdapter struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	log     *slog.Logger
}

func newGeminiAdapter(apiKey, baseURL, model string, o options, log *slog.Logger) *geminiAdapter {
	return &geminiAdapter{apiKey: apiKey, baseURL: baseURL, model: model, client: o.httpClient, log: log}
}

type gemFunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type gemFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type gemPart struct {
	Text             string               `json:"text,omitempty"`
	Thought          bool                 `json:"thought,omitempty"`
	FunctionCall     *gemFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *gemFunctionResponse `json:"functionResponse,omitempty"`
}

type gemContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []gemPart `json:"parts"`
}

type gemFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type gemRequest struct {
	Contents          []gemContent `json:"contents"`
	SystemInstruction *gemContent  `json:"systemInstruction,omitempty"`
	Tools             []struct {
		FunctionDeclarations []gemFunctionDecl `json:"functionDeclarations"`
	} `json:"tools,omitempty"`
	ToolConfig       map[string]any `json:"toolConfig,omitempty"`
	GenerationConfig map[string]any `json:"generationConfig,omitempty"`
}

type gemChunk struct {
	Candidates []struct {
		Content      gemContent `json:"content"`
		FinishReason string     `json:"finishReason"`
	} `json:"candidates"`
}

func (a *geminiAdapter) buildRequest(req Request) gemRequest {
	var out gemRequest
	var system []string
	names := map[string]string{} // call id -> tool name

	for _, t := range req.Transcript {
		switch t.Role {
		case chat.RoleSystem:
			system = append(system, t.Content)
		case chat.RoleUser:
			out.Contents = append(out.Contents, gemContent{Role: "user", Parts: []gemPart{{Text: t.Content}}})
		case chat.RoleAssistant:
			c := gemContent{Role: "model"}
			if t.Content != "" {
				c.Parts = append(c.Parts, gemPart{Text: t.Content})
			}
			for _, call := range t.ToolCalls {
				names[call.ID] = call.Name
				c.Parts = append(c.Parts, gemPart{FunctionCall: &gemFunctionCall{Name: call.Name, Args: json.RawMessage(call.InputJSON())}})
			}
			if len(c.Parts) == 0 {
				continue
			}
			out.Contents = append(out.Contents, c)
		case chat.RoleTool:
			name := t.Name
			if name == "" {
				name = names[t.ToolCallID]
			}
			part := gemPart{FunctionResponse: &gemFunctionResponse{Name: name, Response: responseObject(t.Content)}}
			// Consecutive results travel together in one user content.
			if n := len(out.Contents); n > 0 && out.Contents[n-1].Role == "user" && out.Contents[n-1].Parts[0].FunctionResponse != nil {
				out.Contents[n-1].Parts = append(out.Contents[n-1].Parts, part)
				continue
			}
			out.Contents = append(out.Contents, gemContent{Role: "user", Parts: []gemPart{part}})
		}
	}
	if len(system) > 0 {
		out.SystemInstruction = &gemContent{Parts: []gemPart{{Text: strings.Join(system, "\n\n")}}}
	}

	if len(req.Tools) > 0 {
		decls := make([]gemFunctionDecl, 0, len(req.Tools))
		for _, spec := range req.Tools {
			decls = append(decls, gemFunctionDecl{Name: spec.Name, Description: spec.Description, Parameters: geminiSchema(spec.Parameters)})
		}
		out.Tools = append(out.Tools, struct {
			FunctionDeclarations []gemFunctionDecl `json:"functionDeclarations"`
		}{FunctionDeclarations: decls})
		out.ToolConfig = map[string]any{"functionCallingConfig": geminiToolChoice(req.ToolChoice)}
	}

	gen := map[string]any{}
	if req.Temperature != nil {
		gen["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		gen["maxOutputTokens"] = req.MaxTokens
	}
	if len(gen) > 0 {
		out.GenerationConfig = gen
	}
	return out
}

func geminiToolChoice(tc chat.ToolChoice) map[string]any {
	switch tc.Mode {
	case chat.ToolChoiceRequired:
		return map[string]any{"mode": "ANY"}
	case chat.ToolChoiceNone:
		return map[string]any{"mode": "NONE"}
	case chat.ToolChoiceTool:
		return map[string]any{"mode": "ANY", "allowedFunctionNames": []string{tc.Name}}
	default:
		return map[string]any{"mode": "AUTO"}
	}
}

// responseObject wraps a tool payload; functionResponse.response must be an object.
func responseObject(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"output": content}
}

// geminiSchema strips JSON Schema keywords the function declaration API rejects.
func geminiSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		switch k {
		case "$schema", "$id", "additionalProperties":
			continue
		}
		out[k] = stripSchemaValue(v)
	}
	return out
}

func stripSchemaValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return geminiSchema(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = stripSchemaValue(e)
		}
		return out
	default:
		return v
	}
}

func (a *geminiAdapter) StreamChat(ctx context.Context, req Request) iter.Seq[chat.Event] {
	return func(yield func(chat.Event) bool) {
		endpoint := a.baseURL + "/models/" + url.PathEscape(a.model) + ":streamGenerateContent?alt=sse"
		header := http.Header{}
		header.Set("x-goog-api-key", a.apiKey)
		header.Set("Accept", "text/event-stream")
		resp, err := postJSON(ctx, a.client, Gemini, endpoint, header, a.buildRequest(req))
		if err != nil {
			yield(chat.Error(err.Error()))
			return
		}
		defer resp.Body.Close()

		emitted := 0
		sse := newSSEReader(resp.Body)
		for {
			_, data, err := sse.next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(chat.Error((&TransportError{Provider: Gemini, Err: err}).Error()))
				return
			}
			if msg, ok := vendorError(data); ok {
				yield(chat.Error(Gemini + ": " + msg))
				return
			}
			var chunk gemChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				a.log.WarnContext(ctx, "skipping undecodable chunk", "error", err)
				continue
			}
			for _, cand := range chunk.Candidates {
				for _, part := range cand.Content.Parts {
					switch {
					case part.FunctionCall != nil:
						fc := part.FunctionCall
						call, ok := decodeCall(ctx, a.log, Gemini, fc.ID, fc.Name, fc.Args)
						if !ok {
							continue
						}
						emitted++
						if !yield(chat.ToolCallEvent(call)) {
							return
						}
					case part.Text != "" && !part.Thought:
						if !yield(chat.Delta(part.Text)) {
							return
						}
					}
				}
				if cand.FinishReason != "" && cand.FinishReason != "FINISH_REASON_UNSPECIFIED" {
					yield(chat.Done(geminiFinishReason(cand.FinishReason, emitted)))
					return
				}
			}
		}
		yield(chat.Done(eofReason(emitted)))
	}
}

func geminiFinishReason(r string, emitted int) chat.FinishReason {
	switch r {
	case "STOP":
		if emitted > 0 {
			return chat.FinishToolCalls
		}
		return chat.FinishStop
	case "MAX_TOKENS":
		return chat.FinishLength
	default:
		return chat.FinishOther
	}
}
