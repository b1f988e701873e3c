package provider

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPendingCalls_DrainInIndexOrder(t *testing.T) {
	p := newPendingCalls("test", discardLogger())
	p.add(2, "c2", "describe_", `{"table":`)
	p.add(0, "c0", "list_schemas", "")
	p.add(2, "", "table", `"users"}`)

	calls := p.drain(context.Background())
	require.Len(t, calls, 2)
	assert.Equal(t, "c0", calls[0].ID)
	assert.Equal(t, "list_schemas", calls[0].Name)
	assert.Equal(t, map[string]any{}, calls[0].Input)
	assert.Equal(t, "describe_table", calls[1].Name)
	assert.Equal(t, map[string]any{"table": "users"}, calls[1].Input)
	assert.False(t, p.open(), "drain resets accumulators")
}

func TestPendingCalls_DropsMalformed(t *testing.T) {
	p := newPendingCalls("test", discardLogger())
	p.add(0, "a", "run_query", `{"sql": "select`) // truncated
	p.add(1, "b", "", `{}`)                        // nameless
	p.add(2, "c", "list_tables", `[1,2]`)          // not an object
	p.add(3, "d", "list_tables", `null`)
	p.add(4, "e", "list_tables", `{"schema":"main"}`)

	calls := p.drain(context.Background())
	require.Len(t, calls, 1)
	assert.Equal(t, "e", calls[0].ID)
}

func TestPendingCalls_MintsMissingID(t *testing.T) {
	p := newPendingCalls("test", discardLogger())
	p.add(0, "", "list_schemas", "")
	calls := p.drain(context.Background())
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0].ID, "call_"))
	assert.NotContains(t, calls[0].ID, "-")
}

func TestSSEReader(t *testing.T) {
	body := ": keep-alive\n" +
		"event: first\n" +
		"data: {\"a\":1}\n\n" +
		"id: 7\n" +
		"data: line1\n" +
		"data:line2\r\n\r\n" +
		"\n\n" +
		"data: tail-without-newline"
	r := newSSEReader(strings.NewReader(body))

	ev, data, err := r.next()
	require.NoError(t, err)
	assert.Equal(t, "first", ev)
	assert.Equal(t, `{"a":1}`, string(data))

	ev, data, err = r.next()
	require.NoError(t, err)
	assert.Equal(t, "", ev)
	assert.Equal(t, "line1\nline2", string(data))

	_, data, err = r.next()
	require.NoError(t, err)
	assert.Equal(t, "tail-without-newline", string(data))

	_, _, err = r.next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestGeminiSchema_StripsUnsupportedKeywords(t *testing.T) {
	in := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"filter": map[string]any{"type": "object", "additionalProperties": false},
		},
	}
	out := geminiSchema(in)
	assert.NotContains(t, out, "$schema")
	assert.NotContains(t, out, "additionalProperties")
	props := out["properties"].(map[string]any)
	assert.NotContains(t, props["filter"], "additionalProperties")
	assert.Contains(t, in, "$schema", "input is not mutated")
}
