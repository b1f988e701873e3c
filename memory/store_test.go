package memory_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/toolstream/internal/chat"
	"github.com/petasbytes/toolstream/memory"
)

type storeFactory func(t *testing.T) memory.Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"inmemory": func(t *testing.T) memory.Store { return memory.NewInMemory() },
		"file": func(t *testing.T) memory.Store {
			s, err := memory.NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) memory.Store {
			s, err := memory.OpenSQLite(filepath.Join(t.TempDir(), "conv.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStore_AppendAssignsIncreasingSequence(t *testing.T) {
	for name, mk := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t)

			u, err := s.Append(ctx, "c1", memory.Message{Role: chat.RoleUser, Content: "hi"})
			require.NoError(t, err)
			assert.Equal(t, int64(1), u.Sequence)
			assert.NotEmpty(t, u.ID)
			assert.Equal(t, "c1", u.ConversationID)
			assert.False(t, u.CreatedAt.IsZero())

			call := chat.ToolCall{ID: "x", Name: "list_schemas"}
			tr, err := s.Append(ctx, "c1", memory.NewToolMessage(call, chat.ToolOutcome{Success: true, Data: []string{"main"}}))
			require.NoError(t, err)
			assert.Equal(t, int64(2), tr.Sequence)

			a, err := s.Append(ctx, "c1", memory.Message{Role: chat.RoleAssistant, Content: "main"})
			require.NoError(t, err)
			assert.Equal(t, int64(3), a.Sequence)

			// Sequences are per conversation.
			other, err := s.Append(ctx, "c2", memory.Message{Role: chat.RoleUser, Content: "yo"})
			require.NoError(t, err)
			assert.Equal(t, int64(1), other.Sequence)

			rows, err := s.ListBySequence(ctx, "c1")
			require.NoError(t, err)
			require.Len(t, rows, 3)
			assert.Equal(t, chat.RoleUser, rows[0].Role)
			assert.Equal(t, "list_schemas", rows[1].ToolName)
			assert.JSONEq(t, `{}`, string(rows[1].ToolInput))
			assert.JSONEq(t, `{"success":true,"data":["main"]}`, rows[1].ToolOutput)
			assert.Equal(t, "main", rows[2].Content)
		})
	}
}

func TestStore_ListUnknownConversationIsEmpty(t *testing.T) {
	for name, mk := range stores() {
		t.Run(name, func(t *testing.T) {
			rows, err := mk(t).ListBySequence(context.Background(), "missing")
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestStore_RejectsInvalidMessages(t *testing.T) {
	cases := []struct {
		name string
		conv string
		msg  memory.Message
		want error
	}{
		{"empty conversation", "", memory.Message{Role: chat.RoleUser}, memory.ErrInvalidConversation},
		{"unknown role", "c", memory.Message{Role: "robot"}, memory.ErrInvalidMessage},
		{"tool without name", "c", memory.Message{Role: chat.RoleTool}, memory.ErrInvalidMessage},
		{"tool with bad input", "c", memory.Message{Role: chat.RoleTool, ToolName: "t", ToolInput: json.RawMessage("{")}, memory.ErrInvalidMessage},
	}
	for name, mk := range stores() {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			for _, tc := range cases {
				_, err := s.Append(context.Background(), tc.conv, tc.msg)
				assert.ErrorIs(t, err, tc.want, tc.name)
			}
		})
	}
}

func TestStore_ConcurrentAppendsYieldUniqueSequences(t *testing.T) {
	const n = 25
	for name, mk := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t)

			var wg sync.WaitGroup
			seqs := make([]int64, n)
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					m, err := s.Append(ctx, "shared", memory.Message{Role: chat.RoleUser, Content: "m"})
					seqs[i], errs[i] = m.Sequence, err
				}(i)
			}
			wg.Wait()
			for _, err := range errs {
				require.NoError(t, err)
			}

			sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
			for i, seq := range seqs {
				assert.Equal(t, int64(i+1), seq)
			}

			rows, err := s.ListBySequence(ctx, "shared")
			require.NoError(t, err)
			require.Len(t, rows, n)
			for i := 1; i < len(rows); i++ {
				assert.Less(t, rows[i-1].Sequence, rows[i].Sequence)
			}
		})
	}
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	s, err := memory.NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Append(context.Background(), "../escape", memory.Message{Role: chat.RoleUser})
	assert.ErrorIs(t, err, memory.ErrInvalidConversation)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	s1, err := memory.NewFileStore(dir)
	require.NoError(t, err)
	_, err = s1.Append(context.Background(), "c", memory.Message{Role: chat.RoleUser, Content: "hello"})
	require.NoError(t, err)

	s2, err := memory.NewFileStore(dir)
	require.NoError(t, err)
	m, err := s2.Append(context.Background(), "c", memory.Message{Role: chat.RoleAssistant, Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.Sequence)
}

func TestLoadConversation_MissingFile(t *testing.T) {
	msgs, err := memory.LoadConversation(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Nil(t, msgs)
}
