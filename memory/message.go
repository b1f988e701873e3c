package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petasbytes/toolstream/internal/chat"
)

var (
	// ErrInvalidMessage is returned when a message fails validation on Append.
	ErrInvalidMessage = errors.New("memory: invalid message")
	// ErrInvalidConversation is returned for an empty conversation id.
	ErrInvalidConversation = errors.New("memory: invalid conversation id")
)

// Message is one persisted row of a conversation.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           chat.Role       `json:"role"`
	Content        string          `json:"content,omitempty"`
	Sequence       int64           `json:"sequence"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolInput      json.RawMessage `json:"tool_input,omitempty"`
	ToolOutput     string          `json:"tool_output,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Store is the append-only message store consumed by the loop.
type Store interface {
	// Append assigns ID, Sequence and CreatedAt and persists msg.
	Append(ctx context.Context, conversationID string, msg Message) (Message, error)
	// ListBySequence returns the conversation's messages in ascending Sequence order.
	ListBySequence(ctx context.Context, conversationID string) ([]Message, error)
}

// NewToolMessage builds the tool row for an executed call.
func NewToolMessage(call chat.ToolCall, outcome chat.ToolOutcome) Message {
	return Message{
		Role:       chat.RoleTool,
		ToolName:   call.Name,
		ToolInput:  json.RawMessage(call.InputJSON()),
		ToolOutput: outcome.Payload(),
	}
}

// prepare validates msg and stamps the identity fields owned by the store.
func prepare(conversationID string, msg Message, seq int64, now time.Time) (Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		return Message{}, ErrInvalidConversation
	}
	switch msg.Role {
	case chat.RoleSystem, chat.RoleUser, chat.RoleAssistant:
	case chat.RoleTool:
		if msg.ToolName == "" {
			return Message{}, fmt.Errorf("%w: tool row requires tool_name", ErrInvalidMessage)
		}
		if len(msg.ToolInput) == 0 {
			msg.ToolInput = json.RawMessage("{}")
		}
		if !json.Valid(msg.ToolInput) {
			return Message{}, fmt.Errorf("%w: tool_input is not valid JSON", ErrInvalidMessage)
		}
	default:
		return Message{}, fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, msg.Role)
	}
	msg.ID = uuid.NewString()
	msg.ConversationID = conversationID
	msg.Sequence = seq
	msg.CreatedAt = now.UTC()
	return msg, nil
}
