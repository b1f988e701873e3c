package memory

import (
	"context"
	"sync"
	"time"
)

// InMemory keeps conversations in process memory.
type InMemory struct {
	mu    sync.Mutex
	convs map[string][]Message
	now   func() time.Time
}

// NewInMemory returns an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{convs: make(map[string][]Message), now: time.Now}
}

func (s *InMemory) Append(ctx context.Context, conversationID string, msg Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.convs[conversationID]
	next := int64(1)
	if n := len(rows); n > 0 {
		next = rows[n-1].Sequence + 1
	}
	stored, err := prepare(conversationID, msg, next, s.now())
	if err != nil {
		return Message{}, err
	}
	s.convs[conversationID] = append(rows, stored)
	return stored, nil
}

func (s *InMemory) ListBySequence(ctx context.Context, conversationID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.convs[conversationID]
	if len(rows) == 0 {
		return nil, nil
	}
	return append([]Message(nil), rows...), nil
}
