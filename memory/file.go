package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

var safeConversationID = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FileStore persists each conversation as an indented JSON array in Dir.
// Appends rewrite the whole file; it suits small interactive sessions.
type FileStore struct {
	Dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	now   func() time.Time
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("memory: create store dir: %w", err)
	}
	return &FileStore{Dir: dir, locks: make(map[string]*sync.Mutex), now: time.Now}, nil
}

func (s *FileStore) lockFor(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[conversationID] = l
	}
	return l
}

func (s *FileStore) path(conversationID string) (string, error) {
	if !safeConversationID.MatchString(conversationID) || conversationID == "." || conversationID == ".." {
		return "", ErrInvalidConversation
	}
	return filepath.Join(s.Dir, conversationID+".json"), nil
}

func (s *FileStore) Append(ctx context.Context, conversationID string, msg Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	p, err := s.path(conversationID)
	if err != nil {
		return Message{}, err
	}
	l := s.lockFor(conversationID)
	l.Lock()
	defer l.Unlock()

	rows, err := LoadConversation(p)
	if err != nil {
		return Message{}, err
	}
	next := int64(1)
	if n := len(rows); n > 0 {
		next = rows[n-1].Sequence + 1
	}
	stored, err := prepare(conversationID, msg, next, s.now())
	if err != nil {
		return Message{}, err
	}
	if err := SaveConversation(p, append(rows, stored)); err != nil {
		return Message{}, err
	}
	return stored, nil
}

func (s *FileStore) ListBySequence(ctx context.Context, conversationID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(conversationID)
	if err != nil {
		return nil, err
	}
	l := s.lockFor(conversationID)
	l.Lock()
	defer l.Unlock()
	return LoadConversation(p)
}

// LoadConversation reads a conversation file. A missing file yields nil, nil.
func LoadConversation(path string) ([]Message, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var msgs []Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("memory: decode %s: %w", path, err)
	}
	return msgs, nil
}

// SaveConversation writes msgs atomically via a temp file and rename.
func SaveConversation(path string, msgs []Message) error {
	b, err := json.MarshalIndent(msgs, "", " ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
