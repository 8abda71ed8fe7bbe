package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// FileStore keeps one JSON record per conversation id in a state
// directory. Writes land in a temp file and are moved into place with a
// rename, so a crash mid-write leaves the previous record intact.
type FileStore struct {
	dir          string
	systemPrompt string
	maxLen       int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates the state directory if needed. systemPrompt seeds
// fresh conversations; maxLen is the retention bound applied on every
// save.
func NewFileStore(dir, systemPrompt string, maxLen int) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: state directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create state directory: %w", err)
	}
	return &FileStore{
		dir:          dir,
		systemPrompt: systemPrompt,
		maxLen:       maxLen,
		locks:        make(map[string]*sync.Mutex),
	}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, sanitizeID(id)+".json")
}

// lockFor returns the mutex guarding one conversation id.
func (s *FileStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Load reads the record for id, returning a freshly initialized
// conversation when none exists yet.
func (s *FileStore) Load(ctx context.Context, id string) (*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return NewConversation(s.systemPrompt), nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", id, err)
	}
	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", id, err)
	}
	return &c, nil
}

// Save atomically replaces the record for id. The retention bound is
// enforced here so no write can leave an oversized record behind.
func (s *FileStore) Save(ctx context.Context, id string, c *Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Trim(s.maxLen)
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", id, err)
	}
	tmp, err := os.CreateTemp(s.dir, sanitizeID(id)+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: replace %s: %w", id, err)
	}
	log.Debug().Str("conversation", id).Int("messages", len(c.Messages)).
		Int("context", len(c.Context)).Msg("conversation saved")
	return nil
}

// Update runs fn on the current state and persists the result, holding
// the per-conversation lock for the whole read-modify-write.
func (s *FileStore) Update(ctx context.Context, id string, fn func(*Conversation) error) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	c, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	return s.Save(ctx, id, c)
}

// sanitizeID maps a conversation id onto a safe file name.
func sanitizeID(id string) string {
	if id == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
