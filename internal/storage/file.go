package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	conversationsDir = "conversations"
	summariesDir     = "summaries"
	scriptsDir       = "scripts"
)

// FileStore keeps one JSON file per record under a data directory.
type FileStore struct {
	mu  sync.RWMutex
	dir string
}

// NewFileStore creates the directory layout under dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{conversationsDir, summariesDir, scriptsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(sub, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid record id %q", id)
	}
	return filepath.Join(s.dir, sub, id+".json"), nil
}

func (s *FileStore) write(sub, id string, v any) error {
	path, err := s.path(sub, id)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) read(sub, id string, v any) error {
	path, err := s.path(sub, id)
	if err != nil {
		return err
	}

	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", id, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", id, err)
	}
	return nil
}

// readAll decodes every record in sub. Files that fail to parse are skipped.
func readAll[T any](s *FileStore, sub string, keep func(T) bool) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, sub))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", sub, err)
	}
	var out []T
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, sub, e.Name()))
		if err != nil {
			continue
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			continue
		}
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *FileStore) SaveConversation(_ context.Context, c *Conversation) error {
	return s.write(conversationsDir, c.ID, c)
}

func (s *FileStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	var c Conversation
	if err := s.read(conversationsDir, id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *FileStore) ListConversations(_ context.Context, opts ListOptions) ([]Conversation, error) {
	items, err := readAll[Conversation](s, conversationsDir, nil)
	if err != nil {
		return nil, err
	}
	return applyListOptions(items, opts), nil
}

func (s *FileStore) DeleteConversation(_ context.Context, id string) error {
	path, err := s.path(conversationsDir, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return err
}

func (s *FileStore) SaveSummary(_ context.Context, sum *Summary) error {
	return s.write(summariesDir, sum.ID, sum)
}

func (s *FileStore) GetSummary(_ context.Context, id string) (*Summary, error) {
	var sum Summary
	if err := s.read(summariesDir, id, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

func (s *FileStore) ListSummaries(_ context.Context, conversationID string) ([]Summary, error) {
	items, err := readAll(s, summariesDir, func(sum Summary) bool {
		return conversationID == "" || sum.ConversationID == conversationID
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(items, func(sum Summary) time.Time { return sum.CreatedAt })
	return items, nil
}

func (s *FileStore) SaveVideoScript(_ context.Context, v *VideoScript) error {
	return s.write(scriptsDir, v.ID, v)
}

func (s *FileStore) GetVideoScript(_ context.Context, id string) (*VideoScript, error) {
	var v VideoScript
	if err := s.read(scriptsDir, id, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *FileStore) ListVideoScripts(_ context.Context, summaryID string) ([]VideoScript, error) {
	items, err := readAll(s, scriptsDir, func(v VideoScript) bool {
		return summaryID == "" || v.SummaryID == summaryID
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(items, func(v VideoScript) time.Time { return v.CreatedAt })
	return items, nil
}

func (s *FileStore) Close() error { return nil }
