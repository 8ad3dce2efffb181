// Package storage handles persistence of the subscriber list.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// fileFormat is the on-disk shape of the subscriber list: a JSON object
// holding the chat IDs as a list. The format predates this service and
// must stay readable by older deployments.
type fileFormat struct {
	Subscribers []int64 `json:"subscribers"`
}

// Store keeps the set of subscribed chat IDs, backed by a JSON file.
// All methods are safe for concurrent use.
type Store struct {
	logger *slog.Logger
	path   string

	mu          sync.Mutex
	subscribers map[int64]bool
}

// New creates a store backed by the given file, loading any existing
// subscriber list. A missing file is not an error: the set starts empty.
func New(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		logger:      logger,
		path:        path,
		subscribers: make(map[int64]bool),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("No subscriber file found, starting empty", "path", path)
			return s, nil
		}
		return nil, fmt.Errorf("read subscriber file: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse subscriber file: %w", err)
	}
	for _, id := range f.Subscribers {
		s.subscribers[id] = true
	}

	logger.Info("Subscribers loaded", "path", path, "count", len(s.subscribers))
	return s, nil
}

// Add subscribes a chat ID. Returns false if it was already subscribed.
func (s *Store) Add(chatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribers[chatID] {
		return false, nil
	}
	s.subscribers[chatID] = true
	if err := s.save(); err != nil {
		delete(s.subscribers, chatID)
		return false, err
	}

	s.logger.Info("Subscriber added", "chat_id", chatID, "count", len(s.subscribers))
	return true, nil
}

// Remove unsubscribes a chat ID. Returns false if it was not subscribed.
func (s *Store) Remove(chatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.subscribers[chatID] {
		return false, nil
	}
	delete(s.subscribers, chatID)
	if err := s.save(); err != nil {
		s.subscribers[chatID] = true
		return false, err
	}

	s.logger.Info("Subscriber removed", "chat_id", chatID, "count", len(s.subscribers))
	return true, nil
}

// Contains reports whether a chat ID is subscribed.
func (s *Store) Contains(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribers[chatID]
}

// List returns all subscribed chat IDs in ascending order.
func (s *Store) List() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of subscribers.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// save writes the subscriber list via a temp file and rename, so a crash
// mid-write never corrupts the existing list. Callers hold s.mu.
func (s *Store) save() error {
	ids := make([]int64, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	data, err := json.MarshalIndent(fileFormat{Subscribers: ids}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal subscribers: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write subscriber file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace subscriber file: %w", err)
	}
	return nil
}
