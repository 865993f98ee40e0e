package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"swapdash/config"
)

// Storage is a JSON-file journal of finished runs
type Storage struct {
	filePath string
	mu       sync.RWMutex
	entries  []*Entry
}

// journal is the JSON structure on disk
type journal struct {
	Runs []*Entry `json:"runs"`
}

// NewStorage opens the journal at filePath, defaulting to the home directory
func NewStorage(filePath string) (*Storage, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, config.HistoryFileName)
	}

	s := &Storage{filePath: filePath}

	if err := s.load(); err != nil {
		// A missing file is created on first save
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
	}

	return s, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var j journal
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}
	s.entries = j.Runs
	return nil
}

// saveLocked writes the journal; the caller holds s.mu
func (s *Storage) saveLocked() error {
	data, err := json.MarshalIndent(journal{Runs: s.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Record appends a finished run, assigning an ID when it has none
func (s *Storage) Record(entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Finished.IsZero() {
		entry.Finished = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == entry.ID {
			return fmt.Errorf("run '%s' already recorded", entry.ID)
		}
	}

	s.entries = append(s.entries, &entry)
	if err := s.saveLocked(); err != nil {
		s.entries = s.entries[:len(s.entries)-1]
		return err
	}
	return nil
}

// Get returns the run whose ID starts with prefix
func (s *Storage) Get(prefix string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *Entry
	for _, e := range s.entries {
		if !strings.HasPrefix(e.ID, prefix) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("run id '%s' is ambiguous", prefix)
		}
		found = e
	}
	if found == nil {
		return nil, fmt.Errorf("run '%s' not found", prefix)
	}
	copied := *found
	return &copied, nil
}

// List returns runs newest first, optionally filtered by kind
func (s *Storage) List(kind string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if kind != "" && e.Kind != kind {
			continue
		}
		list = append(list, *e)
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Finished.After(list[j].Finished)
	})
	return list
}

// Count returns the number of recorded runs
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// GetFilePath returns the journal path
func (s *Storage) GetFilePath() string {
	return s.filePath
}
