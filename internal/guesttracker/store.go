package guesttracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Store persists the guest's records between runs
type Store interface {
	Load() ([]GuestBidRecord, error)
	Save(records []GuestBidRecord) error
}

// FileStore keeps records as a JSON document on local disk
type FileStore struct {
	path string
}

// NewFileStore stores records at path, creating parent directories on first save
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath is where the bidder CLI keeps its records
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "bidding-core", "guest-bids.json"), nil
}

// Load reads the stored records. A missing file is an empty history.
func (s *FileStore) Load() ([]GuestBidRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []GuestBidRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var records []GuestBidRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return records, nil
}

// Save replaces the stored records, writing to a temp file first so a crash
// never leaves a truncated history
func (s *FileStore) Save(records []GuestBidRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(s.path), err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".guest-bids-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// MemoryStore keeps records in memory only
type MemoryStore struct {
	mu      sync.Mutex
	records []GuestBidRecord
	saveErr error
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailSaves makes every following Save return err
func (s *MemoryStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func (s *MemoryStore) Load() ([]GuestBidRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]GuestBidRecord(nil), s.records...), nil
}

func (s *MemoryStore) Save(records []GuestBidRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records = append([]GuestBidRecord(nil), records...)
	return nil
}
