package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// WatchlistStore owns the watchlist file. All access goes through one
// mutex; every mutation rewrites the whole file.
type WatchlistStore struct {
	path string
	mu   sync.Mutex
}

func NewWatchlistStore(dataDir string) *WatchlistStore {
	return &WatchlistStore{path: filepath.Join(dataDir, "config.json")}
}

// Load reads the watchlist. A missing or malformed file materializes the
// default document and persists it.
func (s *WatchlistStore) Load() (*Watchlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *WatchlistStore) loadLocked() (*Watchlist, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		wl := &Watchlist{}
		if jsonErr := json.Unmarshal(data, wl); jsonErr == nil {
			if wl.TargetGroups == nil {
				wl.TargetGroups = []string{}
			}
			if wl.Keywords == nil {
				wl.Keywords = []string{}
			}
			return wl, nil
		}
		log.Printf("[store] watchlist file unreadable, resetting to defaults")
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}

	wl := DefaultWatchlist()
	if err := s.saveLocked(wl); err != nil {
		return nil, fmt.Errorf("persist default watchlist: %w", err)
	}
	return wl, nil
}

// Save rewrites the full document.
func (s *WatchlistStore) Save(wl *Watchlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(wl)
}

func (s *WatchlistStore) saveLocked(wl *Watchlist) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(wl, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal watchlist: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}

// AddGroup appends a group to target_groups if absent. Reports whether the
// document changed.
func (s *WatchlistStore) AddGroup(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wl, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	for _, g := range wl.TargetGroups {
		if g == name {
			return false, nil
		}
	}
	wl.TargetGroups = append(wl.TargetGroups, name)
	if err := s.saveLocked(wl); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveGroup removes a group from target_groups if present.
func (s *WatchlistStore) RemoveGroup(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wl, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	kept := wl.TargetGroups[:0]
	for _, g := range wl.TargetGroups {
		if g != name {
			kept = append(kept, g)
		}
	}
	if len(kept) == len(wl.TargetGroups) {
		return false, nil
	}
	wl.TargetGroups = kept
	if err := s.saveLocked(wl); err != nil {
		return false, err
	}
	return true, nil
}
