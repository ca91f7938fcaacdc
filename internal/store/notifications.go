package store

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// NotificationStore appends and reads notification records in one JSON
// array file. Every operation is a full-file read-modify-write under a
// single mutex, so concurrent callers cannot lose each other's updates.
type NotificationStore struct {
	path    string
	mu      sync.Mutex
	entropy *rand.Rand
	now     func() time.Time
}

func NewNotificationStore(dataDir string) *NotificationStore {
	return &NotificationStore{
		path:    filepath.Join(dataDir, "notifications.json"),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
}

// ULIDs sort by creation time and stay unique even for records stored in
// the same second.
func (s *NotificationStore) newID() string {
	return "ntf-" + ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// Append assigns id and timestamp, marks the record unread, and rewrites
// the file with the record appended. Returns the stored record.
func (s *NotificationStore) Append(n Notification) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n.ID = s.newID()
	n.Timestamp = s.now().Format("2006-01-02 15:04:05")
	n.IsRead = false

	all := s.loadLocked()
	all = append(all, n)
	if err := s.saveLocked(all); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// List returns all records in append order. A missing or unreadable file
// reads as empty.
func (s *NotificationStore) List() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// MarkRead flips is_read on every record matching id. Reports whether any
// record matched.
func (s *NotificationStore) MarkRead(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.loadLocked()
	updated := false
	for i := range all {
		if all[i].ID == id {
			all[i].IsRead = true
			updated = true
		}
	}
	if !updated {
		return false, nil
	}
	if err := s.saveLocked(all); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes every record matching id. Reports whether anything was
// removed.
func (s *NotificationStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.loadLocked()
	kept := all[:0]
	for _, n := range all {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	if len(kept) == len(all) {
		return false, nil
	}
	if err := s.saveLocked(kept); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteReadBefore removes read records with a timestamp older than cutoff.
// Returns how many were removed.
func (s *NotificationStore) DeleteReadBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.loadLocked()
	kept := all[:0]
	for _, n := range all {
		ts, err := time.ParseInLocation("2006-01-02 15:04:05", n.Timestamp, time.Local)
		if n.IsRead && err == nil && ts.Before(cutoff) {
			continue
		}
		kept = append(kept, n)
	}
	removed := len(all) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.saveLocked(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *NotificationStore) loadLocked() []Notification {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[store] read notifications: %v", err)
		}
		return []Notification{}
	}
	var all []Notification
	if err := json.Unmarshal(data, &all); err != nil {
		log.Printf("[store] notifications file unreadable, treating as empty: %v", err)
		return []Notification{}
	}
	return all
}

func (s *NotificationStore) saveLocked(all []Notification) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal notifications: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}
