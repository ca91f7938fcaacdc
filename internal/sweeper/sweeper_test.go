package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stellarlinkco/groupwatch/internal/config"
	"github.com/stellarlinkco/groupwatch/internal/store"
)

func seedStore(t *testing.T) (*store.NotificationStore, store.Notification, store.Notification) {
	t.Helper()
	ns := store.NewNotificationStore(t.TempDir())

	read, err := ns.Append(store.Notification{Group: "g", Sender: "a", Title: "旧通知"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := ns.MarkRead(read.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	unread, err := ns.Append(store.Notification{Group: "g", Sender: "b", Title: "未读通知"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return ns, read, unread
}

func TestSweep_RemovesOldReadOnly(t *testing.T) {
	ns, _, unread := seedStore(t)

	s := New(config.RetentionConfig{Days: 3}, ns)
	// Pretend the sweep runs ten days from now, well past retention.
	s.now = func() time.Time { return time.Now().AddDate(0, 0, 10) }
	s.sweep()

	all := ns.List()
	if len(all) != 1 {
		t.Fatalf("remaining = %d, want 1", len(all))
	}
	if all[0].ID != unread.ID {
		t.Errorf("kept %s, want unread record %s", all[0].ID, unread.ID)
	}
}

func TestSweep_KeepsRecentRead(t *testing.T) {
	ns, _, _ := seedStore(t)

	s := New(config.RetentionConfig{Days: 3}, ns)
	s.sweep()

	if got := len(ns.List()); got != 2 {
		t.Errorf("remaining = %d, want 2 (nothing is older than retention)", got)
	}
}

func TestStart_DisabledWhenNoRetention(t *testing.T) {
	ns := store.NewNotificationStore(t.TempDir())
	s := New(config.RetentionConfig{Days: 0, SweepSpec: config.DefaultSweepSpec}, ns)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.cron != nil {
		t.Error("disabled service must not schedule anything")
	}
	s.Stop()
}

func TestStart_BadSpec(t *testing.T) {
	ns := store.NewNotificationStore(t.TempDir())
	s := New(config.RetentionConfig{Days: 3, SweepSpec: "not a cron spec"}, ns)

	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error for invalid sweep spec")
	}
}

func TestStart_RunsScheduledSweep(t *testing.T) {
	ns, _, unread := seedStore(t)

	s := New(config.RetentionConfig{Days: 3, SweepSpec: "* * * * * *"}, ns)
	s.now = func() time.Time { return time.Now().AddDate(0, 0, 10) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.After(3 * time.Second)
	for {
		all := ns.List()
		if len(all) == 1 && all[0].ID == unread.ID {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("sweep never ran, store = %+v", all)
		case <-time.After(50 * time.Millisecond):
		}
	}
}
