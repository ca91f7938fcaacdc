package monitor

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stellarlinkco/groupwatch/internal/bus"
	"github.com/stellarlinkco/groupwatch/internal/classifier"
	"github.com/stellarlinkco/groupwatch/internal/store"
)

// mockChatClient implements chat.Client for testing.
type mockChatClient struct {
	added     []string
	removed   []string
	addErr    error
	removeErr error
}

func (m *mockChatClient) AddListenChat(group string) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, group)
	return nil
}

func (m *mockChatClient) RemoveListenChat(group string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, group)
	return nil
}

func (m *mockChatClient) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// mockClassifier implements classifier.Classifier for testing.
type mockClassifier struct {
	testErr     error
	testCalls   atomic.Int32
	notifResult bool
	notifErr    error
	extracted   store.Extracted
}

func (m *mockClassifier) TestConnection(ctx context.Context) (string, error) {
	m.testCalls.Add(1)
	if m.testErr != nil {
		return "", m.testErr
	}
	return "API连接正常", nil
}

func (m *mockClassifier) IsNotification(ctx context.Context, content string, keywords []string) (bool, error) {
	return m.notifResult, m.notifErr
}

func (m *mockClassifier) ExtractInfo(ctx context.Context, content string) store.Extracted {
	return m.extracted
}

var _ classifier.Classifier = (*mockClassifier)(nil)

func newTestMonitor(t *testing.T, cls *mockClassifier) (*Monitor, *mockChatClient, *store.NotificationStore, *store.WatchlistStore) {
	t.Helper()
	dir := t.TempDir()
	client := &mockChatClient{}
	b := bus.NewMessageBus(10)
	wl := store.NewWatchlistStore(dir)
	ns := store.NewNotificationStore(dir)
	return New(client, b, cls, wl, ns), client, ns, wl
}

func TestAddGroup(t *testing.T) {
	m, client, _, wl := newTestMonitor(t, &mockClassifier{})

	added, err := m.AddGroup("班级群")
	if err != nil {
		t.Fatalf("AddGroup error: %v", err)
	}
	if !added {
		t.Error("first AddGroup should register")
	}
	if len(client.added) != 1 || client.added[0] != "班级群" {
		t.Errorf("chat client listens = %v", client.added)
	}

	doc, _ := wl.Load()
	if len(doc.TargetGroups) != 1 || doc.TargetGroups[0] != "班级群" {
		t.Errorf("target groups = %v", doc.TargetGroups)
	}
}

func TestAddGroup_Idempotent(t *testing.T) {
	m, client, _, wl := newTestMonitor(t, &mockClassifier{})

	m.AddGroup("班级群")
	added, err := m.AddGroup("班级群")
	if err != nil {
		t.Fatalf("AddGroup error: %v", err)
	}
	if added {
		t.Error("second AddGroup should be a no-op")
	}
	if len(client.added) != 1 {
		t.Errorf("chat registrations = %d, want 1", len(client.added))
	}

	doc, _ := wl.Load()
	if len(doc.TargetGroups) != 1 {
		t.Errorf("target groups = %v, want no duplicate", doc.TargetGroups)
	}
}

func TestAddGroup_ClientError(t *testing.T) {
	m, client, _, wl := newTestMonitor(t, &mockClassifier{})
	client.addErr = fmt.Errorf("client down")

	added, err := m.AddGroup("班级群")
	if err == nil {
		t.Error("expected error from AddGroup")
	}
	if added {
		t.Error("failed registration must not report success")
	}

	doc, _ := wl.Load()
	if len(doc.TargetGroups) != 0 {
		t.Errorf("failed registration must not persist: %v", doc.TargetGroups)
	}
}

func TestRemoveGroup(t *testing.T) {
	m, client, _, wl := newTestMonitor(t, &mockClassifier{})
	m.AddGroup("班级群")

	removed, err := m.RemoveGroup("班级群")
	if err != nil {
		t.Fatalf("RemoveGroup error: %v", err)
	}
	if !removed {
		t.Error("RemoveGroup should report removal")
	}
	if len(client.removed) != 1 {
		t.Errorf("chat removals = %v", client.removed)
	}

	doc, _ := wl.Load()
	if len(doc.TargetGroups) != 0 {
		t.Errorf("target groups = %v, want empty", doc.TargetGroups)
	}
}

func TestRemoveGroup_NotActive(t *testing.T) {
	m, _, _, _ := newTestMonitor(t, &mockClassifier{})

	removed, err := m.RemoveGroup("不存在的群")
	if err != nil {
		t.Fatalf("RemoveGroup error: %v", err)
	}
	if removed {
		t.Error("removing an inactive group should report false")
	}
}

func TestHandleMessage_StoresNotification(t *testing.T) {
	cls := &mockClassifier{
		notifResult: true,
		extracted: store.Extracted{
			Title:    "开会通知",
			Time:     "明天九点",
			Content:  "部门例会",
			IsUrgent: true,
		},
	}
	m, _, ns, _ := newTestMonitor(t, cls)

	var pushed []store.Notification
	m.Subscribe(func(n store.Notification) { pushed = append(pushed, n) })

	m.handleMessage(context.Background(), bus.InboundMessage{
		Group:     "工作群",
		Sender:    "boss",
		Content:   "明天九点部门例会，务必参加",
		Timestamp: time.Now(),
	})

	all := ns.List()
	if len(all) != 1 {
		t.Fatalf("stored = %d, want 1", len(all))
	}
	n := all[0]
	if n.Group != "工作群" || n.Sender != "boss" {
		t.Errorf("origin = %s/%s", n.Group, n.Sender)
	}
	if n.RawContent != "明天九点部门例会，务必参加" {
		t.Errorf("raw content = %q", n.RawContent)
	}
	if n.Title != "开会通知" || !n.IsUrgent {
		t.Errorf("extracted fields = %+v", n)
	}

	if len(pushed) != 1 || pushed[0].ID != n.ID {
		t.Errorf("subscriber got %v, want stored record", pushed)
	}
}

func TestHandleMessage_NotANotification(t *testing.T) {
	m, _, ns, _ := newTestMonitor(t, &mockClassifier{notifResult: false})

	m.handleMessage(context.Background(), bus.InboundMessage{
		Group: "工作群", Sender: "a", Content: "随便聊聊",
	})
	if len(ns.List()) != 0 {
		t.Error("non-notification must not be stored")
	}
}

func TestHandleMessage_ClassifierError(t *testing.T) {
	m, _, ns, _ := newTestMonitor(t, &mockClassifier{notifErr: fmt.Errorf("model down")})

	// Must not panic and must not store.
	m.handleMessage(context.Background(), bus.InboundMessage{
		Group: "工作群", Sender: "a", Content: "重要通知内容",
	})
	if len(ns.List()) != 0 {
		t.Error("failed classification must not store")
	}
}

func TestHandleMessage_AlertDisabled(t *testing.T) {
	m, _, ns, wl := newTestMonitor(t, &mockClassifier{notifResult: true})

	doc, _ := wl.Load()
	doc.EnableAlert = false
	wl.Save(doc)

	m.handleMessage(context.Background(), bus.InboundMessage{
		Group: "工作群", Sender: "a", Content: "重要通知内容",
	})
	if len(ns.List()) != 0 {
		t.Error("disabled alerting must skip the pipeline")
	}
}

func TestStart_RegistersWatchlistGroups(t *testing.T) {
	cls := &mockClassifier{testErr: fmt.Errorf("offline")}
	m, client, _, wl := newTestMonitor(t, cls)

	wl.AddGroup("群一")
	wl.AddGroup("群二")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	// Wait for listener registration, then shut down.
	deadline := time.After(time.Second)
	for len(m.ActiveGroups()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("active groups = %v, want 2", m.ActiveGroups())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not return on cancel")
	}

	// A failed self-test warns but does not prevent startup.
	if n := cls.testCalls.Load(); n != 1 {
		t.Errorf("self-test calls = %d, want 1", n)
	}
	if len(client.added) != 2 {
		t.Errorf("chat registrations = %v", client.added)
	}
}

func TestStartBackground_Once(t *testing.T) {
	m, _, _, _ := newTestMonitor(t, &mockClassifier{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.StartBackground(ctx)
	m.StartBackground(ctx)

	time.Sleep(50 * time.Millisecond)
	cls := m.cls.(*mockClassifier)
	if n := cls.testCalls.Load(); n != 1 {
		t.Errorf("monitor started %d times, want 1", n)
	}
}
