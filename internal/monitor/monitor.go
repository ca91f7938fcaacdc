// Package monitor owns the message pipeline: it registers group listeners
// with the chat client and routes inbound messages through classification
// and extraction into the notification store.
package monitor

import (
	"context"
	"log"
	"sync"

	"github.com/stellarlinkco/groupwatch/internal/bus"
	"github.com/stellarlinkco/groupwatch/internal/chat"
	"github.com/stellarlinkco/groupwatch/internal/classifier"
	"github.com/stellarlinkco/groupwatch/internal/store"
)

type Monitor struct {
	client        chat.Client
	bus           *bus.MessageBus
	cls           classifier.Classifier
	watchlist     *store.WatchlistStore
	notifications *store.NotificationStore

	mu       sync.Mutex
	active   map[string]bool
	subs     []func(store.Notification)
	startOne sync.Once
}

func New(client chat.Client, b *bus.MessageBus, cls classifier.Classifier, wl *store.WatchlistStore, ns *store.NotificationStore) *Monitor {
	return &Monitor{
		client:        client,
		bus:           b,
		cls:           cls,
		watchlist:     wl,
		notifications: ns,
		active:        make(map[string]bool),
	}
}

// Subscribe registers a callback invoked for every stored notification.
// Must be called before Start.
func (m *Monitor) Subscribe(fn func(store.Notification)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// AddGroup registers a listener for a group and persists it to the
// watchlist. Reports whether a registration occurred; adding an already
// active group is a no-op.
func (m *Monitor) AddGroup(name string) (bool, error) {
	m.mu.Lock()
	if m.active[name] {
		m.mu.Unlock()
		return false, nil
	}
	m.mu.Unlock()

	if err := m.client.AddListenChat(name); err != nil {
		return false, err
	}

	m.mu.Lock()
	m.active[name] = true
	m.mu.Unlock()

	if _, err := m.watchlist.AddGroup(name); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveGroup is the inverse of AddGroup.
func (m *Monitor) RemoveGroup(name string) (bool, error) {
	m.mu.Lock()
	if !m.active[name] {
		m.mu.Unlock()
		return false, nil
	}
	m.mu.Unlock()

	if err := m.client.RemoveListenChat(name); err != nil {
		return false, err
	}

	m.mu.Lock()
	delete(m.active, name)
	m.mu.Unlock()

	if _, err := m.watchlist.RemoveGroup(name); err != nil {
		return false, err
	}
	return true, nil
}

// ActiveGroups returns the groups currently listened to.
func (m *Monitor) ActiveGroups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	groups := make([]string, 0, len(m.active))
	for g := range m.active {
		groups = append(groups, g)
	}
	return groups
}

// Start runs a connectivity self-test, registers a listener for every
// watchlist group, and blocks servicing the chat client and the message
// bus until ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	if _, err := m.cls.TestConnection(ctx); err != nil {
		log.Printf("[monitor] warning: model connection test failed, classification may be unavailable: %v", err)
	}

	wl, err := m.watchlist.Load()
	if err != nil {
		return err
	}
	for _, group := range wl.TargetGroups {
		if _, err := m.AddGroup(group); err != nil {
			log.Printf("[monitor] add listener for %q: %v", group, err)
		}
	}

	go m.processLoop(ctx)

	log.Printf("[monitor] monitoring %d groups", len(wl.TargetGroups))
	return m.client.Run(ctx)
}

// StartBackground launches Start on its own goroutine, at most once.
// There is no way to stop a started monitor short of canceling ctx.
func (m *Monitor) StartBackground(ctx context.Context) {
	m.startOne.Do(func() {
		go func() {
			if err := m.Start(ctx); err != nil {
				log.Printf("[monitor] stopped: %v", err)
			}
		}()
	})
}

func (m *Monitor) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-m.bus.Inbound:
			m.handleMessage(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage runs one message through the pipeline. Nothing here may
// kill the loop: every failure is logged and the message is skipped.
func (m *Monitor) handleMessage(ctx context.Context, msg bus.InboundMessage) {
	log.Printf("[monitor] message from %s/%s: %s", msg.Group, msg.Sender, truncate(msg.Content, 100))

	wl, err := m.watchlist.Load()
	if err != nil {
		log.Printf("[monitor] load watchlist: %v", err)
		return
	}
	if !wl.EnableAlert {
		return
	}

	ok, err := m.cls.IsNotification(ctx, msg.Content, wl.Keywords)
	if err != nil {
		log.Printf("[monitor] classify failed: %v", err)
		return
	}
	if !ok {
		return
	}

	log.Printf("[monitor] important notification detected in %s", msg.Group)
	info := m.cls.ExtractInfo(ctx, msg.Content)

	stored, err := m.notifications.Append(store.Notification{
		Group:      msg.Group,
		Sender:     msg.Sender,
		RawContent: msg.Content,
		Title:      info.Title,
		Time:       info.Time,
		Location:   info.Location,
		Content:    info.Content,
		Action:     info.Action,
		IsUrgent:   info.IsUrgent,
	})
	if err != nil {
		log.Printf("[monitor] store notification: %v", err)
		return
	}

	m.mu.Lock()
	subs := make([]func(store.Notification), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(stored)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
