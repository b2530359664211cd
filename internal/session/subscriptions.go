package session

import (
	"slices"
	"sync"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/internal/realtime"
)

const (
	keyChannels = "channels"
	keyMembers  = "members"
	keyPresence = "presence"
)

func messagesKey(channelID string) string  { return "messages:" + channelID }
func reactionsKey(channelID string) string { return "reactions:" + channelID }

// subscriptions owns the realtime feeds of a session, keyed so a feed can be
// swapped without touching the others.
type subscriptions struct {
	feed realtime.Subscriber

	mu     sync.Mutex
	subs   map[string]*realtime.Subscription
	closed bool
	wg     sync.WaitGroup
}

func newSubscriptions(feed realtime.Subscriber) *subscriptions {
	return &subscriptions{
		feed: feed,
		subs: make(map[string]*realtime.Subscription),
	}
}

// add opens the feed under key unless it is already open. handle runs on the
// feed goroutine.
func (m *subscriptions) add(key string, filter realtime.Filter, handle func(models.ChangeEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if _, ok := m.subs[key]; ok {
		return
	}
	sub := m.feed.Subscribe(filter)
	m.subs[key] = sub

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for ev := range sub.C() {
			handle(ev)
		}
	}()
}

func (m *subscriptions) remove(key string) {
	m.mu.Lock()
	sub, ok := m.subs[key]
	delete(m.subs, key)
	m.mu.Unlock()
	if ok {
		sub.Close()
	}
}

func (m *subscriptions) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.subs))
	for key := range m.subs {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// closeAll closes every feed and waits for the handlers to return.
func (m *subscriptions) closeAll() {
	m.mu.Lock()
	m.closed = true
	subs := m.subs
	m.subs = make(map[string]*realtime.Subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	m.wg.Wait()
}
