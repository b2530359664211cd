package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
	"github.com/nguyentranbao-ct/team-messaging/pkg/util"
)

const defaultBuffer = 64

// Publisher delivers change events to subscribers, locally or across
// instances.
type Publisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// Subscriber opens filtered change feeds.
type Subscriber interface {
	Subscribe(filter Filter) *Subscription
}

// Filter selects change events. Empty fields match everything.
type Filter struct {
	Table     models.Table
	Event     models.EventType
	ChannelID string
}

func (f Filter) Match(ev models.ChangeEvent) bool {
	if f.Table != "" && f.Table != ev.Table {
		return false
	}
	if f.Event != "" && f.Event != ev.Type {
		return false
	}
	if f.ChannelID != "" && f.ChannelID != ev.ChannelID {
		return false
	}
	return true
}

type Subscription struct {
	id     uint64
	filter Filter
	ch     chan models.ChangeEvent
	hub    *Hub
	once   sync.Once
}

// C is closed once the subscription is closed.
func (s *Subscription) C() <-chan models.ChangeEvent {
	return s.ch
}

func (s *Subscription) Filter() Filter {
	return s.filter
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub fans change events out to in-process subscriptions. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  atomic.Uint64
	buffer  int
	dropped prometheus.Counter
}

func NewHub() *Hub {
	dropped, err := util.Register(prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_events_dropped_total",
		Help: "Change events not delivered because a subscriber was too slow",
	}))
	if err != nil {
		panic(err)
	}
	return &Hub{
		subs:    make(map[uint64]*Subscription),
		buffer:  defaultBuffer,
		dropped: dropped,
	}
}

func (h *Hub) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{
		id:     h.nextID.Add(1),
		filter: filter,
		ch:     make(chan models.ChangeEvent, h.buffer),
		hub:    h,
	}
	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()
	return sub
}

func (h *Hub) Publish(ctx context.Context, event models.ChangeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.filter.Match(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.dropped.Inc()
			log.Warnw(ctx, "dropping change event for slow subscriber",
				"table", event.Table,
				"type", event.Type,
				"record_id", event.RecordID,
				"subscription", sub.id)
		}
	}
	return nil
}

// Len reports the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.id]; ok {
		delete(h.subs, sub.id)
		close(sub.ch)
	}
}
