// Package session keeps the per-user messaging state of a connected client:
// bootstrap, lazy channel loading, realtime feeds and the presence lease.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/internal/realtime"
	"github.com/nguyentranbao-ct/team-messaging/internal/usecase"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
	"github.com/nguyentranbao-ct/team-messaging/pkg/util"
)

const pageSize = 50

type EventKind string

const (
	KindState           EventKind = "state"
	KindMessageAppended EventKind = "message_appended"
	KindMessageUpdated  EventKind = "message_updated"
	KindMessageRemoved  EventKind = "message_removed"
	KindChannelUpdated  EventKind = "channel_updated"
	KindPresenceUpdated EventKind = "presence_updated"
	KindSearchResults   EventKind = "search_results"
	KindError           EventKind = "error"
)

// Event is emitted to the observer after every state change.
type Event struct {
	Kind      EventKind         `json:"kind"`
	ChannelID string            `json:"channel_id,omitempty"`
	MessageID string            `json:"message_id,omitempty"`
	State     *State            `json:"state,omitempty"`
	Message   *models.Message   `json:"message,omitempty"`
	Channel   *models.Channel   `json:"channel,omitempty"`
	Presence  *models.Presence  `json:"presence,omitempty"`
	Results   []*models.Message `json:"results,omitempty"`
	Error     *models.Failure   `json:"error,omitempty"`
}

// Observer receives session events. It is called from the goroutine that
// changed the state and must not block.
type Observer func(Event)

type Factory struct {
	api       usecase.Messaging
	feed      realtime.Subscriber
	outbox    usecase.Outbox
	heartbeat time.Duration
}

func NewFactory(conf *config.Config, api usecase.Messaging, hub *realtime.Hub, outbox usecase.Outbox) *Factory {
	return &Factory{
		api:       api,
		feed:      hub,
		outbox:    outbox,
		heartbeat: conf.Presence.Heartbeat,
	}
}

// New creates the session of userID. ctx must carry the acting user and is
// used for every call the session makes.
func (f *Factory) New(ctx context.Context, userID string, observer Observer) *Session {
	ctx, cancel := context.WithCancel(ctx)
	if observer == nil {
		observer = func(Event) {}
	}
	return &Session{
		ctx:      log.WithFields(ctx, "session_user", userID),
		cancel:   cancel,
		userID:   userID,
		api:      f.api,
		outbox:   f.outbox,
		observer: observer,
		subs:     newSubscriptions(f.feed),
		lease:    newPresenceLease(f.api, f.heartbeat),
		state:    newState(),
	}
}

type Session struct {
	ctx      context.Context
	cancel   context.CancelFunc
	userID   string
	api      usecase.Messaging
	outbox   usecase.Outbox
	observer Observer
	subs     *subscriptions
	lease    *presenceLease

	mu    sync.Mutex
	state State

	closeOnce sync.Once
}

func (s *Session) UserID() string {
	return s.userID
}

// State returns a snapshot of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Start bootstraps the session: channels, the first channel's messages and
// participants, their presence, the presence lease and the realtime feeds.
// Each step runs after the previous one. Without a user it does nothing.
func (s *Session) Start() error {
	if s.userID == "" {
		return nil
	}
	s.setLoading(true)
	defer s.setLoading(false)

	channels, err := s.api.ListChannels(s.ctx)
	if err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	s.state.Channels = channels
	if s.state.ActiveChannelID == "" && len(channels) > 0 {
		s.state.ActiveChannelID = channels[0].ID.Hex()
	}
	active := s.state.ActiveChannelID
	s.mu.Unlock()

	if active != "" {
		if err := s.loadMessages(active); err != nil {
			return s.fail(err)
		}
		if err := s.loadParticipants(active); err != nil {
			return s.fail(err)
		}
	}

	presence, err := s.lease.acquire(s.ctx)
	if err != nil {
		return s.fail(err)
	}
	if presence != nil {
		s.mu.Lock()
		s.state.Presence[presence.UserID] = presence
		s.mu.Unlock()
	}

	s.openFeeds(active)
	return nil
}

// Close tears down the realtime feeds and releases the presence lease.
// Calling it more than once is safe.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.subs.closeAll()
		s.lease.release(s.ctx)
		s.cancel()
	})
}

func (s *Session) setLoading(loading bool) {
	s.mu.Lock()
	s.state.Loading = loading
	if loading {
		s.state.Error = ""
	}
	s.mu.Unlock()
	s.emitState()
}

// fail records err in the state, emits it and returns it.
func (s *Session) fail(err error) error {
	if errors.Is(err, context.Canceled) && s.ctx.Err() != nil {
		return err
	}
	f := models.AsFailure("session", err)
	s.mu.Lock()
	s.state.Error = f.Message
	s.mu.Unlock()
	s.observer(Event{Kind: KindError, Error: f})
	return err
}

func (s *Session) emit(ev Event) {
	s.observer(ev)
}

func (s *Session) emitState() {
	snapshot := s.State()
	s.observer(Event{Kind: KindState, State: &snapshot})
}

func (s *Session) loadMessages(channelID string) error {
	messages, err := s.api.ListMessages(s.ctx, channelID, pageSize, 0)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.state.Messages[channelID] = messages
	s.mu.Unlock()
	return nil
}

// loadParticipants loads the members of channelID and their presence.
func (s *Session) loadParticipants(channelID string) error {
	members, presence, err := s.fetchParticipants(channelID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.storeParticipants(channelID, members, presence)
	s.mu.Unlock()
	return nil
}

func (s *Session) fetchParticipants(channelID string) ([]*models.ChannelMember, []*models.Presence, error) {
	members, err := s.api.ListParticipants(s.ctx, channelID)
	if err != nil {
		return nil, nil, err
	}
	userIDs := util.ConvertList(members, func(m *models.ChannelMember) string { return m.UserID })
	presence, err := s.api.GetUsersPresence(s.ctx, userIDs)
	if err != nil {
		return nil, nil, err
	}
	return members, presence, nil
}

// storeParticipants must be called with s.mu held.
func (s *Session) storeParticipants(channelID string, members []*models.ChannelMember, presence []*models.Presence) {
	s.state.Participants[channelID] = members
	for _, p := range presence {
		s.state.Presence[p.UserID] = p
	}
}

// channelPage is everything a channel needs before it can become active.
type channelPage struct {
	messages []*models.Message
	members  []*models.ChannelMember
	presence []*models.Presence
}

// fetchChannel loads the first page of channelID without touching the state,
// so a denied channel leaves the session as it was.
func (s *Session) fetchChannel(channelID string) (*channelPage, error) {
	page := &channelPage{}
	var g errgroup.Group
	g.Go(func() error {
		messages, err := s.api.ListMessages(s.ctx, channelID, pageSize, 0)
		page.messages = messages
		return err
	})
	g.Go(func() error {
		members, presence, err := s.fetchParticipants(channelID)
		page.members, page.presence = members, presence
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return page, nil
}

func (s *Session) reloadChannels() error {
	channels, err := s.api.ListChannels(s.ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.state.Channels = channels
	s.mu.Unlock()
	return nil
}

func (s *Session) markRead(channelID string) {
	s.outbox.Submit(s.ctx, "mark_channel_as_read", func(ctx context.Context) error {
		return s.api.MarkChannelAsRead(ctx, channelID)
	})
}
