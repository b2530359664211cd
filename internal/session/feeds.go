package session

import (
	"sort"
	"time"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/internal/realtime"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
)

// openFeeds opens the user wide feeds once and the feeds of the active
// channel.
func (s *Session) openFeeds(activeChannelID string) {
	s.subs.add(keyChannels, realtime.Filter{Table: models.TableChannels}, s.onChannel)
	s.subs.add(keyMembers, realtime.Filter{Table: models.TableChannelMembers}, s.onMember)
	s.subs.add(keyPresence, realtime.Filter{Table: models.TablePresence}, s.onPresence)
	s.swapChannelFeeds("", activeChannelID)
}

// swapChannelFeeds moves the per-channel feeds from one channel to another,
// leaving the user wide feeds alone.
func (s *Session) swapChannelFeeds(from, to string) {
	if from == to {
		return
	}
	if from != "" {
		s.subs.remove(messagesKey(from))
		s.subs.remove(reactionsKey(from))
	}
	if to != "" {
		s.subs.add(messagesKey(to), realtime.Filter{Table: models.TableMessages, ChannelID: to}, s.onMessage)
		s.subs.add(reactionsKey(to), realtime.Filter{Table: models.TableReactions, ChannelID: to}, s.onReaction)
	}
}

func (s *Session) onMessage(ev models.ChangeEvent) {
	var msg models.Message
	if err := ev.Decode(&msg); err != nil {
		log.Warnw(s.ctx, "decode message event", "record_id", ev.RecordID, "error", err)
		return
	}
	channelID := msg.ChannelID.Hex()

	switch {
	case ev.Type == models.EventInsert && !msg.IsDeleted:
		s.mu.Lock()
		appended := s.state.appendMessage(&msg)
		s.mu.Unlock()
		if appended {
			s.emit(Event{Kind: KindMessageAppended, ChannelID: channelID, Message: &msg})
		}
	case ev.Type == models.EventDelete || msg.IsDeleted:
		s.mu.Lock()
		removed := s.state.removeMessage(channelID, ev.RecordID)
		s.mu.Unlock()
		if removed {
			s.emit(Event{Kind: KindMessageRemoved, ChannelID: channelID, MessageID: ev.RecordID})
		}
	case ev.Type == models.EventUpdate:
		s.mu.Lock()
		merged := s.state.patchMessage(&msg)
		s.mu.Unlock()
		if merged != nil {
			s.emit(Event{Kind: KindMessageUpdated, ChannelID: channelID, MessageID: ev.RecordID, Message: merged})
		}
	}
}

func (s *Session) onReaction(ev models.ChangeEvent) {
	var reaction models.Reaction
	if err := ev.Decode(&reaction); err != nil {
		log.Warnw(s.ctx, "decode reaction event", "record_id", ev.RecordID, "error", err)
		return
	}
	s.mu.Lock()
	msg := s.state.applyReaction(ev.ChannelID, &reaction, ev.Type == models.EventDelete)
	s.mu.Unlock()
	if msg != nil {
		s.emit(Event{Kind: KindMessageUpdated, ChannelID: ev.ChannelID, MessageID: msg.ID.Hex(), Message: msg})
	}
}

// onChannel applies updates to channels already in the list. Activity in a
// channel other than the active one bumps its unread count.
func (s *Session) onChannel(ev models.ChangeEvent) {
	if ev.Type == models.EventInsert {
		// new channels reach this user through their membership event
		return
	}
	var channel models.Channel
	if err := ev.Decode(&channel); err != nil {
		log.Warnw(s.ctx, "decode channel event", "record_id", ev.RecordID, "error", err)
		return
	}
	channelID := channel.ID.Hex()

	s.mu.Lock()
	i := s.state.channelIndex(channelID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	if channel.IsArchived {
		wasActive := s.state.ActiveChannelID == channelID
		s.state.removeChannel(channelID)
		if wasActive {
			s.state.ActiveChannelID = ""
		}
		s.mu.Unlock()
		if wasActive {
			s.swapChannelFeeds(channelID, "")
		}
		s.emitState()
		return
	}

	current := s.state.Channels[i]
	channel.UnreadCount = current.UnreadCount
	if channelID != s.state.ActiveChannelID && newer(channel.LastMessageAt, current.LastMessageAt) {
		channel.UnreadCount++
	}
	s.state.Channels[i] = &channel
	sort.SliceStable(s.state.Channels, func(a, b int) bool {
		return activity(s.state.Channels[a]).After(activity(s.state.Channels[b]))
	})
	s.mu.Unlock()

	s.emit(Event{Kind: KindChannelUpdated, ChannelID: channelID, Channel: &channel})
}

// onMember reloads the channel list when this user's memberships change and
// the participants of a cached channel when someone else joins or leaves.
func (s *Session) onMember(ev models.ChangeEvent) {
	if ev.UserID == s.userID {
		if err := s.reloadChannels(); err != nil {
			log.Warnw(s.ctx, "reload channels after membership change", "error", err)
			return
		}
		s.emitState()
		return
	}

	s.mu.Lock()
	_, cached := s.state.Participants[ev.ChannelID]
	s.mu.Unlock()
	if !cached {
		return
	}
	if err := s.loadParticipants(ev.ChannelID); err != nil {
		log.Warnw(s.ctx, "reload participants", "channel_id", ev.ChannelID, "error", err)
		return
	}
	s.emitState()
}

func (s *Session) onPresence(ev models.ChangeEvent) {
	var presence models.Presence
	if err := ev.Decode(&presence); err != nil {
		log.Warnw(s.ctx, "decode presence event", "record_id", ev.RecordID, "error", err)
		return
	}
	s.setPresence(&presence)
}

func newer(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	return b == nil || a.After(*b)
}

func activity(c *models.Channel) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.UpdatedAt
}
