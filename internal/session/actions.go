package session

import (
	"slices"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

// SelectChannel makes channelID active. Messages and participants are
// loaded only the first time and before anything changes, so a channel the
// user cannot read keeps the previous one active with its feeds. The read
// watermark is advanced in the background.
func (s *Session) SelectChannel(channelID string) error {
	s.mu.Lock()
	_, cached := s.state.Messages[channelID]
	s.mu.Unlock()

	var page *channelPage
	if !cached {
		var err error
		if page, err = s.fetchChannel(channelID); err != nil {
			return s.fail(err)
		}
	}

	s.mu.Lock()
	previous := s.state.ActiveChannelID
	s.state.ActiveChannelID = channelID
	if page != nil {
		s.state.Messages[channelID] = page.messages
		s.storeParticipants(channelID, page.members, page.presence)
	}
	if i := s.state.channelIndex(channelID); i >= 0 && s.state.Channels[i].UnreadCount > 0 {
		read := *s.state.Channels[i]
		read.UnreadCount = 0
		s.state.Channels[i] = &read
	}
	s.mu.Unlock()

	s.swapChannelFeeds(previous, channelID)
	s.markRead(channelID)
	s.emitState()
	return nil
}

func (s *Session) CreateChannel(req models.CreateChannelRequest) (*models.Channel, error) {
	channel, err := s.api.CreateChannel(s.ctx, req)
	if err != nil {
		return nil, s.fail(err)
	}
	s.mu.Lock()
	if s.state.channelIndex(channel.ID.Hex()) < 0 {
		s.state.Channels = append([]*models.Channel{channel}, s.state.Channels...)
	}
	s.mu.Unlock()
	return channel, s.SelectChannel(channel.ID.Hex())
}

// StartDirectMessage opens, or reuses, the direct channel with otherUserID
// and makes it active.
func (s *Session) StartDirectMessage(otherUserID string) (*models.Channel, error) {
	channel, err := s.api.CreateDirectMessage(s.ctx, otherUserID)
	if err != nil {
		return nil, s.fail(err)
	}
	s.mu.Lock()
	known := s.state.channelIndex(channel.ID.Hex()) >= 0
	s.mu.Unlock()
	if !known {
		if err := s.reloadChannels(); err != nil {
			return nil, s.fail(err)
		}
	}
	return channel, s.SelectChannel(channel.ID.Hex())
}

func (s *Session) JoinChannel(channelID string) error {
	if _, err := s.api.JoinChannel(s.ctx, channelID); err != nil {
		return s.fail(err)
	}
	if err := s.reloadChannels(); err != nil {
		return s.fail(err)
	}
	return s.SelectChannel(channelID)
}

// LeaveChannel drops channelID from the session. When it was active the
// first remaining channel becomes active.
func (s *Session) LeaveChannel(channelID string) error {
	if err := s.api.LeaveChannel(s.ctx, channelID); err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	s.state.removeChannel(channelID)
	next := ""
	wasActive := s.state.ActiveChannelID == channelID
	if wasActive {
		s.state.ActiveChannelID = ""
		if len(s.state.Channels) > 0 {
			next = s.state.Channels[0].ID.Hex()
		}
	}
	s.mu.Unlock()

	if !wasActive {
		s.emitState()
		return nil
	}
	s.swapChannelFeeds(channelID, "")
	if next == "" {
		s.emitState()
		return nil
	}
	return s.SelectChannel(next)
}

// SendMessage sends to the active channel unless req names one. The stored
// message is appended as returned, so the realtime echo is ignored.
func (s *Session) SendMessage(req models.SendMessageRequest) (*models.Message, error) {
	if req.ChannelID == "" {
		s.mu.Lock()
		req.ChannelID = s.state.ActiveChannelID
		s.mu.Unlock()
	}
	msg, err := s.api.SendMessage(s.ctx, req)
	if err != nil {
		return nil, s.fail(err)
	}
	s.mu.Lock()
	appended := s.state.appendMessage(msg)
	s.mu.Unlock()
	if appended {
		s.emit(Event{Kind: KindMessageAppended, ChannelID: msg.ChannelID.Hex(), Message: msg})
	}
	return msg, nil
}

func (s *Session) EditMessage(messageID, content string) (*models.Message, error) {
	updated, err := s.api.EditMessage(s.ctx, messageID, content)
	if err != nil {
		return nil, s.fail(err)
	}
	s.mu.Lock()
	merged := s.state.patchMessage(updated)
	s.mu.Unlock()
	if merged == nil {
		merged = updated
	}
	s.emit(Event{Kind: KindMessageUpdated, ChannelID: updated.ChannelID.Hex(), MessageID: messageID, Message: merged})
	return merged, nil
}

func (s *Session) DeleteMessage(messageID string) error {
	if err := s.api.DeleteMessage(s.ctx, messageID); err != nil {
		return s.fail(err)
	}
	s.mu.Lock()
	channelID := ""
	for id := range s.state.Messages {
		if s.state.removeMessage(id, messageID) {
			channelID = id
			break
		}
	}
	s.mu.Unlock()
	s.emit(Event{Kind: KindMessageRemoved, ChannelID: channelID, MessageID: messageID})
	return nil
}

func (s *Session) AddReaction(messageID, emoji string) error {
	if err := s.api.AddReaction(s.ctx, messageID, emoji); err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *Session) RemoveReaction(messageID, emoji string) error {
	if err := s.api.RemoveReaction(s.ctx, messageID, emoji); err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *Session) UploadFile(channelID string, file models.FileUpload) (*models.UploadedFile, error) {
	if channelID == "" {
		s.mu.Lock()
		channelID = s.state.ActiveChannelID
		s.mu.Unlock()
	}
	uploaded, err := s.api.UploadFile(s.ctx, channelID, file)
	if err != nil {
		return nil, s.fail(err)
	}
	return uploaded, nil
}

func (s *Session) UpdatePresence(req models.UpdatePresenceRequest) (*models.Presence, error) {
	presence, err := s.api.UpdatePresence(s.ctx, req)
	if err != nil {
		return nil, s.fail(err)
	}
	s.setPresence(presence)
	return presence, nil
}

// LoadMore prepends the page of messages older than the ones cached for the
// active channel and returns how many were added.
func (s *Session) LoadMore() (int, error) {
	s.mu.Lock()
	channelID := s.state.ActiveChannelID
	offset := len(s.state.Messages[channelID])
	s.mu.Unlock()
	if channelID == "" {
		return 0, nil
	}

	older, err := s.api.ListMessages(s.ctx, channelID, pageSize, offset)
	if err != nil {
		return 0, s.fail(err)
	}
	s.mu.Lock()
	added := s.state.prependMessages(channelID, older)
	s.mu.Unlock()
	if added > 0 {
		s.emitState()
	}
	return added, nil
}

// Search runs a full text search scoped to the active channel.
func (s *Session) Search(query string) ([]*models.Message, error) {
	s.mu.Lock()
	channelID := s.state.ActiveChannelID
	s.mu.Unlock()

	results, err := s.api.SearchMessages(s.ctx, query, channelID)
	if err != nil {
		return nil, s.fail(err)
	}
	s.mu.Lock()
	s.state.SearchQuery = query
	s.state.SearchResults = results
	s.mu.Unlock()
	s.emit(Event{Kind: KindSearchResults, ChannelID: channelID, Results: slices.Clone(results)})
	return results, nil
}

func (s *Session) ClearSearch() {
	s.mu.Lock()
	s.state.SearchQuery = ""
	s.state.SearchResults = nil
	s.mu.Unlock()
	s.emit(Event{Kind: KindSearchResults})
}

// Refresh reloads the channel list and the active channel from scratch.
func (s *Session) Refresh() error {
	if err := s.reloadChannels(); err != nil {
		return s.fail(err)
	}
	s.mu.Lock()
	active := s.state.ActiveChannelID
	delete(s.state.Messages, active)
	delete(s.state.Participants, active)
	s.mu.Unlock()
	if active == "" {
		s.emitState()
		return nil
	}
	return s.SelectChannel(active)
}

func (s *Session) setPresence(presence *models.Presence) {
	s.mu.Lock()
	s.state.Presence[presence.UserID] = presence
	s.mu.Unlock()
	s.emit(Event{Kind: KindPresenceUpdated, Presence: presence})
}
