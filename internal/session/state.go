package session

import (
	"maps"
	"slices"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

// State is what a connected client renders. Elements are never mutated in
// place: updates swap in new pointers, so snapshots can share them.
type State struct {
	Channels        []*models.Channel                  `json:"channels"`
	ActiveChannelID string                             `json:"active_channel_id,omitempty"`
	Messages        map[string][]*models.Message       `json:"messages"`
	Participants    map[string][]*models.ChannelMember `json:"participants"`
	Presence        map[string]*models.Presence        `json:"presence"`
	Loading         bool                               `json:"loading"`
	Error           string                             `json:"error,omitempty"`
	SearchQuery     string                             `json:"search_query,omitempty"`
	SearchResults   []*models.Message                  `json:"search_results,omitempty"`
}

func newState() State {
	return State{
		Messages:     map[string][]*models.Message{},
		Participants: map[string][]*models.ChannelMember{},
		Presence:     map[string]*models.Presence{},
	}
}

func (s State) clone() State {
	out := s
	out.Channels = slices.Clone(s.Channels)
	out.SearchResults = slices.Clone(s.SearchResults)
	out.Messages = make(map[string][]*models.Message, len(s.Messages))
	for id, msgs := range s.Messages {
		out.Messages[id] = slices.Clone(msgs)
	}
	out.Participants = make(map[string][]*models.ChannelMember, len(s.Participants))
	for id, members := range s.Participants {
		out.Participants[id] = slices.Clone(members)
	}
	out.Presence = maps.Clone(s.Presence)
	return out
}

func (s *State) channelIndex(channelID string) int {
	return slices.IndexFunc(s.Channels, func(c *models.Channel) bool { return c.ID.Hex() == channelID })
}

func (s *State) messageIndex(channelID, messageID string) int {
	return slices.IndexFunc(s.Messages[channelID], func(m *models.Message) bool { return m.ID.Hex() == messageID })
}

// appendMessage adds msg to its channel cache unless it is already there.
func (s *State) appendMessage(msg *models.Message) bool {
	channelID := msg.ChannelID.Hex()
	if s.messageIndex(channelID, msg.ID.Hex()) >= 0 {
		return false
	}
	s.Messages[channelID] = append(s.Messages[channelID], msg)
	return true
}

// prependMessages puts older messages in front, skipping known ids.
func (s *State) prependMessages(channelID string, older []*models.Message) int {
	current := s.Messages[channelID]
	fresh := make([]*models.Message, 0, len(older))
	for _, msg := range older {
		if s.messageIndex(channelID, msg.ID.Hex()) < 0 {
			fresh = append(fresh, msg)
		}
	}
	s.Messages[channelID] = append(fresh, current...)
	return len(fresh)
}

// patchMessage replaces the cached copy of updated, keeping the joined
// relations the update does not carry.
func (s *State) patchMessage(updated *models.Message) *models.Message {
	channelID := updated.ChannelID.Hex()
	i := s.messageIndex(channelID, updated.ID.Hex())
	if i < 0 {
		return nil
	}
	merged := *s.Messages[channelID][i]
	merged.Content = updated.Content
	merged.IsEdited = updated.IsEdited
	merged.IsDeleted = updated.IsDeleted
	merged.UpdatedAt = updated.UpdatedAt
	if updated.User != nil {
		merged.User = updated.User
	}
	s.Messages[channelID] = slices.Clone(s.Messages[channelID])
	s.Messages[channelID][i] = &merged
	return &merged
}

func (s *State) removeMessage(channelID, messageID string) bool {
	i := s.messageIndex(channelID, messageID)
	if i < 0 {
		return false
	}
	s.Messages[channelID] = slices.Delete(slices.Clone(s.Messages[channelID]), i, i+1)
	return true
}

func (s *State) applyReaction(channelID string, reaction *models.Reaction, removed bool) *models.Message {
	i := s.messageIndex(channelID, reaction.MessageID.Hex())
	if i < 0 {
		return nil
	}
	msg := *s.Messages[channelID][i]
	same := func(r *models.Reaction) bool {
		return r.UserID == reaction.UserID && r.Emoji == reaction.Emoji
	}
	msg.Reactions = slices.DeleteFunc(slices.Clone(msg.Reactions), same)
	if !removed {
		msg.Reactions = append(msg.Reactions, reaction)
	}
	s.Messages[channelID] = slices.Clone(s.Messages[channelID])
	s.Messages[channelID][i] = &msg
	return &msg
}

func (s *State) removeChannel(channelID string) {
	if i := s.channelIndex(channelID); i >= 0 {
		s.Channels = slices.Delete(slices.Clone(s.Channels), i, i+1)
	}
	delete(s.Messages, channelID)
	delete(s.Participants, channelID)
}
