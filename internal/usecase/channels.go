package usecase

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
	"github.com/nguyentranbao-ct/team-messaging/pkg/util"
)

func (u *messaging) ListChannels(ctx context.Context) (channels []*models.Channel, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "list_channels", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	return u.channels.ListForUser(ctx, me)
}

// CreateChannel inserts the channel and one membership per distinct
// participant. The creator becomes admin. When a membership cannot be
// written the channel is archived so it never shows up half populated.
func (u *messaging) CreateChannel(ctx context.Context, req models.CreateChannelRequest) (channel *models.Channel, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "create_channel", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := u.validate.Struct(req); err != nil {
		return nil, invalidArgument(err)
	}

	if req.Type == models.ChannelTypeDirect {
		others := slices.DeleteFunc(util.Unique(req.MemberIDs), func(id string) bool { return id == me })
		if len(others) != 1 {
			return nil, models.Fail("", models.ReasonInvalidArgument, "a direct channel needs exactly one other member, got %d", len(others))
		}
		return u.createDirectMessage(ctx, me, others[0])
	}

	channel = &models.Channel{
		Name:      util.Ptr(req.Name),
		Type:      req.Type,
		CreatedBy: me,
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		channel.Description = util.Ptr(desc)
	}
	if err := u.channels.Create(ctx, channel); err != nil {
		return nil, err
	}

	participants := util.Unique(append([]string{me}, req.MemberIDs...))
	added := make([]*models.ChannelMember, 0, len(participants))
	for _, userID := range participants {
		role := models.MemberRoleMember
		if userID == me {
			role = models.MemberRoleAdmin
		}
		member, err := u.members.Add(ctx, channel.ID, userID, role)
		if err != nil {
			if archiveErr := u.channels.Archive(ctx, channel.ID); archiveErr != nil {
				log.Errorw(ctx, "archive channel after failed membership",
					"channel_id", channel.ID.Hex(),
					"error", archiveErr)
			}
			return nil, models.Fail("", models.ReasonOf(err), "add %s to channel %s: %v", userID, channel.ID.Hex(), err)
		}
		added = append(added, member)
	}

	u.publishChannel(ctx, models.EventInsert, channel)
	for _, member := range added {
		u.publishMember(ctx, models.EventInsert, member)
	}
	return channel, nil
}

func (u *messaging) CreateDirectMessage(ctx context.Context, otherUserID string) (channel *models.Channel, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "create_direct_message", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	return u.createDirectMessage(ctx, me, strings.TrimSpace(otherUserID))
}

func (u *messaging) createDirectMessage(ctx context.Context, me, other string) (*models.Channel, error) {
	if other == "" {
		return nil, models.Fail("", models.ReasonInvalidArgument, "other user is required")
	}
	if other == me {
		return nil, models.Fail("", models.ReasonInvalidArgument, "cannot open a direct channel with yourself")
	}
	if _, err := u.profiles.GetByID(ctx, other); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.Fail("", models.ReasonNotFound, "user %s not found", other)
		}
		return nil, err
	}

	channel, created, err := u.channels.CreateDirectMessageChannel(ctx, me, other)
	if err != nil {
		return nil, err
	}
	if created {
		u.publishChannel(ctx, models.EventInsert, channel)
		for _, userID := range []string{me, other} {
			member, err := u.members.Get(ctx, channel.ID, userID)
			if err != nil {
				log.Errorw(ctx, "load direct channel member",
					"channel_id", channel.ID.Hex(),
					"user_id", userID,
					"error", err)
				continue
			}
			u.publishMember(ctx, models.EventInsert, member)
		}
	}
	return channel, nil
}

func (u *messaging) JoinChannel(ctx context.Context, channelID string) (member *models.ChannelMember, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "join_channel", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID("channel id", channelID)
	if err != nil {
		return nil, err
	}
	channel, err := u.getChannel(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case channel.IsArchived:
		return nil, models.Fail("", models.ReasonInvalidArgument, "channel %s is archived", channelID)
	case channel.Type != models.ChannelTypePublic:
		return nil, models.Fail("", models.ReasonPermissionDenied, "channel %s is %s", channelID, channel.Type)
	}

	// joining again keeps the current role
	existing, err := u.members.Get(ctx, id, me)
	switch {
	case err == nil && existing.IsActive:
		return existing, nil
	case err != nil && !errors.Is(err, models.ErrNotFound):
		return nil, err
	}

	member, err = u.members.Add(ctx, id, me, models.MemberRoleMember)
	if err != nil {
		return nil, err
	}
	u.publishMember(ctx, models.EventInsert, member)
	return member, nil
}

func (u *messaging) LeaveChannel(ctx context.Context, channelID string) (err error) {
	defer func(start time.Time) { err = u.finish(ctx, "leave_channel", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return err
	}
	id, err := parseID("channel id", channelID)
	if err != nil {
		return err
	}
	channel, err := u.getChannel(ctx, id)
	if err != nil {
		return err
	}
	if channel.Type == models.ChannelTypeDirect {
		return models.Fail("", models.ReasonInvalidArgument, "cannot leave a direct channel")
	}
	member, err := u.requireMember(ctx, id, me)
	if err != nil {
		return err
	}
	if err := u.members.Deactivate(ctx, id, me); err != nil {
		return err
	}
	u.publishMember(ctx, models.EventDelete, member)
	return nil
}

func (u *messaging) ArchiveChannel(ctx context.Context, channelID string) (err error) {
	defer func(start time.Time) { err = u.finish(ctx, "archive_channel", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return err
	}
	id, err := parseID("channel id", channelID)
	if err != nil {
		return err
	}
	channel, err := u.getChannel(ctx, id)
	if err != nil {
		return err
	}
	if channel.Type == models.ChannelTypeDirect {
		return models.Fail("", models.ReasonInvalidArgument, "direct channels cannot be archived")
	}
	member, err := u.requireMember(ctx, id, me)
	if err != nil {
		return err
	}
	if member.Role != models.MemberRoleAdmin {
		return models.Fail("", models.ReasonPermissionDenied, "only admins can archive channel %s", channelID)
	}
	if err := u.channels.Archive(ctx, id); err != nil {
		return err
	}

	channel.IsArchived = true
	channel.UpdatedAt = u.now()
	u.publishChannel(ctx, models.EventUpdate, channel)
	return nil
}

func (u *messaging) ListParticipants(ctx context.Context, channelID string) (members []*models.ChannelMember, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "list_participants", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID("channel id", channelID)
	if err != nil {
		return nil, err
	}
	if _, err := u.requireMember(ctx, id, me); err != nil {
		return nil, err
	}
	return u.members.ListActive(ctx, id)
}

// MarkChannelAsRead advances the read watermark of the acting user to now.
// The watermark never moves backwards.
func (u *messaging) MarkChannelAsRead(ctx context.Context, channelID string) (err error) {
	defer func(start time.Time) { err = u.finish(ctx, "mark_channel_as_read", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return err
	}
	id, err := parseID("channel id", channelID)
	if err != nil {
		return err
	}
	err = u.members.MarkChannelAsRead(ctx, id, me, u.now())
	if errors.Is(err, models.ErrNotFound) {
		return models.Fail("", models.ReasonPermissionDenied, "not a member of channel %s", channelID)
	}
	return err
}
