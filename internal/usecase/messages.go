package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
	"github.com/nguyentranbao-ct/team-messaging/pkg/util"
)

func (u *messaging) ListMessages(ctx context.Context, channelID string, limit, offset int) (messages []*models.Message, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "list_messages", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID("channel id", channelID)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, models.Fail("", models.ReasonInvalidArgument, "offset must not be negative")
	}
	switch {
	case limit <= 0:
		limit = defaultMessageLimit
	case limit > maxMessageLimit:
		limit = maxMessageLimit
	}
	if err := u.canRead(ctx, id, me); err != nil {
		return nil, err
	}
	return u.messages.ListByChannel(ctx, id, int64(limit), int64(offset))
}

// SendMessage stores a message from the acting user. Mentions, attachment
// rows and the channel activity timestamp are written through the outbox.
func (u *messaging) SendMessage(ctx context.Context, req models.SendMessageRequest) (msg *models.Message, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "send_message", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := u.validate.Struct(req); err != nil {
		return nil, invalidArgument(err)
	}
	channelID, err := parseID("channel id", req.ChannelID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" && req.File == nil {
		return nil, models.Fail("", models.ReasonInvalidArgument, "message has no content")
	}
	if _, err := u.requireMember(ctx, channelID, me); err != nil {
		return nil, err
	}
	channel, err := u.getChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.IsArchived {
		return nil, models.Fail("", models.ReasonInvalidArgument, "channel %s is archived", req.ChannelID)
	}

	msg = &models.Message{
		ChannelID:   channelID,
		SenderID:    me,
		Content:     req.Content,
		MessageType: messageType(req),
	}
	if req.ParentMessageID != "" {
		parentID, err := u.replyTarget(ctx, channelID, req.ParentMessageID)
		if err != nil {
			return nil, err
		}
		msg.ParentMessageID = &parentID
	}
	if f := req.File; f != nil {
		msg.FileURL = util.Ptr(f.FileURL)
		msg.FileName = util.Ptr(f.FileName)
		msg.FileSize = util.Ptr(f.FileSize)
		msg.FileType = util.Ptr(f.FileType)
	}

	if err := u.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	u.afterSend(ctx, msg, req)

	profile, err := u.profiles.GetByID(ctx, me)
	switch {
	case err == nil:
		msg.User = profile
	case !errors.Is(err, models.ErrNotFound):
		log.Warnw(ctx, "load sender profile", "user_id", me, "error", err)
	}

	u.publishMessage(ctx, models.EventInsert, msg)
	return msg, nil
}

func messageType(req models.SendMessageRequest) models.MessageType {
	if req.MessageType != "" {
		return req.MessageType
	}
	if req.File == nil {
		return models.MessageTypeText
	}
	if strings.HasPrefix(req.File.MimeType, "image/") {
		return models.MessageTypeImage
	}
	return models.MessageTypeFile
}

func (u *messaging) replyTarget(ctx context.Context, channelID primitive.ObjectID, parentHex string) (primitive.ObjectID, error) {
	parentID, err := parseID("parent message id", parentHex)
	if err != nil {
		return parentID, err
	}
	parent, err := u.messages.GetByID(ctx, parentID)
	if errors.Is(err, models.ErrNotFound) {
		return parentID, models.Fail("", models.ReasonNotFound, "parent message %s not found", parentHex)
	}
	if err != nil {
		return parentID, err
	}
	if parent.ChannelID != channelID {
		return parentID, models.Fail("", models.ReasonInvalidArgument, "parent message %s belongs to another channel", parentHex)
	}
	return parentID, nil
}

func (u *messaging) afterSend(ctx context.Context, msg *models.Message, req models.SendMessageRequest) {
	if mentioned := util.Unique(req.MentionedUserIDs); len(mentioned) > 0 {
		u.outbox.Submit(ctx, "create_mentions", func(ctx context.Context) error {
			return u.mentions.CreateMany(ctx, msg.ID, mentioned)
		})
	}
	if f := req.File; f != nil {
		attachment := &models.Attachment{
			MessageID:  msg.ID,
			FileURL:    f.FileURL,
			FileName:   f.FileName,
			FileSize:   f.FileSize,
			FileType:   f.FileType,
			MimeType:   f.MimeType,
			UploadedBy: msg.SenderID,
		}
		u.outbox.Submit(ctx, "create_attachment", func(ctx context.Context) error {
			return u.attachments.Create(ctx, attachment)
		})
	}
	u.outbox.Submit(ctx, "touch_channel", func(ctx context.Context) error {
		if err := u.channels.TouchLastMessage(ctx, msg.ChannelID, msg.CreatedAt); err != nil {
			return err
		}
		channel, err := u.channels.GetByID(ctx, msg.ChannelID)
		if err != nil {
			return err
		}
		u.publishChannel(ctx, models.EventUpdate, channel)
		return nil
	})
}

func (u *messaging) EditMessage(ctx context.Context, messageID, content string) (msg *models.Message, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "edit_message", start, err) }(time.Now())

	if strings.TrimSpace(content) == "" {
		return nil, models.Fail("", models.ReasonInvalidArgument, "content is required")
	}
	id, err := u.ownMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	msg, err = u.messages.UpdateContent(ctx, id, content)
	if err != nil {
		return nil, err
	}
	u.publishMessage(ctx, models.EventUpdate, msg)
	return msg, nil
}

// DeleteMessage soft deletes; the row stays but is hidden from listings.
func (u *messaging) DeleteMessage(ctx context.Context, messageID string) (err error) {
	defer func(start time.Time) { err = u.finish(ctx, "delete_message", start, err) }(time.Now())

	id, err := u.ownMessage(ctx, messageID)
	if err != nil {
		return err
	}
	msg, err := u.messages.SoftDelete(ctx, id)
	if err != nil {
		return err
	}
	u.publishMessage(ctx, models.EventUpdate, msg)
	return nil
}

// ownMessage checks that messageID exists, is not deleted and was sent by
// the acting user.
func (u *messaging) ownMessage(ctx context.Context, messageID string) (primitive.ObjectID, error) {
	me, err := actor(ctx)
	if err != nil {
		return primitive.NilObjectID, err
	}
	msg, err := u.liveMessage(ctx, messageID)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if msg.SenderID != me {
		return primitive.NilObjectID, models.Fail("", models.ReasonPermissionDenied, "message %s was sent by another user", messageID)
	}
	return msg.ID, nil
}

func (u *messaging) liveMessage(ctx context.Context, messageID string) (*models.Message, error) {
	id, err := parseID("message id", messageID)
	if err != nil {
		return nil, err
	}
	msg, err := u.messages.GetByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) || (err == nil && msg.IsDeleted) {
		return nil, models.Fail("", models.ReasonNotFound, "message %s not found", messageID)
	}
	return msg, err
}

func (u *messaging) AddReaction(ctx context.Context, messageID, emoji string) (err error) {
	defer func(start time.Time) { err = u.finish(ctx, "add_reaction", start, err) }(time.Now())

	me, msg, emoji, err := u.reactionTarget(ctx, messageID, emoji)
	if err != nil {
		return err
	}
	reaction, err := u.reactions.Add(ctx, msg.ID, me, emoji)
	if err != nil {
		return err
	}
	u.publishRecord(ctx, models.TableReactions, models.EventInsert, reaction.ID.Hex(), msg.ChannelID.Hex(), me, reaction)
	return nil
}

// RemoveReaction is a no-op when the reaction does not exist.
func (u *messaging) RemoveReaction(ctx context.Context, messageID, emoji string) (err error) {
	defer func(start time.Time) { err = u.finish(ctx, "remove_reaction", start, err) }(time.Now())

	me, msg, emoji, err := u.reactionTarget(ctx, messageID, emoji)
	if err != nil {
		return err
	}
	reaction, err := u.reactions.Remove(ctx, msg.ID, me, emoji)
	if err != nil || reaction == nil {
		return err
	}
	u.publishRecord(ctx, models.TableReactions, models.EventDelete, reaction.ID.Hex(), msg.ChannelID.Hex(), me, reaction)
	return nil
}

func (u *messaging) reactionTarget(ctx context.Context, messageID, emoji string) (string, *models.Message, string, error) {
	me, err := actor(ctx)
	if err != nil {
		return "", nil, "", err
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return "", nil, "", models.Fail("", models.ReasonInvalidArgument, "emoji is required")
	}
	msg, err := u.liveMessage(ctx, messageID)
	if err != nil {
		return "", nil, "", err
	}
	if _, err := u.requireMember(ctx, msg.ChannelID, me); err != nil {
		return "", nil, "", err
	}
	return me, msg, emoji, nil
}

// SearchMessages runs a full text search over the channels the acting user
// belongs to, or over channelID only when given.
func (u *messaging) SearchMessages(ctx context.Context, query, channelID string) (messages []*models.Message, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "search_messages", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.Fail("", models.ReasonInvalidArgument, "search query is required")
	}

	var scope []primitive.ObjectID
	if channelID != "" {
		id, err := parseID("channel id", channelID)
		if err != nil {
			return nil, err
		}
		if err := u.canRead(ctx, id, me); err != nil {
			return nil, err
		}
		scope = []primitive.ObjectID{id}
	} else {
		channels, err := u.channels.ListForUser(ctx, me)
		if err != nil {
			return nil, err
		}
		scope = util.ConvertList(channels, func(c *models.Channel) primitive.ObjectID { return c.ID })
	}
	return u.messages.Search(ctx, query, scope, searchLimit)
}
