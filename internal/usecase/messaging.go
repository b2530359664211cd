package usecase

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"google.golang.org/grpc/codes"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/internal/realtime"
	"github.com/nguyentranbao-ct/team-messaging/internal/repo/mongodb"
	redisrepo "github.com/nguyentranbao-ct/team-messaging/internal/repo/redis"
	"github.com/nguyentranbao-ct/team-messaging/pkg/logger"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
	"github.com/nguyentranbao-ct/team-messaging/pkg/util"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 100
	searchLimit         = 50

	migrateHint = `run "server migrate" to create the collections and indexes`
)

// Messaging is the typed facade over the messaging backend. Every operation
// acts on behalf of the user attached to ctx with models.WithActor and
// returns a *models.Failure on error.
type Messaging interface {
	ListChannels(ctx context.Context) ([]*models.Channel, error)
	CreateChannel(ctx context.Context, req models.CreateChannelRequest) (*models.Channel, error)
	CreateDirectMessage(ctx context.Context, otherUserID string) (*models.Channel, error)
	JoinChannel(ctx context.Context, channelID string) (*models.ChannelMember, error)
	LeaveChannel(ctx context.Context, channelID string) error
	ArchiveChannel(ctx context.Context, channelID string) error
	ListParticipants(ctx context.Context, channelID string) ([]*models.ChannelMember, error)
	MarkChannelAsRead(ctx context.Context, channelID string) error

	ListMessages(ctx context.Context, channelID string, limit, offset int) ([]*models.Message, error)
	SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.Message, error)
	EditMessage(ctx context.Context, messageID, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	AddReaction(ctx context.Context, messageID, emoji string) error
	RemoveReaction(ctx context.Context, messageID, emoji string) error
	SearchMessages(ctx context.Context, query, channelID string) ([]*models.Message, error)

	UploadFile(ctx context.Context, channelID string, file models.FileUpload) (*models.UploadedFile, error)
	OpenFile(ctx context.Context, path string) (io.ReadCloser, *models.FileInfo, error)

	ListUsers(ctx context.Context) ([]*models.Profile, error)
	UpsertProfile(ctx context.Context, req models.UpdateProfileRequest) (*models.Profile, error)

	UpdatePresence(ctx context.Context, req models.UpdatePresenceRequest) (*models.Presence, error)
	// TouchPresence refreshes last_seen of the acting user without changing
	// the status.
	TouchPresence(ctx context.Context) (*models.Presence, error)
	GetUsersPresence(ctx context.Context, userIDs []string) ([]*models.Presence, error)
}

type messaging struct {
	conf        *config.Config
	channels    mongodb.ChannelRepository
	members     mongodb.MemberRepository
	messages    mongodb.MessageRepository
	reactions   mongodb.ReactionRepository
	mentions    mongodb.MentionRepository
	attachments mongodb.AttachmentRepository
	profiles    mongodb.ProfileRepository
	blobs       mongodb.BlobStore
	presence    redisrepo.PresenceRepository
	publisher   realtime.Publisher
	outbox      Outbox
	validate    *validator.Validate
	metrics     *prometheus.HistogramVec
	now         func() time.Time
}

func NewMessaging(
	conf *config.Config,
	channels mongodb.ChannelRepository,
	members mongodb.MemberRepository,
	messages mongodb.MessageRepository,
	reactions mongodb.ReactionRepository,
	mentions mongodb.MentionRepository,
	attachments mongodb.AttachmentRepository,
	profiles mongodb.ProfileRepository,
	blobs mongodb.BlobStore,
	presence redisrepo.PresenceRepository,
	publisher realtime.Publisher,
	outbox Outbox,
) (Messaging, error) {
	metrics, err := util.GetHistogramVec("messaging_operation_duration_seconds", "op", "code")
	if err != nil {
		return nil, err
	}
	return &messaging{
		conf:        conf,
		channels:    channels,
		members:     members,
		messages:    messages,
		reactions:   reactions,
		mentions:    mentions,
		attachments: attachments,
		profiles:    profiles,
		blobs:       blobs,
		presence:    presence,
		publisher:   publisher,
		outbox:      outbox,
		validate:    validator.New(),
		metrics:     metrics,
		now:         time.Now,
	}, nil
}

// finish turns err into a tagged failure, logs it and records the operation
// latency. Call it deferred with named results.
func (u *messaging) finish(ctx context.Context, op string, start time.Time, err error) error {
	code := codes.OK
	if err != nil {
		f := classify(op, err)
		code = f.Reason.Code()
		log.Logw(ctx, failureLevel(f.Reason), "messaging operation failed",
			"op", op,
			"code", f.Reason,
			"message", f.Message,
			"hint", f.Hint,
			"error", f.Err,
		)
		err = f
	}
	u.metrics.WithLabelValues(op, code.String()).Observe(time.Since(start).Seconds())
	return err
}

func classify(op string, err error) *models.Failure {
	f := models.AsFailure(op, err)
	if f.Reason == models.ReasonInternal {
		if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
			errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			f.Reason = models.ReasonUnavailable
		}
	}
	var cmdErr mongo.CommandError
	if f.Hint == "" && errors.As(err, &cmdErr) && (cmdErr.Code == 26 || cmdErr.Code == 27) {
		// NamespaceNotFound, IndexNotFound
		f.Hint = migrateHint
	}
	return f
}

func failureLevel(reason models.Reason) logger.Level {
	switch reason {
	case models.ReasonNotFound,
		models.ReasonPermissionDenied,
		models.ReasonUnauthenticated,
		models.ReasonInvalidArgument,
		models.ReasonAlreadyExists:
		return logger.WarnLevel
	default:
		return logger.ErrorLevel
	}
}

func actor(ctx context.Context) (string, error) {
	userID, ok := models.ActorFrom(ctx)
	if !ok {
		return "", models.Fail("", models.ReasonUnauthenticated, "no authenticated user")
	}
	return userID, nil
}

func parseID(field, value string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return primitive.NilObjectID, models.Fail("", models.ReasonInvalidArgument, "invalid %s %q", field, value)
	}
	return id, nil
}

func invalidArgument(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return models.Fail("", models.ReasonInvalidArgument, "%s", verrs.Error())
	}
	return models.Fail("", models.ReasonInvalidArgument, "%v", err)
}

func (u *messaging) getChannel(ctx context.Context, channelID primitive.ObjectID) (*models.Channel, error) {
	channel, err := u.channels.GetByID(ctx, channelID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.Fail("", models.ReasonNotFound, "channel %s not found", channelID.Hex())
	}
	return channel, err
}

// requireMember fails with permission_denied unless userID is an active
// member of the channel.
func (u *messaging) requireMember(ctx context.Context, channelID primitive.ObjectID, userID string) (*models.ChannelMember, error) {
	member, err := u.members.Get(ctx, channelID, userID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && !member.IsActive) {
		return nil, models.Fail("", models.ReasonPermissionDenied, "not a member of channel %s", channelID.Hex())
	}
	if err != nil {
		return nil, err
	}
	return member, nil
}

// canRead allows members and, for public channels, anyone signed in.
func (u *messaging) canRead(ctx context.Context, channelID primitive.ObjectID, userID string) error {
	channel, err := u.getChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if channel.Type == models.ChannelTypePublic {
		return nil
	}
	_, err = u.requireMember(ctx, channelID, userID)
	return err
}

func (u *messaging) publish(ctx context.Context, ev models.ChangeEvent) {
	if err := u.publisher.Publish(ctx, ev); err != nil {
		log.Errorw(ctx, "publish change event",
			"table", ev.Table,
			"type", ev.Type,
			"record_id", ev.RecordID,
			"error", err)
	}
}

func (u *messaging) publishRecord(ctx context.Context, table models.Table, typ models.EventType, recordID, channelID, userID string, record any) {
	ev, err := models.NewChangeEvent(table, typ, recordID, record)
	if err != nil {
		log.Errorw(ctx, "build change event", "table", table, "error", err)
		return
	}
	ev.ChannelID = channelID
	ev.UserID = userID
	u.publish(ctx, ev)
}

func (u *messaging) publishMessage(ctx context.Context, typ models.EventType, msg *models.Message) {
	u.publishRecord(ctx, models.TableMessages, typ, msg.ID.Hex(), msg.ChannelID.Hex(), msg.SenderID, msg)
}

func (u *messaging) publishMember(ctx context.Context, typ models.EventType, member *models.ChannelMember) {
	var record any
	if typ != models.EventDelete {
		record = member
	}
	u.publishRecord(ctx, models.TableChannelMembers, typ, member.ID.Hex(), member.ChannelID.Hex(), member.UserID, record)
}

func (u *messaging) publishChannel(ctx context.Context, typ models.EventType, channel *models.Channel) {
	u.publishRecord(ctx, models.TableChannels, typ, channel.ID.Hex(), channel.ID.Hex(), "", channel)
}
