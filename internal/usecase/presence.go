package usecase

import (
	"context"
	"time"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/pkg/util"
)

func (u *messaging) ListUsers(ctx context.Context) (profiles []*models.Profile, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "list_users", start, err) }(time.Now())

	if _, err := actor(ctx); err != nil {
		return nil, err
	}
	return u.profiles.ListActive(ctx)
}

func (u *messaging) UpsertProfile(ctx context.Context, req models.UpdateProfileRequest) (profile *models.Profile, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "upsert_profile", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := u.validate.Struct(req); err != nil {
		return nil, invalidArgument(err)
	}
	return u.profiles.Upsert(ctx, me, req)
}

func (u *messaging) UpdatePresence(ctx context.Context, req models.UpdatePresenceRequest) (presence *models.Presence, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "update_presence", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := u.validate.Struct(req); err != nil {
		return nil, invalidArgument(err)
	}

	now := u.now()
	presence = &models.Presence{
		UserID:       me,
		Status:       req.Status,
		CustomStatus: req.CustomStatus,
		LastSeen:     now,
		UpdatedAt:    now,
	}
	if err := u.presence.Upsert(ctx, presence); err != nil {
		return nil, err
	}
	publishPresence(ctx, u.publish, presence)
	return presence, nil
}

func (u *messaging) TouchPresence(ctx context.Context) (presence *models.Presence, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "touch_presence", start, err) }(time.Now())

	me, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	return u.presence.Touch(ctx, me, u.now())
}

func (u *messaging) GetUsersPresence(ctx context.Context, userIDs []string) (presence []*models.Presence, err error) {
	defer func(start time.Time) { err = u.finish(ctx, "get_users_presence", start, err) }(time.Now())

	if _, err := actor(ctx); err != nil {
		return nil, err
	}
	userIDs = util.Unique(userIDs)
	if len(userIDs) == 0 {
		return []*models.Presence{}, nil
	}
	return u.presence.GetMany(ctx, userIDs)
}

func publishPresence(ctx context.Context, publish func(context.Context, models.ChangeEvent), presence *models.Presence) {
	ev, err := models.NewChangeEvent(models.TablePresence, models.EventUpdate, presence.UserID, presence)
	if err != nil {
		return
	}
	ev.UserID = presence.UserID
	publish(ctx, ev)
}
