package usecase

import (
	"bytes"
	"context"
	"io"
	"slices"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/internal/realtime"
)

type fakeStore struct {
	clock       time.Time
	channels    map[primitive.ObjectID]*models.Channel
	members     map[string]*models.ChannelMember
	messages    map[primitive.ObjectID]*models.Message
	reactions   map[string]*models.Reaction
	mentions    map[primitive.ObjectID][]string
	attachments []*models.Attachment
	profiles    map[string]*models.Profile
	blobs       map[string][]byte
	presence    map[string]*models.Presence

	failMemberAdd string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clock:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		channels:  map[primitive.ObjectID]*models.Channel{},
		members:   map[string]*models.ChannelMember{},
		messages:  map[primitive.ObjectID]*models.Message{},
		reactions: map[string]*models.Reaction{},
		mentions:  map[primitive.ObjectID][]string{},
		profiles:  map[string]*models.Profile{},
		blobs:     map[string][]byte{},
		presence:  map[string]*models.Presence{},
	}
}

// tick advances the fake clock so stored rows have distinct timestamps.
func (s *fakeStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func memberKey(channelID primitive.ObjectID, userID string) string {
	return channelID.Hex() + "/" + userID
}

type fakeChannels struct{ s *fakeStore }

func (f fakeChannels) Create(_ context.Context, channel *models.Channel) error {
	channel.ID = primitive.NewObjectID()
	channel.CreatedAt = f.s.tick()
	channel.UpdatedAt = channel.CreatedAt
	cp := *channel
	f.s.channels[channel.ID] = &cp
	return nil
}

func (f fakeChannels) GetByID(_ context.Context, id primitive.ObjectID) (*models.Channel, error) {
	ch, ok := f.s.channels[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (f fakeChannels) ListForUser(_ context.Context, userID string) ([]*models.Channel, error) {
	var out []*models.Channel
	for _, m := range f.s.members {
		ch := f.s.channels[m.ChannelID]
		if m.UserID != userID || !m.IsActive || ch == nil || ch.IsArchived {
			continue
		}
		cp := *ch
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return lastActivity(out[i]).After(lastActivity(out[j]))
	})
	return out, nil
}

func lastActivity(ch *models.Channel) time.Time {
	if ch.LastMessageAt != nil {
		return *ch.LastMessageAt
	}
	return ch.UpdatedAt
}

func (f fakeChannels) CreateDirectMessageChannel(ctx context.Context, a, b string) (*models.Channel, bool, error) {
	key := models.DirectMessageKey(a, b)
	for _, ch := range f.s.channels {
		if ch.DMKey == key {
			cp := *ch
			return &cp, false, nil
		}
	}
	ch := &models.Channel{Type: models.ChannelTypeDirect, CreatedBy: a, DMKey: key}
	_ = f.Create(ctx, ch)
	members := fakeMembers{f.s}
	_, _ = members.Add(ctx, ch.ID, a, models.MemberRoleMember)
	_, _ = members.Add(ctx, ch.ID, b, models.MemberRoleMember)
	return ch, true, nil
}

func (f fakeChannels) Archive(_ context.Context, id primitive.ObjectID) error {
	ch, ok := f.s.channels[id]
	if !ok {
		return models.ErrNotFound
	}
	ch.IsArchived = true
	return nil
}

func (f fakeChannels) TouchLastMessage(_ context.Context, id primitive.ObjectID, at time.Time) error {
	ch, ok := f.s.channels[id]
	if !ok {
		return models.ErrNotFound
	}
	if ch.LastMessageAt == nil || at.After(*ch.LastMessageAt) {
		ch.LastMessageAt = &at
	}
	return nil
}

type fakeMembers struct{ s *fakeStore }

func (f fakeMembers) Add(_ context.Context, channelID primitive.ObjectID, userID string, role models.MemberRole) (*models.ChannelMember, error) {
	if f.s.failMemberAdd == userID {
		return nil, models.ErrInvalidArgument
	}
	key := memberKey(channelID, userID)
	m, ok := f.s.members[key]
	if !ok {
		m = &models.ChannelMember{ID: primitive.NewObjectID(), ChannelID: channelID, UserID: userID, JoinedAt: f.s.tick()}
		f.s.members[key] = m
	}
	if !m.IsActive {
		m.Role = role
	}
	m.IsActive = true
	m.LeftAt = nil
	cp := *m
	return &cp, nil
}

func (f fakeMembers) Get(_ context.Context, channelID primitive.ObjectID, userID string) (*models.ChannelMember, error) {
	m, ok := f.s.members[memberKey(channelID, userID)]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f fakeMembers) ListActive(_ context.Context, channelID primitive.ObjectID) ([]*models.ChannelMember, error) {
	var out []*models.ChannelMember
	for _, m := range f.s.members {
		if m.ChannelID == channelID && m.IsActive {
			cp := *m
			cp.User = f.s.profiles[m.UserID]
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (f fakeMembers) Deactivate(_ context.Context, channelID primitive.ObjectID, userID string) error {
	m, ok := f.s.members[memberKey(channelID, userID)]
	if !ok || !m.IsActive {
		return models.ErrNotFound
	}
	now := f.s.tick()
	m.IsActive = false
	m.LeftAt = &now
	return nil
}

func (f fakeMembers) MarkChannelAsRead(_ context.Context, channelID primitive.ObjectID, userID string, at time.Time) error {
	m, ok := f.s.members[memberKey(channelID, userID)]
	if !ok || !m.IsActive {
		return models.ErrNotFound
	}
	if m.LastReadAt == nil || at.After(*m.LastReadAt) {
		m.LastReadAt = &at
	}
	return nil
}

type fakeMessages struct{ s *fakeStore }

func (f fakeMessages) Create(_ context.Context, msg *models.Message) error {
	msg.ID = primitive.NewObjectID()
	msg.CreatedAt = f.s.tick()
	msg.UpdatedAt = msg.CreatedAt
	cp := *msg
	f.s.messages[msg.ID] = &cp
	return nil
}

func (f fakeMessages) GetByID(_ context.Context, id primitive.ObjectID) (*models.Message, error) {
	m, ok := f.s.messages[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f fakeMessages) GetWithRelations(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	return f.GetByID(ctx, id)
}

func (f fakeMessages) ListByChannel(_ context.Context, channelID primitive.ObjectID, limit, offset int64) ([]*models.Message, error) {
	var all []*models.Message
	for _, m := range f.s.messages {
		if m.ChannelID == channelID && !m.IsDeleted {
			cp := *m
			cp.User = f.s.profiles[m.SenderID]
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= int64(len(all)) {
		return []*models.Message{}, nil
	}
	all = all[offset:]
	if int64(len(all)) > limit {
		all = all[:limit]
	}
	slices.Reverse(all)
	return all, nil
}

func (f fakeMessages) UpdateContent(_ context.Context, id primitive.ObjectID, content string) (*models.Message, error) {
	m, ok := f.s.messages[id]
	if !ok || m.IsDeleted {
		return nil, models.ErrNotFound
	}
	m.Content = content
	m.IsEdited = true
	m.UpdatedAt = f.s.tick()
	cp := *m
	return &cp, nil
}

func (f fakeMessages) SoftDelete(_ context.Context, id primitive.ObjectID) (*models.Message, error) {
	m, ok := f.s.messages[id]
	if !ok || m.IsDeleted {
		return nil, models.ErrNotFound
	}
	m.IsDeleted = true
	m.UpdatedAt = f.s.tick()
	cp := *m
	return &cp, nil
}

func (f fakeMessages) Search(_ context.Context, query string, channelIDs []primitive.ObjectID, limit int64) ([]*models.Message, error) {
	var out []*models.Message
	for _, m := range f.s.messages {
		if !m.IsDeleted && slices.Contains(channelIDs, m.ChannelID) && strings.Contains(strings.ToLower(m.Content), strings.ToLower(query)) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeReactions struct{ s *fakeStore }

func reactionKey(messageID primitive.ObjectID, userID, emoji string) string {
	return messageID.Hex() + "/" + userID + "/" + emoji
}

func (f fakeReactions) Add(_ context.Context, messageID primitive.ObjectID, userID, emoji string) (*models.Reaction, error) {
	key := reactionKey(messageID, userID, emoji)
	r, ok := f.s.reactions[key]
	if !ok {
		r = &models.Reaction{ID: primitive.NewObjectID(), MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: f.s.tick()}
		f.s.reactions[key] = r
	}
	return r, nil
}

func (f fakeReactions) Remove(_ context.Context, messageID primitive.ObjectID, userID, emoji string) (*models.Reaction, error) {
	key := reactionKey(messageID, userID, emoji)
	r, ok := f.s.reactions[key]
	if !ok {
		return nil, nil
	}
	delete(f.s.reactions, key)
	return r, nil
}

type fakeMentions struct{ s *fakeStore }

func (f fakeMentions) CreateMany(_ context.Context, messageID primitive.ObjectID, userIDs []string) error {
	f.s.mentions[messageID] = append(f.s.mentions[messageID], userIDs...)
	return nil
}

type fakeAttachments struct{ s *fakeStore }

func (f fakeAttachments) Create(_ context.Context, a *models.Attachment) error {
	a.ID = primitive.NewObjectID()
	f.s.attachments = append(f.s.attachments, a)
	return nil
}

type fakeProfiles struct{ s *fakeStore }

func (f fakeProfiles) GetByID(_ context.Context, userID string) (*models.Profile, error) {
	p, ok := f.s.profiles[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return p, nil
}

func (f fakeProfiles) ListActive(_ context.Context) ([]*models.Profile, error) {
	var out []*models.Profile
	for _, p := range f.s.profiles {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (f fakeProfiles) Upsert(_ context.Context, userID string, req models.UpdateProfileRequest) (*models.Profile, error) {
	p, ok := f.s.profiles[userID]
	if !ok {
		p = &models.Profile{ID: userID, IsActive: true, CreatedAt: f.s.tick()}
		f.s.profiles[userID] = p
	}
	p.FullName = req.FullName
	p.AvatarURL = req.AvatarURL
	p.Email = req.Email
	p.UpdatedAt = f.s.tick()
	return p, nil
}

type fakeBlobs struct{ s *fakeStore }

func (f fakeBlobs) Upload(_ context.Context, path, _ string, body io.Reader) (int64, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}
	f.s.blobs[path] = data
	return int64(len(data)), nil
}

func (f fakeBlobs) Open(_ context.Context, path string) (io.ReadCloser, *models.FileInfo, error) {
	data, ok := f.s.blobs[path]
	if !ok {
		return nil, nil, models.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), &models.FileInfo{Path: path, Size: int64(len(data))}, nil
}

type fakePresence struct{ s *fakeStore }

func (f fakePresence) Upsert(_ context.Context, p *models.Presence) error {
	cp := *p
	f.s.presence[p.UserID] = &cp
	return nil
}

func (f fakePresence) Get(_ context.Context, userID string) (*models.Presence, error) {
	p, ok := f.s.presence[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f fakePresence) GetMany(ctx context.Context, userIDs []string) ([]*models.Presence, error) {
	var out []*models.Presence
	for _, id := range userIDs {
		if p, err := f.Get(ctx, id); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f fakePresence) Touch(ctx context.Context, userID string, at time.Time) (*models.Presence, error) {
	p, err := f.Get(ctx, userID)
	if err != nil {
		p = &models.Presence{UserID: userID, Status: models.PresenceOnline}
	}
	p.LastSeen = at
	p.UpdatedAt = at
	return p, f.Upsert(ctx, p)
}

func (f fakePresence) ListStale(_ context.Context, before time.Time, limit int64) ([]string, error) {
	var out []string
	for id, p := range f.s.presence {
		if p.Status != models.PresenceOffline && p.LastSeen.Before(before) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// syncOutbox runs tasks inline and records their errors.
type syncOutbox struct {
	errs map[string]error
}

func (o *syncOutbox) Submit(ctx context.Context, name string, task func(ctx context.Context) error) {
	if err := task(ctx); err != nil {
		o.errs[name] = err
	}
}

type fixture struct {
	store  *fakeStore
	hub    *realtime.Hub
	outbox *syncOutbox
	svc    Messaging
}

func newFixture() *fixture {
	store := newFakeStore()
	hub := realtime.NewHub()
	ob := &syncOutbox{errs: map[string]error{}}
	conf := &config.Config{
		Storage: config.StorageConfig{PublicBaseURL: "http://files.test/", MaxUploadBytes: 1 << 10},
	}
	svc, err := NewMessaging(conf,
		fakeChannels{store},
		fakeMembers{store},
		fakeMessages{store},
		fakeReactions{store},
		fakeMentions{store},
		fakeAttachments{store},
		fakeProfiles{store},
		fakeBlobs{store},
		fakePresence{store},
		hub,
		ob,
	)
	if err != nil {
		panic(err)
	}
	svc.(*messaging).now = store.tick
	return &fixture{store: store, hub: hub, outbox: ob, svc: svc}
}

func (f *fixture) addUser(id, name string) {
	f.store.profiles[id] = &models.Profile{ID: id, FullName: name, IsActive: true}
}

func as(userID string) context.Context {
	return models.WithActor(context.Background(), userID)
}
