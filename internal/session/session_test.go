package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/internal/realtime"
	"github.com/nguyentranbao-ct/team-messaging/internal/usecase"
)

// fakeAPI implements the messaging calls a session makes. Calls it does not
// override panic through the nil embedded interface.
type fakeAPI struct {
	usecase.Messaging
	hub *realtime.Hub

	mu           sync.Mutex
	clock        time.Time
	channels     []*models.Channel
	messages     map[string][]*models.Message
	participants map[string][]*models.ChannelMember
	calls        map[string]int
	statuses     []models.PresenceStatus
	readMarks    []string
	// channels whose reads fail for every caller
	denied map[string]bool
}

func newFakeAPI(hub *realtime.Hub, channelNames ...string) *fakeAPI {
	api := &fakeAPI{
		hub:          hub,
		clock:        time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		messages:     map[string][]*models.Message{},
		participants: map[string][]*models.ChannelMember{},
		calls:        map[string]int{},
		denied:       map[string]bool{},
	}
	for _, name := range channelNames {
		api.addChannel(name, models.ChannelTypePublic)
	}
	return api
}

func (a *fakeAPI) addChannel(name string, typ models.ChannelType) *models.Channel {
	ch := &models.Channel{ID: primitive.NewObjectID(), Name: &name, Type: typ, UpdatedAt: a.tick()}
	a.channels = append(a.channels, ch)
	id := ch.ID.Hex()
	a.participants[id] = []*models.ChannelMember{
		{ChannelID: ch.ID, UserID: "alice", Role: models.MemberRoleAdmin, IsActive: true},
		{ChannelID: ch.ID, UserID: "bob", Role: models.MemberRoleMember, IsActive: true},
	}
	return ch
}

func (a *fakeAPI) tick() time.Time {
	a.clock = a.clock.Add(time.Second)
	return a.clock
}

func (a *fakeAPI) seed(channelID primitive.ObjectID, sender string, n int) {
	for i := 0; i < n; i++ {
		a.messages[channelID.Hex()] = append(a.messages[channelID.Hex()], &models.Message{
			ID:        primitive.NewObjectID(),
			ChannelID: channelID,
			SenderID:  sender,
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: a.tick(),
		})
	}
}

func (a *fakeAPI) count(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[name]
}

func (a *fakeAPI) called(name string) {
	a.mu.Lock()
	a.calls[name]++
	a.mu.Unlock()
}

func (a *fakeAPI) ListChannels(ctx context.Context) ([]*models.Channel, error) {
	a.called("ListChannels")
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.channels), nil
}

func (a *fakeAPI) ListMessages(ctx context.Context, channelID string, limit, offset int) ([]*models.Message, error) {
	a.called("ListMessages")
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.denied[channelID] {
		return nil, models.Fail("list_messages", models.ReasonPermissionDenied, "not a member of this channel")
	}
	all := a.messages[channelID]
	end := len(all) - offset
	if end <= 0 {
		return []*models.Message{}, nil
	}
	start := max(end-limit, 0)
	return slices.Clone(all[start:end]), nil
}

func (a *fakeAPI) ListParticipants(ctx context.Context, channelID string) ([]*models.ChannelMember, error) {
	a.called("ListParticipants")
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.denied[channelID] {
		return nil, models.Fail("list_participants", models.ReasonPermissionDenied, "not a member of this channel")
	}
	return slices.Clone(a.participants[channelID]), nil
}

func (a *fakeAPI) GetUsersPresence(ctx context.Context, userIDs []string) ([]*models.Presence, error) {
	a.called("GetUsersPresence")
	out := make([]*models.Presence, 0, len(userIDs))
	for _, id := range userIDs {
		out = append(out, &models.Presence{UserID: id, Status: models.PresenceAway})
	}
	return out, nil
}

func (a *fakeAPI) UpdatePresence(ctx context.Context, req models.UpdatePresenceRequest) (*models.Presence, error) {
	a.called("UpdatePresence")
	userID, _ := models.ActorFrom(ctx)
	a.mu.Lock()
	a.statuses = append(a.statuses, req.Status)
	a.mu.Unlock()
	return &models.Presence{UserID: userID, Status: req.Status}, nil
}

func (a *fakeAPI) TouchPresence(ctx context.Context) (*models.Presence, error) {
	a.called("TouchPresence")
	return &models.Presence{}, nil
}

func (a *fakeAPI) MarkChannelAsRead(ctx context.Context, channelID string) error {
	a.mu.Lock()
	a.readMarks = append(a.readMarks, channelID)
	a.mu.Unlock()
	return nil
}

func (a *fakeAPI) SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.Message, error) {
	userID, _ := models.ActorFrom(ctx)
	channelID, err := primitive.ObjectIDFromHex(req.ChannelID)
	if err != nil {
		return nil, models.Fail("send_message", models.ReasonInvalidArgument, "bad channel")
	}
	a.mu.Lock()
	msg := &models.Message{ID: primitive.NewObjectID(), ChannelID: channelID, SenderID: userID, Content: req.Content, CreatedAt: a.tick()}
	a.messages[req.ChannelID] = append(a.messages[req.ChannelID], msg)
	a.mu.Unlock()

	ev, err := models.NewChangeEvent(models.TableMessages, models.EventInsert, msg.ID.Hex(), msg)
	if err != nil {
		return nil, err
	}
	ev.ChannelID = req.ChannelID
	_ = a.hub.Publish(ctx, ev)
	return msg, nil
}

func (a *fakeAPI) EditMessage(ctx context.Context, messageID, content string) (*models.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, msgs := range a.messages {
		for _, m := range msgs {
			if m.ID.Hex() == messageID {
				edited := *m
				edited.Content = content
				edited.IsEdited = true
				edited.User = nil
				return &edited, nil
			}
		}
	}
	return nil, models.Fail("edit_message", models.ReasonNotFound, "missing")
}

func (a *fakeAPI) DeleteMessage(ctx context.Context, messageID string) error {
	return nil
}

func (a *fakeAPI) LeaveChannel(ctx context.Context, channelID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.channels = slices.DeleteFunc(a.channels, func(c *models.Channel) bool { return c.ID.Hex() == channelID })
	return nil
}

func (a *fakeAPI) CreateDirectMessage(ctx context.Context, other string) (*models.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addChannel("", models.ChannelTypeDirect), nil
}

func (a *fakeAPI) SearchMessages(ctx context.Context, query, channelID string) ([]*models.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*models.Message
	for _, m := range a.messages[channelID] {
		if m.Content == query {
			out = append(out, m)
		}
	}
	return out, nil
}

type inlineOutbox struct{}

func (inlineOutbox) Submit(ctx context.Context, name string, task func(ctx context.Context) error) {
	_ = task(ctx)
}

type recorder struct {
	events chan Event
}

func (r *recorder) observe(ev Event) {
	select {
	case r.events <- ev:
	default:
	}
}

// waitFor returns the first event of kind matching pred.
func (r *recorder) waitFor(t *testing.T, kind EventKind, pred func(Event) bool) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.events:
			if ev.Kind == kind && (pred == nil || pred(ev)) {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func newTestSession(t *testing.T, api *fakeAPI, userID string) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{events: make(chan Event, 1024)}
	factory := &Factory{api: api, feed: api.hub, outbox: inlineOutbox{}}
	s := factory.New(models.WithActor(context.Background(), userID), userID, rec.observe)
	t.Cleanup(s.Close)
	return s, rec
}

func TestStartWithoutUser(t *testing.T) {
	hub := realtime.NewHub()
	api := newFakeAPI(hub, "general")
	s, _ := newTestSession(t, api, "")

	require.NoError(t, s.Start())
	assert.Zero(t, api.count("ListChannels"))
	assert.Empty(t, s.subs.keys())
	assert.Zero(t, hub.Len())
}

func TestStartBootstraps(t *testing.T) {
	hub := realtime.NewHub()
	api := newFakeAPI(hub, "general", "random")
	general := api.channels[0]
	api.seed(general.ID, "bob", 3)

	s, _ := newTestSession(t, api, "alice")
	require.NoError(t, s.Start())

	state := s.State()
	assert.Equal(t, general.ID.Hex(), state.ActiveChannelID)
	assert.Len(t, state.Channels, 2)
	assert.Len(t, state.Messages[general.ID.Hex()], 3)
	assert.Len(t, state.Participants[general.ID.Hex()], 2)
	assert.Equal(t, models.PresenceAway, state.Presence["bob"].Status)
	assert.Equal(t, models.PresenceOnline, state.Presence["alice"].Status)
	assert.False(t, state.Loading)

	assert.Equal(t, []string{
		keyChannels,
		keyMembers,
		messagesKey(general.ID.Hex()),
		keyPresence,
		reactionsKey(general.ID.Hex()),
	}, s.subs.keys())
	assert.Equal(t, []models.PresenceStatus{models.PresenceOnline}, api.statuses)
}

func TestSelectChannelLoadsOnce(t *testing.T) {
	hub := realtime.NewHub()
	api := newFakeAPI(hub, "general", "random")
	general, random := api.channels[0].ID.Hex(), api.channels[1].ID.Hex()

	s, _ := newTestSession(t, api, "alice")
	require.NoError(t, s.Start())
	assert.Equal(t, 1, api.count("ListMessages"))

	require.NoError(t, s.SelectChannel(random))
	assert.Equal(t, 2, api.count("ListMessages"))
	assert.Contains(t, s.subs.keys(), messagesKey(random))
	assert.NotContains(t, s.subs.keys(), messagesKey(general))

	require.NoError(t, s.SelectChannel(general))
	require.NoError(t, s.SelectChannel(random))
	assert.Equal(t, 2, api.count("ListMessages"))
	assert.Equal(t, []string{random, general, random}, api.readMarks)
}

func TestSelectDeniedChannelKeepsPrevious(t *testing.T) {
	hub := realtime.NewHub()
	api := newFakeAPI(hub, "general")
	general := api.channels[0].ID.Hex()
	secret := api.addChannel("secret", models.ChannelTypePrivate).ID.Hex()
	api.denied[secret] = true

	s, events := newTestSession(t, api, "alice")
	require.NoError(t, s.Start())
	marks := len(api.readMarks)

	err := s.SelectChannel(secret)
	require.Error(t, err)
	assert.Equal(t, models.ReasonPermissionDenied, models.ReasonOf(err))
	events.waitFor(t, KindError, nil)

	state := s.State()
	assert.Equal(t, general, state.ActiveChannelID)
	assert.NotEmpty(t, state.Error)
	assert.NotContains(t, state.Messages, secret)
	assert.NotContains(t, state.Participants, secret)
	assert.Contains(t, s.subs.keys(), messagesKey(general))
	assert.NotContains(t, s.subs.keys(), messagesKey(secret))
	assert.NotContains(t, s.subs.keys(), reactionsKey(secret))
	assert.Len(t, api.readMarks, marks)

	bob := models.WithActor(context.Background(), "bob")
	_, err = api.SendMessage(bob, models.SendMessageRequest{ChannelID: secret, Content: "hidden"})
	require.NoError(t, err)
	_, err = api.SendMessage(bob, models.SendMessageRequest{ChannelID: general, Content: "visible"})
	require.NoError(t, err)

	ev := events.waitFor(t, KindMessageAppended, nil)
	assert.Equal(t, "visible", ev.Message.Content)
	assert.NotContains(t, s.State().Messages, secret)
}

func TestSendMessageDedupesRealtimeEcho(t *testing.T) {
	hub := realtime.NewHub()
	api := newFakeAPI(hub, "general")
	general := api.channels[0].ID.Hex()

	alice, _ := newTestSession(t, api, "alice")
	require.NoError(t, alice.Start())
	bob, bobEvents := newTestSession(t, api, "bob")
	require.NoError(t, bob.Start())

	sent, err := alice.SendMessage(models.SendMessageRequest{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, general, sent.ChannelID.Hex())

	ev := bobEvents.waitFor(t, KindMessageAppended, nil)
	assert.Equal(t, "hi", ev.Message.Content)
	assert.Equal(t, "alice", ev.Message.SenderID)

	// a later message proves the echo of "hi" has been handled
	_, err = bob.SendMessage(models.SendMessageRequest{Content: "hey"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(alice.State().Messages[general]) == 2
	}, 2*time.Second, 10*time.Millisecond)

	contents := func(s *Session) []string {
		var out []string
		for _, m := range s.State().Messages[general] {
			out = append(out, m.Content)
		}
		return out
	}
	assert.Equal(t, []string{"hi", "hey"}, contents(alice))
	assert.Equal(t, []string{"hi", "hey"}, contents(bob))
}

func TestLoadMorePrependsOlder(t *testing.T) {
	hub := realtime.NewHub()
	api := newFakeAPI(hub, "general")
	general := api.channels[0]
	api.seed(general.ID, "bob", pageSize+10)

	s, _ := newTestSession(t, api, "alice")
	require.NoError(t, s.Start())
	require.Len(t, s.State().Messages[general.ID.Hex()], pageSize)

	added, err := s.LoadMore()
	require.NoError(t, err)
	assert.Equal(t, 10, added)

	messages := s.State().Messages[general.ID.Hex()]
	require.Len(t, messages, pageSize+10)
	assert.Equal(t, "m0", messages[0].Content)
	assert.Equal(t, fmt.Sprintf("m%d", pageSize+9), messages[len(messages)-1].Content)

	added, err = s.LoadMore()
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestEditAndDeletePatchCache(t *testing.T) {
	hub := realtime.NewHub()
	api := newFakeAPI(hub, "general")
	general := api.channels[0]
	api.seed(general.ID, "alice", 2)
	api.messages[general.ID.Hex()][0].User = &models.Profile{ID: "alice", FullName: "Alice"}

	s, rec := newTestSession(t, api, "alice")
	require.NoError(t, s.Start())
	first := api.messages[general.ID.Hex()][0]
	second := api.messages[general.ID.Hex()][1]

	edited, err := s.EditMessage(first.ID.Hex(), "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", edited.Content)
	assert.True(t, edited.IsEdited)
	require.NotNil(t, edited.User)
	assert.Equal(t, "Alice", edited.User.FullName)

	require.NoError(t, s.DeleteMessage(second.ID.Hex()))
	ev := rec.waitFor(t, KindMessageRemoved, nil)
	assert.Equal(t, second.ID.Hex(), ev.MessageID)

	messages := s.State().Messages[general.ID.Hex()]
	require.Len(t, messages, 1)
	assert.Equal(t, "fixed", messages[0].Content)
}

func TestLeaveActiveChannelMovesToNext(t *testing.T) {
	hub := realtime.NewHub()
	api := newFakeAPI(hub, "general", "random")
	general, random := api.channels[0].ID.Hex(), api.channels[1].ID.Hex()

	s, _ := newTestSession(t, api, "alice")
	require.NoError(t, s.Start())

	require.NoError(t, s.LeaveChannel(general))
	state := s.State()
	assert.Equal(t, random, state.ActiveChannelID)
	assert.Len(t, state.Channels, 1)
	assert.NotContains(t, state.Messages, general)
	assert.NotContains(t, s.subs.keys(), messagesKey(general))
	assert.Contains(t, s.subs.keys(), messagesKey(random))
}

func TestStartDirectMessageReloadsChannels(t *testing.T) {
	hub := realtime.NewHub()
	api := newFakeAPI(hub, "general")
	s, _ := newTestSession(t, api, "alice")
	require.NoError(t, s.Start())

	channel, err := s.StartDirectMessage("bob")
	require.NoError(t, err)
	assert.Equal(t, 2, api.count("ListChannels"))
	state := s.State()
	assert.Equal(t, channel.ID.Hex(), state.ActiveChannelID)
	assert.Len(t, state.Channels, 2)
}

func TestSearchAndClear(t *testing.T) {
	hub := realtime.NewHub()
	api := newFakeAPI(hub, "general")
	api.seed(api.channels[0].ID, "bob", 3)
	s, rec := newTestSession(t, api, "alice")
	require.NoError(t, s.Start())

	results, err := s.Search("m1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	ev := rec.waitFor(t, KindSearchResults, nil)
	assert.Len(t, ev.Results, 1)
	assert.Equal(t, "m1", s.State().SearchQuery)

	s.ClearSearch()
	assert.Empty(t, s.State().SearchQuery)
	assert.Empty(t, s.State().SearchResults)
}

func TestRealtimePresenceAndChannelUpdates(t *testing.T) {
	hub := realtime.NewHub()
	api := newFakeAPI(hub, "general", "random")
	random := api.channels[1]

	s, rec := newTestSession(t, api, "alice")
	require.NoError(t, s.Start())

	presence, err := models.NewChangeEvent(models.TablePresence, models.EventUpdate, "bob", &models.Presence{UserID: "bob", Status: models.PresenceBusy})
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), presence))
	ev := rec.waitFor(t, KindPresenceUpdated, func(ev Event) bool { return ev.Presence.UserID == "bob" })
	assert.Equal(t, models.PresenceBusy, ev.Presence.Status)

	touched := *random
	at := api.tick()
	touched.LastMessageAt = &at
	channelEv, err := models.NewChangeEvent(models.TableChannels, models.EventUpdate, random.ID.Hex(), &touched)
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), channelEv))

	rec.waitFor(t, KindChannelUpdated, nil)
	state := s.State()
	assert.Equal(t, random.ID, state.Channels[0].ID)
	assert.Equal(t, 1, state.Channels[0].UnreadCount)
}

func TestCloseReleasesOnce(t *testing.T) {
	hub := realtime.NewHub()
	api := newFakeAPI(hub, "general")
	s, _ := newTestSession(t, api, "alice")
	require.NoError(t, s.Start())
	require.NotZero(t, hub.Len())

	s.Close()
	s.Close()
	assert.Zero(t, hub.Len())
	assert.Equal(t, []models.PresenceStatus{models.PresenceOnline, models.PresenceOffline}, api.statuses)
}
