package setup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/internal/usecase"
)

type fakeMessaging struct {
	usecase.Messaging

	profiles map[string]string
	channels []*models.Channel
	members  map[primitive.ObjectID][]string
}

func newFakeMessaging() *fakeMessaging {
	return &fakeMessaging{profiles: map[string]string{}, members: map[primitive.ObjectID][]string{}}
}

func (f *fakeMessaging) UpsertProfile(ctx context.Context, req models.UpdateProfileRequest) (*models.Profile, error) {
	userID, _ := models.ActorFrom(ctx)
	f.profiles[userID] = req.FullName
	return &models.Profile{ID: userID, FullName: req.FullName, IsActive: true}, nil
}

func (f *fakeMessaging) ListChannels(ctx context.Context) ([]*models.Channel, error) {
	userID, _ := models.ActorFrom(ctx)
	var out []*models.Channel
	for _, c := range f.channels {
		for _, m := range f.members[c.ID] {
			if m == userID {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeMessaging) CreateChannel(ctx context.Context, req models.CreateChannelRequest) (*models.Channel, error) {
	userID, _ := models.ActorFrom(ctx)
	name := req.Name
	ch := &models.Channel{ID: primitive.NewObjectID(), Name: &name, Type: req.Type, CreatedBy: userID}
	f.channels = append(f.channels, ch)
	f.members[ch.ID] = append([]string{userID}, req.MemberIDs...)
	return ch, nil
}

func TestDefaultSeed(t *testing.T) {
	data, err := DefaultSeed()
	require.NoError(t, err)
	require.NotEmpty(t, data.Profiles)
	require.NotEmpty(t, data.Channels)
	assert.Equal(t, "general", data.Channels[0].Name)
	assert.Equal(t, models.ChannelTypePublic, data.Channels[0].Type)
}

func TestSeedIsIdempotent(t *testing.T) {
	data, err := DefaultSeed()
	require.NoError(t, err)
	api := newFakeMessaging()
	seeder := NewSeeder(api)

	res, err := seeder.Seed(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, len(data.Profiles), res.Profiles)
	assert.Equal(t, len(data.Channels), res.Channels)
	assert.Equal(t, "Alice Nguyen", api.profiles["alice"])

	general := api.channels[0]
	assert.Equal(t, "alice", general.CreatedBy)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, api.members[general.ID])

	res, err = seeder.Seed(context.Background(), data)
	require.NoError(t, err)
	assert.Zero(t, res.Channels)
	assert.Len(t, api.channels, len(data.Channels))
}

func TestParseSeedRejectsMalformed(t *testing.T) {
	_, err := ParseSeed([]byte("profiles: [unclosed"))
	assert.Error(t, err)
}
