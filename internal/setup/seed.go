// Package setup seeds a fresh deployment with demo profiles and channels.
package setup

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/internal/usecase"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
)

//go:embed data/seed.yaml
var defaultSeedData []byte

type SeedProfile struct {
	ID       string `yaml:"id"`
	FullName string `yaml:"full_name"`
	Email    string `yaml:"email"`
}

type SeedChannel struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Type        models.ChannelType `yaml:"type"`
	Owner       string             `yaml:"owner"`
	Members     []string           `yaml:"members"`
}

type SeedData struct {
	Profiles []SeedProfile `yaml:"profiles"`
	Channels []SeedChannel `yaml:"channels"`
}

type SeedResult struct {
	Profiles int
	Channels int
}

func DefaultSeed() (SeedData, error) {
	return ParseSeed(defaultSeedData)
}

func ParseSeed(raw []byte) (SeedData, error) {
	var data SeedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal seed data: %w", err)
	}
	return data, nil
}

type Seeder struct {
	api usecase.Messaging
}

func NewSeeder(api usecase.Messaging) *Seeder {
	return &Seeder{api: api}
}

// Seed upserts the profiles and creates the channels missing from their
// owner's channel list. Running it again creates nothing new.
func (s *Seeder) Seed(ctx context.Context, data SeedData) (SeedResult, error) {
	var res SeedResult
	for _, p := range data.Profiles {
		actorCtx := models.WithActor(ctx, p.ID)
		if _, err := s.api.UpsertProfile(actorCtx, models.UpdateProfileRequest{FullName: p.FullName, Email: p.Email}); err != nil {
			return res, fmt.Errorf("failed to upsert profile %q: %w", p.ID, err)
		}
		res.Profiles++
	}
	log.Debugw(ctx, "Seeded profiles", "count", res.Profiles)

	for _, ch := range data.Channels {
		actorCtx := models.WithActor(ctx, ch.Owner)
		existing, err := s.api.ListChannels(actorCtx)
		if err != nil {
			return res, fmt.Errorf("failed to list channels of %q: %w", ch.Owner, err)
		}
		if hasChannel(existing, ch.Name) {
			log.Debugw(ctx, "Channel already exists", "name", ch.Name, "owner", ch.Owner)
			continue
		}

		created, err := s.api.CreateChannel(actorCtx, models.CreateChannelRequest{
			Name:        ch.Name,
			Description: ch.Description,
			Type:        ch.Type,
			MemberIDs:   ch.Members,
		})
		if err != nil {
			return res, fmt.Errorf("failed to create channel %q: %w", ch.Name, err)
		}
		log.Infow(ctx, "Created default channel", "channel_id", created.ID.Hex(), "name", ch.Name, "members", len(ch.Members)+1)
		res.Channels++
	}
	return res, nil
}

func hasChannel(channels []*models.Channel, name string) bool {
	for _, c := range channels {
		if c.Name != nil && *c.Name == name {
			return true
		}
	}
	return false
}
