package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChannelType string

const (
	ChannelTypePublic  ChannelType = "public"
	ChannelTypePrivate ChannelType = "private"
	ChannelTypeDirect  ChannelType = "direct"
)

type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

type Channel struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          *string            `bson:"name,omitempty" json:"name"` // nil for direct channels
	Description   *string            `bson:"description,omitempty" json:"description"`
	Type          ChannelType        `bson:"type" json:"type"`
	CreatedBy     string             `bson:"created_by" json:"created_by"`
	IsArchived    bool               `bson:"is_archived" json:"is_archived"`
	DMKey         string             `bson:"dm_key,omitempty" json:"-"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
	LastMessageAt *time.Time         `bson:"last_message_at,omitempty" json:"last_message_at"`

	// computed per viewer on listing
	UnreadCount int `bson:"unread_count,omitempty" json:"unread_count"`
}

type ChannelMember struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChannelID  primitive.ObjectID `bson:"channel_id" json:"channel_id"`
	UserID     string             `bson:"user_id" json:"user_id"`
	Role       MemberRole         `bson:"role" json:"role"`
	JoinedAt   time.Time          `bson:"joined_at" json:"joined_at"`
	LastReadAt *time.Time         `bson:"last_read_at,omitempty" json:"last_read_at"`
	IsMuted    bool               `bson:"is_muted" json:"is_muted"`
	IsActive   bool               `bson:"is_active" json:"is_active"`
	LeftAt     *time.Time         `bson:"left_at,omitempty" json:"left_at,omitempty"`

	User *Profile `bson:"user,omitempty" json:"user,omitempty"`
}

type CreateChannelRequest struct {
	Name        string      `json:"name" validate:"required_unless=Type direct,max=80"`
	Description string      `json:"description" validate:"max=500"`
	Type        ChannelType `json:"type" validate:"required,oneof=public private direct"`
	MemberIDs   []string    `json:"member_ids"`
}

// DirectMessageKey identifies the unique direct channel between two users
// regardless of who opened it.
func DirectMessageKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}
