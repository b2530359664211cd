package models

import (
	"time"
)

// Profile is the public face of a user. The id is the subject issued by the
// identity provider.
type Profile struct {
	ID        string    `bson:"_id" json:"id"`
	FullName  string    `bson:"full_name" json:"full_name"`
	AvatarURL *string   `bson:"avatar_url,omitempty" json:"avatar_url"`
	Email     string    `bson:"email,omitempty" json:"email,omitempty"`
	IsActive  bool      `bson:"is_active" json:"is_active"`
	CreatedAt time.Time `bson:"created_at,omitempty" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func (Profile) CollectionName() string {
	return "profiles"
}

type UpdateProfileRequest struct {
	FullName  string  `json:"full_name" validate:"required,max=120"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url"`
	Email     string  `json:"email" validate:"omitempty,email"`
}
