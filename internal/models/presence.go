package models

import (
	"time"
)

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceBusy, PresenceOffline:
		return true
	}
	return false
}

type Presence struct {
	UserID       string         `json:"user_id"`
	Status       PresenceStatus `json:"status"`
	CustomStatus *string        `json:"custom_status"`
	LastSeen     time.Time      `json:"last_seen"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type UpdatePresenceRequest struct {
	Status       PresenceStatus `json:"status" validate:"required,oneof=online away busy offline"`
	CustomStatus *string        `json:"custom_status" validate:"omitempty,max=100"`
}
