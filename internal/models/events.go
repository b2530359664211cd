package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type Table string

const (
	TableChannels       Table = "channels"
	TableChannelMembers Table = "channel_members"
	TableMessages       Table = "messages"
	TableReactions      Table = "message_reactions"
	TablePresence       Table = "user_presence"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent describes one row change pushed to realtime subscribers.
// ChannelID is empty for rows that do not belong to a channel (presence).
type ChangeEvent struct {
	Table     Table           `json:"table"`
	Type      EventType       `json:"type"`
	RecordID  string          `json:"record_id"`
	ChannelID string          `json:"channel_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	New       json.RawMessage `json:"new,omitempty"`
	At        time.Time       `json:"at"`
}

func NewChangeEvent(table Table, typ EventType, recordID string, record any) (ChangeEvent, error) {
	ev := ChangeEvent{
		Table:    table,
		Type:     typ,
		RecordID: recordID,
		At:       time.Now(),
	}
	if record != nil {
		raw, err := json.Marshal(record)
		if err != nil {
			return ev, fmt.Errorf("marshal %s record: %w", table, err)
		}
		ev.New = raw
	}
	return ev, nil
}

// Decode unmarshals the new row image into out.
func (e ChangeEvent) Decode(out any) error {
	if len(e.New) == 0 {
		return fmt.Errorf("%s %s event has no record", e.Table, e.Type)
	}
	return json.Unmarshal(e.New, out)
}

// Key is the partition key used on the change feed topic: events of one
// channel (or one user for presence) keep their relative order.
func (e ChangeEvent) Key() string {
	if e.ChannelID != "" {
		return e.ChannelID
	}
	if e.UserID != "" {
		return e.UserID
	}
	return e.RecordID
}
