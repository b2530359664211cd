package models

import (
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeFile   MessageType = "file"
	MessageTypeImage  MessageType = "image"
	MessageTypeSystem MessageType = "system"
)

type Message struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ChannelID       primitive.ObjectID  `bson:"channel_id" json:"channel_id"`
	SenderID        string              `bson:"sender_id" json:"sender_id"`
	ParentMessageID *primitive.ObjectID `bson:"parent_message_id,omitempty" json:"parent_message_id,omitempty"`
	Content         string              `bson:"content" json:"content"`
	MessageType     MessageType         `bson:"message_type" json:"message_type"`
	FileURL         *string             `bson:"file_url,omitempty" json:"file_url,omitempty"`
	FileName        *string             `bson:"file_name,omitempty" json:"file_name,omitempty"`
	FileSize        *int64              `bson:"file_size,omitempty" json:"file_size,omitempty"`
	FileType        *string             `bson:"file_type,omitempty" json:"file_type,omitempty"`
	IsEdited        bool                `bson:"is_edited" json:"is_edited"`
	IsDeleted       bool                `bson:"is_deleted" json:"is_deleted"`
	CreatedAt       time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `bson:"updated_at" json:"updated_at"`

	// joined on reads
	User        *Profile      `bson:"user,omitempty" json:"user,omitempty"`
	Reactions   []*Reaction   `bson:"reactions,omitempty" json:"reactions"`
	Attachments []*Attachment `bson:"attachments,omitempty" json:"attachments"`
	Mentions    []*Mention    `bson:"mentions,omitempty" json:"mentions"`
	ReplyCount  int           `bson:"reply_count,omitempty" json:"reply_count"`
}

type Reaction struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MessageID primitive.ObjectID `bson:"message_id" json:"message_id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Emoji     string             `bson:"emoji" json:"emoji"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

func (Reaction) CollectionName() string {
	return "message_reactions"
}

type Attachment struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MessageID  primitive.ObjectID `bson:"message_id" json:"message_id"`
	FileURL    string             `bson:"file_url" json:"file_url"`
	FileName   string             `bson:"file_name" json:"file_name"`
	FileSize   int64              `bson:"file_size" json:"file_size"`
	FileType   string             `bson:"file_type" json:"file_type"`
	MimeType   string             `bson:"mime_type" json:"mime_type"`
	UploadedBy string             `bson:"uploaded_by" json:"uploaded_by"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}

func (Attachment) CollectionName() string {
	return "message_attachments"
}

type Mention struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MessageID       primitive.ObjectID `bson:"message_id" json:"message_id"`
	MentionedUserID string             `bson:"mentioned_user_id" json:"mentioned_user_id"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
}

func (Mention) CollectionName() string {
	return "message_mentions"
}

type SendMessageRequest struct {
	ChannelID        string        `json:"channel_id" param:"id" validate:"required"`
	Content          string        `json:"content" validate:"max=10000"`
	MessageType      MessageType   `json:"message_type" validate:"omitempty,oneof=text file image system"`
	ParentMessageID  string        `json:"parent_message_id"`
	File             *UploadedFile `json:"file"`
	MentionedUserIDs []string      `json:"mentioned_user_ids"`
}

// FileUpload is the raw file handed to the upload operation.
type FileUpload struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

type UploadedFile struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	FileType string `json:"file_type"`
	MimeType string `json:"mime_type"`
}

type FileInfo struct {
	Path        string
	Size        int64
	ContentType string
}
