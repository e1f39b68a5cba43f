package chat

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Turn is one user message and the reply generated for it. Turns are
// insert-only; rename and delete operate on every turn of a conversation.
type Turn struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement" json:"-" bson:"seq"`
	TurnID           string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"-" bson:"_id"`
	ConversationID   string    `gorm:"type:varchar(36);not null;index:idx_chat_turn_conv_owner,priority:1" json:"conversation_id" bson:"conversation_id"`
	OwnerID          *string   `gorm:"type:varchar(36);index:idx_chat_turn_conv_owner,priority:2;index:idx_chat_turn_owner" json:"-" bson:"owner_id,omitempty"`
	UserText         string    `gorm:"type:text;not null" json:"user" bson:"user_text"`
	BotText          string    `gorm:"type:text;not null" json:"bot" bson:"bot_text"`
	ConversationName string    `gorm:"type:varchar(255)" json:"conversation_name,omitempty" bson:"conversation_name,omitempty"`
	Subject          string    `gorm:"type:varchar(255)" json:"subject,omitempty" bson:"subject,omitempty"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
	// lower-cased copy of the searchable fields; SQL LOWER() only folds
	// ASCII on SQLite
	SearchText string `gorm:"type:text" json:"-" bson:"-"`
}

func (Turn) TableName() string { return "chat_turns" }

func (t *Turn) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	t.SearchText = searchText(t)
	return nil
}

// searchText joins the searchable fields with a separator a trimmed term
// cannot contain, so a match never spans two fields.
func searchText(t *Turn) string {
	return strings.ToLower(t.UserText + "\x1f" + t.BotText + "\x1f" + t.Subject)
}

// ConversationSummary describes a conversation by its earliest turn.
type ConversationSummary struct {
	ConversationID   string `json:"conversation_id" bson:"_id"`
	ConversationName string `json:"conversation_name" bson:"conversation_name"`
	Subject          string `json:"subject" bson:"subject"`
	DisplayName      string `json:"display_name" bson:"-"`
	FirstTurnID      uint64 `json:"-" bson:"first_seq"`
}

// DisplayName picks an explicit name, then the derived subject, then a
// label built from the id prefix.
func DisplayName(conversationID, name, subject string) string {
	if name != "" {
		return name
	}
	if subject != "" {
		return subject
	}
	prefix := conversationID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "Conversation: " + prefix
}
