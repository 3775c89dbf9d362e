package domain

import "time"

// Reaction records that a user reacted to a message with an emoji.
// The (message, user, emoji) triple is unique; deleting the row un-reacts.
type Reaction struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MessageID uint64    `gorm:"column:message_id;not null;uniqueIndex:uk_reaction,priority:1" json:"messageId"`
	UserID    uint64    `gorm:"column:user_id;not null;uniqueIndex:uk_reaction,priority:2" json:"userId"`
	Emoji     string    `gorm:"column:emoji;size:32;not null;uniqueIndex:uk_reaction,priority:3" json:"emoji"`
	CreatedAt time.Time `gorm:"column:created_at;precision:6;not null" json:"createdAt"`
}

func (Reaction) TableName() string {
	return "chat_reactions"
}

// ReactionRequest is the body of POST /messages/:id/reactions
type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// ReactionSummary aggregates one emoji on one message
type ReactionSummary struct {
	Emoji                string   `json:"emoji"`
	Count                int      `json:"count"`
	ReactedBy            []string `json:"reactedBy"`
	ReactorIDs           []uint64 `json:"reactorIds"`
	ReactedByCurrentUser bool     `json:"reactedByCurrentUser"`
}
