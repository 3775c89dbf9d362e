package domain

import (
	"fmt"
	"time"
)

// ConversationKind distinguishes 1:1 from multi-member conversations
type ConversationKind string

const (
	ConversationDirect ConversationKind = "DIRECT"
	ConversationGroup  ConversationKind = "GROUP"
)

// Conversation is an addressable channel with an ordered message history
type Conversation struct {
	ID            uint64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Kind          ConversationKind `gorm:"column:kind;size:16;not null" json:"type"`
	Title         *string          `gorm:"column:title;size:200" json:"title,omitempty"`
	DirectKey     *string          `gorm:"column:direct_key;size:64;uniqueIndex:uk_conversations_direct_key" json:"-"`
	CreatedBy     uint64           `gorm:"column:created_by" json:"createdBy"`
	CreatedAt     time.Time        `gorm:"column:created_at;precision:6;not null;index" json:"createdAt"`
	LastMessageAt *time.Time       `gorm:"column:last_message_at;precision:6;index" json:"lastMessageAt,omitempty"`

	Participants []Participant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

func (Conversation) TableName() string {
	return "chat_conversations"
}

// DirectKey returns the key shared by both orderings of a user pair
func DirectKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// Participant is a user's membership in a conversation, carrying its cursors
type Participant struct {
	ID              uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ConversationID  uint64     `gorm:"column:conversation_id;not null;uniqueIndex:uk_participant,priority:1" json:"conversationId"`
	UserID          uint64     `gorm:"column:user_id;not null;uniqueIndex:uk_participant,priority:2;index" json:"userId"`
	Name            string     `gorm:"column:name;size:100" json:"name"`
	Role            string     `gorm:"column:role;size:32" json:"role"`
	Avatar          string     `gorm:"column:avatar;size:500" json:"avatar,omitempty"`
	JoinedAt        time.Time  `gorm:"column:joined_at;precision:6;not null" json:"joinedAt"`
	LastReadAt      *time.Time `gorm:"column:last_read_at;precision:6" json:"lastReadAt,omitempty"`
	LastDeliveredAt *time.Time `gorm:"column:last_delivered_at;precision:6" json:"-"`
	Active          bool       `gorm:"column:active;not null;default:true" json:"active"`
}

func (Participant) TableName() string {
	return "chat_participants"
}

// CreateConversationRequest is the body of POST /conversations
type CreateConversationRequest struct {
	ParticipantIDs []uint64         `json:"participantIds" binding:"required,min=1,dive,gt=0"`
	Type           ConversationKind `json:"type" binding:"required,oneof=DIRECT GROUP"`
	Title          *string          `json:"title" binding:"omitempty,max=200"`
}

// AddParticipantRequest is the body of POST /conversations/:id/participants
type AddParticipantRequest struct {
	UserID uint64 `json:"userId" binding:"required,gt=0"`
}

// ConversationResponse is a conversation as seen by one member
type ConversationResponse struct {
	*Conversation
	UnreadCount int64 `json:"unreadCount"`
}
