package domain

import "time"

// MessageType is the content kind of a message
type MessageType string

const (
	MessageText  MessageType = "TEXT"
	MessageFile  MessageType = "FILE"
	MessageImage MessageType = "IMAGE"
)

// MessageStatus is derived from recipients' cursors, never stored
type MessageStatus string

const (
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
)

// Message is one entry of a conversation's append-only log.
// CreatedAt is strictly increasing within a conversation and is the ordering key.
type Message struct {
	ID             uint64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ConversationID uint64      `gorm:"column:conversation_id;not null;index:idx_messages_conv_created,priority:1" json:"conversationId"`
	SenderID       uint64      `gorm:"column:sender_id;not null;index" json:"senderId"`
	SenderName     string      `gorm:"column:sender_name;size:100" json:"senderName"`
	SenderAvatar   string      `gorm:"column:sender_avatar;size:500" json:"senderAvatar,omitempty"`
	Content        string      `gorm:"column:content;type:text" json:"content"`
	Type           MessageType `gorm:"column:type;size:16;not null" json:"messageType"`
	FileURL        *string     `gorm:"column:file_url;size:1000" json:"fileUrl,omitempty"`
	FileName       *string     `gorm:"column:file_name;size:255" json:"fileName,omitempty"`
	FileSize       *int64      `gorm:"column:file_size" json:"fileSize,omitempty"`
	FileType       *string     `gorm:"column:file_type;size:100" json:"fileType,omitempty"`
	CreatedAt      time.Time   `gorm:"column:created_at;precision:6;not null;index:idx_messages_conv_created,priority:2" json:"createdAt"`
	UpdatedAt      *time.Time  `gorm:"column:updated_at;precision:6;autoUpdateTime:false" json:"updatedAt,omitempty"`
	Edited         bool        `gorm:"column:edited;not null;default:false" json:"edited"`

	Status MessageStatus `gorm:"-" json:"status,omitempty"`
}

func (Message) TableName() string {
	return "chat_messages"
}

// SendMessageRequest is the body of POST /conversations/:id/messages and of socket "send" frames
type SendMessageRequest struct {
	Content     string      `json:"content" binding:"max=20000"`
	MessageType MessageType `json:"messageType" binding:"omitempty,oneof=TEXT FILE IMAGE"`
	FileURL     *string     `json:"fileUrl" binding:"omitempty,url"`
	FileName    *string     `json:"fileName" binding:"omitempty,max=255"`
	FileSize    *int64      `json:"fileSize" binding:"omitempty,gte=0"`
	FileType    *string     `json:"fileType" binding:"omitempty,max=100"`
}

// EditMessageRequest is the body of PATCH /messages/:id
type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// PageCursor selects a window of history, newest first
type PageCursor struct {
	Page   int
	Size   int
	Before *time.Time
}

// MessagePage is one window of history
type MessagePage struct {
	Messages []*Message
	Page     int
	Size     int
	HasMore  bool
}

// UnreadCountResponse is the body of GET /unread-count
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}
