package domain

import "time"

// TypingEvent is relayed to a conversation while a member is typing
type TypingEvent struct {
	UserID uint64 `json:"userId"`
	Name   string `json:"name,omitempty"`
	Typing bool   `json:"typing"`
}

// ReceiptEvent announces a moved read or delivery cursor
type ReceiptEvent struct {
	UserID          uint64     `json:"userId"`
	LastReadAt      *time.Time `json:"lastReadAt,omitempty"`
	LastDeliveredAt *time.Time `json:"lastDeliveredAt,omitempty"`
}

// ReactionsEvent carries the full summary of a message after a toggle.
// Clients derive reactedByCurrentUser from ReactorIDs.
type ReactionsEvent struct {
	MessageID uint64            `json:"messageId"`
	Reactions []ReactionSummary `json:"reactions"`
}

// AttachmentResponse is the body of POST /attachments
type AttachmentResponse struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	FileType string `json:"fileType"`
}
