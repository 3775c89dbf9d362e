package migration

import (
	"fmt"

	"github.com/linguaschool/chat-backend/internal/domain"
	"gorm.io/gorm"
)

// Run creates or updates the chat tables. Safe to run repeatedly.
func Run(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Conversation{},
		&domain.Participant{},
		&domain.Message{},
		&domain.Reaction{},
	)
}

// RunLocalProfiles creates the profile view as a plain table and seeds it when empty.
// Production reads the view owned by the accounts service; this is for local and test databases only.
func RunLocalProfiles(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.Profile{}); err != nil {
		return err
	}

	var count int64
	if err := db.Model(&domain.Profile{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return db.Create(seedProfiles()).Error
}

func seedProfiles() []domain.Profile {
	return []domain.Profile{
		{UserID: 1, Name: "Admin", Role: "ADMIN"},
		{UserID: 2, Name: "Emma Teacher", Role: "TEACHER"},
		{UserID: 3, Name: "Liam Teacher", Role: "TEACHER"},
		{UserID: 4, Name: "Minji Student", Role: "STUDENT"},
		{UserID: 5, Name: "Hiroshi Student", Role: "STUDENT"},
		{UserID: 6, Name: "Sofia Student", Role: "STUDENT"},
	}
}

// Problem is one integrity violation found by Verify
type Problem struct {
	Check          string `json:"check"`
	ConversationID uint64 `json:"conversationId"`
	Detail         string `json:"detail"`
}

// Verify scans the chat tables for rows that break the invariants the services rely on
func Verify(db *gorm.DB) ([]Problem, error) {
	var problems []Problem

	var directs []struct {
		ID    uint64
		Count int64
	}
	err := db.Table("chat_conversations AS c").
		Select("c.id AS id, COUNT(p.id) AS count").
		Joins("LEFT JOIN chat_participants AS p ON p.conversation_id = c.id").
		Where("c.kind = ?", domain.ConversationDirect).
		Group("c.id").
		Having("COUNT(p.id) <> 2").
		Scan(&directs).Error
	if err != nil {
		return nil, err
	}
	for _, d := range directs {
		problems = append(problems, Problem{
			Check:          "direct_participants",
			ConversationID: d.ID,
			Detail:         fmt.Sprintf("direct conversation has %d participants", d.Count),
		})
	}

	var stale []uint64
	err = db.Table("chat_conversations AS c").
		Select("c.id").
		Where("EXISTS (SELECT 1 FROM chat_messages AS m WHERE m.conversation_id = c.id AND (c.last_message_at IS NULL OR m.created_at > c.last_message_at))").
		Scan(&stale).Error
	if err != nil {
		return nil, err
	}
	for _, id := range stale {
		problems = append(problems, Problem{
			Check:          "last_message_at",
			ConversationID: id,
			Detail:         "last_message_at is older than the newest message",
		})
	}

	return problems, nil
}
