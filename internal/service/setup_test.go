package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/linguaschool/chat-backend/internal/domain"
	"github.com/linguaschool/chat-backend/internal/migration"
	"github.com/linguaschool/chat-backend/internal/ratelimit"
	"github.com/linguaschool/chat-backend/internal/repository"
	"github.com/linguaschool/chat-backend/pkg/logger"
)

// Seeded profile ids
const (
	admin   uint64 = 1
	teacher uint64 = 2
	liam    uint64 = 3
	minji   uint64 = 4
	hiroshi uint64 = 5
	sofia   uint64 = 6
)

func init() {
	logger.SetOutput(io.Discard)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	// every pooled connection to :memory: would be a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, migration.Run(db))
	require.NoError(t, migration.RunLocalProfiles(db))
	return db
}

type publishedEvent struct {
	ConversationID uint64
	Type           string
	Payload        interface{}
}

type revokedSubscription struct {
	ConversationID uint64
	UserID         uint64
}

// recordingPublisher captures events in publish order, and revoked subscriptions
type recordingPublisher struct {
	mu      sync.Mutex
	events  []publishedEvent
	revoked []revokedSubscription
}

func (p *recordingPublisher) UnsubscribeUser(conversationID, userID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, revokedSubscription{ConversationID: conversationID, UserID: userID})
}

func (p *recordingPublisher) revocations() []revokedSubscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]revokedSubscription(nil), p.revoked...)
}

func (p *recordingPublisher) Publish(conversationID uint64, eventType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{ConversationID: conversationID, Type: eventType, Payload: payload})
}

func (p *recordingPublisher) ofType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	db            *gorm.DB
	publisher     *recordingPublisher
	conversations *ConversationService
	messages      *MessageService
	receipts      *ReceiptService
	reactions     *ReactionService
	convRepo      repository.ConversationRepository
}

type envOption func(*envConfig)

type envConfig struct {
	maxGroupSize int
	limiter      ratelimit.Config
}

func withRateLimit(perMinute int) envOption {
	return func(c *envConfig) {
		c.limiter = ratelimit.Config{Enabled: true, MessagesPerMinute: perMinute, MaxBuckets: 100, IdleTTL: time.Hour}
	}
}

func withMaxGroupSize(n int) envOption {
	return func(c *envConfig) { c.maxGroupSize = n }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{maxGroupSize: 50}
	for _, o := range opts {
		o(&cfg)
	}

	db := setupTestDB(t)
	pub := &recordingPublisher{}

	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	reactionRepo := repository.NewReactionRepository(db)
	profileRepo := repository.NewProfileRepository(db)

	return &testEnv{
		db:            db,
		publisher:     pub,
		conversations: NewConversationService(convRepo, receiptRepo, profileRepo, pub, cfg.maxGroupSize),
		messages: NewMessageService(msgRepo, convRepo, ratelimit.New(cfg.limiter), pub, MessageOptions{
			MaxContentLength: 4000,
			DefaultPageSize:  30,
			MaxPageSize:      100,
		}),
		receipts:  NewReceiptService(receiptRepo, convRepo, msgRepo, pub),
		reactions: NewReactionService(reactionRepo, msgRepo, convRepo, pub),
		convRepo:  convRepo,
	}
}

func (e *testEnv) direct(t *testing.T, a, b uint64) *domain.Conversation {
	t.Helper()
	conv, _, err := e.conversations.FindOrCreateDirect(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func (e *testEnv) group(t *testing.T, creator uint64, members ...uint64) *domain.Conversation {
	t.Helper()
	title := "Reading club"
	conv, err := e.conversations.CreateGroup(context.Background(), creator, members, &title)
	require.NoError(t, err)
	return conv
}

func (e *testEnv) send(t *testing.T, conversationID, sender uint64, content string) *domain.Message {
	t.Helper()
	msg, err := e.messages.Send(context.Background(), conversationID, sender, &domain.SendMessageRequest{Content: content})
	require.NoError(t, err)
	return msg
}

func (e *testEnv) countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}
