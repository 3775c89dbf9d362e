package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/linguaschool/chat-backend/internal/metrics"
	"github.com/linguaschool/chat-backend/pkg/logger"
)

const (
	defaultRelayChannel = "chat:events"
	relayQueueSize      = 1024
)

// Options tunes connection liveness and queue bounds
type Options struct {
	HeartbeatInterval time.Duration
	DisconnectGrace   time.Duration
	WriteWait         time.Duration
	SendBuffer        int
	MaxFrameBytes     int64
	RelayChannel      string
}

// DefaultOptions matches the production heartbeat of 10s with a 30s grace
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 10 * time.Second,
		DisconnectGrace:   30 * time.Second,
		WriteWait:         10 * time.Second,
		SendBuffer:        64,
		MaxFrameBytes:     16 << 10,
		RelayChannel:      defaultRelayChannel,
	}
}

// topic holds the subscribers of one conversation.
// mu serializes publishes so every subscriber sees the same order.
type topic struct {
	mu   sync.Mutex
	subs map[*Client]struct{}
}

// Hub routes conversation events to subscribed connections.
// With Redis configured, events are relayed so subscribers on other instances receive them too.
type Hub struct {
	opts Options

	mu          sync.RWMutex
	topics      map[uint64]*topic
	memberships map[*Client]map[uint64]struct{}

	redisClient *redis.Client
	instanceID  string
	relay       chan []byte

	ctx    context.Context
	cancel context.CancelFunc
}

// relayRevoke marks a relay message that removes a user's subscriptions instead of carrying an event
const relayRevoke = "revoke"

type relayMessage struct {
	Origin         string          `json:"origin"`
	Kind           string          `json:"kind,omitempty"`
	ConversationID uint64          `json:"conversationId"`
	UserID         uint64          `json:"userId,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// NewHub creates a new Hub. redisClient may be nil for single-instance deployments.
func NewHub(redisClient *redis.Client, opts Options) *Hub {
	def := DefaultOptions()
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = def.HeartbeatInterval
	}
	if opts.DisconnectGrace <= 0 {
		opts.DisconnectGrace = def.DisconnectGrace
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = def.MaxFrameBytes
	}
	if opts.RelayChannel == "" {
		opts.RelayChannel = def.RelayChannel
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		opts:        opts,
		topics:      make(map[uint64]*topic),
		memberships: make(map[*Client]map[uint64]struct{}),
		redisClient: redisClient,
		instanceID:  uuid.NewString(),
		ctx:         ctx,
		cancel:      cancel,
	}
	if redisClient != nil {
		h.relay = make(chan []byte, relayQueueSize)
	}
	return h
}

// Options returns the effective options
func (h *Hub) Options() Options {
	return h.opts
}

// Run starts the Redis relay loops and blocks until Stop
func (h *Hub) Run() {
	if h.redisClient != nil {
		go h.subscribeRedis()
		go h.publishRedis()
	}
	<-h.ctx.Done()
}

// Stop shuts the hub down and disconnects every client
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.memberships))
	for c := range h.memberships {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c, websocket.CloseGoingAway)
	}
}

// Register tracks a connection so it can be cleaned up on disconnect
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if _, ok := h.memberships[c]; !ok {
		h.memberships[c] = make(map[uint64]struct{})
		metrics.WSConnections.Inc()
	}
	h.mu.Unlock()
}

// Unregister drops every subscription held by c and closes it with a policy-violation frame.
// Safe to call repeatedly.
func (h *Hub) Unregister(c *Client) {
	h.unregister(c, websocket.ClosePolicyViolation)
}

func (h *Hub) unregister(c *Client, closeCode int) {
	c.close(closeCode)

	h.mu.Lock()
	convs, ok := h.memberships[c]
	if ok {
		delete(h.memberships, c)
		for convID := range convs {
			h.removeLocked(convID, c)
		}
		metrics.WSConnections.Dec()
	}
	h.mu.Unlock()
}

// Subscribe attaches c to a conversation channel
func (h *Hub) Subscribe(c *Client, conversationID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.isClosed() {
		return
	}
	convs, ok := h.memberships[c]
	if !ok {
		convs = make(map[uint64]struct{})
		h.memberships[c] = convs
		metrics.WSConnections.Inc()
	}
	convs[conversationID] = struct{}{}

	t, ok := h.topics[conversationID]
	if !ok {
		t = &topic{subs: make(map[*Client]struct{})}
		h.topics[conversationID] = t
	}
	t.mu.Lock()
	t.subs[c] = struct{}{}
	t.mu.Unlock()
}

// Unsubscribe detaches c from a conversation channel
func (h *Hub) Unsubscribe(c *Client, conversationID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if convs, ok := h.memberships[c]; ok {
		delete(convs, conversationID)
	}
	h.removeLocked(conversationID, c)
}

// UnsubscribeUser detaches every connection of userID from the conversation, here and on other instances.
// Each detached connection is told with an "unsubscribed" event.
func (h *Hub) UnsubscribeUser(conversationID, userID uint64) {
	h.unsubscribeUserLocal(conversationID, userID)
	h.relayOut(&relayMessage{Origin: h.instanceID, Kind: relayRevoke, ConversationID: conversationID, UserID: userID})
}

func (h *Hub) unsubscribeUserLocal(conversationID, userID uint64) {
	var detached []*Client

	h.mu.Lock()
	if t, ok := h.topics[conversationID]; ok {
		t.mu.Lock()
		for c := range t.subs {
			if c.userID == userID {
				detached = append(detached, c)
			}
		}
		t.mu.Unlock()
	}
	for _, c := range detached {
		delete(h.memberships[c], conversationID)
		h.removeLocked(conversationID, c)
	}
	h.mu.Unlock()

	for _, c := range detached {
		c.Send(&Event{Type: EventUnsubscribed, ConversationID: conversationID})
	}
}

// removeLocked requires h.mu held for writing
func (h *Hub) removeLocked(conversationID uint64, c *Client) {
	t, ok := h.topics[conversationID]
	if !ok {
		return
	}
	t.mu.Lock()
	delete(t.subs, c)
	empty := len(t.subs) == 0
	t.mu.Unlock()
	if empty {
		delete(h.topics, conversationID)
	}
}

// IsSubscribed reports whether c currently watches the conversation
func (h *Hub) IsSubscribed(c *Client, conversationID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.memberships[c][conversationID]
	return ok
}

// SubscriberCount returns how many local connections watch a conversation
func (h *Hub) SubscriberCount(conversationID uint64) int {
	h.mu.RLock()
	t, ok := h.topics[conversationID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Publish delivers an event to every subscriber of the conversation, here and on other instances.
// Never blocks on a slow subscriber.
func (h *Hub) Publish(conversationID uint64, eventType string, payload interface{}) {
	data, err := json.Marshal(&Event{Type: eventType, ConversationID: conversationID, Payload: payload})
	if err != nil {
		logger.GetLogger().Error().Err(err).Str("type", eventType).Msg("ws: marshal event failed")
		return
	}
	metrics.FanoutEvents.WithLabelValues(eventType).Inc()

	h.fanout(conversationID, data)
	h.relayOut(&relayMessage{Origin: h.instanceID, ConversationID: conversationID, Data: data})
}

// relayOut queues rm for other instances; a no-op without Redis
func (h *Hub) relayOut(rm *relayMessage) {
	if h.relay == nil {
		return
	}
	msg, err := json.Marshal(rm)
	if err != nil {
		return
	}
	select {
	case h.relay <- msg:
	default:
		metrics.FanoutDropped.WithLabelValues("relay").Inc()
		logger.GetLogger().Warn().Uint64("conversation_id", rm.ConversationID).Msg("ws: relay queue full, message not relayed")
	}
}

// fanout enqueues data on every local subscriber; full queues get their connection dropped
func (h *Hub) fanout(conversationID uint64, data []byte) {
	h.mu.RLock()
	t, ok := h.topics[conversationID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	var slow []*Client
	t.mu.Lock()
	for c := range t.subs {
		if !c.enqueue(data) {
			slow = append(slow, c)
		}
	}
	t.mu.Unlock()

	for _, c := range slow {
		metrics.FanoutDropped.WithLabelValues("slow_consumer").Inc()
		log := logger.WithConn(c.ID(), c.UserID())
		log.Warn().
			Uint64("conversation_id", conversationID).
			Msg("ws: send queue full, dropping connection")
		h.Unregister(c)
	}
}

// publishRedis forwards relay messages in publish order
func (h *Hub) publishRedis() {
	for {
		select {
		case msg := <-h.relay:
			if err := h.redisClient.Publish(h.ctx, h.opts.RelayChannel, msg).Err(); err != nil && h.ctx.Err() == nil {
				logger.GetLogger().Warn().Err(err).Msg("ws: redis relay publish failed")
			}
		case <-h.ctx.Done():
			return
		}
	}
}

// subscribeRedis receives events published by other instances
func (h *Hub) subscribeRedis() {
	pubsub := h.redisClient.Subscribe(h.ctx, h.opts.RelayChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var rm relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &rm); err != nil {
				logger.GetLogger().Warn().Err(err).Msg("ws: bad relay message")
				continue
			}
			if rm.Origin == h.instanceID {
				continue
			}
			h.handleRelay(&rm)
		case <-h.ctx.Done():
			return
		}
	}
}

// handleRelay applies a message received from another instance
func (h *Hub) handleRelay(rm *relayMessage) {
	if rm.Kind == relayRevoke {
		h.unsubscribeUserLocal(rm.ConversationID, rm.UserID)
		return
	}
	h.fanout(rm.ConversationID, rm.Data)
}
