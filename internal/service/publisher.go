package service

// EventPublisher pushes an event to every live subscriber of a conversation.
// Implementations must not block on slow subscribers.
type EventPublisher interface {
	Publish(conversationID uint64, eventType string, payload interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(uint64, string, interface{}) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

// SubscriptionRevoker detaches a user's live connections from a conversation they no longer belong to
type SubscriptionRevoker interface {
	UnsubscribeUser(conversationID, userID uint64)
}

type noopRevoker struct{}

func (noopRevoker) UnsubscribeUser(uint64, uint64) {}

func revokerOrNoop(r SubscriptionRevoker) SubscriptionRevoker {
	if r == nil {
		return noopRevoker{}
	}
	return r
}
