package ws

// Event types pushed from server to client
const (
	EventMessage        = "message"
	EventMessageUpdated = "message_updated"
	EventTyping         = "typing"
	EventReactions      = "reactions"
	EventReceipt        = "receipt"
	EventSubscribed     = "subscribed"
	EventUnsubscribed   = "unsubscribed"
	EventError          = "error"
	EventPong           = "pong"
)

// Event is a server-to-client frame
type Event struct {
	Type           string      `json:"type"`
	ConversationID uint64      `json:"conversationId,omitempty"`
	Payload        interface{} `json:"payload,omitempty"`
}

// ErrorPayload is carried by "error" events
type ErrorPayload struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}
