package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/linguaschool/chat-backend/internal/domain"
	"github.com/linguaschool/chat-backend/internal/middleware"
	"github.com/linguaschool/chat-backend/internal/repository"
	"github.com/linguaschool/chat-backend/internal/ws"
)

type wsEvent struct {
	Type           string          `json:"type"`
	ConversationID uint64          `json:"conversationId"`
	Payload        json.RawMessage `json:"payload"`
}

func (s *APISuite) dial(server *httptest.Server, userID uint64) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"
	if userID != 0 {
		url += "?token=" + s.token(userID)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	s.T().Cleanup(func() { conn.Close() })
	return conn
}

func (s *APISuite) writeFrame(conn *websocket.Conn, frame map[string]interface{}) {
	s.Require().NoError(conn.WriteJSON(frame))
}

// nextEvent returns the next event of the wanted type, skipping others
func (s *APISuite) nextEvent(conn *websocket.Conn, wantType string) wsEvent {
	deadline := time.Now().Add(3 * time.Second)
	for {
		s.Require().NoError(conn.SetReadDeadline(deadline))
		var ev wsEvent
		s.Require().NoError(conn.ReadJSON(&ev), "waiting for %q", wantType)
		if ev.Type == wantType {
			return ev
		}
	}
}

func (s *APISuite) TestSocket_SubscribeAndReceiveMessages() {
	server := httptest.NewServer(s.router)
	defer server.Close()

	convID := s.createDirect(teacher, minji)

	student := s.dial(server, minji)
	s.writeFrame(student, map[string]interface{}{"type": "subscribe", "conversationId": convID})
	sub := s.nextEvent(student, ws.EventSubscribed)
	s.Equal(convID, sub.ConversationID)

	w := s.sendMessage(convID, teacher, "Class moved to room 204")
	s.Require().Equal(http.StatusCreated, w.Code)

	ev := s.nextEvent(student, ws.EventMessage)
	s.Equal(convID, ev.ConversationID)
	var msg domain.Message
	s.Require().NoError(json.Unmarshal(ev.Payload, &msg))
	s.Equal("Class moved to room 204", msg.Content)
	s.Equal(teacher, msg.SenderID)

	// delivery ack moves the teacher's view to DELIVERED
	s.writeFrame(student, map[string]interface{}{"type": "ack", "conversationId": convID, "messageId": msg.ID})
	s.nextEvent(student, ws.EventReceipt)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/v1/conversations/%d/messages", convID), teacher, nil)
	var msgs []domain.Message
	s.decode(w, &msgs)
	s.Require().Len(msgs, 1)
	s.Equal(domain.StatusDelivered, msgs[0].Status)
}

func (s *APISuite) TestSocket_SendFrameAndTyping() {
	server := httptest.NewServer(s.router)
	defer server.Close()

	convID := s.createDirect(teacher, minji)
	a := s.dial(server, teacher)
	b := s.dial(server, minji)
	for _, conn := range []*websocket.Conn{a, b} {
		s.writeFrame(conn, map[string]interface{}{"type": "subscribe", "conversationId": convID})
		s.nextEvent(conn, ws.EventSubscribed)
	}

	s.writeFrame(a, map[string]interface{}{"type": "typing", "conversationId": convID, "typing": true})
	typing := s.nextEvent(b, ws.EventTyping)
	var te domain.TypingEvent
	s.Require().NoError(json.Unmarshal(typing.Payload, &te))
	s.Equal(teacher, te.UserID)
	s.True(te.Typing)

	s.writeFrame(a, map[string]interface{}{"type": "send", "conversationId": convID, "content": "See you tomorrow"})
	for _, conn := range []*websocket.Conn{a, b} {
		ev := s.nextEvent(conn, ws.EventMessage)
		var msg domain.Message
		s.Require().NoError(json.Unmarshal(ev.Payload, &msg))
		s.Equal("See you tomorrow", msg.Content)
	}
}

func (s *APISuite) TestSocket_Errors() {
	server := httptest.NewServer(s.router)
	defer server.Close()

	convID := s.createDirect(teacher, minji)

	anon := s.dial(server, 0)
	s.writeFrame(anon, map[string]interface{}{"type": "ping"})
	s.nextEvent(anon, ws.EventPong)

	s.writeFrame(anon, map[string]interface{}{"type": "subscribe", "conversationId": convID})
	s.Equal("UNAUTHORIZED", s.errorCode(s.nextEvent(anon, ws.EventError)))

	outsider := s.dial(server, hiroshi)
	s.writeFrame(outsider, map[string]interface{}{"type": "subscribe", "conversationId": convID})
	s.Equal("FORBIDDEN", s.errorCode(s.nextEvent(outsider, ws.EventError)))

	s.writeFrame(outsider, map[string]interface{}{"type": "typing", "conversationId": convID, "typing": true})
	s.Equal("FORBIDDEN", s.errorCode(s.nextEvent(outsider, ws.EventError)))

	s.Require().NoError(outsider.WriteMessage(websocket.TextMessage, []byte("{not json")))
	s.Equal("BAD_REQUEST", s.errorCode(s.nextEvent(outsider, ws.EventError)))

	s.writeFrame(outsider, map[string]interface{}{"type": "dance"})
	s.Equal("BAD_REQUEST", s.errorCode(s.nextEvent(outsider, ws.EventError)))

	// the session survives bad frames
	s.writeFrame(outsider, map[string]interface{}{"type": "ping"})
	s.nextEvent(outsider, ws.EventPong)
}

func (s *APISuite) errorCode(ev wsEvent) string {
	var payload ws.ErrorPayload
	s.Require().NoError(json.Unmarshal(ev.Payload, &payload))
	return payload.Code
}

func (s *APISuite) createGroup(creator uint64, members ...uint64) uint64 {
	w := s.do(http.MethodPost, "/api/v1/conversations", creator, map[string]interface{}{
		"type":           "GROUP",
		"title":          "Speaking practice",
		"participantIds": members,
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var conv domain.Conversation
	s.decode(w, &conv)
	return conv.ID
}

// eventsUntilPong pings and collects every event queued before the pong
func (s *APISuite) eventsUntilPong(conn *websocket.Conn) []wsEvent {
	s.writeFrame(conn, map[string]interface{}{"type": "ping"})
	deadline := time.Now().Add(3 * time.Second)
	var seen []wsEvent
	for {
		s.Require().NoError(conn.SetReadDeadline(deadline))
		var ev wsEvent
		s.Require().NoError(conn.ReadJSON(&ev))
		if ev.Type == ws.EventPong {
			return seen
		}
		seen = append(seen, ev)
	}
}

func (s *APISuite) TestSocket_LeavingGroupStopsLiveDelivery() {
	server := httptest.NewServer(s.router)
	defer server.Close()

	convID := s.createGroup(teacher, minji, hiroshi)
	leaver := s.dial(server, minji)
	stayer := s.dial(server, hiroshi)
	for _, conn := range []*websocket.Conn{leaver, stayer} {
		s.writeFrame(conn, map[string]interface{}{"type": "subscribe", "conversationId": convID})
		s.nextEvent(conn, ws.EventSubscribed)
	}

	w := s.do(http.MethodDelete, fmt.Sprintf("/api/v1/conversations/%d/participants/me", convID), minji, nil)
	s.Require().Equal(http.StatusNoContent, w.Code)
	s.Equal(convID, s.nextEvent(leaver, ws.EventUnsubscribed).ConversationID)
	s.Equal(0, len(s.eventsUntilPong(leaver)))

	s.Require().Equal(http.StatusCreated, s.sendMessage(convID, teacher, "after minji left").Code)
	s.nextEvent(stayer, ws.EventMessage)

	for _, ev := range s.eventsUntilPong(leaver) {
		s.Failf("left member still receives events", "got %s on conversation %d", ev.Type, ev.ConversationID)
	}

	s.writeFrame(leaver, map[string]interface{}{"type": "subscribe", "conversationId": convID})
	s.Equal("FORBIDDEN", s.errorCode(s.nextEvent(leaver, ws.EventError)))
	s.Equal(1, s.hub.SubscriberCount(convID))
}

// dropOnAppend disconnects a client the moment a message reaches storage
type dropOnAppend struct {
	repository.MessageRepository
	drop func()
}

func (r *dropOnAppend) Append(ctx context.Context, msg *domain.Message, now time.Time) error {
	r.drop()
	return r.MessageRepository.Append(ctx, msg, now)
}

func (s *APISuite) TestSocket_AdmittedSendSurvivesDisconnect() {
	convID := s.createDirect(teacher, minji)

	client := ws.NewClient(s.hub, nil, teacher)
	s.hub.Register(client)
	repo := &dropOnAppend{
		MessageRepository: repository.NewMessageRepository(s.db),
		drop:              func() { s.hub.Unregister(client) },
	}
	svc := s.services(s.hub, repo)

	svc.ws.HandleFrame(client, []byte(fmt.Sprintf(`{"type":"send","conversationId":%d,"content":"admitted"}`, convID)))

	s.Error(client.Context().Err(), "the connection was dropped mid-send")
	var stored []domain.Message
	s.Require().NoError(s.db.Where("conversation_id = ?", convID).Find(&stored).Error)
	s.Require().Len(stored, 1)
	s.Equal("admitted", stored[0].Content)
}

func (s *APISuite) TestSocket_SilentClientIsDisconnectedAfterGrace() {
	opts := ws.DefaultOptions()
	opts.HeartbeatInterval = 20 * time.Millisecond
	opts.DisconnectGrace = 60 * time.Millisecond
	hub := ws.NewHub(nil, opts)
	defer hub.Stop()

	svc := s.services(hub, repository.NewMessageRepository(s.db))
	router := gin.New()
	router.GET("/api/v1/ws", middleware.OptionalAuth(middleware.NewJWTVerifier(s.jwt)), svc.ws.Connect)
	server := httptest.NewServer(router)
	defer server.Close()

	convID := s.createDirect(teacher, minji)
	conn := s.dial(server, minji)
	// pings go unanswered: no pong is ever written
	conn.SetPingHandler(func(string) error { return nil })

	s.writeFrame(conn, map[string]interface{}{"type": "subscribe", "conversationId": convID})
	s.nextEvent(conn, ws.EventSubscribed)

	s.Eventually(func() bool { return hub.SubscriberCount(convID) == 0 }, 2*time.Second, 10*time.Millisecond)

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	var netErr net.Error
	s.False(errors.As(err, &netErr) && netErr.Timeout(), "server should have closed the connection: %v", err)
}

func (s *APISuite) TestSocket_ShutdownClosesWithGoingAway() {
	server := httptest.NewServer(s.router)
	defer server.Close()

	conn := s.dial(server, minji)
	// a pong proves the session is registered
	s.eventsUntilPong(conn)

	s.hub.Stop()

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(3 * time.Second)))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	s.True(websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
