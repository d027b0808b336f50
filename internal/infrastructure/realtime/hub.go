package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-chatline/internal/infrastructure/pubsub/port"
	chat "go-chatline/internal/pkg/chat/application/domain"
)

// DefaultChannel is the bus channel shared by all hub instances. A single
// channel keeps membership changes and events in publish order everywhere.
const DefaultChannel = "chatline:events"

const (
	envelopeEvent      = "event"
	envelopeMembership = "membership"
	envelopeDissolve   = "dissolve"
)

// envelope is the bus wire format exchanged between hub instances.
type envelope struct {
	Origin         string          `json:"origin"`
	Kind           string          `json:"kind"`
	ConversationID string          `json:"conversationId"`
	UserID         string          `json:"userId,omitempty"`
	Joined         bool            `json:"joined,omitempty"`
	ExcludeUserID  string          `json:"excludeUserId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Hub coordinates websocket sessions and logical rooms (conversations).
// It is the per-process membership index and fanout router: every session is
// subscribed to the conversations its user belongs to, and events published
// for a conversation reach all of them. Other instances are reached through
// the bus.
type Hub struct {
	nodeID  string
	channel string
	bus     port.Bus
	log     *zap.Logger

	mu           sync.RWMutex
	sessions     map[string]*Connection            // sessionID -> connection
	userSessions map[string]map[string]struct{}    // userID -> set of sessionIDs
	rooms        map[string]map[string]*Connection // conversationID -> sessionID -> connection
	sessionRooms map[string]map[string]struct{}    // sessionID -> set of conversationIDs

	subMu sync.Mutex
	sub   port.Subscription
}

type HubOption func(*Hub)

func WithLogger(log *zap.Logger) HubOption {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

func WithChannel(channel string) HubOption {
	return func(h *Hub) {
		if channel != "" {
			h.channel = channel
		}
	}
}

func WithNodeID(id string) HubOption {
	return func(h *Hub) {
		if id != "" {
			h.nodeID = id
		}
	}
}

// NewHub constructs an initialized Hub. A nil bus keeps the hub process-local.
func NewHub(bus port.Bus, opts ...HubOption) *Hub {
	h := &Hub{
		nodeID:       uuid.NewString(),
		channel:      DefaultChannel,
		bus:          bus,
		log:          zap.NewNop(),
		sessions:     make(map[string]*Connection),
		userSessions: make(map[string]map[string]struct{}),
		rooms:        make(map[string]map[string]*Connection),
		sessionRooms: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NodeID identifies this hub on the bus.
func (h *Hub) NodeID() string { return h.nodeID }

// Start subscribes the hub to the bus so envelopes from other instances are
// applied locally. It returns once the subscription is active.
func (h *Hub) Start(ctx context.Context) error {
	if h.bus == nil {
		return nil
	}
	sub, err := h.bus.Subscribe(ctx, h.channel, h.handleEnvelope)
	if err != nil {
		return err
	}
	h.subMu.Lock()
	h.sub = sub
	h.subMu.Unlock()
	h.log.Info("hub subscribed to bus", zap.String("node_id", h.nodeID), zap.String("channel", h.channel))
	return nil
}

// Attach registers a connection and subscribes it to conversationIDs, then
// starts its write loop.
func (h *Hub) Attach(conn *Connection, conversationIDs []string) {
	h.mu.Lock()
	h.sessions[conn.ID] = conn
	sessions := h.userSessions[conn.UserID]
	if sessions == nil {
		sessions = make(map[string]struct{})
		h.userSessions[conn.UserID] = sessions
	}
	sessions[conn.ID] = struct{}{}
	for _, id := range conversationIDs {
		h.joinLocked(id, conn)
	}
	h.mu.Unlock()

	conn.Start()
	h.log.Debug("session attached",
		zap.String("session_id", conn.ID),
		zap.String("user_id", conn.UserID),
		zap.Int("conversations", len(conversationIDs)))
}

// Subscribe adds conversations to an attached connection. It is a no-op once
// the connection has been detached.
func (h *Hub) Subscribe(conn *Connection, conversationIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[conn.ID]; !ok {
		return
	}
	for _, id := range conversationIDs {
		h.joinLocked(id, conn)
	}
}

// Detach removes a connection if it is still tracked.
func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	h.detachLocked(conn.ID)
	h.mu.Unlock()
}

// SubscribersOf returns the connections currently subscribed to a conversation.
func (h *Hub) SubscribersOf(conversationID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[conversationID]
	out := make([]*Connection, 0, len(room))
	for _, conn := range room {
		out = append(out, conn)
	}
	return out
}

// SubscriptionsOf returns the conversations a session is subscribed to.
func (h *Hub) SubscriptionsOf(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.sessionRooms[sessionID]))
	for id := range h.sessionRooms[sessionID] {
		out = append(out, id)
	}
	return out
}

// SessionCount returns the number of attached connections.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Publish delivers event to every local subscriber of the conversation except
// the sessions of excludeUserID, then forwards it to other instances. Delivery
// is best-effort; it returns the number of local sessions reached.
func (h *Hub) Publish(ctx context.Context, conversationID string, event chat.Event, excludeUserID string) int {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("encode event", zap.String("event", event.EventName()), zap.Error(err))
		return 0
	}
	delivered := h.deliver(conversationID, payload, excludeUserID)
	h.forward(ctx, envelope{
		Kind:           envelopeEvent,
		ConversationID: conversationID,
		ExcludeUserID:  excludeUserID,
		Payload:        payload,
	})
	return delivered
}

// MembershipChanged adds or removes the subscription of every session of
// userID. The local index is updated before it returns.
func (h *Hub) MembershipChanged(ctx context.Context, conversationID string, userID string, joined bool) {
	h.applyMembership(conversationID, userID, joined)
	h.forward(ctx, envelope{
		Kind:           envelopeMembership,
		ConversationID: conversationID,
		UserID:         userID,
		Joined:         joined,
	})
}

// Dissolve drops every subscription to a deleted conversation.
func (h *Hub) Dissolve(ctx context.Context, conversationID string) {
	h.applyDissolve(conversationID)
	h.forward(ctx, envelope{Kind: envelopeDissolve, ConversationID: conversationID})
}

// Close terminates all tracked connections, clears hub state and leaves the bus.
func (h *Hub) Close() {
	h.subMu.Lock()
	if h.sub != nil {
		_ = h.sub.Close()
		h.sub = nil
	}
	h.subMu.Unlock()

	h.mu.Lock()
	sessions := make([]*Connection, 0, len(h.sessions))
	for _, conn := range h.sessions {
		sessions = append(sessions, conn)
	}
	h.sessions = make(map[string]*Connection)
	h.userSessions = make(map[string]map[string]struct{})
	h.rooms = make(map[string]map[string]*Connection)
	h.sessionRooms = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, conn := range sessions {
		conn.Close(CloseShutdown, "hub shutdown")
	}
}

func (h *Hub) deliver(conversationID string, payload []byte, excludeUserID string) int {
	h.mu.RLock()
	room := h.rooms[conversationID]
	targets := make([]*Connection, 0, len(room))
	for _, conn := range room {
		if excludeUserID != "" && conn.UserID == excludeUserID {
			continue
		}
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(payload); err != nil {
			h.log.Debug("fanout delivery skipped",
				zap.String("session_id", conn.ID),
				zap.String("conversation_id", conversationID),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) applyMembership(conversationID string, userID string, joined bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID := range h.userSessions[userID] {
		if joined {
			if conn := h.sessions[sessionID]; conn != nil {
				h.joinLocked(conversationID, conn)
			}
			continue
		}
		h.leaveLocked(conversationID, sessionID)
	}
}

func (h *Hub) applyDissolve(conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID := range h.rooms[conversationID] {
		h.leaveLocked(conversationID, sessionID)
	}
	delete(h.rooms, conversationID)
}

func (h *Hub) forward(ctx context.Context, env envelope) {
	if h.bus == nil {
		return
	}
	env.Origin = h.nodeID
	b, err := json.Marshal(env)
	if err != nil {
		h.log.Error("encode envelope", zap.Error(err))
		return
	}
	if err := h.bus.Publish(ctx, h.channel, b); err != nil {
		h.log.Warn("bus publish failed",
			zap.String("kind", env.Kind),
			zap.String("conversation_id", env.ConversationID),
			zap.Error(err))
	}
}

func (h *Hub) handleEnvelope(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.log.Warn("drop malformed envelope", zap.Error(err))
		return
	}
	if env.Origin == h.nodeID {
		return
	}
	switch env.Kind {
	case envelopeEvent:
		h.deliver(env.ConversationID, env.Payload, env.ExcludeUserID)
	case envelopeMembership:
		h.applyMembership(env.ConversationID, env.UserID, env.Joined)
	case envelopeDissolve:
		h.applyDissolve(env.ConversationID)
	default:
		h.log.Warn("drop envelope of unknown kind", zap.String("kind", env.Kind))
	}
}

func (h *Hub) joinLocked(conversationID string, conn *Connection) {
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[string]*Connection)
		h.rooms[conversationID] = room
	}
	room[conn.ID] = conn

	memberships := h.sessionRooms[conn.ID]
	if memberships == nil {
		memberships = make(map[string]struct{})
		h.sessionRooms[conn.ID] = memberships
	}
	memberships[conversationID] = struct{}{}
}

func (h *Hub) detachLocked(sessionID string) {
	conn, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(h.sessions, sessionID)

	if sessions, ok := h.userSessions[conn.UserID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(h.userSessions, conn.UserID)
		}
	}

	for roomID := range h.sessionRooms[sessionID] {
		h.leaveLocked(roomID, sessionID)
	}
	delete(h.sessionRooms, sessionID)
}

func (h *Hub) leaveLocked(conversationID string, sessionID string) {
	if sessionID == "" {
		return
	}
	if room := h.rooms[conversationID]; room != nil {
		delete(room, sessionID)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	if memberships, ok := h.sessionRooms[sessionID]; ok {
		delete(memberships, conversationID)
		if len(memberships) == 0 {
			delete(h.sessionRooms, sessionID)
		}
	}
}
