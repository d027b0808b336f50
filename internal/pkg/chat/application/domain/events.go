package chat

import "time"

// Server-to-client event names.
const (
	EventMessageCreated = "chat:new"
	EventTyping         = "chat:typing"
	EventSeen           = "chat:seen"
	EventMembership     = "chat:membership"
	EventConversation   = "chat:conversation"
)

// Membership change kinds carried by MembershipEvent.
const (
	ChangeJoined  = "joined"
	ChangeLeft    = "left"
	ChangeDeleted = "deleted"
)

// Event is anything the fanout router can deliver. Implementations marshal to
// a flat JSON frame whose "type" field equals EventName().
type Event interface {
	EventName() string
}

type MessageCreatedEvent struct {
	Type           string       `json:"type"`
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	SenderID       string       `json:"senderId"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

func NewMessageCreatedEvent(m Message) MessageCreatedEvent {
	return MessageCreatedEvent{
		Type:           EventMessageCreated,
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Attachments:    m.Attachments,
		CreatedAt:      m.CreatedAt,
	}
}

func (MessageCreatedEvent) EventName() string { return EventMessageCreated }

type TypingEvent struct {
	Type           string `json:"type"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

func NewTypingEvent(userID, conversationID string, isTyping bool) TypingEvent {
	return TypingEvent{Type: EventTyping, UserID: userID, ConversationID: conversationID, IsTyping: isTyping}
}

func (TypingEvent) EventName() string { return EventTyping }

type SeenEvent struct {
	Type           string `json:"type"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

func NewSeenEvent(userID, conversationID string) SeenEvent {
	return SeenEvent{Type: EventSeen, UserID: userID, ConversationID: conversationID}
}

func (SeenEvent) EventName() string { return EventSeen }

type MembershipEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Change         string `json:"change"`
}

func NewMembershipEvent(conversationID, userID, change string) MembershipEvent {
	return MembershipEvent{Type: EventMembership, ConversationID: conversationID, UserID: userID, Change: change}
}

func (MembershipEvent) EventName() string { return EventMembership }

// ConversationEvent announces a newly created conversation to its members.
type ConversationEvent struct {
	Type         string        `json:"type"`
	Conversation *Conversation `json:"conversation"`
}

func NewConversationEvent(c *Conversation) ConversationEvent {
	return ConversationEvent{Type: EventConversation, Conversation: c}
}

func (ConversationEvent) EventName() string { return EventConversation }
