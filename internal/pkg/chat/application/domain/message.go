package chat

import (
	"strings"
	"time"
)

// Attachment is an optional media reference carried by a message.
type Attachment struct {
	URL  string `json:"url" bson:"url"`
	Type string `json:"type,omitempty" bson:"type,omitempty"`
}

// Message is an immutable log entry in a conversation; only SeenBy grows.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	SenderID       string       `json:"senderId"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments"`
	SeenBy         IDSet        `json:"seenBy"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// NewMessage normalizes the caller supplied fields. Empty content is allowed.
func NewMessage(id, conversationID, senderID, content string, attachments []Attachment) (*Message, error) {
	if strings.TrimSpace(conversationID) == "" || strings.TrimSpace(senderID) == "" {
		return nil, ErrInvalidArgument
	}
	atts := make([]Attachment, 0, len(attachments))
	atts = append(atts, attachments...)
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Attachments:    atts,
		SeenBy:         NewIDSet(),
	}, nil
}

// SeenByUser reports whether userID has acknowledged the message.
func (m *Message) SeenByUser(userID string) bool {
	return m.SeenBy.Has(userID)
}

// MarkSeen adds userID to the seen-set. The sender never marks their own
// message; the call reports whether anything changed.
func (m *Message) MarkSeen(userID string) bool {
	if userID == m.SenderID {
		return false
	}
	if m.SeenBy == nil {
		m.SeenBy = NewIDSet()
	}
	return m.SeenBy.Add(userID)
}

// TimePrecision is the resolution every store keeps for timestamps (BSON dates
// are milliseconds). Times are truncated to it before they are handed out so
// a value read back equals the one published.
const TimePrecision = time.Millisecond

// Timestamp normalises t to UTC at TimePrecision.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(TimePrecision)
}
