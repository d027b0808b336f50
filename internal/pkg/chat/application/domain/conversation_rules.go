package chat

import (
	"strings"
	"time"
)

// MutationOp tells a store what to do with a conversation after a
// read-modify-write callback ran.
type MutationOp int

const (
	OpNone MutationOp = iota
	OpUpdate
	OpDelete
)

// LeaveOutcome describes the state transition caused by a member leaving.
type LeaveOutcome struct {
	Op MutationOp
	// Remaining holds the members left behind, captured before a delete.
	Remaining IDSet
}

// Deleted reports whether the transition ended the conversation.
func (o LeaveOutcome) Deleted() bool { return o.Op == OpDelete }

// Leave removes userID from the conversation and decides whether the
// conversation survives.
//
// Rules:
//   - the caller must be a member (ErrForbidden otherwise)
//   - a single conversation is deleted when either member exits
//   - a group loses the member and admin entry; it is deleted once fewer than
//     GroupFloor members remain
func (c *Conversation) Leave(userID string, now time.Time) (LeaveOutcome, error) {
	if !c.HasMember(userID) {
		return LeaveOutcome{}, ErrForbidden
	}
	if c.Kind == KindSingle {
		remaining := c.Members.Clone()
		remaining.Remove(userID)
		return LeaveOutcome{Op: OpDelete, Remaining: remaining}, nil
	}

	c.Members.Remove(userID)
	c.Admins.Remove(userID)
	if c.Members.Len() < GroupFloor {
		return LeaveOutcome{Op: OpDelete, Remaining: c.Members.Clone()}, nil
	}
	c.UpdatedAt = Timestamp(now)
	return LeaveOutcome{Op: OpUpdate, Remaining: c.Members.Clone()}, nil
}

// PostMessage validates a message against the conversation and stamps it.
//
// Validations:
//   - conversation/message identity must match
//   - sender must be a current member
//
// On success the conversation activity watermark advances to the message time.
func (c *Conversation) PostMessage(m Message, now time.Time) (Message, error) {
	if m.ConversationID == "" || c.ID == "" || m.ConversationID != c.ID {
		return Message{}, ErrNotFound
	}
	if !c.HasMember(m.SenderID) {
		return Message{}, ErrForbidden
	}

	ts := m.CreatedAt
	if ts.IsZero() {
		if now.IsZero() {
			now = time.Now()
		}
		ts = now
	}
	ts = Timestamp(ts)

	// Keep createdAt monotonic within a conversation.
	if c.LastMessageAt != nil && ts.Before(*c.LastMessageAt) {
		ts = *c.LastMessageAt
	}

	m.CreatedAt = ts
	m.SeenBy = NewIDSet()
	if m.Attachments == nil {
		m.Attachments = []Attachment{}
	}
	cleaned := m.Attachments[:0]
	for _, a := range m.Attachments {
		if strings.TrimSpace(a.URL) == "" {
			continue
		}
		cleaned = append(cleaned, a)
	}
	m.Attachments = cleaned

	c.LastMessageAt = &ts
	c.UpdatedAt = ts
	return m, nil
}
