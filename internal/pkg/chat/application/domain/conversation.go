package chat

import (
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes 1:1 conversations from groups.
type Kind string

const (
	KindSingle Kind = "single"
	KindGroup  Kind = "group"
)

// MinGroupSize is the number of members a group needs at creation.
const MinGroupSize = 3

// GroupFloor is the member count under which a group is dissolved.
const GroupFloor = 2

// Conversation is the durable chat context. Members and Admins are sets; for a
// single conversation Admins is always empty.
type Conversation struct {
	ID            string     `json:"id"`
	Kind          Kind       `json:"type"`
	Name          string     `json:"name,omitempty"`
	Members       IDSet      `json:"members"`
	Admins        IDSet      `json:"admins"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// PairKey is the order-independent key for a pair of users. Stores enforce
// uniqueness of single conversations over it.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// NewSingle builds a single conversation between userID and otherUserID.
func NewSingle(id, userID, otherUserID string, now time.Time) (*Conversation, error) {
	userID, otherUserID = strings.TrimSpace(userID), strings.TrimSpace(otherUserID)
	if userID == "" || otherUserID == "" {
		return nil, fmt.Errorf("%w: both participants are required", ErrInvalidArgument)
	}
	if userID == otherUserID {
		return nil, fmt.Errorf("%w: cannot open a conversation with yourself", ErrInvalidArgument)
	}
	now = Timestamp(now)
	return &Conversation{
		ID:            id,
		Kind:          KindSingle,
		Members:       NewIDSet(userID, otherUserID),
		Admins:        NewIDSet(),
		LastMessageAt: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// NewGroup builds a group owned by creatorID. memberIDs may or may not include
// the creator; duplicates are collapsed before the size check.
func NewGroup(id, creatorID, name string, memberIDs []string, now time.Time) (*Conversation, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidArgument)
	}
	members := NewIDSet(memberIDs...)
	members.Add(creatorID)
	if members.Len() < MinGroupSize {
		return nil, fmt.Errorf("%w: group needs >= %d members", ErrInvalidArgument, MinGroupSize)
	}
	now = Timestamp(now)
	return &Conversation{
		ID:            id,
		Kind:          KindGroup,
		Name:          strings.TrimSpace(name),
		Members:       members,
		Admins:        NewIDSet(creatorID),
		LastMessageAt: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// HasMember tells whether userID currently belongs to the conversation.
func (c *Conversation) HasMember(userID string) bool {
	if c == nil || c.Members == nil {
		return false
	}
	return c.Members.Has(userID)
}

// PairKey returns the pair key of a single conversation and "" for groups.
func (c *Conversation) PairKey() string {
	if c.Kind != KindSingle || c.Members.Len() != 2 {
		return ""
	}
	ids := c.Members.Slice()
	return PairKey(ids[0], ids[1])
}

// Validate checks the structural invariants of a stored conversation.
func (c *Conversation) Validate() error {
	switch c.Kind {
	case KindSingle:
		if c.Members.Len() != 2 {
			return fmt.Errorf("%w: single conversation needs exactly 2 members", ErrInvalidArgument)
		}
		if c.Admins.Len() != 0 {
			return fmt.Errorf("%w: single conversation has no admins", ErrInvalidArgument)
		}
	case KindGroup:
		if c.Admins.Len() == 0 {
			return fmt.Errorf("%w: group needs an admin", ErrInvalidArgument)
		}
		for id := range c.Admins {
			if !c.Members.Has(id) {
				return fmt.Errorf("%w: admin %s is not a member", ErrInvalidArgument, id)
			}
		}
	default:
		return fmt.Errorf("%w: unknown conversation type %q", ErrInvalidArgument, c.Kind)
	}
	return nil
}

// Clone returns a deep copy so stores can hand out values without sharing sets.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Members = c.Members.Clone()
	out.Admins = c.Admins.Clone()
	if c.LastMessageAt != nil {
		ts := *c.LastMessageAt
		out.LastMessageAt = &ts
	}
	return &out
}
