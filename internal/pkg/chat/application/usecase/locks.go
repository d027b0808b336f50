package usecase

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 256

// ConversationLocks serializes work on the same conversation inside one
// process so that persist and publish of concurrent requests do not interleave.
// Distinct conversations may share a stripe.
type ConversationLocks struct {
	stripes [lockStripes]sync.Mutex
}

func NewConversationLocks() *ConversationLocks {
	return &ConversationLocks{}
}

// Lock acquires the stripe of conversationID and returns its release func.
func (l *ConversationLocks) Lock(conversationID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

func orNewLocks(l *ConversationLocks) *ConversationLocks {
	if l == nil {
		return NewConversationLocks()
	}
	return l
}
