package adapter

import (
	"context"
	"sort"
	"sync"
	"time"

	chat "go-chatline/internal/pkg/chat/application/domain"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"
)

// MemoryChatRepository keeps conversations and messages in process memory.
// It backs tests and STORE_BACKEND=memory.
type MemoryChatRepository struct {
	mu            sync.RWMutex
	conversations map[string]*chat.Conversation
	singles       map[string]string          // pair key -> conversation id
	messages      map[string][]*chat.Message // conversation id -> messages, oldest first
}

func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{
		conversations: make(map[string]*chat.Conversation),
		singles:       make(map[string]string),
		messages:      make(map[string][]*chat.Message),
	}
}

var _ repository.ChatRepository = (*MemoryChatRepository)(nil)

func (r *MemoryChatRepository) InsertConversation(_ context.Context, c *chat.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[c.ID]; ok {
		return chat.ErrConflict
	}
	if key := c.PairKey(); key != "" {
		if _, ok := r.singles[key]; ok {
			return chat.ErrConflict
		}
		r.singles[key] = c.ID
	}
	r.conversations[c.ID] = c.Clone()
	return nil
}

func (r *MemoryChatRepository) FindSingle(_ context.Context, userID string, otherUserID string) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.singles[chat.PairKey(userID, otherUserID)]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return r.conversations[id].Clone(), nil
}

func (r *MemoryChatRepository) GetConversation(_ context.Context, conversationID string) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *MemoryChatRepository) ListConversationIDsByMember(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0)
	for id, c := range r.conversations {
		if c.HasMember(userID) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryChatRepository) ListConversationsByMember(_ context.Context, userID string) ([]chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]chat.Conversation, 0)
	for _, c := range r.conversations {
		if c.HasMember(userID) {
			out = append(out, *c.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return activity(out[i]).After(activity(out[j]))
	})
	return out, nil
}

func (r *MemoryChatRepository) MutateConversation(_ context.Context, conversationID string, fn repository.MutateFunc) (*chat.Conversation, chat.MutationOp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conversations[conversationID]
	if !ok {
		return nil, chat.OpNone, chat.ErrNotFound
	}
	working := current.Clone()
	op, err := fn(working)
	if err != nil {
		return nil, chat.OpNone, err
	}

	switch op {
	case chat.OpUpdate:
		r.conversations[conversationID] = working.Clone()
	case chat.OpDelete:
		if key := current.PairKey(); key != "" {
			delete(r.singles, key)
		}
		delete(r.conversations, conversationID)
		delete(r.messages, conversationID)
	}
	return working, op, nil
}

func (r *MemoryChatRepository) SaveMessage(_ context.Context, m *chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[m.ConversationID]
	if !ok {
		return chat.ErrNotFound
	}
	if !c.HasMember(m.SenderID) {
		return chat.ErrForbidden
	}
	for _, existing := range r.messages[m.ConversationID] {
		if existing.ID == m.ID {
			return chat.ErrConflict
		}
	}
	stored := *m
	stored.SeenBy = m.SeenBy.Clone()
	stored.Attachments = copyAttachments(m.Attachments)
	r.messages[m.ConversationID] = append(r.messages[m.ConversationID], &stored)

	ts := m.CreatedAt
	if c.LastMessageAt == nil || ts.After(*c.LastMessageAt) {
		c.LastMessageAt = &ts
	}
	if ts.After(c.UpdatedAt) {
		c.UpdatedAt = ts
	}
	return nil
}

func (r *MemoryChatRepository) MarkSeen(_ context.Context, conversationID string, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[conversationID]; !ok {
		return 0, chat.ErrNotFound
	}
	var changed int64
	for _, m := range r.messages[conversationID] {
		if m.MarkSeen(userID) {
			changed++
		}
	}
	return changed, nil
}

func (r *MemoryChatRepository) GetMessagesByConversation(_ context.Context, conversationID string, limit int, offset int) ([]chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 30
	}
	if offset < 0 {
		offset = 0
	}
	all := r.messages[conversationID]
	out := make([]chat.Message, 0, limit)
	for i := len(all) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		m := *all[i]
		m.SeenBy = all[i].SeenBy.Clone()
		m.Attachments = copyAttachments(all[i].Attachments)
		out = append(out, m)
	}
	return out, nil
}

func activity(c chat.Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.UpdatedAt
}

func copyAttachments(in []chat.Attachment) []chat.Attachment {
	out := make([]chat.Attachment, 0, len(in))
	return append(out, in...)
}
