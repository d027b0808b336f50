package usecase

import (
	"context"
	"strings"

	chat "go-chatline/internal/pkg/chat/application/domain"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"
)

const (
	DefaultPageSize = 30
	MaxPageSize     = 100
)

// GetMessageInput carries parameters to fetch a page of a conversation's
// history. Page is 1-based; page 1 holds the newest messages.
type GetMessageInput struct {
	ConversationID string
	UserID         string
	Page           int
	Limit          int
}

// GetMessageUseCase fetches messages for a given conversation
type GetMessageUseCase struct {
	Repo     repository.ChatRepository
	PageSize int
}

func NewGetMessageUseCase(repo repository.ChatRepository, pageSize int) *GetMessageUseCase {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &GetMessageUseCase{Repo: repo, PageSize: pageSize}
}

// Execute returns one page in chronological order. Only members may read.
func (uc *GetMessageUseCase) Execute(ctx context.Context, in GetMessageInput) ([]chat.Message, error) {
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	if in.ConversationID == "" {
		return nil, invalid("conversationId is required")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = uc.PageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	page := in.Page
	if page < 1 {
		page = 1
	}

	conv, err := uc.Repo.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, storeError(err)
	}
	if !conv.HasMember(in.UserID) {
		return nil, chat.ErrForbidden
	}

	msgs, err := uc.Repo.GetMessagesByConversation(ctx, in.ConversationID, limit, (page-1)*limit)
	if err != nil {
		return nil, storeError(err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
