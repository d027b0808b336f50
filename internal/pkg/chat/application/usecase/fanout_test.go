package usecase_test

import (
	"context"
	"sync"
	"time"

	chat "go-chatline/internal/pkg/chat/application/domain"
	"go-chatline/internal/pkg/chat/application/usecase"
	"go-chatline/internal/pkg/chat/persistence/repository/adapter"
)

type published struct {
	ConversationID string
	Event          chat.Event
	Exclude        string
}

type membership struct {
	ConversationID string
	UserID         string
	Joined         bool
}

// recordingFanout captures what use cases hand to the realtime layer.
type recordingFanout struct {
	mu          sync.Mutex
	published   []published
	memberships []membership
	dissolved   []string
	// calls logs every port call in order, e.g. "publish chat:new".
	calls []string
}

func (f *recordingFanout) Publish(_ context.Context, conversationID string, event chat.Event, excludeUserID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{conversationID, event, excludeUserID})
	f.calls = append(f.calls, "publish "+event.EventName())
	return 0
}

func (f *recordingFanout) MembershipChanged(_ context.Context, conversationID string, userID string, joined bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberships = append(f.memberships, membership{conversationID, userID, joined})
	if joined {
		f.calls = append(f.calls, "join "+userID)
	} else {
		f.calls = append(f.calls, "leave "+userID)
	}
}

func (f *recordingFanout) Dissolve(_ context.Context, conversationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dissolved = append(f.dissolved, conversationID)
	f.calls = append(f.calls, "dissolve")
}

// reset forgets everything recorded so far.
func (f *recordingFanout) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published, f.memberships, f.dissolved, f.calls = nil, nil, nil, nil
}

func (f *recordingFanout) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *recordingFanout) events(name string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, p := range f.published {
		if p.Event.EventName() == name {
			out = append(out, p)
		}
	}
	return out
}

func (f *recordingFanout) membershipsOf(conversationID string) []membership {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []membership
	for _, m := range f.memberships {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out
}

// stepClock returns strictly increasing instants.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	repo   *adapter.MemoryChatRepository
	fanout *recordingFanout

	ensure  *usecase.EnsureSingleUseCase
	group   *usecase.CreateGroupUseCase
	leave   *usecase.LeaveConversationUseCase
	send    *usecase.SendMessageUseCase
	seen    *usecase.MarkSeenUseCase
	typing  *usecase.TypingUseCase
	history *usecase.GetMessageUseCase
	list    *usecase.ListConversationUseCase
	connect *usecase.ConnectSessionUseCase
}

func newFixture() *fixture {
	repo := adapter.NewMemoryChatRepository()
	fanout := &recordingFanout{}
	locks := usecase.NewConversationLocks()
	clock := stepClock()

	f := &fixture{
		repo:    repo,
		fanout:  fanout,
		ensure:  usecase.NewEnsureSingleUseCase(repo, fanout, nil),
		group:   usecase.NewCreateGroupUseCase(repo, fanout),
		leave:   usecase.NewLeaveConversationUseCase(repo, fanout, locks),
		send:    usecase.NewSendMessageUseCase(repo, fanout, locks),
		seen:    usecase.NewMarkSeenUseCase(repo, fanout, locks),
		typing:  usecase.NewTypingUseCase(repo, fanout),
		history: usecase.NewGetMessageUseCase(repo, 0),
		list:    usecase.NewListConversationUseCase(repo),
		connect: usecase.NewConnectSessionUseCase(repo),
	}
	f.ensure.Now = clock
	f.group.Now = clock
	f.leave.Now = clock
	f.send.Now = clock
	return f
}
