package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	chat "go-chatline/internal/pkg/chat/application/domain"
	"go-chatline/internal/pkg/chat/application/usecase"
)

func newTrio(t *testing.T, f *fixture) *chat.Conversation {
	t.Helper()
	conv, err := f.group.Execute(context.Background(), usecase.CreateGroupInput{UserID: "alice", Name: "trio", MemberIDs: []string{"bob", "carol"}})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return conv
}

func TestSendMessage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := newTrio(t, f)

	msg, err := f.send.Execute(ctx, usecase.SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       "bob",
		Content:        "hello",
		Attachments:    []chat.Attachment{{URL: "https://cdn.example/a.png", Type: "image"}, {URL: " "}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID == "" || msg.SenderID != "bob" || msg.Content != "hello" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.SeenBy.Len() != 0 {
		t.Fatalf("new message must have an empty seen-set, got %v", msg.SeenBy.Slice())
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected blank attachment dropped, got %+v", msg.Attachments)
	}

	stored, err := f.repo.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.LastMessageAt == nil || !stored.LastMessageAt.Equal(msg.CreatedAt) {
		t.Fatalf("last activity %v, want %v", stored.LastMessageAt, msg.CreatedAt)
	}

	events := f.fanout.events(chat.EventMessageCreated)
	if len(events) != 1 {
		t.Fatalf("expected one chat:new, got %d", len(events))
	}
	if events[0].Exclude != "" {
		t.Fatalf("chat:new must reach the sender's sessions too, excluded %q", events[0].Exclude)
	}
	if ev := events[0].Event.(chat.MessageCreatedEvent); ev.ID != msg.ID || ev.ConversationID != conv.ID {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestSentMessagesReadBackUnchanged(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := newTrio(t, f)

	// a wall clock with sub-millisecond digits, as time.Now has
	next := time.Date(2024, 6, 1, 9, 0, 0, 123456789, time.UTC)
	f.send.Now = func() time.Time {
		next = next.Add(1234567 * time.Nanosecond)
		return next
	}

	var sent []*chat.Message
	for i, sender := range []string{"alice", "bob", "carol", "alice"} {
		msg, err := f.send.Execute(ctx, usecase.SendMessageInput{ConversationID: conv.ID, SenderID: sender, Content: fmt.Sprintf("m%d", i)})
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if msg.CreatedAt.Nanosecond()%int(time.Millisecond) != 0 {
			t.Fatalf("createdAt %v has sub-millisecond digits no store keeps", msg.CreatedAt)
		}
		sent = append(sent, msg)
	}

	events := f.fanout.events(chat.EventMessageCreated)
	history, err := f.history.Execute(ctx, usecase.GetMessageInput{ConversationID: conv.ID, UserID: "bob"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(events) != len(sent) || len(history) != len(sent) {
		t.Fatalf("sent %d, published %d, read back %d", len(sent), len(events), len(history))
	}
	for i, want := range sent {
		ev := events[i].Event.(chat.MessageCreatedEvent)
		got := history[i]
		if got.ID != want.ID || got.SenderID != want.SenderID || got.Content != want.Content || !got.CreatedAt.Equal(want.CreatedAt) {
			t.Fatalf("history[%d] = %+v, sent %+v", i, got, want)
		}
		if ev.ID != want.ID || ev.SenderID != want.SenderID || ev.Content != want.Content || !ev.CreatedAt.Equal(want.CreatedAt) {
			t.Fatalf("chat:new[%d] = %+v, sent %+v", i, ev, want)
		}
	}
}

func TestSendMessageRejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := newTrio(t, f)

	cases := []struct {
		name string
		in   usecase.SendMessageInput
		want error
	}{
		{"non-member", usecase.SendMessageInput{ConversationID: conv.ID, SenderID: "mallory", Content: "x"}, chat.ErrForbidden},
		{"unknown conversation", usecase.SendMessageInput{ConversationID: "nope", SenderID: "bob"}, chat.ErrNotFound},
		{"missing conversation id", usecase.SendMessageInput{SenderID: "bob"}, chat.ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.send.Execute(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if got := len(f.fanout.events(chat.EventMessageCreated)); got != 0 {
		t.Fatalf("rejected sends must not publish, got %d", got)
	}
}

func TestMarkSeenIsIdempotentAndSkipsOwnMessages(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := newTrio(t, f)

	for _, sender := range []string{"alice", "bob", "carol"} {
		if _, err := f.send.Execute(ctx, usecase.SendMessageInput{ConversationID: conv.ID, SenderID: sender, Content: "from " + sender}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	changed, err := f.seen.Execute(ctx, usecase.MarkSeenInput{ConversationID: conv.ID, UserID: "carol"})
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if changed != 2 {
		t.Fatalf("expected 2 messages marked, got %d", changed)
	}
	changed, err = f.seen.Execute(ctx, usecase.MarkSeenInput{ConversationID: conv.ID, UserID: "carol"})
	if err != nil {
		t.Fatalf("seen again: %v", err)
	}
	if changed != 0 {
		t.Fatalf("expected idempotent second call, got %d", changed)
	}

	msgs, err := f.repo.GetMessagesByConversation(ctx, conv.ID, 10, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, m := range msgs {
		if m.SeenBy.Has(m.SenderID) {
			t.Fatalf("message %s seen by its own sender", m.ID)
		}
		if m.SenderID != "carol" && !m.SeenBy.Has("carol") {
			t.Fatalf("message %s not marked for carol", m.ID)
		}
	}

	seen := f.fanout.events(chat.EventSeen)
	if len(seen) != 2 {
		t.Fatalf("expected a chat:seen per call, got %d", len(seen))
	}
	if seen[0].Exclude != "" {
		t.Fatalf("chat:seen goes to every subscriber, excluded %q", seen[0].Exclude)
	}

	if _, err := f.seen.Execute(ctx, usecase.MarkSeenInput{ConversationID: conv.ID, UserID: "mallory"}); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestTypingExcludesTypingUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := newTrio(t, f)

	if err := f.typing.Execute(ctx, usecase.TypingInput{ConversationID: conv.ID, UserID: "bob", IsTyping: true}); err != nil {
		t.Fatalf("typing: %v", err)
	}
	events := f.fanout.events(chat.EventTyping)
	if len(events) != 1 || events[0].Exclude != "bob" {
		t.Fatalf("unexpected typing events %+v", events)
	}
	if ev := events[0].Event.(chat.TypingEvent); !ev.IsTyping || ev.UserID != "bob" {
		t.Fatalf("unexpected payload %+v", ev)
	}

	if err := f.typing.Execute(ctx, usecase.TypingInput{ConversationID: conv.ID, UserID: "mallory"}); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := f.typing.Execute(ctx, usecase.TypingInput{ConversationID: "nope", UserID: "bob"}); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHistoryPagesChronologically(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := newTrio(t, f)

	const total = 35
	for i := 0; i < total; i++ {
		if _, err := f.send.Execute(ctx, usecase.SendMessageInput{ConversationID: conv.ID, SenderID: "alice", Content: fmt.Sprintf("m%02d", i)}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	first, err := f.history.Execute(ctx, usecase.GetMessageInput{ConversationID: conv.ID, UserID: "bob"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(first) != usecase.DefaultPageSize {
		t.Fatalf("expected %d messages, got %d", usecase.DefaultPageSize, len(first))
	}
	if first[0].Content != "m05" || first[len(first)-1].Content != "m34" {
		t.Fatalf("page 1 spans %s..%s", first[0].Content, first[len(first)-1].Content)
	}
	for i := 1; i < len(first); i++ {
		if first[i].CreatedAt.Before(first[i-1].CreatedAt) {
			t.Fatalf("page not chronological at %d", i)
		}
	}

	second, err := f.history.Execute(ctx, usecase.GetMessageInput{ConversationID: conv.ID, UserID: "bob", Page: 2})
	if err != nil {
		t.Fatalf("history page 2: %v", err)
	}
	if len(second) != 5 || second[0].Content != "m00" || second[4].Content != "m04" {
		t.Fatalf("unexpected page 2 %v", second)
	}

	if _, err := f.history.Execute(ctx, usecase.GetMessageInput{ConversationID: conv.ID, UserID: "mallory"}); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
