package realtime_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"go-chatline/internal/infrastructure/pubsub/adapter"
	"go-chatline/internal/infrastructure/realtime"
	chat "go-chatline/internal/pkg/chat/application/domain"
)

type fakeSocket struct {
	mu     sync.Mutex
	writes chan []byte
	closed bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{writes: make(chan []byte, 64)}
}

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	s.writes <- data
	return nil
}

func (s *fakeSocket) WriteControl(int, []byte, time.Time) error { return nil }
func (s *fakeSocket) SetWriteDeadline(time.Time) error           { return nil }

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func expectFrame(t *testing.T, s *fakeSocket) map[string]any {
	t.Helper()
	select {
	case b := <-s.writes:
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame")
	}
	return nil
}

func expectSilence(t *testing.T, s *fakeSocket) {
	t.Helper()
	select {
	case b := <-s.writes:
		t.Fatalf("unexpected frame %s", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubPublishReachesSubscribersExceptExcluded(t *testing.T) {
	hub := realtime.NewHub(nil)
	defer hub.Close()

	aliceSock, bobSock, carolSock := newFakeSocket(), newFakeSocket(), newFakeSocket()
	alice := realtime.NewConnection("alice", aliceSock)
	bob := realtime.NewConnection("bob", bobSock)
	carol := realtime.NewConnection("carol", carolSock)
	hub.Attach(alice, []string{"c1"})
	hub.Attach(bob, []string{"c1"})
	hub.Attach(carol, []string{"c2"})

	ctx := context.Background()
	n := hub.Publish(ctx, "c1", chat.NewTypingEvent("alice", "c1", true), "alice")
	if n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	frame := expectFrame(t, bobSock)
	if frame["type"] != chat.EventTyping || frame["userId"] != "alice" {
		t.Fatalf("unexpected frame %v", frame)
	}
	expectSilence(t, aliceSock)
	expectSilence(t, carolSock)
}

func TestHubMultipleSessionsPerUser(t *testing.T) {
	hub := realtime.NewHub(nil)
	defer hub.Close()

	phone, laptop := newFakeSocket(), newFakeSocket()
	hub.Attach(realtime.NewConnection("bob", phone), nil)
	hub.Attach(realtime.NewConnection("bob", laptop), nil)

	ctx := context.Background()
	hub.MembershipChanged(ctx, "c1", "bob", true)
	if got := len(hub.SubscribersOf("c1")); got != 2 {
		t.Fatalf("expected both sessions subscribed, got %d", got)
	}

	hub.Publish(ctx, "c1", chat.NewSeenEvent("alice", "c1"), "")
	expectFrame(t, phone)
	expectFrame(t, laptop)

	hub.MembershipChanged(ctx, "c1", "bob", false)
	if got := len(hub.SubscribersOf("c1")); got != 0 {
		t.Fatalf("expected no subscribers after leave, got %d", got)
	}
}

func TestHubDetachAndDissolve(t *testing.T) {
	hub := realtime.NewHub(nil)
	defer hub.Close()

	a := realtime.NewConnection("alice", newFakeSocket())
	b := realtime.NewConnection("bob", newFakeSocket())
	hub.Attach(a, []string{"c1", "c2"})
	hub.Attach(b, []string{"c1"})

	hub.Detach(a)
	if hub.SessionCount() != 1 {
		t.Fatalf("expected 1 session, got %d", hub.SessionCount())
	}
	if subs := hub.SubscriptionsOf(a.ID); len(subs) != 0 {
		t.Fatalf("detached session still subscribed to %v", subs)
	}
	if got := len(hub.SubscribersOf("c2")); got != 0 {
		t.Fatalf("expected empty room c2, got %d", got)
	}

	hub.Dissolve(context.Background(), "c1")
	if got := len(hub.SubscribersOf("c1")); got != 0 {
		t.Fatalf("expected dissolved room, got %d", got)
	}
	if subs := hub.SubscriptionsOf(b.ID); len(subs) != 0 {
		t.Fatalf("session still subscribed to %v", subs)
	}
}

func TestHubCrossInstanceDelivery(t *testing.T) {
	bus := adapter.NewLocalBus()
	defer bus.Close()

	ctx := context.Background()
	east := realtime.NewHub(bus)
	west := realtime.NewHub(bus)
	if err := east.Start(ctx); err != nil {
		t.Fatalf("start east: %v", err)
	}
	if err := west.Start(ctx); err != nil {
		t.Fatalf("start west: %v", err)
	}
	defer east.Close()
	defer west.Close()

	aliceSock, bobSock := newFakeSocket(), newFakeSocket()
	east.Attach(realtime.NewConnection("alice", aliceSock), []string{"c1"})
	west.Attach(realtime.NewConnection("bob", bobSock), nil)

	east.MembershipChanged(ctx, "c1", "bob", true)
	if got := len(west.SubscribersOf("c1")); got != 1 {
		t.Fatalf("expected membership applied on west, got %d", got)
	}

	msg, err := chat.NewMessage("m1", "c1", "alice", "hi", nil)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	east.Publish(ctx, "c1", chat.NewMessageCreatedEvent(*msg), "")

	for _, s := range []*fakeSocket{aliceSock, bobSock} {
		frame := expectFrame(t, s)
		if frame["type"] != chat.EventMessageCreated {
			t.Fatalf("unexpected frame %v", frame)
		}
	}
	// origin hub must not deliver twice
	expectSilence(t, aliceSock)

	west.Dissolve(ctx, "c1")
	if got := len(east.SubscribersOf("c1")); got != 0 {
		t.Fatalf("expected dissolve applied on east, got %d", got)
	}
}

func TestHubCloseTerminatesSessions(t *testing.T) {
	hub := realtime.NewHub(nil)
	sock := newFakeSocket()
	conn := realtime.NewConnection("alice", sock)
	hub.Attach(conn, []string{"c1"})

	hub.Close()
	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatalf("connection not closed")
	}
	if !sock.isClosed() {
		t.Fatalf("socket not closed")
	}
	if err := conn.Send([]byte("x")); err != realtime.ErrConnectionClosed {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}
