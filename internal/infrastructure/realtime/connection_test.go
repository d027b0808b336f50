package realtime_test

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"go-chatline/internal/infrastructure/realtime"
)

// orderedSocket logs every write in order and holds text writes until gate
// is closed.
type orderedSocket struct {
	gate chan struct{}
	mu   sync.Mutex
	log  []string
}

func (s *orderedSocket) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	<-s.gate
	s.record("text " + string(data))
	return nil
}

func (s *orderedSocket) WriteControl(messageType int, data []byte, _ time.Time) error {
	if messageType == websocket.CloseMessage && len(data) >= 2 {
		s.record(fmt.Sprintf("close %d", binary.BigEndian.Uint16(data)))
	}
	return nil
}

func (s *orderedSocket) SetWriteDeadline(time.Time) error { return nil }

func (s *orderedSocket) Close() error {
	s.record("closed")
	return nil
}

func (s *orderedSocket) record(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, entry)
}

func (s *orderedSocket) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

func TestConnectionDrainWritesQueuedFramesBeforeClosing(t *testing.T) {
	sock := &orderedSocket{gate: make(chan struct{})}
	conn := realtime.NewConnection("alice", sock)
	conn.Start()

	for _, frame := range []string{"one", "two", "error"} {
		if err := conn.Send([]byte(frame)); err != nil {
			t.Fatalf("send %s: %v", frame, err)
		}
	}
	drained := make(chan struct{})
	go func() {
		conn.Drain(websocket.CloseNormalClosure, "session closed")
		close(drained)
	}()
	close(sock.gate)

	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatalf("drain did not return")
	}
	want := []string{"text one", "text two", "text error", "close 1000", "closed"}
	if got := sock.events(); !reflect.DeepEqual(got, want) {
		t.Fatalf("socket saw %v, want %v", got, want)
	}
	if err := conn.Send([]byte("late")); err != realtime.ErrConnectionClosed {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestConnectionDrainAfterCloseIsNoop(t *testing.T) {
	sock := &orderedSocket{gate: make(chan struct{})}
	close(sock.gate)
	conn := realtime.NewConnection("alice", sock)
	conn.Start()

	conn.Close(realtime.CloseSlowConsumer, "send buffer full")
	conn.Drain(websocket.CloseNormalClosure, "session closed")

	want := []string{fmt.Sprintf("close %d", realtime.CloseSlowConsumer), "closed"}
	if got := sock.events(); !reflect.DeepEqual(got, want) {
		t.Fatalf("socket saw %v, want %v", got, want)
	}
}
