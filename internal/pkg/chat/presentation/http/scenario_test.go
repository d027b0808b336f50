package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	authAdapter "go-chatline/internal/infrastructure/auth/adapter"
	"go-chatline/internal/infrastructure/realtime"
	"go-chatline/internal/pkg/chat/application/port"
	repoAdapter "go-chatline/internal/pkg/chat/persistence/repository/adapter"
	chathttp "go-chatline/internal/pkg/chat/presentation/http"
)

type env struct {
	t        *testing.T
	server   *httptest.Server
	verifier *authAdapter.JWTVerifier
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier, err := authAdapter.NewJWTVerifier("test-secret")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	repo := repoAdapter.NewMemoryChatRepository()
	hub := realtime.NewHub(nil)

	uc := chathttp.NewUseCases(repo, hub, port.AllowAll{}, 30)
	r := gin.New()
	chathttp.RegisterRoutes(r.Group("/api/v1"), chathttp.Deps{
		Hub:            hub,
		Verifier:       verifier,
		AuthTimeout:    time.Second,
		RequestTimeout: 2 * time.Second,
	}, uc)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &env{t: t, server: srv, verifier: verifier}
}

func (e *env) token(userID string) string {
	e.t.Helper()
	tok, err := e.verifier.Issue(userID, time.Hour)
	if err != nil {
		e.t.Fatalf("issue: %v", err)
	}
	return tok
}

func (e *env) dial(userID string) *websocket.Conn {
	e.t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/api/v1/ws?token=" + e.token(userID)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		e.t.Fatalf("dial %s: %v", userID, err)
	}
	e.t.Cleanup(func() { _ = ws.Close() })
	readUntil(e.t, ws, "connected")
	return ws
}

func (e *env) do(userID, method, path string, body any) (int, map[string]any) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		e.t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(userID))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

// readUntil returns the first frame of the wanted type, skipping others.
func readUntil(t *testing.T, ws *websocket.Conn, frameType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = ws.SetReadDeadline(deadline)
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", frameType, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if m["type"] == frameType {
			return m
		}
	}
}

// readBefore reads until a frame of type want arrives and fails if a frame of
// one of the forbidden types shows up first. A timed-out read corrupts a gorilla
// connection, so absence is asserted against a later sentinel frame.
func readBefore(t *testing.T, ws *websocket.Conn, want string, forbidden ...string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = ws.SetReadDeadline(deadline)
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		for _, f := range forbidden {
			if m["type"] == f {
				t.Fatalf("unexpected %s frame before %s: %s", f, want, data)
			}
		}
		if m["type"] == want {
			return m
		}
	}
}

func send(t *testing.T, ws *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := ws.WriteJSON(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSocketRejectsMissingOrBadToken(t *testing.T) {
	e := newEnv(t)
	base := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/api/v1/ws"

	for _, url := range []string{base, base + "?token=garbage"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Fatalf("expected handshake failure for %s", url)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s, got %v", url, resp)
		}
	}

	if status, _ := e.do("", http.MethodGet, "/api/v1/conversations/my", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 on REST without token, got %d", status)
	}
}

func TestSingleConversationRealtimeFlow(t *testing.T) {
	e := newEnv(t)
	alice := e.dial("alice")
	bob := e.dial("bob")
	mallory := e.dial("mallory")

	status, conv := e.do("alice", http.MethodPost, "/api/v1/conversations/single", map[string]any{"otherUserId": "bob"})
	if status != http.StatusCreated {
		t.Fatalf("ensureSingle: %d %v", status, conv)
	}
	convID := conv["id"].(string)

	// second call from the other side finds the same conversation
	status, again := e.do("bob", http.MethodPost, "/api/v1/conversations/single", map[string]any{"userId": "alice"})
	if status != http.StatusOK || again["id"] != convID {
		t.Fatalf("expected existing conversation, got %d %v", status, again)
	}

	for _, ws := range []*websocket.Conn{alice, bob} {
		announced := readUntil(t, ws, "chat:conversation")
		if announced["conversation"].(map[string]any)["id"] != convID {
			t.Fatalf("unexpected announcement %v", announced)
		}
	}

	send(t, alice, map[string]any{"type": "chat:send", "ref": "r1", "conversationId": convID, "content": "hello bob"})
	ack := readUntil(t, alice, "ack")
	if ack["ref"] != "r1" || ack["messageId"] == "" {
		t.Fatalf("unexpected ack %v", ack)
	}
	got := readUntil(t, bob, "chat:new")
	if got["content"] != "hello bob" || got["senderId"] != "alice" || got["conversationId"] != convID {
		t.Fatalf("unexpected chat:new %v", got)
	}

	send(t, bob, map[string]any{"type": "chat:typing", "conversationId": convID, "isTyping": true})
	typing := readUntil(t, alice, "chat:typing")
	if typing["userId"] != "bob" || typing["isTyping"] != true {
		t.Fatalf("unexpected typing %v", typing)
	}

	send(t, bob, map[string]any{"type": "chat:seen", "conversationId": convID})
	if seen := readBefore(t, bob, "chat:seen", "chat:typing"); seen["userId"] != "bob" {
		t.Fatalf("unexpected seen %v", seen)
	}
	if seen := readUntil(t, alice, "chat:seen"); seen["userId"] != "bob" {
		t.Fatalf("unexpected seen %v", seen)
	}

	status, history := e.do("bob", http.MethodGet, "/api/v1/messages/"+convID, nil)
	if status != http.StatusOK {
		t.Fatalf("history: %d %v", status, history)
	}
	msgs := history["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %v", msgs)
	}
	seenBy := msgs[0].(map[string]any)["seenBy"].([]any)
	if len(seenBy) != 1 || seenBy[0] != "bob" {
		t.Fatalf("unexpected seenBy %v", seenBy)
	}

	send(t, mallory, map[string]any{"type": "chat:send", "ref": "x", "conversationId": convID, "content": "let me in"})
	if errFrame := readUntil(t, mallory, "error"); errFrame["code"] != "forbidden" || errFrame["ref"] != "x" {
		t.Fatalf("unexpected error frame %v", errFrame)
	}
	if status, _ := e.do("mallory", http.MethodGet, "/api/v1/messages/"+convID, nil); status != http.StatusForbidden {
		t.Fatalf("expected 403 history for non-member, got %d", status)
	}

	send(t, alice, map[string]any{"type": "chat:wave", "conversationId": convID})
	if errFrame := readUntil(t, alice, "error"); errFrame["code"] != "unsupported_type" {
		t.Fatalf("unexpected error frame %v", errFrame)
	}

	status, inline := e.do("bob", http.MethodPost, "/api/v1/messages/send", map[string]any{"conversationId": convID, "content": "via rest"})
	if status != http.StatusCreated || inline["content"] != "via rest" {
		t.Fatalf("inline send: %d %v", status, inline)
	}
	if got := readUntil(t, alice, "chat:new"); got["content"] != "via rest" {
		t.Fatalf("unexpected chat:new %v", got)
	}
}

func TestGroupLeaveAndDissolve(t *testing.T) {
	e := newEnv(t)
	alice := e.dial("alice")
	bob := e.dial("bob")
	carol := e.dial("carol")

	status, _ := e.do("alice", http.MethodPost, "/api/v1/conversations/group", map[string]any{"name": "pair", "memberIds": []string{"bob", "bob"}})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for a two-member group, got %d", status)
	}

	status, group := e.do("alice", http.MethodPost, "/api/v1/conversations/group", map[string]any{"name": "trio", "memberIds": []string{"bob", "carol"}})
	if status != http.StatusCreated {
		t.Fatalf("createGroup: %d %v", status, group)
	}
	groupID := group["id"].(string)
	for _, ws := range []*websocket.Conn{alice, bob, carol} {
		readUntil(t, ws, "chat:conversation")
	}

	status, left := e.do("bob", http.MethodDelete, "/api/v1/conversations/"+groupID, nil)
	if status != http.StatusOK || left["deleted"] != false {
		t.Fatalf("bob leave: %d %v", status, left)
	}
	for _, ws := range []*websocket.Conn{alice, carol} {
		if m := readUntil(t, ws, "chat:membership"); m["change"] != "left" || m["userId"] != "bob" {
			t.Fatalf("unexpected membership %v", m)
		}
	}

	// bob no longer receives traffic for the group, not even his own leave
	send(t, alice, map[string]any{"type": "chat:send", "conversationId": groupID, "content": "still here"})
	readUntil(t, carol, "chat:new")
	send(t, bob, map[string]any{"type": "chat:wave", "conversationId": groupID})
	readBefore(t, bob, "error", "chat:new", "chat:membership")

	send(t, carol, map[string]any{"type": "chat:leave", "ref": "bye", "conversationId": groupID})
	if ack := readBefore(t, carol, "ack", "chat:membership"); ack["ref"] != "bye" {
		t.Fatalf("unexpected ack %v", ack)
	}
	if m := readUntil(t, alice, "chat:membership"); m["change"] != "deleted" {
		t.Fatalf("expected deletion notice, got %v", m)
	}

	if status, _ := e.do("alice", http.MethodDelete, "/api/v1/conversations/"+groupID, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 after dissolve, got %d", status)
	}
	send(t, alice, map[string]any{"type": "chat:send", "conversationId": groupID, "content": "anyone?"})
	if errFrame := readUntil(t, alice, "error"); errFrame["code"] != "not_found" {
		t.Fatalf("unexpected error frame %v", errFrame)
	}

	status, list := e.do("alice", http.MethodGet, "/api/v1/conversations/my", nil)
	if status != http.StatusOK || list["count"] != float64(0) {
		t.Fatalf("expected no conversations, got %d %v", status, list)
	}
}
