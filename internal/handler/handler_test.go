package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"privmsg/internal/chat"
	"privmsg/internal/clock"
	"privmsg/internal/directory"
	"privmsg/internal/identity"
	"privmsg/internal/ledger"
	"privmsg/internal/model"
	"privmsg/internal/notice"
	"privmsg/internal/notify"
	"privmsg/internal/policy"
	"privmsg/internal/readstate"
	"privmsg/internal/realtime"
	"privmsg/internal/testutil"
	"privmsg/internal/toggle"
)

var testOrigins = []string{"http://localhost:8080", "http://127.0.0.1:8080"}

type testEnv struct {
	handler *Handler
	router  http.Handler
	hub     *realtime.Hub
	toggles *toggle.Static
}

// newTestEnv テスト用の依存一式をSQLite上に組み立てる
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := testutil.NewStore(t)
	clk := clock.Real()
	logger := log.New(io.Discard)

	hub := realtime.NewHub(testOrigins, logger)
	t.Cleanup(hub.Close)
	toggles := toggle.NewStatic(nil)
	inbox := notice.NewInbox(st, clk, logger)

	dispatcher := notify.NewDispatcher(st, hub,
		notify.NewPush(hub, st), notify.NewNotice(inbox), clk,
		notify.Options{Window: 10 * time.Minute, Timeout: time.Second, Realtime: true},
		logger)

	svc := chat.New(chat.Deps{
		Store:     st,
		Policy:    policy.New(toggles),
		Directory: directory.New(st, hub, clk, time.Second, logger),
		Ledger:    ledger.New(st, clk, logger),
		Reads:     readstate.New(st, clk, logger),
		Notifier:  dispatcher,
		Notices:   inbox,
		Clock:     clk,
		Logger:    logger,
	})

	h := New(svc, identity.NewHeaderResolver(st), hub, logger)
	return &testEnv{handler: h, router: h.SetupRouter(), hub: hub, toggles: toggles}
}

func (e *testEnv) do(t *testing.T, method, path, uid string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if uid != "" {
		req.Header.Set(identity.HeaderUID, uid)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) send(t *testing.T, from, to, content string) chat.SendResult {
	t.Helper()
	w := e.do(t, "POST", "/api/messages", from, map[string]string{"recipientUid": to, "content": content})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var res chat.SendResult
	json.Unmarshal(w.Body.Bytes(), &res)
	return res
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %s", w.Body.String())
	}
	return body
}

func TestCreateMessage_Success(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/messages", "alice", map[string]string{
		"recipientUid": "bob",
		"content":      "Hello Bob",
		"tempId":       "tmp-42",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var res chat.SendResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.TempID != "tmp-42" {
		t.Errorf("tempId should be echoed, got %q", res.TempID)
	}
	if res.Message.ID == 0 || res.Message.Content != "Hello Bob" || res.Message.SenderUID != "alice" {
		t.Errorf("Unexpected message %+v", res.Message)
	}
	if res.Message.CreatedAt.IsZero() || res.Message.DeletedAt != nil {
		t.Error("Server should stamp created_at and leave deleted_at empty")
	}
}

func TestCreateMessage_MissingContent(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/messages", "alice", map[string]string{"recipientUid": "bob"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if body := errorBody(t, w); body["error"] != "content is required" || body["code"] != "INVALID_REQUEST" {
		t.Errorf("Unexpected error body %v", body)
	}
}

func TestCreateMessage_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/messages", strings.NewReader("invalid json"))
	req.Header.Set(identity.HeaderUID, "alice")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestCreateMessage_OversizedBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/messages", "alice", map[string]string{
		"recipientUid": "bob",
		"content":      strings.Repeat("a", 1<<20+1),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d for oversized body, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestCreateMessage_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	for _, uid := range []string{"", "mallory"} {
		w := env.do(t, "POST", "/api/messages", uid, map[string]string{"recipientUid": "bob", "content": "hi"})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("uid %q: expected status %d, got %d", uid, http.StatusUnauthorized, w.Code)
		}
	}
}

func TestCreateMessage_PermissionDenied(t *testing.T) {
	env := newTestEnv(t)
	env.toggles.Set(toggle.UserToAdminEnable, false)

	w := env.do(t, "POST", "/api/messages", "alice", map[string]string{"recipientUid": "carol", "content": "hi"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}
	if body := errorBody(t, w); body["error"] != policy.ReasonUserToAdminDisabled {
		t.Errorf("Unexpected reason %q", body["error"])
	}

	w = env.do(t, "GET", "/api/permission?recipientUid=carol", "alice", nil)
	var d policy.Decision
	json.Unmarshal(w.Body.Bytes(), &d)
	if w.Code != http.StatusOK || d.Allowed {
		t.Errorf("Permission preview should deny, got %d %+v", w.Code, d)
	}
}

func TestSystemDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.toggles.Set(toggle.MessageEnable, false)

	for _, path := range []string{"/api/conversations", "/api/users/search?q=b", "/api/notices"} {
		w := env.do(t, "GET", path, "alice", nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusServiceUnavailable, w.Code)
		}
	}
}

func TestConversationFlow(t *testing.T) {
	env := newTestEnv(t)
	first := env.send(t, "alice", "bob", "one")
	env.send(t, "alice", "bob", "two")
	conv := first.ConversationID

	w := env.do(t, "GET", "/api/conversations", "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var list chat.ConversationList
	json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || list.Items[0].UnreadCount != 2 || list.Items[0].Other.UID != "alice" {
		t.Fatalf("Unexpected list %+v", list)
	}
	if list.PolledAt.IsZero() {
		t.Error("polledAt should be set")
	}

	w = env.do(t, "GET", "/api/conversations/"+itoa(conv)+"/messages?take=1", "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var page ledger.Page
	json.Unmarshal(w.Body.Bytes(), &page)
	if len(page.Messages) != 1 || page.Messages[0].Content != "two" || !page.HasMore {
		t.Errorf("Unexpected page %+v", page)
	}

	w = env.do(t, "GET", "/api/conversations", "bob", nil)
	json.Unmarshal(w.Body.Bytes(), &list)
	if list.Items[0].UnreadCount != 0 {
		t.Errorf("Reading the first page should clear unread, got %d", list.Items[0].UnreadCount)
	}

	w = env.do(t, "POST", "/api/conversations/"+itoa(conv)+"/read", "bob", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, w.Code)
	}

	w = env.do(t, "DELETE", "/api/conversations/"+itoa(conv), "bob", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status %d, got %d", http.StatusNoContent, w.Code)
	}
	w = env.do(t, "GET", "/api/conversations", "bob", nil)
	json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 0 {
		t.Errorf("Deleted conversation should be hidden for bob, got %d", list.Total)
	}
	w = env.do(t, "GET", "/api/conversations", "alice", nil)
	json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 {
		t.Errorf("Alice should still see the conversation, got %d", list.Total)
	}
}

func TestConversation_NotParticipant(t *testing.T) {
	env := newTestEnv(t)
	res := env.send(t, "alice", "bob", "private")

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/conversations/" + itoa(res.ConversationID) + "/messages"},
		{"POST", "/api/conversations/" + itoa(res.ConversationID) + "/read"},
		{"DELETE", "/api/conversations/" + itoa(res.ConversationID)},
		{"GET", "/api/conversations/999999/messages"},
	} {
		w := env.do(t, tc.method, tc.path, "erin", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected status %d, got %d", tc.method, tc.path, http.StatusNotFound, w.Code)
		}
	}
}

// TestQueryUID_OnlyOnWebSocket クエリのuidではREST APIに入れないことを確認
func TestQueryUID_OnlyOnWebSocket(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, "alice", "bob", "secret for bob")

	for _, path := range []string{
		"/api/conversations?uid=bob",
		"/api/notices?uid=bob",
		"/api/users/search?q=a&uid=bob",
	} {
		w := env.do(t, "GET", path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusUnauthorized, w.Code)
		}
		if strings.Contains(w.Body.String(), "secret for bob") {
			t.Errorf("%s: leaked bob's messages", path)
		}
	}
}

func TestPageParams(t *testing.T) {
	tests := []struct {
		query      string
		skip, take int
		wantErr    bool
	}{
		{"", 0, 20, false},
		{"take=500", 0, 100, false},
		{"take=0", 0, 1, false},
		{"skip=40&take=10", 40, 10, false},
		{"skip=-1", 0, 0, true},
		{"take=abc", 0, 0, true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/api/conversations?"+tt.query, nil)
		skip, take, err := pageParams(req)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v, wantErr %v", tt.query, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (skip != tt.skip || take != tt.take) {
			t.Errorf("%q: got skip=%d take=%d, want %d/%d", tt.query, skip, take, tt.skip, tt.take)
		}
	}
}

func TestSinceParam(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/conversations?since=2026-03-01T09:00:00Z", nil)
	since, err := sinceParam(req)
	if err != nil || since == nil || !since.Equal(testutil.Epoch) {
		t.Errorf("RFC 3339 cursor: got %v %v", since, err)
	}

	req = httptest.NewRequest("GET", "/api/conversations?since="+itoa(testutil.Epoch.UnixMilli()), nil)
	since, err = sinceParam(req)
	if err != nil || since == nil || !since.Equal(testutil.Epoch) {
		t.Errorf("Millisecond cursor: got %v %v", since, err)
	}

	req = httptest.NewRequest("GET", "/api/conversations?since=yesterday", nil)
	if _, err := sinceParam(req); err == nil {
		t.Error("Garbage cursor should fail")
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
}

// TestWebSocketConnection WebSocket 接続で新着メッセージを受信できることを確認
func TestWebSocketConnection(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := strings.Replace(server.URL, "http://", "ws://", 1)

	header := http.Header{}
	header.Set("Origin", "http://localhost:8080")

	ws, _, err := websocket.DefaultDialer.Dial(url+"/ws?uid=bob", header)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		online, _ := env.hub.IsOnline(context.Background(), "bob")
		if online {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("WebSocket client should be registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sent := env.send(t, "alice", "bob", "are you there?")

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event model.NewMessageEvent
	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	if event.Type != model.EventNewPrivateMessage || event.Message.ID != sent.Message.ID {
		t.Errorf("Unexpected event %+v", event)
	}
	if event.Sender.UID != "alice" || event.TotalUnreadCount != 1 {
		t.Errorf("Unexpected sender or unread total: %+v", event)
	}
}

func TestWebSocket_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := strings.Replace(server.URL, "http://", "ws://", 1)
	header := http.Header{}
	header.Set("Origin", "http://localhost:8080")

	_, resp, err := websocket.DefaultDialer.Dial(url+"/ws", header)
	if err == nil {
		t.Fatal("Anonymous WebSocket connection should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 handshake response, got %v", resp)
	}
}

// TestWebSocketOriginCheck Origin チェックテスト
func TestWebSocketOriginCheck(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := strings.Replace(server.URL, "http://", "ws://", 1)

	// 許可されていない Origin で接続試行
	header := http.Header{}
	header.Set("Origin", "http://forbidden.example.com")

	_, _, err := websocket.DefaultDialer.Dial(url+"/ws?uid=bob", header)
	if err == nil {
		t.Error("WebSocket connection from forbidden origin should fail")
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestSystemDisabled_BeforeIdentity(t *testing.T) {
	env := newTestEnv(t)
	env.toggles.Set(toggle.MessageEnable, false)

	w := env.do(t, "GET", "/api/conversations", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if body := errorBody(t, w); body["code"] != "SYSTEM_DISABLED" {
		t.Errorf("Unexpected code %q", body["code"])
	}
}
