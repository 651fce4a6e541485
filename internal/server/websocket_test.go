package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type receivedFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dialWebsocket(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) receivedFrame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var frame receivedFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("failed to decode frame %s: %v", raw, err)
	}
	return frame
}

func sendJoin(t *testing.T, conn *websocket.Conn, userID int64) {
	t.Helper()
	payload := fmt.Sprintf(`{"action":"join","user_id":%d}`, userID)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("failed to send join frame: %v", err)
	}
}

func TestWebsocketJoinReplaysMissedNotifications(t *testing.T) {
	stack := newTestStack(t)
	httpServer := httptest.NewServer(stack.handler)
	t.Cleanup(httpServer.Close)

	user, err := stack.store.CreateUser("Replay User")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if _, err := stack.store.Append(user.ID, "missed while offline"); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	conn := dialWebsocket(t, httpServer.URL)
	sendJoin(t, conn, user.ID)

	frame := readFrame(t, conn)
	if frame.Event != "LoadExistingNotifications" {
		t.Fatalf("expected backlog replay event, got %s", frame.Event)
	}
	var replayed []struct {
		ID      int64  `json:"id"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(frame.Data, &replayed); err != nil {
		t.Fatalf("failed to decode backlog payload: %v", err)
	}
	if len(replayed) != 1 || replayed[0].Message != "missed while offline" {
		t.Fatalf("unexpected backlog payload %+v", replayed)
	}

	// Acknowledgment happens after the push is queued, so poll for it.
	waitFor(t, func() bool {
		backlog, err := stack.store.UnacknowledgedFor(user.ID, 50)
		return err == nil && len(backlog) == 0
	}, "expected backlog acknowledged after replay")
}

func TestWebsocketLivePushReachesJoinedConnection(t *testing.T) {
	stack := newTestStack(t)
	httpServer := httptest.NewServer(stack.handler)
	t.Cleanup(httpServer.Close)

	user, err := stack.store.CreateUser("Live User")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	conn := dialWebsocket(t, httpServer.URL)
	sendJoin(t, conn, user.ID)
	waitFor(t, func() bool {
		return len(stack.registry.ConnectionsFor(user.ID)) == 1
	}, "expected the connection to register")

	body := fmt.Sprintf(`{"user_id":%d,"message":"live push"}`, user.ID)
	response, err := http.Post(httpServer.URL+"/notifications", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, response.StatusCode)
	}

	frame := readFrame(t, conn)
	if frame.Event != "ReceiveNotification" {
		t.Fatalf("expected live push event, got %s", frame.Event)
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Message != "live push" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestWebsocketFanOutReachesEveryConnection(t *testing.T) {
	stack := newTestStack(t)
	httpServer := httptest.NewServer(stack.handler)
	t.Cleanup(httpServer.Close)

	user, err := stack.store.CreateUser("Fan Out User")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	first := dialWebsocket(t, httpServer.URL)
	second := dialWebsocket(t, httpServer.URL)
	sendJoin(t, first, user.ID)
	sendJoin(t, second, user.ID)
	waitFor(t, func() bool {
		return len(stack.registry.ConnectionsFor(user.ID)) == 2
	}, "expected both connections to register")

	body := fmt.Sprintf(`{"user_id":%d,"message":"to everyone"}`, user.ID)
	response, err := http.Post(httpServer.URL+"/notifications", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	defer response.Body.Close()

	for _, conn := range []*websocket.Conn{first, second} {
		frame := readFrame(t, conn)
		if frame.Event != "ReceiveNotification" {
			t.Fatalf("expected live push event on every connection, got %s", frame.Event)
		}
	}
}

func TestWebsocketDisconnectPurgesRegistry(t *testing.T) {
	stack := newTestStack(t)
	httpServer := httptest.NewServer(stack.handler)
	t.Cleanup(httpServer.Close)

	user, err := stack.store.CreateUser("Disconnect User")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	conn := dialWebsocket(t, httpServer.URL)
	sendJoin(t, conn, user.ID)
	waitFor(t, func() bool {
		return len(stack.registry.ConnectionsFor(user.ID)) == 1
	}, "expected the connection to register")

	_ = conn.Close()

	waitFor(t, func() bool {
		return len(stack.registry.ConnectionsFor(user.ID)) == 0
	}, "expected the disconnect to purge the registry")
}
