package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"reporthub-backend/internal/collab"
	"reporthub-backend/internal/middleware"
)

type hubFixture struct {
	hub         *Hub
	coordinator *collab.Coordinator
	auth        *middleware.JWTAuth
	server      *httptest.Server
}

// newHubFixture wires the hub as the coordinator's publisher directly,
// standing in for the Redis bridge.
func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	store := collab.NewStore(24 * time.Hour)
	coord := collab.NewCoordinator(store, nil, "http://localhost:5173", 5*time.Minute, 5*time.Minute)
	auth := middleware.NewJWTAuth("test-secret")
	hub := NewHub(coord, nil, auth)
	coord.SetPublisher(hub)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)

	return &hubFixture{hub: hub, coordinator: coord, auth: auth, server: srv}
}

func (f *hubFixture) dial(t *testing.T, sessionID string, userID uuid.UUID) *websocket.Conn {
	t.Helper()

	token, err := f.auth.GenerateAccessToken(userID, middleware.RoleEditor)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	wsURL := strings.Replace(f.server.URL, "http://", "ws://", 1) + "?token=" + token + "&session=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal %q: %v", data, err)
	}
	return msg
}

// readUntil skips interleaved presence traffic until a message of the
// wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType MessageType) WSMessage {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readMessage(t, conn)
		if msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("never received %q message", msgType)
	return WSMessage{}
}

func TestHandleWebSocketRejectsMissingToken(t *testing.T) {
	f := newHubFixture(t)

	resp, err := http.Get(f.server.URL + "?session=abc")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing token returned %d, want 401", resp.StatusCode)
	}
}

func TestHandleWebSocketUnknownSession(t *testing.T) {
	f := newHubFixture(t)
	token, _ := f.auth.GenerateAccessToken(uuid.New(), middleware.RoleEditor)

	resp, err := http.Get(f.server.URL + "?token=" + token + "&session=nonexist")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session returned %d, want 404", resp.StatusCode)
	}
}

func TestJoinedMessageCarriesDocument(t *testing.T) {
	f := newHubFixture(t)
	res, err := f.coordinator.Create(collab.Document{"tag": "T1"}, collab.PermissionEdit, uuid.New())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	conn := f.dial(t, res.SessionID, uuid.New())

	msg := readMessage(t, conn)
	if msg.Type != MsgJoined {
		t.Fatalf("first message type = %q, want joined", msg.Type)
	}
	payload, _ := msg.Payload.(map[string]interface{})
	doc, _ := payload["document"].(map[string]interface{})
	if doc["tag"] != "T1" {
		t.Errorf("joined document = %v, want tag=T1", doc)
	}
	if payload["user_count"] != float64(1) {
		t.Errorf("user_count = %v, want 1", payload["user_count"])
	}
}

func TestUpdateFansOutToOtherClients(t *testing.T) {
	f := newHubFixture(t)
	res, _ := f.coordinator.Create(collab.Document{"tag": "T1"}, collab.PermissionEdit, uuid.New())

	userA := uuid.New()
	userB := uuid.New()

	connA := f.dial(t, res.SessionID, userA)
	readMessage(t, connA) // joined

	connB := f.dial(t, res.SessionID, userB)
	readMessage(t, connB) // joined

	err := connA.WriteJSON(ClientMessage{
		Type:   MsgSendUpdate,
		Update: &collab.UpdateRequest{Kind: collab.UpdateField, Field: "tag", Value: "T2"},
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	msg := readUntil(t, connB, MsgUpdate)
	payload, _ := msg.Payload.(map[string]interface{})
	update, _ := payload["update"].(map[string]interface{})
	if update["field"] != "tag" || update["value"] != "T2" {
		t.Errorf("B received update %v, want tag=T2", update)
	}
}

func TestViewSessionUpdateReturnsError(t *testing.T) {
	f := newHubFixture(t)
	res, _ := f.coordinator.Create(collab.Document{"a": 1}, collab.PermissionView, uuid.New())

	conn := f.dial(t, res.SessionID, uuid.New())
	readMessage(t, conn) // joined

	conn.WriteJSON(ClientMessage{
		Type:   MsgSendUpdate,
		Update: &collab.UpdateRequest{Kind: collab.UpdateField, Field: "a", Value: 2},
	})

	msg := readUntil(t, conn, MsgError)
	payload, _ := msg.Payload.(map[string]interface{})
	if payload["code"] != "FORBIDDEN" {
		t.Errorf("error code = %v, want FORBIDDEN", payload["code"])
	}
}

// Broadcasts racing disconnects must never write to a closed send
// channel; a single crash here takes out the whole fan-out goroutine.
func TestBroadcastDuringDisconnectChurn(t *testing.T) {
	f := newHubFixture(t)
	res, _ := f.coordinator.Create(collab.Document{"a": 1}, collab.PermissionEdit, uuid.New())

	const numClients = 128
	clients := make([]*client, numClients)
	for i := range clients {
		// Tiny buffer so broadcasts hit the slow-client path and drop
		// clients concurrently with the unregister loop below.
		clients[i] = &client{send: make(chan []byte, 1), userID: uuid.New()}
		f.hub.register(res.SessionID, clients[i])
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			f.hub.Broadcast(res.SessionID, collab.UpdateEvent{
				Type:      collab.EventPresence,
				SessionID: res.SessionID,
				UserID:    uuid.New(),
			})
		}
	}()

	for _, c := range clients {
		f.hub.unregister(res.SessionID, c)
	}
	<-done

	if got := f.hub.RoomSize(res.SessionID); got != 0 {
		t.Errorf("room size after churn = %d, want 0", got)
	}
}

func TestLeaveShrinksRoom(t *testing.T) {
	f := newHubFixture(t)
	res, _ := f.coordinator.Create(collab.Document{"a": 1}, collab.PermissionEdit, uuid.New())

	conn := f.dial(t, res.SessionID, uuid.New())
	readMessage(t, conn) // joined
	if got := f.hub.RoomSize(res.SessionID); got != 1 {
		t.Fatalf("room size = %d, want 1", got)
	}

	conn.WriteJSON(ClientMessage{Type: MsgLeave})

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.RoomSize(res.SessionID) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room never emptied after leave")
		}
		time.Sleep(10 * time.Millisecond)
	}

	snap, err := f.coordinator.Snapshot(res.SessionID)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.UserCount != 0 {
		t.Errorf("user count after leave = %d, want 0", snap.UserCount)
	}
}
