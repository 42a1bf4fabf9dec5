package main

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/propio/chat-server/internal/chat"
	"github.com/propio/chat-server/internal/data"
)

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestMessageSocketRejectsMissingParams(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	for _, path := range []string{"/ws/message", "/ws/message?userId=usr_b", "/ws/contact"} {
		ws := dialWS(t, srv, path)
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := ws.ReadMessage()
		ce, ok := err.(*websocket.CloseError)
		if !ok {
			t.Fatalf("%s: read err = %v, want a close error", path, err)
		}
		if ce.Code != websocket.ClosePolicyViolation {
			t.Errorf("%s: close code = %d, want 1008", path, ce.Code)
		}
	}
}

func TestMessageSocketRegistersAndSends(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ws := dialWS(t, srv, "/ws/message?userId=usr_b&roomId=room_1")

	// The connection must land in the registry before it is useful.
	waitFor(t, func() bool { return env.roomConns.Len() == 1 })

	// Connecting catches the backlog up to seen.
	waitFor(t, func() bool { return env.messenger.seenRoom() == "room_1" })

	// Inbound payload becomes a dispatch.
	if err := ws.WriteJSON(inboundMessage{Message: "hello there"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return env.messenger.sentCount() == 1 })
	if env.messenger.sent[0].SenderID != "usr_b" || env.messenger.sent[0].RoomID != "room_1" {
		t.Errorf("sent = %+v", env.messenger.sent[0])
	}

	// A frame pushed through the registry reaches the client.
	conn, ok := env.roomConns.Lookup("usr_b", "room_1")
	if !ok {
		t.Fatal("connection missing from registry")
	}
	frame := &chat.Frame{Kind: chat.KindMessage, Message: &data.Message{RoomID: "room_1", Body: "hi back", Status: data.StatusSeen}}
	if err := conn.Send(frame); err != nil {
		t.Fatalf("registry send: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got chat.Frame
	if err := ws.ReadJSON(&got); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if got.Kind != chat.KindMessage || got.Message == nil || got.Message.Body != "hi back" {
		t.Errorf("frame = %+v", got)
	}
}

func TestMessageSocketReportsSendErrors(t *testing.T) {
	env := newTestEnv(t)
	env.messenger.sendErr = chat.ErrBlockedByReceiver
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ws := dialWS(t, srv, "/ws/message?userId=usr_b&roomId=room_1")
	waitFor(t, func() bool { return env.roomConns.Len() == 1 })

	if err := ws.WriteJSON(inboundMessage{Message: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var we wsError
	if err := json.Unmarshal(payload, &we); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if we.Kind != "error" || !strings.Contains(we.Error, "unavailable") {
		t.Errorf("error frame = %+v", we)
	}
}

func TestContactSocketReceivesSummaries(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ws := dialWS(t, srv, "/ws/contact?userId=usr_s")
	waitFor(t, func() bool { return env.contConns.Len() == 1 })

	conn, ok := env.contConns.Lookup("usr_s")
	if !ok {
		t.Fatal("connection missing from registry")
	}
	if err := conn.Send(&chat.Frame{Kind: chat.KindSummary, Summary: &data.ChatSummary{RoomID: "room_1", UnreadCount: 2}}); err != nil {
		t.Fatalf("registry send: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got chat.Frame
	if err := ws.ReadJSON(&got); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if got.Kind != chat.KindSummary || got.Summary == nil || got.Summary.UnreadCount != 2 {
		t.Errorf("frame = %+v", got)
	}
}

func TestSocketUnregistersOnDisconnect(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ws := dialWS(t, srv, "/ws/message?userId=usr_b&roomId=room_1")
	waitFor(t, func() bool { return env.roomConns.Len() == 1 })

	ws.Close()
	waitFor(t, func() bool { return env.roomConns.Len() == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never met")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
