package main

import (
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/propio/chat-server/internal/data"
	"github.com/propio/chat-server/internal/normalize"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Ping interval; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size.
	maxMessageSize = 8192

	// Outbound buffer per connection.
	sendBuffer = 64
)

// wsConn adapts a gorilla websocket to the registry's Sender. Outbound
// frames go through a buffered channel so registry callers never block on a
// slow peer; the write pump owns the socket for writing.
type wsConn struct {
	ws   *websocket.Conn
	send chan any
	done chan struct{}
	once sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		ws:   ws,
		send: make(chan any, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues a frame for the write pump. A full buffer means the peer has
// stopped draining; drop the connection rather than block the dispatcher.
func (c *wsConn) Send(v any) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	case c.send <- v:
		return nil
	default:
		c.Close()
		return errors.New("send buffer full")
	}
}

// Close makes Send fail and stops the write pump. Safe to call repeatedly.
func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// writePump serializes all writes: queued frames, pings, and the final close
// message. Runs until Close or a write error.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case v := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(v); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// readPump consumes inbound frames until the peer goes away, handing each
// payload to onMessage. onMessage may be nil for listen-only sockets.
func (c *wsConn) readPump(onMessage func([]byte)) {
	defer c.Close()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if onMessage != nil {
			onMessage(payload)
		}
	}
}

// inboundMessage is what a client writes on the message socket to send.
type inboundMessage struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// wsError is pushed back on the socket when an inbound send is rejected.
type wsError struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// rejectSocket finishes the handshake and immediately closes with a policy
// violation, so the client sees why instead of a failed upgrade.
func rejectSocket(ws *websocket.Conn, reason string) {
	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(writeWait))
	ws.Close()
}

// handleMessageSocket is the per-room realtime channel. The client connects
// with ?userId=...&roomId=...; inbound JSON payloads are sends into the
// room, outbound frames are message frames. Having this socket open means
// the user is looking at the room, so their backlog is marked seen on
// connect.
func (s *Server) handleMessageSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	userID := normalize.ID(r.URL.Query().Get("userId"))
	roomID := normalize.ID(r.URL.Query().Get("roomId"))
	if userID == "" || roomID == "" {
		rejectSocket(ws, "userId and roomId are required")
		return
	}

	conn := newWSConn(ws)
	s.roomConns.Register(userID, roomID, conn)
	defer s.roomConns.Unregister(userID, roomID, conn)

	s.log.WithFields(logrus.Fields{"userId": userID, "roomId": roomID}).Debug("message socket open")

	go conn.writePump()

	// Opening the room reads everything already addressed to this user.
	if _, err := s.messenger.MarkRoomSeen(r.Context(), roomID, userID); err != nil {
		s.log.WithError(err).WithField("roomId", roomID).Warn("catch-up mark-seen failed")
	}

	conn.readPump(func(payload []byte) {
		var in inboundMessage
		if err := json.Unmarshal(payload, &in); err != nil || in.Message == "" {
			conn.Send(wsError{Kind: "error", Error: "invalid message payload"})
			return
		}
		mtype := data.MessageType(in.Type)
		if mtype == "" {
			mtype = data.TypeText
		}
		if _, err := s.messenger.Send(r.Context(), userID, roomID, html.EscapeString(in.Message), mtype); err != nil {
			conn.Send(wsError{Kind: "error", Error: err.Error()})
		}
	})
}

// handleContactSocket is the presence channel. The client connects once with
// ?userId=... and receives chat-summary frames for rooms it does not have
// open. Listen-only; inbound payloads are ignored.
func (s *Server) handleContactSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	userID := normalize.ID(r.URL.Query().Get("userId"))
	if userID == "" {
		rejectSocket(ws, "userId is required")
		return
	}

	conn := newWSConn(ws)
	s.contactConns.Register(userID, conn)
	defer s.contactConns.Unregister(userID, conn)

	s.log.WithField("userId", userID).Debug("contact socket open")

	go conn.writePump()
	conn.readPump(nil)
}
