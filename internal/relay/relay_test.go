package relay

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/propio/chat-server/internal/chat"
	"github.com/propio/chat-server/internal/data"
	"github.com/propio/chat-server/internal/registry"
)

type recordConn struct {
	mu     sync.Mutex
	frames []any
}

func (c *recordConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, v)
	return nil
}

func (c *recordConn) Close() error { return nil }

func (c *recordConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newTestRelay(rdb *redis.Client) (*Relay, *registry.RoomRegistry, *registry.ContactRegistry) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	rooms := registry.NewRoomRegistry()
	contacts := registry.NewContactRegistry()
	return New(rdb, rooms, contacts, logrus.NewEntry(l)), rooms, contacts
}

func TestApplySkipsOwnEvents(t *testing.T) {
	r, rooms, _ := newTestRelay(nil)
	conn := &recordConn{}
	rooms.Register("u1", "room_1", conn)

	f := &chat.Frame{Kind: chat.KindMessage, Message: &data.Message{Body: "hi"}}
	r.apply(&Event{Instance: r.instance, Channel: "room", UserID: "u1", RoomID: "room_1", Frame: f})
	if conn.count() != 0 {
		t.Error("own event must not be re-applied")
	}

	r.apply(&Event{Instance: "other", Channel: "room", UserID: "u1", RoomID: "room_1", Frame: f})
	if conn.count() != 1 {
		t.Error("foreign event should reach the local socket")
	}
}

func TestApplyRoutesByChannel(t *testing.T) {
	r, rooms, contacts := newTestRelay(nil)
	roomConn := &recordConn{}
	contactConn := &recordConn{}
	rooms.Register("u1", "room_1", roomConn)
	contacts.Register("u1", contactConn)

	f := &chat.Frame{Kind: chat.KindSummary, Summary: &data.ChatSummary{RoomID: "room_1"}}
	r.apply(&Event{Instance: "other", Channel: "contact", UserID: "u1", Frame: f})

	if contactConn.count() != 1 {
		t.Error("contact event should hit the contact socket")
	}
	if roomConn.count() != 0 {
		t.Error("contact event must not hit the room socket")
	}

	// Unknown addressee is a silent drop.
	r.apply(&Event{Instance: "other", Channel: "room", UserID: "nobody", RoomID: "room_x", Frame: f})
}

// Round-trip through a real Redis. Runs only when REDIS_ADDR is set.
func TestRelayRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("set REDIS_ADDR to run relay integration tests")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pub, _, _ := newTestRelay(rdb)
	sub, rooms, _ := newTestRelay(rdb)

	conn := &recordConn{}
	rooms.Register("u1", "room_1", conn)

	go sub.Run(ctx)
	time.Sleep(200 * time.Millisecond) // let the subscription settle

	pub.PublishRoom(ctx, "u1", "room_1", &chat.Frame{
		Kind:    chat.KindMessage,
		Message: &data.Message{RoomID: "room_1", Body: "cross-instance"},
	})

	deadline := time.After(3 * time.Second)
	for conn.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("relayed frame never arrived")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
