// Package relay fans delivery frames out to sibling server instances over
// Redis pub/sub. A client's socket lives on exactly one instance; when the
// dispatcher cannot find a connection locally it publishes the frame so the
// instance that does hold the socket can write it.
//
// Delivery status decisions stay local to the publishing instance: a
// receiver whose only socket lives on another instance is treated as offline
// for status purposes even if a relayed frame later reaches them. The relay
// narrows the window, it does not close it.
package relay

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/propio/chat-server/internal/chat"
	"github.com/propio/chat-server/internal/registry"
)

// Channel is the pub/sub channel all instances share.
const Channel = "chat:events"

// Channel kinds inside an event.
const (
	chanRoom    = "room"
	chanContact = "contact"
)

// Event is one relayed frame with its addressing.
type Event struct {
	Instance string      `json:"instance"`
	Channel  string      `json:"channel"`
	UserID   string      `json:"userId"`
	RoomID   string      `json:"roomId,omitempty"`
	Frame    *chat.Frame `json:"frame"`
}

// Relay publishes local delivery frames and applies foreign ones to the
// local registries.
type Relay struct {
	rdb          *redis.Client
	instance     string
	roomConns    *registry.RoomRegistry
	contactConns *registry.ContactRegistry
	log          *logrus.Entry
}

// New builds a relay around an existing Redis client. Each relay gets a
// random instance id so it can skip its own publications.
func New(rdb *redis.Client, roomConns *registry.RoomRegistry, contactConns *registry.ContactRegistry, log *logrus.Entry) *Relay {
	return &Relay{
		rdb:          rdb,
		instance:     uuid.NewString(),
		roomConns:    roomConns,
		contactConns: contactConns,
		log:          log,
	}
}

// PublishRoom relays a room-channel frame addressed to (userID, roomID).
func (r *Relay) PublishRoom(ctx context.Context, userID, roomID string, f *chat.Frame) {
	r.publish(ctx, &Event{Instance: r.instance, Channel: chanRoom, UserID: userID, RoomID: roomID, Frame: f})
}

// PublishContact relays a contact-channel frame addressed to userID.
func (r *Relay) PublishContact(ctx context.Context, userID string, f *chat.Frame) {
	r.publish(ctx, &Event{Instance: r.instance, Channel: chanContact, UserID: userID, Frame: f})
}

func (r *Relay) publish(ctx context.Context, ev *Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		r.log.WithError(err).Error("relay event marshal failed")
		return
	}
	if err := r.rdb.Publish(ctx, Channel, b).Err(); err != nil {
		r.log.WithError(err).Warn("relay publish failed")
	}
}

// Run subscribes to the shared channel and forwards foreign events to local
// sockets until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.WithError(err).Warn("relay event unmarshal failed")
				continue
			}
			r.apply(&ev)
		}
	}
}

// apply writes a foreign event's frame to the matching local socket, if this
// instance holds one. Own events and unknown addressees are dropped.
func (r *Relay) apply(ev *Event) {
	if ev.Instance == r.instance || ev.Frame == nil {
		return
	}
	var conn registry.Sender
	var ok bool
	switch ev.Channel {
	case chanRoom:
		conn, ok = r.roomConns.Lookup(ev.UserID, ev.RoomID)
	case chanContact:
		conn, ok = r.contactConns.Lookup(ev.UserID)
	}
	if !ok {
		return
	}
	if err := conn.Send(ev.Frame); err != nil {
		r.log.WithError(err).Warn("relayed frame write failed")
	}
}
