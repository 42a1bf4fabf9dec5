package chat

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/propio/chat-server/internal/data"
	"github.com/propio/chat-server/internal/registry"
)

// Routing errors surfaced to the API layer. The two block errors are
// deliberately distinct: the blocker is told plainly, the blocked party only
// learns the chat is unavailable.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrNotParticipant    = errors.New("not a participant of this room")
	ErrBlockedBySender   = errors.New("You have blocked this user.")
	ErrBlockedByReceiver = errors.New("This chat is unavailable.")
)

// Frame kinds pushed over the websocket channels.
const (
	KindMessage = "message"
	KindSummary = "summary"
)

// Frame is the envelope written to a client socket. Exactly one of Message or
// Summary is set, per Kind. Room sockets only ever receive message frames;
// contact sockets only summary frames.
type Frame struct {
	Kind    string            `json:"kind"`
	Message *data.Message     `json:"message,omitempty"`
	Summary *data.ChatSummary `json:"summary,omitempty"`
}

// RoomStore is the slice of the rooms store the dispatcher needs.
type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) (*data.Room, error)
}

// SessionStore covers session upkeep and the summary projection pushed over
// the contact channel.
type SessionStore interface {
	Upsert(ctx context.Context, userID, roomID string, chatType data.ChatType) (*data.ChatSession, error)
	ChatSummary(ctx context.Context, roomID, userID string) (*data.ChatSummary, error)
}

// MessageStore is the message persistence the dispatcher drives.
type MessageStore interface {
	Create(ctx context.Context, msg *data.Message) error
	Get(ctx context.Context, messageID string) (*data.Message, error)
	UpdateStatus(ctx context.Context, messageID string, status data.Status) error
	FindUnseen(ctx context.Context, roomID, receiverID string) ([]*data.Message, error)
	MarkSeen(ctx context.Context, roomID, receiverID string) (int64, error)
	Delete(ctx context.Context, messageID, userID string) (*data.Message, error)
	Expire(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserDirectory resolves user records for push addressing.
type UserDirectory interface {
	GetUser(ctx context.Context, uniqueID string) (*data.User, error)
}

// Notifier sends a push notification to a device token.
type Notifier interface {
	SendToToken(ctx context.Context, token, title, body string, payload map[string]string) error
}

// Publisher forwards frames to sibling instances for connections this
// instance does not hold. Optional; nil disables relaying.
type Publisher interface {
	PublishRoom(ctx context.Context, userID, roomID string, f *Frame)
	PublishContact(ctx context.Context, userID string, f *Frame)
}

// Dispatcher routes each message to the best available channel and advances
// its delivery status. Channel preference, in order: the receiver's open room
// socket (implies the message is read), the receiver's contact socket (a chat
// summary, message delivered but unread), push notification (message stays
// sent). The sender's own room socket always gets a mirror frame carrying the
// final status.
type Dispatcher struct {
	rooms    RoomStore
	sessions SessionStore
	messages MessageStore
	users    UserDirectory
	push     Notifier

	roomConns    *registry.RoomRegistry
	contactConns *registry.ContactRegistry
	relay        Publisher

	log *logrus.Entry
}

// NewDispatcher wires a dispatcher. push and relay may be nil.
func NewDispatcher(
	rooms RoomStore,
	sessions SessionStore,
	messages MessageStore,
	users UserDirectory,
	push Notifier,
	roomConns *registry.RoomRegistry,
	contactConns *registry.ContactRegistry,
	relay Publisher,
	log *logrus.Entry,
) *Dispatcher {
	return &Dispatcher{
		rooms:        rooms,
		sessions:     sessions,
		messages:     messages,
		users:        users,
		push:         push,
		roomConns:    roomConns,
		contactConns: contactConns,
		relay:        relay,
		log:          log,
	}
}

// Send validates the sender against the room, persists the message as SENT,
// then delivers it. Both participants' sessions are upserted first so the
// room shows up in each chat list, reviving a soft-deleted one.
func (d *Dispatcher) Send(ctx context.Context, senderID, roomID, body string, mtype data.MessageType) (*data.Message, error) {
	room, err := d.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if !room.Participant(senderID) {
		return nil, ErrNotParticipant
	}
	if room.IsBlocked {
		if room.BlockedBy == senderID {
			return nil, ErrBlockedBySender
		}
		return nil, ErrBlockedByReceiver
	}

	receiverID := room.OtherParty(senderID)
	if _, err := d.sessions.Upsert(ctx, senderID, roomID, roleOf(room, senderID)); err != nil {
		d.log.WithError(err).WithField("userId", senderID).Warn("session upsert failed")
	}
	if _, err := d.sessions.Upsert(ctx, receiverID, roomID, roleOf(room, receiverID)); err != nil {
		d.log.WithError(err).WithField("userId", receiverID).Warn("session upsert failed")
	}

	m := data.NewMessage(roomID, senderID, receiverID, body, mtype)
	m.Status, err = Transition(m.Status, data.StatusSent)
	if err != nil {
		return nil, err
	}
	if err := d.messages.Create(ctx, m); err != nil {
		return nil, err
	}

	d.deliver(ctx, m, nil)
	return m, nil
}

// roleOf returns the user's chat role in the room: sell for the listing's
// seller, buy for the other side.
func roleOf(room *data.Room, userID string) data.ChatType {
	if room.SellerID == userID {
		return data.ChatSell
	}
	return data.ChatBuy
}

// deliver routes one message. With forced == nil this is a fresh delivery:
// channel choice decides the status and the store is updated to match. With
// forced set it is a re-broadcast of an already-persisted status change; the
// store is left alone and the push fallback is skipped.
//
// Delivery is best-effort end to end. The message is already persisted, so a
// failed socket write or push only costs immediacy; every error here is
// logged and swallowed. Senders are copied out of the registries before any
// Send so no registry lock is held across I/O.
func (d *Dispatcher) deliver(ctx context.Context, m *data.Message, forced *data.Status) {
	final := m.Status

	if forced != nil {
		final = *forced
		if conn, ok := d.roomConns.Lookup(m.ReceiverID, m.RoomID); ok {
			d.sendFrame(conn, &Frame{Kind: KindMessage, Message: m.WithStatus(final)})
		} else if d.relay != nil {
			d.relay.PublishRoom(ctx, m.ReceiverID, m.RoomID, &Frame{Kind: KindMessage, Message: m.WithStatus(final)})
		}
		d.mirror(ctx, m, final)
		return
	}

	roomTaken := d.sendToRoom(m)
	switch {
	case roomTaken:
		// Receiver has the room open: the message is on their screen, so
		// it is read the moment it lands.
		final = data.StatusSeen
		if err := d.messages.UpdateStatus(ctx, m.UniqueID, final); err != nil {
			d.log.WithError(err).WithField("messageId", m.UniqueID).Error("status update failed")
		}
	case d.sendToContact(ctx, m):
		final = data.StatusDelivered
		if err := d.messages.UpdateStatus(ctx, m.UniqueID, final); err != nil {
			d.log.WithError(err).WithField("messageId", m.UniqueID).Error("status update failed")
		}
	default:
		// Fully offline. The message stays SENT; a push is the only nudge.
		d.sendPush(ctx, m)
	}

	// A room socket on a sibling instance only hears about the message via
	// the relay. Publish after the fallback chain settles so the frame
	// carries the status that was actually persisted, not an assumed SEEN.
	if !roomTaken && d.relay != nil {
		d.relay.PublishRoom(ctx, m.ReceiverID, m.RoomID, &Frame{Kind: KindMessage, Message: m.WithStatus(final)})
	}

	d.mirror(ctx, m, final)
}

// sendToRoom delivers the message frame to the receiver's locally-held room
// socket, reporting whether that channel was taken.
func (d *Dispatcher) sendToRoom(m *data.Message) bool {
	conn, ok := d.roomConns.Lookup(m.ReceiverID, m.RoomID)
	if !ok {
		return false
	}
	d.sendFrame(conn, &Frame{Kind: KindMessage, Message: m.WithStatus(data.StatusSeen)})
	return true
}

// sendToContact delivers a refreshed chat summary to the receiver's contact
// socket, reporting whether that channel was taken. The contact channel never
// carries raw messages; the client's chat list only needs the updated
// summary row.
func (d *Dispatcher) sendToContact(ctx context.Context, m *data.Message) bool {
	conn, ok := d.contactConns.Lookup(m.ReceiverID)
	if !ok {
		return false
	}
	summary, err := d.sessions.ChatSummary(ctx, m.RoomID, m.ReceiverID)
	if err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"roomId": m.RoomID,
			"userId": m.ReceiverID,
		}).Error("chat summary fetch failed")
		return false
	}
	d.sendFrame(conn, &Frame{Kind: KindSummary, Summary: summary})
	if d.relay != nil {
		d.relay.PublishContact(ctx, m.ReceiverID, &Frame{Kind: KindSummary, Summary: summary})
	}
	return true
}

// sendPush notifies the fully-offline receiver. No-op without a notifier or
// a registered device token.
func (d *Dispatcher) sendPush(ctx context.Context, m *data.Message) {
	if d.push == nil {
		return
	}
	receiver, err := d.users.GetUser(ctx, m.ReceiverID)
	if err != nil {
		d.log.WithError(err).WithField("userId", m.ReceiverID).Error("push receiver lookup failed")
		return
	}
	if receiver.PushToken == "" {
		return
	}
	sender, err := d.users.GetUser(ctx, m.SenderID)
	if err != nil {
		d.log.WithError(err).WithField("userId", m.SenderID).Error("push sender lookup failed")
		return
	}

	title := "New Message from " + sender.Name
	payload := map[string]string{
		"type":        "chat",
		"roomId":      m.RoomID,
		"otherUserId": m.SenderID,
		"receiverId":  m.ReceiverID,
	}
	if room, err := d.rooms.GetRoom(ctx, m.RoomID); err == nil {
		payload["propertyId"] = room.ListingID
	}
	if err := d.push.SendToToken(ctx, receiver.PushToken, title, m.Body, payload); err != nil {
		d.log.WithError(err).WithField("userId", m.ReceiverID).Error("push send failed")
	}
}

// mirror echoes the message with its final status back to the sender's room
// socket, so the sender's UI shows the tick the receiver's presence earned.
func (d *Dispatcher) mirror(ctx context.Context, m *data.Message, final data.Status) {
	f := &Frame{Kind: KindMessage, Message: m.WithStatus(final)}
	if conn, ok := d.roomConns.Lookup(m.SenderID, m.RoomID); ok {
		d.sendFrame(conn, f)
		return
	}
	if d.relay != nil {
		d.relay.PublishRoom(ctx, m.SenderID, m.RoomID, f)
	}
}

func (d *Dispatcher) sendFrame(conn registry.Sender, f *Frame) {
	if err := conn.Send(f); err != nil {
		d.log.WithError(err).Warn("socket write failed")
	}
}

// MarkRoomSeen marks every undelivered-or-unread message addressed to userID
// in the room as SEEN, then re-broadcasts each one in creation order so both
// parties' open sockets converge on the new status.
func (d *Dispatcher) MarkRoomSeen(ctx context.Context, roomID, userID string) (int64, error) {
	room, err := d.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return 0, ErrRoomNotFound
		}
		return 0, err
	}
	if !room.Participant(userID) {
		return 0, ErrNotParticipant
	}

	unseen, err := d.messages.FindUnseen(ctx, roomID, userID)
	if err != nil {
		return 0, err
	}
	n, err := d.messages.MarkSeen(ctx, roomID, userID)
	if err != nil {
		return 0, err
	}

	seen := data.StatusSeen
	for _, m := range unseen {
		d.deliver(ctx, m, &seen)
	}
	return n, nil
}

// UpdateMessage advances a single message's status on behalf of its
// receiver, then re-broadcasts the change. Re-asserting the status a message
// already holds succeeds without side effects; illegal moves return
// ErrBadTransition.
func (d *Dispatcher) UpdateMessage(ctx context.Context, messageID, userID string, to data.Status) (*data.Message, error) {
	m, err := d.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.ReceiverID != userID {
		return nil, ErrNotParticipant
	}
	if m.Status == to {
		// A client replaying an ack it already landed, typically a second
		// mark-seen after a reconnect. Nothing moved, so nothing to
		// persist or re-broadcast.
		return m, nil
	}
	if m.Status, err = Transition(m.Status, to); err != nil {
		return nil, err
	}
	if err := d.messages.UpdateStatus(ctx, messageID, to); err != nil {
		return nil, err
	}
	d.deliver(ctx, m, &to)
	return m, nil
}

// DeleteMessage soft-deletes a message on behalf of either participant and
// re-broadcasts the tombstone so open sockets drop it.
func (d *Dispatcher) DeleteMessage(ctx context.Context, messageID, userID string) (*data.Message, error) {
	m, err := d.messages.Delete(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	deleted := data.StatusDeleted
	d.deliver(ctx, m, &deleted)
	return m, nil
}

// RunExpiry periodically expires messages still SENT after ttl. Blocks until
// ctx is cancelled.
func (d *Dispatcher) RunExpiry(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.messages.Expire(ctx, time.Now().Add(-ttl))
			if err != nil {
				d.log.WithError(err).Error("expiry sweep failed")
				continue
			}
			if n > 0 {
				d.log.WithField("expired", n).Info("expired stale messages")
			}
		}
	}
}
