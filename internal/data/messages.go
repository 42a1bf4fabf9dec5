package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/propio/chat-server/internal/ids"
)

// MessagesStore provides message database operations.
type MessagesStore struct {
	coll *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll}
}

// NewMessage constructs an unpersisted message in the PENDING state. The
// dispatcher advances it to SENT and calls Create before any delivery
// attempt.
func NewMessage(roomID, senderID, receiverID, body string, mtype MessageType) *Message {
	now := time.Now()
	return &Message{
		UniqueID:   ids.New(ids.MessagePrefix),
		RoomID:     roomID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		Type:       mtype,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Create inserts the message document and populates its _id.
func (m *MessagesStore) Create(ctx context.Context, msg *Message) error {
	result, err := m.coll.InsertOne(ctx, msg)
	if err != nil {
		return err
	}
	msg.ID = result.InsertedID.(bson.ObjectID)
	return nil
}

// Get finds a message by its public uniqueId.
func (m *MessagesStore) Get(ctx context.Context, messageID string) (*Message, error) {
	var msg Message
	err := m.coll.FindOne(ctx, bson.M{"unique_id": messageID}).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// UpdateStatus stamps a new status on one message. DELETED documents are
// final and never overwritten, whatever the caller asks for.
func (m *MessagesStore) UpdateStatus(ctx context.Context, messageID string, status Status) error {
	_, err := m.coll.UpdateOne(ctx,
		bson.M{"unique_id": messageID, "status": bson.M{"$ne": string(StatusDeleted)}},
		bson.M{"$set": bson.M{"status": string(status), "updated_at": time.Now()}},
	)
	return err
}

// FindUnseen returns the messages in a room addressed to receiverID that are
// not yet SEEN (and not deleted/expired), in creation order. Bulk mark-seen
// fetches these first so every affected row can be re-broadcast
// individually after the update.
func (m *MessagesStore) FindUnseen(ctx context.Context, roomID, receiverID string) ([]*Message, error) {
	filter := bson.M{
		"room_id":     roomID,
		"receiver_id": receiverID,
		"status":      bson.M{"$nin": bson.A{string(StatusSeen), string(StatusDeleted), string(StatusExpired)}},
	}
	opts := options.Find().SetSort(bson.M{"created_at": 1})

	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []*Message
	if err = cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkSeen updates every not-yet-seen message addressed to receiverID in the
// room to SEEN and reports how many changed.
func (m *MessagesStore) MarkSeen(ctx context.Context, roomID, receiverID string) (int64, error) {
	res, err := m.coll.UpdateMany(ctx,
		bson.M{
			"room_id":     roomID,
			"receiver_id": receiverID,
			"status":      bson.M{"$nin": bson.A{string(StatusSeen), string(StatusDeleted), string(StatusExpired)}},
		},
		bson.M{"$set": bson.M{"status": string(StatusSeen), "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// Delete marks one message DELETED, scoped to a participant. DELETED is
// terminal; the document itself is never removed.
func (m *MessagesStore) Delete(ctx context.Context, messageID, userID string) (*Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var msg Message
	err := m.coll.FindOneAndUpdate(ctx,
		bson.M{
			"unique_id": messageID,
			"$or": bson.A{
				bson.M{"sender_id": userID},
				bson.M{"receiver_id": userID},
			},
		},
		bson.M{"$set": bson.M{"status": string(StatusDeleted), "updated_at": time.Now()}},
		opts,
	).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// History returns one page of a room's messages, newest first, plus the
// room's total message count for pagination. Page numbering starts at 1.
func (m *MessagesStore) History(ctx context.Context, roomID string, page, pageSize int64) ([]*Message, int64, error) {
	filter := bson.M{"room_id": roomID}

	total, err := m.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.M{"created_at": -1})
	if page > 0 {
		opts = opts.SetSkip((page - 1) * pageSize).SetLimit(pageSize)
	}

	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var msgs []*Message
	if err = cursor.All(ctx, &msgs); err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// Expire moves SENT messages older than cutoff to EXPIRED and reports how
// many changed. Only SENT expires: anything delivered or seen already
// reached its receiver.
func (m *MessagesStore) Expire(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := m.coll.UpdateMany(ctx,
		bson.M{
			"status":     string(StatusSent),
			"created_at": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{"status": string(StatusExpired), "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
