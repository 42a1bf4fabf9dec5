package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/propio/chat-server/internal/ids"
)

// SessionsStore performs chat-session DB operations and builds the joined
// chat-list / chat-summary views.
type SessionsStore struct {
	coll *mongo.Collection
}

// NewSessionsStore returns a SessionsStore using the provided collection.
func NewSessionsStore(coll *mongo.Collection) *SessionsStore {
	return &SessionsStore{coll: coll}
}

// Upsert lazily creates (or revives) the session for (userID, roomID). The
// unique (user_id, room_id) index guarantees at most one document even when
// sender and receiver sessions are upserted concurrently from two sends.
// Upserting also clears the deleted flag: sending or receiving in a chat the
// user previously deleted makes it visible again.
func (s *SessionsStore) Upsert(ctx context.Context, userID, roomID string, chatType ChatType) (*ChatSession, error) {
	now := time.Now()

	update := bson.M{
		"$set": bson.M{
			"type":       chatType,
			"is_deleted": false,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"chat_id":    ids.New(ids.ChatPrefix),
			"room_id":    roomID,
			"user_id":    userID,
			"is_imp":     false,
			"created_at": now,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var session ChatSession
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID, "room_id": roomID},
		update, opts,
	).Decode(&session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Get finds the session for (roomID, userID).
func (s *SessionsStore) Get(ctx context.Context, roomID, userID string) (*ChatSession, error) {
	var session ChatSession
	err := s.coll.FindOne(ctx, bson.M{"room_id": roomID, "user_id": userID}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// SetDeleted marks the user's sessions for the given rooms as deleted. The
// room and its messages are untouched; only this user's view goes away.
func (s *SessionsStore) SetDeleted(ctx context.Context, roomIDs []string, userID string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"room_id": bson.M{"$in": roomIDs}, "user_id": userID},
		bson.M{"$set": bson.M{"is_deleted": true, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// SetImportant flags or unflags the user's sessions for the given rooms.
func (s *SessionsStore) SetImportant(ctx context.Context, roomIDs []string, userID string, important bool) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"room_id": bson.M{"$in": roomIDs}, "user_id": userID},
		bson.M{"$set": bson.M{"is_imp": important, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ChatList assembles the user's chat list: every non-deleted session joined
// with its room, listing snapshot, counterpart and last message, plus the
// unread count, sorted by last activity.
func (s *SessionsStore) ChatList(ctx context.Context, userID string) ([]*ChatSummary, error) {
	pipeline := summaryPipeline(bson.D{
		{Key: "user_id", Value: userID},
		{Key: "is_deleted", Value: false},
	}, userID)

	// Newest conversation first.
	pipeline = append(pipeline, bson.D{{Key: "$sort", Value: bson.D{{Key: "lastMessageTime", Value: -1}}}})

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var summaries []*ChatSummary
	if err = cursor.All(ctx, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// ChatSummary builds the joined view for a single (room, user) session. The
// dispatcher pushes this over the contact channel instead of the raw message.
func (s *SessionsStore) ChatSummary(ctx context.Context, roomID, userID string) (*ChatSummary, error) {
	pipeline := summaryPipeline(bson.D{
		{Key: "room_id", Value: roomID},
		{Key: "user_id", Value: userID},
	}, userID)

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var summaries []*ChatSummary
	if err = cursor.All(ctx, &summaries); err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, ErrNotFound
	}
	return summaries[0], nil
}

// summaryPipeline is the shared aggregation behind ChatList and ChatSummary.
// Stages: match sessions → join room → join listing → join last message →
// compute counterpart → join counterpart user → count unread → project the
// ChatSummary shape.
func summaryPipeline(match bson.D, userID string) mongo.Pipeline {
	return mongo.Pipeline{
		// Stage 1: the session documents of interest.
		bson.D{{Key: "$match", Value: match}},

		// Stage 2: join the room document by room_id.
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "rooms"},
			{Key: "localField", Value: "room_id"},
			{Key: "foreignField", Value: "room_id"},
			{Key: "as", Value: "room"},
		}}},
		bson.D{{Key: "$unwind", Value: "$room"}},

		// Stage 3: join the listing snapshot.
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "listings"},
			{Key: "localField", Value: "room.listing_id"},
			{Key: "foreignField", Value: "unique_id"},
			{Key: "as", Value: "listing"},
		}}},
		bson.D{{Key: "$unwind", Value: "$listing"}},

		// Stage 4: join the room's most recent message (may be absent).
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "messages"},
			{Key: "let", Value: bson.D{{Key: "roomId", Value: "$room_id"}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{
					{Key: "$expr", Value: bson.D{{Key: "$eq", Value: bson.A{"$room_id", "$$roomId"}}}},
				}}},
				bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
				bson.D{{Key: "$limit", Value: 1}},
			}},
			{Key: "as", Value: "lastMessage"},
		}}},
		bson.D{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$lastMessage"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},

		// Stage 5: the counterpart is whichever participant is not the owner.
		bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "receiverId", Value: bson.D{
				{Key: "$cond", Value: bson.D{
					{Key: "if", Value: bson.D{{Key: "$eq", Value: bson.A{"$room.user_lo", userID}}}},
					{Key: "then", Value: "$room.user_hi"},
					{Key: "else", Value: "$room.user_lo"},
				}},
			}},
		}}},

		// Stage 6: join the counterpart's user document.
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "users"},
			{Key: "localField", Value: "receiverId"},
			{Key: "foreignField", Value: "unique_id"},
			{Key: "as", Value: "receiver"},
		}}},
		bson.D{{Key: "$unwind", Value: "$receiver"}},

		// Stage 7: count messages addressed to the owner that are still
		// sent/delivered. Seen, deleted and expired are all read or gone.
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "messages"},
			{Key: "let", Value: bson.D{{Key: "roomId", Value: "$room_id"}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{
					{Key: "$expr", Value: bson.D{
						{Key: "$and", Value: bson.A{
							bson.D{{Key: "$eq", Value: bson.A{"$room_id", "$$roomId"}}},
							bson.D{{Key: "$eq", Value: bson.A{"$receiver_id", userID}}},
							bson.D{{Key: "$in", Value: bson.A{"$status", bson.A{string(StatusSent), string(StatusDelivered)}}}},
						}},
					}},
				}}},
				bson.D{{Key: "$count", Value: "unreadCount"}},
			}},
			{Key: "as", Value: "unreadMessages"},
		}}},
		bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "unreadCount", Value: bson.D{
				{Key: "$ifNull", Value: bson.A{
					bson.D{{Key: "$arrayElemAt", Value: bson.A{"$unreadMessages.unreadCount", 0}}},
					0,
				}},
			}},
		}}},

		// Stage 8: project the ChatSummary shape.
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "chatId", Value: "$chat_id"},
			{Key: "chatType", Value: "$type"},
			{Key: "roomId", Value: "$room_id"},
			{Key: "userId", Value: "$user_id"},
			{Key: "isImp", Value: "$is_imp"},
			{Key: "isBlocked", Value: "$room.is_blocked"},
			{Key: "blockedBy", Value: "$room.blocked_by"},
			{Key: "receiverId", Value: 1},
			{Key: "receiverName", Value: "$receiver.name"},
			{Key: "receiverProfile", Value: "$receiver.profile"},
			{Key: "listingId", Value: "$room.listing_id"},
			{Key: "listing", Value: bson.D{
				{Key: "title", Value: "$listing.title"},
				{Key: "price", Value: "$listing.price"},
				{Key: "image", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$listing.images", 0}}}},
			}},
			{Key: "unreadCount", Value: 1},
			{Key: "lastMessage", Value: "$lastMessage.body"},
			{Key: "lastMessageStatus", Value: "$lastMessage.status"},
			{Key: "lastMessageSender", Value: "$lastMessage.sender_id"},
			{Key: "lastMessageTime", Value: "$lastMessage.created_at"},
		}}},
	}
}
