package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/propio/chat-server/internal/ids"
)

// RoomsStore performs room DB operations. A room is the durable pairing of
// two users over one listing; the store keeps the pair in canonical order so
// the unique index treats it as unordered.
type RoomsStore struct {
	coll *mongo.Collection
}

// NewRoomsStore returns a RoomsStore using the provided collection.
func NewRoomsStore(coll *mongo.Collection) *RoomsStore {
	return &RoomsStore{coll: coll}
}

// CanonicalPair orders two participant ids lexicographically. Every room
// query and insert goes through this so (a,b) and (b,a) hit the same
// document and the same unique index entry.
func CanonicalPair(a, b string) (lo, hi string) {
	if a < b {
		return a, b
	}
	return b, a
}

// GetRoom finds a room by its public roomId.
func (r *RoomsStore) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	err := r.coll.FindOne(ctx, bson.M{"room_id": roomID}).Decode(&room)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// GetPairRoom finds the room for a participant pair over a listing,
// regardless of the order the ids are supplied in.
func (r *RoomsStore) GetPairRoom(ctx context.Context, userA, userB, listingID string) (*Room, error) {
	lo, hi := CanonicalPair(userA, userB)

	var room Room
	err := r.coll.FindOne(ctx, bson.M{
		"user_lo":    lo,
		"user_hi":    hi,
		"listing_id": listingID,
	}).Decode(&room)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// CreateRoom inserts a new room for the pair. On a duplicate-key error the
// concurrently created room is fetched and returned instead, so two
// simultaneous "open chat" calls always converge on one document.
func (r *RoomsStore) CreateRoom(ctx context.Context, userA, userB, sellerID, listingID string) (*Room, error) {
	lo, hi := CanonicalPair(userA, userB)

	room := &Room{
		RoomID:    ids.New(ids.RoomPrefix),
		UserLo:    lo,
		UserHi:    hi,
		SellerID:  sellerID,
		ListingID: listingID,
		IsBlocked: false,
		BlockedBy: "",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	result, err := r.coll.InsertOne(ctx, room)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Lost the race; the winner's document is the room.
			return r.GetPairRoom(ctx, userA, userB, listingID)
		}
		return nil, err
	}

	room.ID = result.InsertedID.(bson.ObjectID)
	return room, nil
}

// GetBlockedPairRoom finds any other blocked room between the same pair
// (across listings, excluding the given room). Room open surfaces this as a
// prior-block hint to the client.
func (r *RoomsStore) GetBlockedPairRoom(ctx context.Context, userA, userB, excludeRoomID string) (*Room, error) {
	lo, hi := CanonicalPair(userA, userB)

	var room Room
	err := r.coll.FindOne(ctx, bson.M{
		"is_blocked": true,
		"room_id":    bson.M{"$ne": excludeRoomID},
		"user_lo":    lo,
		"user_hi":    hi,
	}).Decode(&room)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// SetBlocked sets or clears the block state on every given room the user
// participates in. Blocking records the blocker; unblocking clears both
// fields. Rooms are only ever mutated here; there is no delete.
func (r *RoomsStore) SetBlocked(ctx context.Context, roomIDs []string, userID string, blocked bool) (int64, error) {
	set := bson.M{"is_blocked": blocked, "blocked_by": userID, "updated_at": time.Now()}
	if !blocked {
		set["blocked_by"] = ""
	}

	res, err := r.coll.UpdateMany(ctx, bson.M{
		"room_id": bson.M{"$in": roomIDs},
		"$or": bson.A{
			bson.M{"user_lo": userID},
			bson.M{"user_hi": userID},
		},
	}, bson.M{"$set": set})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
