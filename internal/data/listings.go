package data

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// ListingsStore reads listing snapshots. Listing CRUD belongs to the
// marketplace service; chat only needs title/price/image/seller.
type ListingsStore struct {
	coll *mongo.Collection
}

// NewListingsStore returns a ListingsStore using the provided collection.
func NewListingsStore(coll *mongo.Collection) *ListingsStore {
	return &ListingsStore{coll: coll}
}

// GetListing finds a listing by its public uniqueId.
func (l *ListingsStore) GetListing(ctx context.Context, uniqueID string) (*Listing, error) {
	var listing Listing
	err := l.coll.FindOne(ctx, bson.M{"unique_id": uniqueID}).Decode(&listing)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &listing, nil
}
