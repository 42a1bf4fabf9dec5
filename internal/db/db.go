// Package db manages MongoDB connections and collections.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Client wraps mongo.Client and exposes the collections the chat backend
// uses: users, rooms, chats (per-user sessions), messages, listings and
// notifications.
type Client struct {
	// client is the underlying MongoDB connection (thread-safe, can be reused)
	client *mongo.Client

	// db is the database all collections live in
	db *mongo.Database
}

// New connects to MongoDB and returns a Client.
func New(ctx context.Context, mongoURI, database string) (*Client, error) {
	// SetConnectTimeout: fail fast if MongoDB is unreachable
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping is the actual connection test; Connect alone does not dial.
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database(database),
	}, nil
}

// UsersCollection returns the users collection.
func (c *Client) UsersCollection() *mongo.Collection {
	return c.db.Collection("users")
}

// RoomsCollection returns the rooms collection (one document per
// participant pair per listing).
func (c *Client) RoomsCollection() *mongo.Collection {
	return c.db.Collection("rooms")
}

// ChatsCollection returns the chats collection (one per-user session
// document per room).
func (c *Client) ChatsCollection() *mongo.Collection {
	return c.db.Collection("chats")
}

// MessagesCollection returns the messages collection.
func (c *Client) MessagesCollection() *mongo.Collection {
	return c.db.Collection("messages")
}

// ListingsCollection returns the listings collection. The chat backend only
// reads listing snapshots; listing CRUD lives in another service.
func (c *Client) ListingsCollection() *mongo.Collection {
	return c.db.Collection("listings")
}

// NotificationsCollection returns the notifications audit collection.
func (c *Client) NotificationsCollection() *mongo.Collection {
	return c.db.Collection("notifications")
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the stores rely on. Uniqueness
// constraints here are load-bearing: the room index is what makes concurrent
// create-room calls collapse to a single document, and the chats index is
// what makes session upserts idempotent.
func (c *Client) CreateIndexes(ctx context.Context) error {
	for coll, models := range indexModels() {
		if _, err := c.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", coll, err)
		}
	}
	return nil
}

// indexModels lists every index the stores rely on, keyed by collection
// name. Keys are bson.D throughout: the driver rejects a multi-key map for
// an ordered parameter, and compound index key order is significant.
func indexModels() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		"users": {
			// Unique email prevents duplicate registration and backs
			// GetUserByEmail.
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			// uniqueId is the public identifier everything else references.
			{
				Keys:    bson.D{{Key: "unique_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		"rooms": {
			{
				Keys:    bson.D{{Key: "room_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			// The participant pair is stored in canonical order
			// (user_lo < user_hi), so this unique index enforces
			// at-most-one-room per pair per listing.
			{
				Keys: bson.D{
					{Key: "user_lo", Value: 1},
					{Key: "user_hi", Value: 1},
					{Key: "listing_id", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
		},
		"chats": {
			// Exactly one session per (user, room); upserts race on this
			// index instead of creating duplicates.
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "room_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "chat_id", Value: 1}},
			},
		},
		"messages": {
			{
				Keys:    bson.D{{Key: "unique_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			// History pages sort newest-first within a room.
			{
				Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: -1}},
			},
			// Unread counts and bulk mark-seen filter on
			// (room, receiver, status).
			{
				Keys: bson.D{
					{Key: "room_id", Value: 1},
					{Key: "receiver_id", Value: 1},
					{Key: "status", Value: 1},
				},
			},
		},
		"listings": {
			{
				Keys:    bson.D{{Key: "unique_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
