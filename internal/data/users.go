// Package data provides DB models and stores.
package data

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/propio/chat-server/internal/ids"
)

// ErrNotFound is returned by stores when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// UsersStore performs user DB operations. It doubles as the user directory
// the dispatcher consults for names and push tokens.
type UsersStore struct {
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// CreateUser inserts a new user document with an already-hashed password and
// a freshly generated public uniqueId.
func (u *UsersStore) CreateUser(ctx context.Context, email, hashedPassword, name, phone string) (*User, error) {
	user := &User{
		UniqueID:  ids.New(ids.UserPrefix),
		Email:     email,
		Password:  hashedPassword, // Already hashed by auth.HashPassword()
		Name:      name,
		Phone:     phone,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	result, err := u.coll.InsertOne(ctx, user)
	if err != nil {
		// Unique email index violation: the address is already registered.
		if mongo.IsDuplicateKeyError(err) {
			return nil, errors.New("user already exists")
		}
		return nil, err
	}

	user.ID = result.InsertedID.(bson.ObjectID)
	return user, nil
}

// GetUserByEmail finds a user by email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUser finds a user by their public uniqueId.
func (u *UsersStore) GetUser(ctx context.Context, uniqueID string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"unique_id": uniqueID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UserExists checks if a user exists by uniqueId. CountDocuments is cheaper
// than FindOne when only existence matters.
func (u *UsersStore) UserExists(ctx context.Context, uniqueID string) (bool, error) {
	count, err := u.coll.CountDocuments(ctx, bson.M{"unique_id": uniqueID})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdatePushToken stores the device token push notifications are sent to.
// An empty token clears it (logout).
func (u *UsersStore) UpdatePushToken(ctx context.Context, uniqueID, token string) error {
	res, err := u.coll.UpdateOne(ctx,
		bson.M{"unique_id": uniqueID},
		bson.M{"$set": bson.M{"push_token": token, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
