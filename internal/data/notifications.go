package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/propio/chat-server/internal/ids"
)

// NotificationsStore records delivered push notifications, chat pushes
// included, so users can review them later.
type NotificationsStore struct {
	coll *mongo.Collection
}

// NewNotificationsStore returns a NotificationsStore using the provided collection.
func NewNotificationsStore(coll *mongo.Collection) *NotificationsStore {
	return &NotificationsStore{coll: coll}
}

// Record inserts one notification audit document.
func (n *NotificationsStore) Record(ctx context.Context, userID, title, body, ntype string) error {
	_, err := n.coll.InsertOne(ctx, &Notification{
		UniqueID:  ids.New(ids.NotificationPrefix),
		UserID:    userID,
		Title:     title,
		Body:      body,
		Type:      ntype,
		Seen:      false,
		IsDeleted: false,
		CreatedAt: time.Now(),
	})
	return err
}
