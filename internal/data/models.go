package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Status is a message's delivery-lifecycle state.
type Status string

// The delivery lifecycle. PENDING is only ever held in memory between
// construction and the first persist; SENT/DELIVERED/SEEN advance as the
// dispatcher observes receiver presence. DELETED and EXPIRED are terminal.
const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
	StatusDeleted   Status = "deleted"
	StatusExpired   Status = "expired"
)

// MessageType distinguishes message payload kinds.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeFile  MessageType = "file"
)

// ChatType records a session owner's role relative to the room's listing.
type ChatType string

const (
	ChatBuy  ChatType = "buy"
	ChatSell ChatType = "sell"
)

// User maps to the users collection. UniqueID is the public identifier the
// rest of the system references; _id stays internal.
type User struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"-"`
	UniqueID  string        `bson:"unique_id" json:"uniqueId"`
	Email     string        `bson:"email" json:"email"`
	Password  string        `bson:"password" json:"-"`
	Name      string        `bson:"name" json:"name"`
	Phone     string        `bson:"phone,omitempty" json:"phone,omitempty"`
	Profile   string        `bson:"profile,omitempty" json:"profile,omitempty"`
	PushToken string        `bson:"push_token,omitempty" json:"-"`
	CreatedAt time.Time     `bson:"created_at" json:"-"`
	UpdatedAt time.Time     `bson:"updated_at" json:"-"`
}

// Room pairs two users over one listing. UserLo/UserHi hold the participant
// ids in lexicographic order so the unique index sees the pair as unordered.
// Rooms are never deleted; only the block fields mutate.
type Room struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"-"`
	RoomID    string        `bson:"room_id" json:"roomId"`
	UserLo    string        `bson:"user_lo" json:"userLo"`
	UserHi    string        `bson:"user_hi" json:"userHi"`
	SellerID  string        `bson:"seller_id" json:"sellerId"`
	ListingID string        `bson:"listing_id" json:"listingId"`
	IsBlocked bool          `bson:"is_blocked" json:"isBlocked"`
	BlockedBy string        `bson:"blocked_by" json:"blockedBy,omitempty"`
	CreatedAt time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updated_at" json:"-"`
}

// Participant reports whether userID belongs to the room.
func (r *Room) Participant(userID string) bool {
	return r.UserLo == userID || r.UserHi == userID
}

// OtherParty returns the participant that is not userID.
func (r *Room) OtherParty(userID string) string {
	if r.UserLo == userID {
		return r.UserHi
	}
	return r.UserLo
}

// ChatSession is one user's private view of a room: buy/sell role plus the
// deleted and important flags. Exactly one exists per (user, room).
type ChatSession struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"-"`
	ChatID    string        `bson:"chat_id" json:"chatId"`
	RoomID    string        `bson:"room_id" json:"roomId"`
	UserID    string        `bson:"user_id" json:"userId"`
	Type      ChatType      `bson:"type" json:"type"`
	IsDeleted bool          `bson:"is_deleted" json:"isDeleted"`
	IsImp     bool          `bson:"is_imp" json:"isImp"`
	CreatedAt time.Time     `bson:"created_at" json:"-"`
	UpdatedAt time.Time     `bson:"updated_at" json:"-"`
}

// Message is one chat message with its lifecycle status.
type Message struct {
	ID         bson.ObjectID `bson:"_id,omitempty" json:"-"`
	UniqueID   string        `bson:"unique_id" json:"uniqueId"`
	RoomID     string        `bson:"room_id" json:"roomId"`
	SenderID   string        `bson:"sender_id" json:"senderId"`
	ReceiverID string        `bson:"receiver_id" json:"receiverId"`
	Body       string        `bson:"body" json:"message"`
	Type       MessageType   `bson:"type" json:"type"`
	Status     Status        `bson:"status" json:"status"`
	CreatedAt  time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time     `bson:"updated_at" json:"-"`
}

// WithStatus returns a shallow copy carrying the given status. Frames mirror
// a status without mutating the caller's copy.
func (m *Message) WithStatus(s Status) *Message {
	c := *m
	c.Status = s
	return &c
}

// Listing is the read-only snapshot of a marketplace listing the chat views
// embed. Listing CRUD is owned by another service.
type Listing struct {
	ID       bson.ObjectID `bson:"_id,omitempty" json:"-"`
	UniqueID string        `bson:"unique_id" json:"uniqueId"`
	Title    string        `bson:"title" json:"title"`
	Price    float64       `bson:"price" json:"price"`
	Images   []string      `bson:"images,omitempty" json:"-"`
	SellerID string        `bson:"seller_id" json:"sellerId"`
}

// FirstImage returns the cover image or "".
func (l *Listing) FirstImage() string {
	if len(l.Images) == 0 {
		return ""
	}
	return l.Images[0]
}

// ListingSnapshot is the subset of a listing embedded in chat summaries.
type ListingSnapshot struct {
	Title string  `bson:"title" json:"title"`
	Price float64 `bson:"price" json:"price"`
	Image string  `bson:"image,omitempty" json:"image,omitempty"`
}

// ChatSummary is the joined view returned by the chat list and pushed over
// the contact channel: session + room + listing + counterpart + last message
// + unread count.
type ChatSummary struct {
	ChatID            string          `bson:"chatId" json:"chatId"`
	ChatType          ChatType        `bson:"chatType" json:"chatType"`
	RoomID            string          `bson:"roomId" json:"roomId"`
	UserID            string          `bson:"userId" json:"userId"`
	IsImp             bool            `bson:"isImp" json:"isImp"`
	IsBlocked         bool            `bson:"isBlocked" json:"isBlocked"`
	BlockedBy         string          `bson:"blockedBy" json:"blockedBy,omitempty"`
	ReceiverID        string          `bson:"receiverId" json:"receiverId"`
	ReceiverName      string          `bson:"receiverName" json:"receiverName"`
	ReceiverProfile   string          `bson:"receiverProfile" json:"receiverProfile,omitempty"`
	ListingID         string          `bson:"listingId" json:"listingId"`
	Listing           ListingSnapshot `bson:"listing" json:"listing"`
	UnreadCount       int64           `bson:"unreadCount" json:"unreadCount"`
	LastMessage       string          `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	LastMessageStatus Status          `bson:"lastMessageStatus,omitempty" json:"lastMessageStatus,omitempty"`
	LastMessageSender string          `bson:"lastMessageSender,omitempty" json:"lastMessageSender,omitempty"`
	LastMessageTime   time.Time       `bson:"lastMessageTime,omitempty" json:"lastMessageTime,omitempty"`
}

// Notification is the audit record of a non-chat push notification.
type Notification struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"-"`
	UniqueID  string        `bson:"unique_id" json:"uniqueId"`
	UserID    string        `bson:"user_id" json:"userId"`
	Title     string        `bson:"title" json:"title"`
	Body      string        `bson:"body" json:"body"`
	Type      string        `bson:"type" json:"type"`
	Seen      bool          `bson:"seen" json:"seen"`
	IsDeleted bool          `bson:"is_deleted" json:"-"`
	CreatedAt time.Time     `bson:"created_at" json:"createdAt"`
}
