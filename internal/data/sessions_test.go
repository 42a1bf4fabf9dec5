package data

import (
	"context"
	"testing"
)

func TestSessionsUpsertIsIdempotent(t *testing.T) {
	c := setupDB(t)
	defer func() { _ = c.Close(context.Background()) }()

	sessions := NewSessionsStore(c.ChatsCollection())
	ctx := context.Background()

	s1, err := sessions.Upsert(ctx, "usr_a", "room_1", ChatBuy)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	s2, err := sessions.Upsert(ctx, "usr_a", "room_1", ChatBuy)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if s1.ChatID != s2.ChatID {
		t.Fatalf("upsert created a second session: %s vs %s", s1.ChatID, s2.ChatID)
	}

	// deleting then upserting revives the session
	if _, err := sessions.SetDeleted(ctx, []string{"room_1"}, "usr_a"); err != nil {
		t.Fatalf("SetDeleted failed: %v", err)
	}
	s3, err := sessions.Upsert(ctx, "usr_a", "room_1", ChatBuy)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if s3.IsDeleted {
		t.Fatal("upsert should clear the deleted flag")
	}
}

func TestChatListAssembly(t *testing.T) {
	c := setupDB(t)
	defer func() { _ = c.Close(context.Background()) }()

	ctx := context.Background()
	users := NewUsersStore(c.UsersCollection())
	rooms := NewRoomsStore(c.RoomsCollection())
	sessions := NewSessionsStore(c.ChatsCollection())
	msgs := NewMessagesStore(c.MessagesCollection())

	buyer, err := users.CreateUser(ctx, "buyer@example.com", "hash", "Buyer", "")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	seller, err := users.CreateUser(ctx, "seller@example.com", "hash", "Seller", "")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if _, err := c.ListingsCollection().InsertOne(ctx, &Listing{
		UniqueID: "lst_9",
		Title:    "Two-bed apartment",
		Price:    1250,
		Images:   []string{"img-1.jpg"},
		SellerID: seller.UniqueID,
	}); err != nil {
		t.Fatalf("insert listing failed: %v", err)
	}

	room, err := rooms.CreateRoom(ctx, buyer.UniqueID, seller.UniqueID, seller.UniqueID, "lst_9")
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if _, err := sessions.Upsert(ctx, buyer.UniqueID, room.RoomID, ChatBuy); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := sessions.Upsert(ctx, seller.UniqueID, room.RoomID, ChatSell); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	m := NewMessage(room.RoomID, seller.UniqueID, buyer.UniqueID, "still available", TypeText)
	m.Status = StatusSent
	if err := msgs.Create(ctx, m); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	list, err := sessions.ChatList(ctx, buyer.UniqueID)
	if err != nil {
		t.Fatalf("ChatList failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(list))
	}

	got := list[0]
	if got.RoomID != room.RoomID {
		t.Fatalf("wrong room: %s", got.RoomID)
	}
	if got.ReceiverID != seller.UniqueID || got.ReceiverName != "Seller" {
		t.Fatalf("wrong counterpart: %+v", got)
	}
	if got.Listing.Title != "Two-bed apartment" || got.Listing.Image != "img-1.jpg" {
		t.Fatalf("wrong listing snapshot: %+v", got.Listing)
	}
	if got.UnreadCount != 1 {
		t.Fatalf("expected unread 1, got %d", got.UnreadCount)
	}
	if got.LastMessage != "still available" {
		t.Fatalf("wrong last message: %q", got.LastMessage)
	}

	// single-summary view matches
	sum, err := sessions.ChatSummary(ctx, room.RoomID, buyer.UniqueID)
	if err != nil {
		t.Fatalf("ChatSummary failed: %v", err)
	}
	if sum.ChatID != got.ChatID || sum.UnreadCount != 1 {
		t.Fatalf("summary mismatch: %+v", sum)
	}

	// deleted sessions disappear from the list
	if _, err := sessions.SetDeleted(ctx, []string{room.RoomID}, buyer.UniqueID); err != nil {
		t.Fatalf("SetDeleted failed: %v", err)
	}
	list, err = sessions.ChatList(ctx, buyer.UniqueID)
	if err != nil {
		t.Fatalf("ChatList failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list after delete, got %d", len(list))
	}
}
