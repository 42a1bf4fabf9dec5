package data

import (
	"context"
	"testing"
	"time"
)

func TestMessagesLifecycle(t *testing.T) {
	// no env loader; require MONGODB_URI set externally for integration tests
	c := setupDB(t)
	defer func() { _ = c.Close(context.Background()) }()

	msgs := NewMessagesStore(c.MessagesCollection())
	ctx := context.Background()

	// create three messages from alice to bob in one room
	var created []*Message
	for _, body := range []string{"one", "two", "three"} {
		m := NewMessage("room_1", "usr_alice", "usr_bob", body, TypeText)
		if m.Status != StatusPending {
			t.Fatalf("new message should start pending, got %s", m.Status)
		}
		m.Status = StatusSent
		if err := msgs.Create(ctx, m); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		created = append(created, m)
		time.Sleep(2 * time.Millisecond) // distinct created_at for ordering
	}

	// unseen fetch returns them in creation order
	unseen, err := msgs.FindUnseen(ctx, "room_1", "usr_bob")
	if err != nil {
		t.Fatalf("FindUnseen failed: %v", err)
	}
	if len(unseen) != 3 {
		t.Fatalf("expected 3 unseen, got %d", len(unseen))
	}
	for i, m := range unseen {
		if m.Body != created[i].Body {
			t.Fatalf("unseen out of creation order: got %q at %d", m.Body, i)
		}
	}

	// bulk mark-seen
	n, err := msgs.MarkSeen(ctx, "room_1", "usr_bob")
	if err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 updated, got %d", n)
	}

	got, err := msgs.Get(ctx, created[0].UniqueID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusSeen {
		t.Fatalf("expected seen, got %s", got.Status)
	}

	// delete is terminal: a later status write must not resurrect it
	if _, err := msgs.Delete(ctx, created[1].UniqueID, "usr_alice"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := msgs.UpdateStatus(ctx, created[1].UniqueID, StatusSeen); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	got, err = msgs.Get(ctx, created[1].UniqueID)
	if err != nil {
		t.Fatalf("Get after delete failed: %v", err)
	}
	if got.Status != StatusDeleted {
		t.Fatalf("deleted message was overwritten to %s", got.Status)
	}

	// history pages newest-first with a total count
	page, total, err := msgs.History(ctx, "room_1", 1, 2)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
	if page[0].Body != "three" {
		t.Fatalf("expected newest first, got %q", page[0].Body)
	}
}

func TestMessagesExpire(t *testing.T) {
	c := setupDB(t)
	defer func() { _ = c.Close(context.Background()) }()

	msgs := NewMessagesStore(c.MessagesCollection())
	ctx := context.Background()

	old := NewMessage("room_2", "usr_a", "usr_b", "stale", TypeText)
	old.Status = StatusSent
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	if err := msgs.Create(ctx, old); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	seen := NewMessage("room_2", "usr_a", "usr_b", "read already", TypeText)
	seen.Status = StatusSeen
	seen.CreatedAt = time.Now().Add(-48 * time.Hour)
	if err := msgs.Create(ctx, seen); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	n, err := msgs.Expire(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}

	got, err := msgs.Get(ctx, seen.UniqueID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusSeen {
		t.Fatalf("seen message must not expire, got %s", got.Status)
	}
}
