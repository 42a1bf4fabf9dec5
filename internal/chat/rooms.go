package chat

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/propio/chat-server/internal/data"
)

var (
	ErrSelfChat        = errors.New("cannot start a chat with yourself")
	ErrChatUnavailable = errors.New("chat unavailable")
)

// RoomCatalog is the slice of the rooms store the room service needs.
type RoomCatalog interface {
	GetRoom(ctx context.Context, roomID string) (*data.Room, error)
	CreateRoom(ctx context.Context, userA, userB, sellerID, listingID string) (*data.Room, error)
	GetBlockedPairRoom(ctx context.Context, userA, userB, excludeRoomID string) (*data.Room, error)
	SetBlocked(ctx context.Context, roomIDs []string, userID string, blocked bool) (int64, error)
}

// SessionCatalog covers per-user session state and the chat-list projection.
type SessionCatalog interface {
	Upsert(ctx context.Context, userID, roomID string, chatType data.ChatType) (*data.ChatSession, error)
	Get(ctx context.Context, roomID, userID string) (*data.ChatSession, error)
	SetDeleted(ctx context.Context, roomIDs []string, userID string) (int64, error)
	SetImportant(ctx context.Context, roomIDs []string, userID string, important bool) (int64, error)
	ChatList(ctx context.Context, userID string) ([]*data.ChatSummary, error)
}

// HistoryStore pages through a room's messages.
type HistoryStore interface {
	History(ctx context.Context, roomID string, page, pageSize int64) ([]*data.Message, int64, error)
}

// ListingCatalog resolves listing snapshots for room views.
type ListingCatalog interface {
	GetListing(ctx context.Context, uniqueID string) (*data.Listing, error)
}

// SeenMarker is the dispatcher hook history uses to auto-mark a page read.
type SeenMarker interface {
	MarkRoomSeen(ctx context.Context, roomID, userID string) (int64, error)
}

// Counterpart is the public slice of the other participant embedded in a
// room view.
type Counterpart struct {
	UserID  string `json:"userId"`
	Name    string `json:"name"`
	Profile string `json:"profile,omitempty"`
}

// PriorBlock surfaces an existing block between the same pair in another
// room, so the client can warn before the first message bounces.
type PriorBlock struct {
	RoomID    string `json:"roomId"`
	BlockedBy string `json:"blockedBy"`
}

// RoomView is the response to opening a chat: the room, a listing snapshot,
// the counterpart, and any block already standing between the pair.
type RoomView struct {
	Room        *data.Room           `json:"room"`
	Listing     data.ListingSnapshot `json:"listing"`
	SellerPhone string               `json:"sellerPhone,omitempty"`
	OtherUser   Counterpart          `json:"otherUser"`
	PriorBlock  *PriorBlock          `json:"priorBlock,omitempty"`
}

// HistoryPage is one page of room history, newest first.
type HistoryPage struct {
	Messages []*data.Message `json:"messages"`
	Page     int64           `json:"page"`
	PageSize int64           `json:"pageSize"`
	Total    int64           `json:"total"`
}

// RoomService implements the chat surface that is not message dispatch:
// opening rooms, listing chats, paging history, and the bulk session and
// block operations.
type RoomService struct {
	rooms    RoomCatalog
	sessions SessionCatalog
	history  HistoryStore
	users    UserDirectory
	listings ListingCatalog
	seen     SeenMarker
	pageSize int64
	log      *logrus.Entry
}

// NewRoomService wires a room service. pageSize caps history pages.
func NewRoomService(
	rooms RoomCatalog,
	sessions SessionCatalog,
	history HistoryStore,
	users UserDirectory,
	listings ListingCatalog,
	seen SeenMarker,
	pageSize int64,
	log *logrus.Entry,
) *RoomService {
	return &RoomService{
		rooms:    rooms,
		sessions: sessions,
		history:  history,
		users:    users,
		listings: listings,
		seen:     seen,
		pageSize: pageSize,
		log:      log,
	}
}

// Open resolves (or creates) the room between the caller and otherUserID
// over a listing and returns the assembled view. Only the caller's session
// is upserted; the counterpart's chat list stays untouched until a first
// message arrives.
func (s *RoomService) Open(ctx context.Context, callerID, otherUserID, listingID string) (*RoomView, error) {
	if callerID == otherUserID {
		return nil, ErrSelfChat
	}

	listing, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	other, err := s.users.GetUser(ctx, otherUserID)
	if err != nil {
		return nil, err
	}

	room, err := s.rooms.CreateRoom(ctx, callerID, otherUserID, listing.SellerID, listingID)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.Upsert(ctx, callerID, room.RoomID, roleOf(room, callerID)); err != nil {
		s.log.WithError(err).WithField("userId", callerID).Warn("session upsert failed")
	}

	view := &RoomView{
		Room: room,
		Listing: data.ListingSnapshot{
			Title: listing.Title,
			Price: listing.Price,
			Image: listing.FirstImage(),
		},
		OtherUser: Counterpart{
			UserID:  other.UniqueID,
			Name:    other.Name,
			Profile: other.Profile,
		},
	}
	if room.SellerID == other.UniqueID {
		view.SellerPhone = other.Phone
	}

	// A block in any other room between the same pair carries over in
	// spirit: surface it so the client can warn up front.
	if prior, err := s.rooms.GetBlockedPairRoom(ctx, callerID, otherUserID, room.RoomID); err == nil {
		view.PriorBlock = &PriorBlock{RoomID: prior.RoomID, BlockedBy: prior.BlockedBy}
	} else if !errors.Is(err, data.ErrNotFound) {
		s.log.WithError(err).Warn("prior block lookup failed")
	}

	return view, nil
}

// ChatList returns the caller's chat summaries, most recent activity first.
// Soft-deleted sessions are excluded by the store.
func (s *RoomService) ChatList(ctx context.Context, userID string) ([]*data.ChatSummary, error) {
	return s.sessions.ChatList(ctx, userID)
}

// History returns one page of the room's messages, newest first, and marks
// everything addressed to the caller as read. A caller whose session is
// soft-deleted gets ErrChatUnavailable; they re-enter the chat by messaging,
// not by browsing.
func (s *RoomService) History(ctx context.Context, roomID, userID string, page int64) (*HistoryPage, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if !room.Participant(userID) {
		return nil, ErrNotParticipant
	}

	sess, err := s.sessions.Get(ctx, roomID, userID)
	if err != nil && !errors.Is(err, data.ErrNotFound) {
		return nil, err
	}
	if sess != nil && sess.IsDeleted {
		return nil, ErrChatUnavailable
	}

	if page < 1 {
		page = 1
	}

	// Opening the history is reading it. Mark first so the returned rows
	// carry their post-read statuses.
	if _, err := s.seen.MarkRoomSeen(ctx, roomID, userID); err != nil {
		s.log.WithError(err).WithField("roomId", roomID).Warn("auto mark-seen failed")
	}

	msgs, total, err := s.history.History(ctx, roomID, page, s.pageSize)
	if err != nil {
		return nil, err
	}
	return &HistoryPage{Messages: msgs, Page: page, PageSize: s.pageSize, Total: total}, nil
}

// SetDeleted soft-deletes the caller's sessions for the given rooms. The
// rooms and their messages survive; only the caller's list entry goes.
func (s *RoomService) SetDeleted(ctx context.Context, userID string, roomIDs []string) (int64, error) {
	return s.sessions.SetDeleted(ctx, roomIDs, userID)
}

// SetImportant flags or unflags the caller's sessions for the given rooms.
func (s *RoomService) SetImportant(ctx context.Context, userID string, roomIDs []string, important bool) (int64, error) {
	return s.sessions.SetImportant(ctx, roomIDs, userID, important)
}

// SetBlocked blocks or unblocks the given rooms on the caller's behalf. The
// store only touches rooms the caller participates in; unblocking clears the
// blocker attribution.
func (s *RoomService) SetBlocked(ctx context.Context, userID string, roomIDs []string, blocked bool) (int64, error) {
	return s.rooms.SetBlocked(ctx, roomIDs, userID, blocked)
}
