package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/propio/chat-server/internal/auth"
	"github.com/propio/chat-server/internal/chat"
	"github.com/propio/chat-server/internal/data"
	"github.com/propio/chat-server/internal/middleware"
	"github.com/propio/chat-server/internal/registry"
)

// userStore is the slice of the users store the handlers touch.
type userStore interface {
	CreateUser(ctx context.Context, email, hashedPassword, name, phone string) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
	GetUser(ctx context.Context, uniqueID string) (*data.User, error)
	UpdatePushToken(ctx context.Context, uniqueID, token string) error
}

// messenger is the dispatcher surface the transport layer drives.
type messenger interface {
	Send(ctx context.Context, senderID, roomID, body string, mtype data.MessageType) (*data.Message, error)
	MarkRoomSeen(ctx context.Context, roomID, userID string) (int64, error)
	UpdateMessage(ctx context.Context, messageID, userID string, to data.Status) (*data.Message, error)
	DeleteMessage(ctx context.Context, messageID, userID string) (*data.Message, error)
}

// roomAPI is the room-service surface the handlers drive.
type roomAPI interface {
	Open(ctx context.Context, callerID, otherUserID, listingID string) (*chat.RoomView, error)
	ChatList(ctx context.Context, userID string) ([]*data.ChatSummary, error)
	History(ctx context.Context, roomID, userID string, page int64) (*chat.HistoryPage, error)
	SetDeleted(ctx context.Context, userID string, roomIDs []string) (int64, error)
	SetImportant(ctx context.Context, userID string, roomIDs []string, important bool) (int64, error)
	SetBlocked(ctx context.Context, userID string, roomIDs []string, blocked bool) (int64, error)
}

// Server carries the wired application and serves both the REST surface and
// the two websocket channels.
type Server struct {
	jwt       *auth.JWTManager
	users     userStore
	messenger messenger
	rooms     roomAPI

	roomConns    *registry.RoomRegistry
	contactConns *registry.ContactRegistry

	validate *validator.Validate
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// newServer wires a Server from its dependencies.
func newServer(
	jwt *auth.JWTManager,
	users userStore,
	msgr messenger,
	rooms roomAPI,
	roomConns *registry.RoomRegistry,
	contactConns *registry.ContactRegistry,
	log *logrus.Entry,
) *Server {
	return &Server{
		jwt:          jwt,
		users:        users,
		messenger:    msgr,
		rooms:        rooms,
		roomConns:    roomConns,
		contactConns: contactConns,
		validate:     validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement happens at the edge proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// routes assembles the router. Register and login sit behind the rate
// limiter; everything else under /v1 requires a bearer token. The websocket
// endpoints identify the client by query parameters the way the mobile
// clients connect.
func (s *Server) routes(limiter *middleware.LimiterStore) http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter))
		r.Post("/v1/auth/register", s.handleRegister)
		r.Post("/v1/auth/login", s.handleLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(s.jwt))

		r.Put("/v1/users/push-token", s.handlePushToken)

		r.Post("/v1/rooms", s.handleOpenRoom)
		r.Get("/v1/rooms/{roomID}/messages", s.handleHistory)
		r.Post("/v1/rooms/{roomID}/messages", s.handleSendMessage)
		r.Post("/v1/rooms/{roomID}/seen", s.handleMarkSeen)

		r.Patch("/v1/messages/{messageID}/status", s.handleUpdateStatus)
		r.Delete("/v1/messages/{messageID}", s.handleDeleteMessage)

		r.Get("/v1/chats", s.handleChatList)
		r.Post("/v1/chats/delete", s.handleBulkDelete)
		r.Post("/v1/chats/important", s.handleBulkImportant)
		r.Post("/v1/chats/block", s.handleBulkBlock)
	})

	r.Get("/ws/message", s.handleMessageSocket)
	r.Get("/ws/contact", s.handleContactSocket)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}
