package main

import (
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/propio/chat-server/internal/auth"
	"github.com/propio/chat-server/internal/chat"
	"github.com/propio/chat-server/internal/data"
	"github.com/propio/chat-server/internal/middleware"
	"github.com/propio/chat-server/internal/normalize"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type pushTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type openRoomRequest struct {
	UserID    string `json:"userId" validate:"required"`
	ListingID string `json:"listingId" validate:"required"`
}

type sendMessageRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
	Type    string `json:"type" validate:"omitempty,oneof=text image file"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=delivered seen"`
}

type roomIDsRequest struct {
	RoomIDs []string `json:"roomIds" validate:"required,min=1,dive,required"`
}

type blockRequest struct {
	RoomIDs []string `json:"roomIds" validate:"required,min=1,dive,required"`
	Blocked bool     `json:"blocked"`
}

type importantRequest struct {
	RoomIDs   []string `json:"roomIds" validate:"required,min=1,dive,required"`
	Important bool     `json:"important"`
}

type countResponse struct {
	Updated int64 `json:"updated"`
}

// handleRegister creates an account and returns a token for it.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		s.serverError(w, err)
		return
	}

	user, err := s.users.CreateUser(r.Context(), normalize.Email(req.Email), hashed, req.Name, req.Phone)
	if err != nil {
		s.writeError(w, http.StatusConflict, "user already exists")
		return
	}

	s.issueToken(w, user)
}

// handleLogin authenticates with email and password.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, err := s.users.GetUserByEmail(r.Context(), normalize.Email(req.Email))
	if err != nil {
		// Same answer for unknown email and bad password.
		s.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		s.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.issueToken(w, user)
}

func (s *Server) issueToken(w http.ResponseWriter, user *data.User) {
	token, expiresAt, err := s.jwt.GenerateToken(user.UniqueID, user.Email)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, authResponse{Token: token, UserID: user.UniqueID, ExpiresAt: expiresAt})
}

// handlePushToken stores the caller's device token for push fallback.
func (s *Server) handlePushToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	var req pushTokenRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.users.UpdatePushToken(r.Context(), claims.UserID, req.Token); err != nil {
		s.mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOpenRoom resolves or creates the room between the caller and another
// user over a listing.
func (s *Server) handleOpenRoom(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	var req openRoomRequest
	if !s.decode(w, r, &req) {
		return
	}

	view, err := s.rooms.Open(r.Context(), claims.UserID, normalize.ID(req.UserID), normalize.ID(req.ListingID))
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// handleSendMessage is the HTTP send path; the message socket is the
// realtime one. Both feed the same dispatcher.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	var req sendMessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	mtype := data.MessageType(req.Type)
	if mtype == "" {
		mtype = data.TypeText
	}

	m, err := s.messenger.Send(r.Context(), claims.UserID, chi.URLParam(r, "roomID"), html.EscapeString(req.Message), mtype)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, m)
}

// handleHistory returns one page of room history, newest first, and marks
// the caller's unread messages seen.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	page := int64(1)
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = n
	}

	hist, err := s.rooms.History(r.Context(), chi.URLParam(r, "roomID"), claims.UserID, page)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, hist)
}

// handleMarkSeen bulk-marks the caller's unread messages in the room.
func (s *Server) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	n, err := s.messenger.MarkRoomSeen(r.Context(), chi.URLParam(r, "roomID"), claims.UserID)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, countResponse{Updated: n})
}

// handleUpdateStatus advances one message's delivery status.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	var req updateStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	m, err := s.messenger.UpdateMessage(r.Context(), chi.URLParam(r, "messageID"), claims.UserID, data.Status(req.Status))
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

// handleDeleteMessage soft-deletes one message for both parties.
func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	m, err := s.messenger.DeleteMessage(r.Context(), chi.URLParam(r, "messageID"), claims.UserID)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

// handleChatList returns the caller's chat summaries.
func (s *Server) handleChatList(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	list, err := s.rooms.ChatList(r.Context(), claims.UserID)
	if err != nil {
		s.mapError(w, err)
		return
	}
	if list == nil {
		list = []*data.ChatSummary{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

// handleBulkDelete soft-deletes the caller's sessions for the given rooms.
func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	var req roomIDsRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.rooms.SetDeleted(r.Context(), claims.UserID, req.RoomIDs)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, countResponse{Updated: n})
}

// handleBulkImportant flags the caller's sessions for the given rooms.
func (s *Server) handleBulkImportant(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	var req importantRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.rooms.SetImportant(r.Context(), claims.UserID, req.RoomIDs, req.Important)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, countResponse{Updated: n})
}

// handleBulkBlock blocks or unblocks the given rooms for the caller.
func (s *Server) handleBulkBlock(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	var req blockRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.rooms.SetBlocked(r.Context(), claims.UserID, req.RoomIDs, req.Blocked)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, countResponse{Updated: n})
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// mapError translates domain errors to HTTP answers.
func (s *Server) mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrRoomNotFound), errors.Is(err, data.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, chat.ErrNotParticipant):
		s.writeError(w, http.StatusForbidden, "not a participant of this room")
	case errors.Is(err, chat.ErrBlockedBySender):
		s.writeError(w, http.StatusForbidden, chat.ErrBlockedBySender.Error())
	case errors.Is(err, chat.ErrBlockedByReceiver):
		s.writeError(w, http.StatusForbidden, chat.ErrBlockedByReceiver.Error())
	case errors.Is(err, chat.ErrChatUnavailable):
		s.writeError(w, http.StatusGone, "chat unavailable")
	case errors.Is(err, chat.ErrSelfChat):
		s.writeError(w, http.StatusBadRequest, chat.ErrSelfChat.Error())
	case errors.Is(err, chat.ErrBadTransition):
		s.writeError(w, http.StatusConflict, "illegal status transition")
	default:
		s.serverError(w, err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.log.WithError(err).Error("internal error")
	s.writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("response encode failed")
	}
}
