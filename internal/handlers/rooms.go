package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dsavault/clubchat/internal/chat"
	"github.com/dsavault/clubchat/internal/models"
)

// RoomsResponse lists the clubs.
type RoomsResponse struct {
	Rooms []models.Room `json:"rooms"`
}

// MessagesResponse is the full ordered log of a conversation.
type MessagesResponse struct {
	Conversation string           `json:"conversation"`
	Messages     []models.Message `json:"messages"`
}

// PostMessageRequest represents the post message request.
type PostMessageRequest struct {
	Body string `json:"body"`
}

// PostMessageResponse is the stored message. InboxPending is set when the
// message committed but an inbox summary did not.
type PostMessageResponse struct {
	models.Message
	InboxPending bool `json:"inbox_pending,omitempty"`
}

// ListRooms returns the static club directory.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RoomsResponse{Rooms: chat.Rooms()})
}

// GetRoomMessages returns the log of a club.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	messages, err := h.chat.RoomMessages(r.Context(), roomID)
	if err != nil {
		h.ChatError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, MessagesResponse{
		Conversation: models.ClubConversation(roomID).String(),
		Messages:     messages,
	})
}

// PostRoomMessage appends a message to a club.
func (h *Handler) PostRoomMessage(w http.ResponseWriter, r *http.Request) {
	user := h.caller(w, r)
	if user == nil {
		return
	}

	body, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	msg, err := h.chat.SendRoomMessage(r.Context(), chi.URLParam(r, "id"), user, body)
	if err != nil {
		h.ChatError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, PostMessageResponse{Message: *msg})
}

// decodeBody reads a PostMessageRequest and enforces the length cap.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	if len([]rune(req.Body)) > maxBodyLen {
		h.Error(w, http.StatusUnprocessableEntity, "body too long")
		return "", false
	}
	return req.Body, true
}
