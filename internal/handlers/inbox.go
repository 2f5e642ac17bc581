package handlers

import (
	"net/http"

	"github.com/dsavault/clubchat/internal/models"
)

// InboxResponse lists the caller's conversations, most recent first.
type InboxResponse struct {
	Entries []models.InboxEntry `json:"entries"`
}

// GetInbox returns the caller's inbox.
func (h *Handler) GetInbox(w http.ResponseWriter, r *http.Request) {
	user := h.caller(w, r)
	if user == nil {
		return
	}

	entries, err := h.chat.Inbox(r.Context(), user.ID)
	if err != nil {
		h.ChatError(w, err)
		return
	}
	if entries == nil {
		entries = []models.InboxEntry{}
	}
	h.JSON(w, http.StatusOK, InboxResponse{Entries: entries})
}
