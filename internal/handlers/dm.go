package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dsavault/clubchat/internal/chat"
	"github.com/dsavault/clubchat/internal/models"
)

// GetDirectMessages returns the log the caller shares with user {id}.
func (h *Handler) GetDirectMessages(w http.ResponseWriter, r *http.Request) {
	user := h.caller(w, r)
	if user == nil {
		return
	}
	otherID := chi.URLParam(r, "id")

	messages, err := h.chat.DirectMessages(r.Context(), user.ID, otherID)
	if err != nil {
		h.ChatError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, MessagesResponse{
		Conversation: models.DirectConversation(user.ID, otherID).String(),
		Messages:     messages,
	})
}

// PostDirectMessage sends a direct message to user {id}. A message whose
// inbox summaries failed is still reported as created.
func (h *Handler) PostDirectMessage(w http.ResponseWriter, r *http.Request) {
	user := h.caller(w, r)
	if user == nil {
		return
	}

	otherID := chi.URLParam(r, "id")
	if otherID == user.ID {
		h.ChatError(w, chat.ErrSelfMessage)
		return
	}

	body, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	recipient, err := h.chat.GetUser(r.Context(), otherID)
	if err != nil {
		h.ChatError(w, err)
		return
	}

	msg, err := h.chat.SendDirectMessage(r.Context(), user, *recipient, body)
	var partial *chat.PartialInboxWriteError
	switch {
	case errors.As(err, &partial):
		h.logger.Warn().
			Str("message_id", partial.Message.ID).
			Str("step", partial.Step).
			Str("owner", partial.Owner).
			Msg("direct message stored without inbox summary")
		h.JSON(w, http.StatusCreated, PostMessageResponse{Message: partial.Message, InboxPending: true})
	case err != nil:
		h.ChatError(w, err)
	default:
		h.JSON(w, http.StatusCreated, PostMessageResponse{Message: *msg})
	}
}
