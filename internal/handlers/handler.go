package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/dsavault/clubchat/internal/api/middleware"
	"github.com/dsavault/clubchat/internal/chat"
	"github.com/dsavault/clubchat/internal/models"
)

// emailRegex validates email addresses per RFC 5322 (simplified).
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// maxBodyLen caps a chat message.
const maxBodyLen = 4000

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	chat   *chat.Service
	logger zerolog.Logger
	stream StreamConfig
}

// NewHandler creates a new Handler over the conversation store.
func NewHandler(svc *chat.Service, logger zerolog.Logger, opts ...func(*Handler)) *Handler {
	h := &Handler{
		chat:   svc,
		logger: logger.With().Str("component", "http").Logger(),
		stream: DefaultStreamConfig(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// ChatError maps a conversation store error to a response.
func (h *Handler) ChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrAuthRequired):
		h.Error(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, chat.ErrEmptyBody):
		h.Error(w, http.StatusBadRequest, "body is required")
	case errors.Is(err, chat.ErrSelfMessage):
		h.Error(w, http.StatusBadRequest, "cannot message yourself")
	case errors.Is(err, chat.ErrUnknownRoom):
		h.Error(w, http.StatusNotFound, "room not found")
	case errors.Is(err, chat.ErrUserNotFound):
		h.Error(w, http.StatusNotFound, "user not found")
	default:
		var werr *chat.WriteError
		if errors.As(err, &werr) {
			h.Error(w, http.StatusBadGateway, "failed to save "+werr.Op)
			return
		}
		h.logger.Error().Err(err).Msg("request failed")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// caller returns the authenticated user or writes a 401.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) *models.User {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil || user.ID == "" {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return nil
	}
	return user
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}
	return name
}

// isValidEmail validates email addresses using RFC 5322 pattern.
func isValidEmail(email string) bool {
	if email == "" {
		return true // Empty is valid (optional field)
	}
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}
