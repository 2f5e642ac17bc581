package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/dsavault/clubchat/internal/chat"
	"github.com/dsavault/clubchat/internal/models"
)

// ProfileRequest is the editable part of the caller's profile. Missing
// fields fall back to the identity token.
type ProfileRequest struct {
	DisplayName string  `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
}

// UsersResponse is the user directory.
type UsersResponse struct {
	Users []models.User `json:"users"`
}

// PutMe registers the caller or refreshes their profile.
func (h *Handler) PutMe(w http.ResponseWriter, r *http.Request) {
	user := h.caller(w, r)
	if user == nil {
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	profile := *user
	if name := sanitizeName(req.DisplayName); name != "" {
		profile.DisplayName = name
	} else {
		profile.DisplayName = sanitizeName(profile.DisplayName)
	}
	if req.PhotoURL != nil {
		if *req.PhotoURL != "" && !isValidPhotoURL(*req.PhotoURL) {
			h.Error(w, http.StatusBadRequest, "photoURL must be an http(s) URL")
			return
		}
		profile.PhotoURL = req.PhotoURL
		if *req.PhotoURL == "" {
			profile.PhotoURL = nil
		}
	}
	if !isValidEmail(profile.Email) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}

	saved, err := h.chat.RegisterUser(r.Context(), profile)
	if err != nil {
		h.ChatError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, saved)
}

// ListUsers returns every user except the caller, ordered by name. The
// optional q parameter filters by name or email.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	user := h.caller(w, r)
	if user == nil {
		return
	}

	users, err := h.chat.FetchAllUsers(r.Context(), user.ID)
	if err != nil {
		h.ChatError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, UsersResponse{Users: chat.FilterUsers(users, r.URL.Query().Get("q"))})
}

// GetUserProfile returns one profile.
func (h *Handler) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	if h.caller(w, r) == nil {
		return
	}

	user, err := h.chat.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.ChatError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, user)
}

func isValidPhotoURL(raw string) bool {
	if len(raw) > 2048 {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}
