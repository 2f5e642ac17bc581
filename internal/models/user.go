package models

import (
	"strings"
	"time"
)

// User is a registered profile as issued by the identity provider.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	PhotoURL    *string   `json:"photoURL"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Label returns the display name, falling back to the local part of the email.
func (u User) Label() string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		return local
	}
	if u.Email != "" {
		return u.Email
	}
	return "Anonymous"
}

// AuthorLabel is the label stamped on messages. Older clients wrote the
// email here, so the email wins when present.
func (u User) AuthorLabel() string {
	if u.Email != "" {
		return u.Email
	}
	return "Anonymous"
}
