package chatview

import (
	"strings"

	"github.com/dsavault/clubchat/internal/models"
)

// Profile is the popover shown for a clicked message author or directory
// user. It is never persisted.
type Profile struct {
	ID          string
	DisplayName string
	AuthorLabel string
}

// ProfileFromMessage projects the author of msg.
func ProfileFromMessage(msg models.Message) Profile {
	return Profile{
		ID:          msg.AuthorID,
		DisplayName: msg.DisplayName,
		AuthorLabel: msg.Author,
	}
}

// ProfileFromUser projects a directory entry.
func ProfileFromUser(u models.User) Profile {
	return Profile{
		ID:          u.ID,
		DisplayName: u.Label(),
		AuthorLabel: u.AuthorLabel(),
	}
}

// Title is the name shown at the top of the popover.
func (p Profile) Title() string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	if p.AuthorLabel != "" {
		return p.AuthorLabel
	}
	return "Anonymous"
}

// CanMessage reports whether the "Message" action is offered to me.
// Messages written before author ids existed have no id and cannot be
// answered directly.
func (p Profile) CanMessage(me *models.User) bool {
	return me != nil && me.ID != "" && p.ID != "" && p.ID != me.ID
}

// counterpart builds the user a direct conversation is opened with.
func (p Profile) counterpart() models.User {
	u := models.User{ID: p.ID, DisplayName: p.DisplayName}
	if strings.Contains(p.AuthorLabel, "@") {
		u.Email = p.AuthorLabel
	}
	return u
}
