package chat

import (
	"sort"
	"strings"

	"github.com/dsavault/clubchat/internal/models"
)

// SortUsers orders users by display label, case-insensitively.
func SortUsers(users []models.User) {
	sort.SliceStable(users, func(i, j int) bool {
		a, b := strings.ToLower(users[i].Label()), strings.ToLower(users[j].Label())
		if a != b {
			return a < b
		}
		return users[i].ID < users[j].ID
	})
}

// FilterUsers keeps users whose display name or email contains term,
// ignoring case. An empty term keeps everyone.
func FilterUsers(users []models.User, term string) []models.User {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if term == "" ||
			strings.Contains(strings.ToLower(u.Label()), term) ||
			strings.Contains(strings.ToLower(u.Email), term) {
			out = append(out, u)
		}
	}
	return out
}
