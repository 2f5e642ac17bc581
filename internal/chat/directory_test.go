package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsavault/clubchat/internal/models"
)

func TestFilterUsersByNameOrEmail(t *testing.T) {
	users := []models.User{
		{ID: "1", DisplayName: "Ann", Email: "ann@x.com"},
		{ID: "2", DisplayName: "Bob", Email: "bob@y.com"},
	}

	byName := FilterUsers(users, "an")
	require.Len(t, byName, 1)
	assert.Equal(t, "Ann", byName[0].DisplayName)

	byEmail := FilterUsers(users, "y.com")
	require.Len(t, byEmail, 1)
	assert.Equal(t, "Bob", byEmail[0].DisplayName)

	assert.Len(t, FilterUsers(users, "  "), 2)
	assert.Len(t, FilterUsers(users, "BOB"), 1)
	assert.Empty(t, FilterUsers(users, "carol"))
}

func TestSortUsersByLabel(t *testing.T) {
	users := []models.User{
		{ID: "3", DisplayName: "carol"},
		{ID: "1", Email: "zed@x.com"},
		{ID: "2", DisplayName: "Bob"},
		{ID: "0", DisplayName: "bob"},
	}
	SortUsers(users)

	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	assert.Equal(t, []string{"0", "2", "3", "1"}, ids)
}

func TestRoomsDirectory(t *testing.T) {
	all := Rooms()
	require.Len(t, all, 3)
	assert.Equal(t, "genius", all[0].ID)

	room, ok := LookupRoom("dsa")
	require.True(t, ok)
	assert.Equal(t, "DSA Warriors", room.Name)

	_, ok = LookupRoom("random")
	assert.False(t, ok)

	all[0].Name = "mutated"
	again, _ := LookupRoom("genius")
	assert.Equal(t, "Genius Club", again.Name)
}
