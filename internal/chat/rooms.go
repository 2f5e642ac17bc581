package chat

import "github.com/dsavault/clubchat/internal/models"

var rooms = []models.Room{
	{ID: "genius", Name: "Genius Club", Description: "For the rigorous minds.", AccentColor: "#a855f7", Icon: "brain"},
	{ID: "dsa", Name: "DSA Warriors", Description: "Master Data Structures & Algorithms.", AccentColor: "#22c55e", Icon: "code"},
	{ID: "general", Name: "General Chill", Description: "Hangout and relax.", AccentColor: "#f59e0b", Icon: "coffee"},
}

// Rooms returns the club directory in display order.
func Rooms() []models.Room {
	out := make([]models.Room, len(rooms))
	copy(out, rooms)
	return out
}

// LookupRoom finds a club by id.
func LookupRoom(id string) (models.Room, bool) {
	for _, r := range rooms {
		if r.ID == id {
			return r, true
		}
	}
	return models.Room{}, false
}
