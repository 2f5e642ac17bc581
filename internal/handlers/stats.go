package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"time"
)

// RoomStats is the activity of one room.
type RoomStats struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MessageCount int64  `json:"message_count"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalUsers    int64       `json:"total_users"`
	TotalRooms    int         `json:"total_rooms"`
	TotalMessages int64       `json:"total_messages"`
	LastActivity  string      `json:"last_activity"`
	Rooms         []RoomStats `json:"rooms"`
}

// Stats returns room and directory totals.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rooms, users, err := h.chat.Stats(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("stats failed")
		h.Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	resp := StatsResponse{
		TotalUsers:   users,
		TotalRooms:   len(rooms),
		LastActivity: "no activity yet",
		Rooms:        make([]RoomStats, 0, len(rooms)),
	}

	var latest int64
	for _, rs := range rooms {
		resp.TotalMessages += rs.MessageCount
		resp.Rooms = append(resp.Rooms, RoomStats{
			ID:           rs.Room.ID,
			Name:         rs.Room.Name,
			MessageCount: rs.MessageCount,
		})
		if rs.MessageCount == 0 {
			continue
		}
		msgs, err := h.chat.RoomMessages(ctx, rs.Room.ID)
		if err == nil && len(msgs) > 0 && msgs[len(msgs)-1].ServerTimestamp > latest {
			latest = msgs[len(msgs)-1].ServerTimestamp
		}
	}
	if latest > 0 {
		resp.LastActivity = formatTimeAgo(time.UnixMilli(latest))
	}

	sort.SliceStable(resp.Rooms, func(i, j int) bool {
		return resp.Rooms[i].MessageCount > resp.Rooms[j].MessageCount
	})

	h.JSON(w, http.StatusOK, resp)
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return strconv.Itoa(n) + " " + unit + "s ago"
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	default:
		return plural(int(diff.Hours()/24), "day")
	}
}
