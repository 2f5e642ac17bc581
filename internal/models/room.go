package models

// Room is a chat club. Rooms are a fixed table and never change at runtime.
type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AccentColor string `json:"accent_color"`
	Icon        string `json:"icon"`
}
