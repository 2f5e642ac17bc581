package models

// Message is one entry of a conversation log.
type Message struct {
	ID              string `json:"id"`     // ULID
	Author          string `json:"author"` // author label, the email for most records
	DisplayName     string `json:"displayName"`
	AuthorID        string `json:"authorId"`
	Body            string `json:"body"`
	DisplayTime     string `json:"displayTime"`     // "03:04 PM", display only
	ServerTimestamp int64  `json:"serverTimestamp"` // Unix ms, store clock
	Pending         bool   `json:"-"`               // local echo not yet confirmed
}

// Before reports whether m sorts ahead of o in a conversation log.
func (m Message) Before(o Message) bool {
	if m.ServerTimestamp != o.ServerTimestamp {
		return m.ServerTimestamp < o.ServerTimestamp
	}
	return m.ID < o.ID
}
