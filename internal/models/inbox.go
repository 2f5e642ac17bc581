package models

// InboxEntry summarises the latest state of one direct conversation for its owner.
type InboxEntry struct {
	CounterpartID              string `json:"counterpartId"`
	DisplayName                string `json:"displayName"`
	LastMessage                string `json:"lastMessage"`
	LastMessageServerTimestamp int64  `json:"lastMessageServerTimestamp"`
	LastMessageDisplayTime     string `json:"lastMessageDisplayTime"`
}
