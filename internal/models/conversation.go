package models

import "strings"

// keyEscaper keeps the "_" separator out of the ids it joins, so no two
// pairs share a key. Ids without "_" or "%" are unchanged.
var keyEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// ConversationKind separates club logs from direct logs.
type ConversationKind string

const (
	KindClub   ConversationKind = "club"
	KindDirect ConversationKind = "direct"
)

// Conversation addresses one ordered message log.
type Conversation struct {
	Kind ConversationKind
	Key  string
}

// ClubConversation returns the log of a room.
func ClubConversation(roomID string) Conversation {
	return Conversation{Kind: KindClub, Key: roomID}
}

// DirectConversation returns the log shared by two users. Both participants
// compute the same value without coordination.
func DirectConversation(userA, userB string) Conversation {
	return Conversation{Kind: KindDirect, Key: CanonicalKey(userA, userB)}
}

// CanonicalKey joins two user ids in lexicographic order with "_".
func CanonicalKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return keyEscaper.Replace(userA) + "_" + keyEscaper.Replace(userB)
}

// String returns "club:dsa" or "direct:a_b".
func (c Conversation) String() string {
	return string(c.Kind) + ":" + c.Key
}

// Topic is the change-notification topic for this log.
func (c Conversation) Topic() string {
	return "messages:" + c.String()
}

// InboxTopic is the change-notification topic for a user's inbox.
func InboxTopic(owner string) string {
	return "inbox:" + owner
}
