package store

import (
	"context"
	"time"

	"github.com/dsavault/clubchat/internal/models"
)

// DataStore defines the interface for persistent storage of user profiles.
// PostgresStore, SQLiteStore and MemoryStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	UpsertUser(ctx context.Context, user models.User) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)
}

// ConversationLog is the document-database access pattern the chat service
// relies on: ordered per-conversation logs, a per-user inbox index and change
// notifications. RedisStore and MemoryStore implement this interface.
type ConversationLog interface {
	Ping(ctx context.Context) error

	// Now returns the store clock. Every server timestamp comes from here.
	Now(ctx context.Context) (time.Time, error)

	// AppendMessage adds msg to the log. Appending the same ID twice is a no-op.
	AppendMessage(ctx context.Context, conv models.Conversation, msg models.Message) error
	// Messages returns the full log ordered by server timestamp, then ID.
	Messages(ctx context.Context, conv models.Conversation) ([]models.Message, error)
	CountMessages(ctx context.Context, conv models.Conversation) (int64, error)

	// UpsertInbox writes the owner's entry for entry.CounterpartID unless a
	// newer entry is already stored.
	UpsertInbox(ctx context.Context, owner string, entry models.InboxEntry) error
	// Inbox returns the owner's entries, most recent first.
	Inbox(ctx context.Context, owner string) ([]models.InboxEntry, error)

	// Watch signals on the returned channel after each change to topic. The
	// channel is closed once ctx is done. Signals may be coalesced.
	Watch(ctx context.Context, topic string) (<-chan struct{}, error)
}
