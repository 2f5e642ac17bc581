package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsavault/clubchat/internal/models"
)

func TestMemoryNowNeverGoesBackwards(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStoreWithClock(func() time.Time { return now })
	ctx := context.Background()

	first, err := store.Now(ctx)
	require.NoError(t, err)

	now = now.Add(-time.Minute)
	second, err := store.Now(ctx)
	require.NoError(t, err)
	assert.False(t, second.Before(first))
}

func TestMemoryMessagesOrderAndIdempotence(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv := models.ClubConversation("dsa")

	require.NoError(t, store.AppendMessage(ctx, conv, models.Message{ID: "b", Body: "late", ServerTimestamp: 20}))
	require.NoError(t, store.AppendMessage(ctx, conv, models.Message{ID: "a", Body: "early", ServerTimestamp: 10}))
	require.NoError(t, store.AppendMessage(ctx, conv, models.Message{ID: "a", Body: "replayed", ServerTimestamp: 10}))

	got, err := store.Messages(ctx, conv)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].Body)
	assert.Equal(t, "late", got[1].Body)
}

func TestMemoryUpsertInboxLastWriteWins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertInbox(ctx, "alice", models.InboxEntry{CounterpartID: "bob", LastMessage: "one", LastMessageServerTimestamp: 1}))
	require.NoError(t, store.UpsertInbox(ctx, "alice", models.InboxEntry{CounterpartID: "bob", LastMessage: "two", LastMessageServerTimestamp: 2}))
	require.NoError(t, store.UpsertInbox(ctx, "alice", models.InboxEntry{CounterpartID: "bob", LastMessage: "stale", LastMessageServerTimestamp: 1}))

	entries, err := store.Inbox(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "two", entries[0].LastMessage)
}

func TestMemoryWatchStopsOnCancel(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	topic := models.InboxTopic("alice")

	changes, err := store.Watch(ctx, topic)
	require.NoError(t, err)

	require.NoError(t, store.UpsertInbox(context.Background(), "alice", models.InboxEntry{CounterpartID: "bob", LastMessageServerTimestamp: 1}))
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("expected change notification")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	store.mu.RLock()
	defer store.mu.RUnlock()
	assert.Empty(t, store.watchers[topic])
}

func TestMemoryUsers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.UpsertUser(ctx, models.User{ID: "u1", DisplayName: "Ann", Email: "ann@x.com"})
	require.NoError(t, err)

	updated, err := store.UpsertUser(ctx, models.User{ID: "u1", DisplayName: "Ann B", Email: "ann@x.com"})
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "Ann B", updated.DisplayName)

	missing, err := store.GetUser(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	count, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
