package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsavault/clubchat/internal/models"
	"github.com/dsavault/clubchat/internal/store"
)

var (
	alice = &models.User{ID: "u-alice", DisplayName: "Alice", Email: "alice@x.com"}
	bob   = &models.User{ID: "u-bob", DisplayName: "Bob", Email: "bob@y.com"}
)

// tickingClock advances one second per reading.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStoreWithClock(tickingClock())
	return NewService(mem, mem, zerolog.Nop(), WithLocation(time.UTC)), mem
}

// failingLog fails the n-th UpsertInbox call (1-based) or every AppendMessage.
type failingLog struct {
	store.ConversationLog
	mu          sync.Mutex
	failAppend  bool
	failUpsertN int
	upserts     int
}

var errBackend = errors.New("backend unavailable")

func (f *failingLog) AppendMessage(ctx context.Context, conv models.Conversation, msg models.Message) error {
	if f.failAppend {
		return errBackend
	}
	return f.ConversationLog.AppendMessage(ctx, conv, msg)
}

func (f *failingLog) UpsertInbox(ctx context.Context, owner string, entry models.InboxEntry) error {
	f.mu.Lock()
	f.upserts++
	n := f.upserts
	f.mu.Unlock()
	if n == f.failUpsertN {
		return errBackend
	}
	return f.ConversationLog.UpsertInbox(ctx, owner, entry)
}

// collector records every snapshot delivered to a subscription.
type collector[T any] struct {
	mu        sync.Mutex
	snapshots [][]T
}

func (c *collector[T]) add(v []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, v)
}

func (c *collector[T]) last() ([]T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.snapshots) == 0 {
		return nil, false
	}
	return c.snapshots[len(c.snapshots)-1], true
}

func (c *collector[T]) all() [][]T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]T(nil), c.snapshots...)
}

func TestSendRoomMessage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	msg, err := svc.SendRoomMessage(ctx, "dsa", alice, "two pointers?")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "alice@x.com", msg.Author)
	assert.Equal(t, "Alice", msg.DisplayName)
	assert.Equal(t, alice.ID, msg.AuthorID)
	assert.Equal(t, "09:00 AM", msg.DisplayTime)
	assert.NotZero(t, msg.ServerTimestamp)

	got, err := svc.RoomMessages(ctx, "dsa")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, msg.ID, got[0].ID)
}

func TestSendRoomMessageRejects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		room   string
		author *models.User
		body   string
		want   error
	}{
		{"no author", "dsa", nil, "hi", ErrAuthRequired},
		{"author without id", "dsa", &models.User{Email: "x@y.z"}, "hi", ErrAuthRequired},
		{"blank body", "dsa", alice, "   \n", ErrEmptyBody},
		{"unknown room", "nope", alice, "hi", ErrUnknownRoom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SendRoomMessage(ctx, tt.room, tt.author, tt.body)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var werr *WriteError
			assert.ErrorAs(t, err, &werr)
		})
	}
}

func TestSendDirectMessageWritesBothInboxes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	msg, err := svc.SendDirectMessage(ctx, alice, *bob, "hi")
	require.NoError(t, err)

	aliceInbox, err := svc.Inbox(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceInbox, 1)
	assert.Equal(t, bob.ID, aliceInbox[0].CounterpartID)
	assert.Equal(t, "Bob", aliceInbox[0].DisplayName)
	assert.Equal(t, "hi", aliceInbox[0].LastMessage)

	bobInbox, err := svc.Inbox(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, bobInbox, 1)
	assert.Equal(t, alice.ID, bobInbox[0].CounterpartID)
	assert.Equal(t, "Alice", bobInbox[0].DisplayName)

	// One timestamp across all three writes.
	assert.Equal(t, msg.ServerTimestamp, aliceInbox[0].LastMessageServerTimestamp)
	assert.Equal(t, msg.ServerTimestamp, bobInbox[0].LastMessageServerTimestamp)
	assert.Equal(t, msg.DisplayTime, bobInbox[0].LastMessageDisplayTime)

	fromAlice, err := svc.DirectMessages(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	fromBob, err := svc.DirectMessages(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, fromAlice, fromBob)
	require.Len(t, fromAlice, 1)
}

func TestDirectLogsAreSeparatePerPair(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ab := &models.User{ID: "a_b", DisplayName: "AB"}
	a := &models.User{ID: "a", DisplayName: "A"}

	_, err := svc.SendDirectMessage(ctx, ab, models.User{ID: "c"}, "private to c")
	require.NoError(t, err)
	_, err = svc.SendDirectMessage(ctx, a, models.User{ID: "b_c"}, "private to b_c")
	require.NoError(t, err)

	first, err := svc.DirectMessages(ctx, "c", "a_b")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "private to c", first[0].Body)

	second, err := svc.DirectMessages(ctx, "b_c", "a")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "private to b_c", second[0].Body)
}

func TestSendDirectMessageEventuallyInSubscribedInboxes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var aliceSnaps, bobSnaps collector[models.InboxEntry]
	unsubA, err := svc.SubscribeInbox(ctx, alice.ID, aliceSnaps.add)
	require.NoError(t, err)
	defer unsubA()
	unsubB, err := svc.SubscribeInbox(ctx, bob.ID, bobSnaps.add)
	require.NoError(t, err)
	defer unsubB()

	_, err = svc.SendDirectMessage(context.Background(), alice, *bob, "hi")
	require.NoError(t, err)

	hasEntry := func(c *collector[models.InboxEntry], counterpart string) func() bool {
		return func() bool {
			entries, ok := c.last()
			if !ok {
				return false
			}
			for _, e := range entries {
				if e.CounterpartID == counterpart && e.LastMessage == "hi" {
					return true
				}
			}
			return false
		}
	}
	assert.Eventually(t, hasEntry(&aliceSnaps, bob.ID), time.Second, 5*time.Millisecond)
	assert.Eventually(t, hasEntry(&bobSnaps, alice.ID), time.Second, 5*time.Millisecond)
}

func TestInboxUpsertKeepsOneEntryPerPair(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SendDirectMessage(ctx, alice, *bob, "first")
	require.NoError(t, err)
	reply, err := svc.SendDirectMessage(ctx, bob, *alice, "second")
	require.NoError(t, err)

	for _, owner := range []string{alice.ID, bob.ID} {
		entries, err := svc.Inbox(ctx, owner)
		require.NoError(t, err)
		require.Len(t, entries, 1, "owner %s", owner)
		assert.Equal(t, "second", entries[0].LastMessage)
		assert.Equal(t, reply.ServerTimestamp, entries[0].LastMessageServerTimestamp)
	}
}

func TestSendDirectMessageRejectsSelfAndUnknown(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SendDirectMessage(ctx, alice, *alice, "me")
	assert.ErrorIs(t, err, ErrSelfMessage)

	_, err = svc.SendDirectMessage(ctx, alice, models.User{}, "who")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.SendDirectMessage(ctx, nil, *bob, "anon")
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestSendDirectMessagePartialInboxWrite(t *testing.T) {
	for _, tt := range []struct {
		failUpsert int
		step       string
		owner      string
	}{
		{1, StepSenderInbox, alice.ID},
		{2, StepRecipientInbox, bob.ID},
	} {
		t.Run(tt.step, func(t *testing.T) {
			mem := store.NewMemoryStoreWithClock(tickingClock())
			faulty := &failingLog{ConversationLog: mem, failUpsertN: tt.failUpsert}
			svc := NewService(faulty, mem, zerolog.Nop())
			ctx := context.Background()

			msg, err := svc.SendDirectMessage(ctx, alice, *bob, "hi")
			require.Error(t, err)
			require.NotNil(t, msg, "message committed before the inbox failure")

			var partial *PartialInboxWriteError
			require.ErrorAs(t, err, &partial)
			assert.Equal(t, tt.step, partial.Step)
			assert.Equal(t, tt.owner, partial.Owner)
			assert.Equal(t, msg.ID, partial.Message.ID)
			assert.ErrorIs(t, err, errBackend)

			var werr *WriteError
			assert.ErrorAs(t, err, &werr)

			logged, err := svc.DirectMessages(ctx, alice.ID, bob.ID)
			require.NoError(t, err)
			require.Len(t, logged, 1)

			// Replay completes the missing summary without duplicating the message.
			require.NoError(t, svc.RetryDirectMessage(ctx, alice, *bob, partial.Message))

			logged, err = svc.DirectMessages(ctx, alice.ID, bob.ID)
			require.NoError(t, err)
			assert.Len(t, logged, 1)

			for _, owner := range []string{alice.ID, bob.ID} {
				entries, err := svc.Inbox(ctx, owner)
				require.NoError(t, err)
				require.Len(t, entries, 1)
				assert.Equal(t, "hi", entries[0].LastMessage)
			}
		})
	}
}

func TestRetryDoesNotRegressNewerInbox(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	old, err := svc.SendDirectMessage(ctx, alice, *bob, "old")
	require.NoError(t, err)
	_, err = svc.SendDirectMessage(ctx, alice, *bob, "new")
	require.NoError(t, err)

	require.NoError(t, svc.RetryDirectMessage(ctx, alice, *bob, *old))

	entries, err := svc.Inbox(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].LastMessage)
}

func TestRetryRejectsForeignMessage(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.RetryDirectMessage(context.Background(), alice, *bob, models.Message{ID: "x", AuthorID: bob.ID})
	assert.Error(t, err)
}

func TestSendDirectMessageAppendFailure(t *testing.T) {
	mem := store.NewMemoryStoreWithClock(tickingClock())
	svc := NewService(&failingLog{ConversationLog: mem, failAppend: true}, mem, zerolog.Nop())
	ctx := context.Background()

	msg, err := svc.SendDirectMessage(ctx, alice, *bob, "hi")
	assert.Nil(t, msg)

	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, StepMessage, werr.Op)

	var partial *PartialInboxWriteError
	assert.False(t, errors.As(err, &partial))

	entries, err := svc.Inbox(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubscriptionSnapshotsAreOrderedAndMonotonic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var snaps collector[models.Message]
	unsub, err := svc.SubscribeRoomMessages(ctx, "general", snaps.add)
	require.NoError(t, err)
	defer unsub()

	for _, body := range []string{"one", "two", "three", "four", "five"} {
		_, err := svc.SendRoomMessage(context.Background(), "general", alice, body)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		last, ok := snaps.last()
		return ok && len(last) == 5
	}, time.Second, 5*time.Millisecond)

	prevLen := -1
	for _, snap := range snaps.all() {
		assert.GreaterOrEqual(t, len(snap), prevLen, "snapshot went back in time")
		prevLen = len(snap)
		for i := 1; i < len(snap); i++ {
			assert.LessOrEqual(t, snap[i-1].ServerTimestamp, snap[i].ServerTimestamp)
		}
	}

	last, _ := snaps.last()
	assert.Equal(t, "five", last[4].Body)
}

func TestSubscriptionOrdersByServerTimestampNotCommitOrder(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	conv := models.ClubConversation("dsa")

	require.NoError(t, mem.AppendMessage(ctx, conv, models.Message{ID: "c", Body: "t3", ServerTimestamp: 3}))
	require.NoError(t, mem.AppendMessage(ctx, conv, models.Message{ID: "a", Body: "t1", ServerTimestamp: 1}))
	require.NoError(t, mem.AppendMessage(ctx, conv, models.Message{ID: "b", Body: "t2", ServerTimestamp: 2}))

	var snaps collector[models.Message]
	unsub, err := svc.SubscribeRoomMessages(ctx, "dsa", snaps.add)
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool { _, ok := snaps.last(); return ok }, time.Second, 5*time.Millisecond)
	last, _ := snaps.last()
	require.Len(t, last, 3)
	assert.Equal(t, []string{"t1", "t2", "t3"}, []string{last[0].Body, last[1].Body, last[2].Body})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var snaps collector[models.Message]
	unsub, err := svc.SubscribeRoomMessages(ctx, "genius", snaps.add)
	require.NoError(t, err)
	require.Eventually(t, func() bool { _, ok := snaps.last(); return ok }, time.Second, 5*time.Millisecond)

	unsub()
	unsub() // idempotent
	time.Sleep(20 * time.Millisecond)
	before := len(snaps.all())

	_, err = svc.SendRoomMessage(ctx, "genius", alice, "after")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, before, len(snaps.all()))
}

func TestSubscribeUnknownRoom(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SubscribeRoomMessages(context.Background(), "nope", func([]models.Message) {})
	assert.ErrorIs(t, err, ErrUnknownRoom)
}

func TestFetchAllUsersExcludesCaller(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, u := range []models.User{
		{ID: "u3", DisplayName: "carol", Email: "carol@z.com"},
		*alice,
		*bob,
	} {
		_, err := svc.RegisterUser(ctx, u)
		require.NoError(t, err)
	}

	users, err := svc.FetchAllUsers(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Bob", users[0].DisplayName)
	assert.Equal(t, "carol", users[1].DisplayName)
	for _, u := range users {
		assert.NotEqual(t, alice.ID, u.ID)
	}

	_, err = svc.FetchAllUsers(ctx, "")
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestGetUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterUser(ctx, *bob)
	require.NoError(t, err)

	got, err := svc.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.DisplayName)

	_, err = svc.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterUser(ctx, *alice)
	require.NoError(t, err)
	_, err = svc.SendRoomMessage(ctx, "dsa", alice, "hello")
	require.NoError(t, err)

	rooms, users, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, users)
	require.Len(t, rooms, 3)
	for _, r := range rooms {
		if r.Room.ID == "dsa" {
			assert.EqualValues(t, 1, r.MessageCount)
		} else {
			assert.Zero(t, r.MessageCount)
		}
	}
}
