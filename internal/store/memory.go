package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dsavault/clubchat/internal/models"
)

// MemoryStore is an in-process ConversationLog and DataStore. It backs local
// development when no Redis or database is configured, and the tests.
type MemoryStore struct {
	mu    sync.RWMutex
	clock func() time.Time
	last  time.Time

	logs  map[string]map[string]models.Message    // conversation -> id -> message
	inbox map[string]map[string]models.InboxEntry // owner -> counterpart -> entry
	users map[string]models.User

	watchers map[string]map[int]chan struct{} // topic -> watch id -> signal
	nextID   int
}

// NewMemoryStore creates an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates an empty store reading time from clock.
func NewMemoryStoreWithClock(clock func() time.Time) *MemoryStore {
	return &MemoryStore{
		clock:    clock,
		logs:     make(map[string]map[string]models.Message),
		inbox:    make(map[string]map[string]models.InboxEntry),
		users:    make(map[string]models.User),
		watchers: make(map[string]map[int]chan struct{}),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Now returns the store clock, never moving backwards.
func (s *MemoryStore) Now(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now
	return now, nil
}

// AppendMessage adds msg to the log; an existing ID is left untouched.
func (s *MemoryStore) AppendMessage(_ context.Context, conv models.Conversation, msg models.Message) error {
	s.mu.Lock()
	log, ok := s.logs[conv.String()]
	if !ok {
		log = make(map[string]models.Message)
		s.logs[conv.String()] = log
	}
	if _, exists := log[msg.ID]; !exists {
		msg.Pending = false
		log[msg.ID] = msg
	}
	s.mu.Unlock()

	s.notify(conv.Topic())
	return nil
}

// Messages returns the log ordered by server timestamp, then ID.
func (s *MemoryStore) Messages(_ context.Context, conv models.Conversation) ([]models.Message, error) {
	s.mu.RLock()
	log := s.logs[conv.String()]
	messages := make([]models.Message, 0, len(log))
	for _, msg := range log {
		messages = append(messages, msg)
	}
	s.mu.RUnlock()

	sort.Slice(messages, func(i, j int) bool { return messages[i].Before(messages[j]) })
	return messages, nil
}

// CountMessages returns the length of a log.
func (s *MemoryStore) CountMessages(_ context.Context, conv models.Conversation) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.logs[conv.String()])), nil
}

// UpsertInbox writes entry for owner unless a newer one is stored.
func (s *MemoryStore) UpsertInbox(_ context.Context, owner string, entry models.InboxEntry) error {
	s.mu.Lock()
	entries, ok := s.inbox[owner]
	if !ok {
		entries = make(map[string]models.InboxEntry)
		s.inbox[owner] = entries
	}
	if prev, ok := entries[entry.CounterpartID]; ok && prev.LastMessageServerTimestamp > entry.LastMessageServerTimestamp {
		s.mu.Unlock()
		return nil
	}
	entries[entry.CounterpartID] = entry
	s.mu.Unlock()

	s.notify(models.InboxTopic(owner))
	return nil
}

// Inbox returns the owner's entries, most recent first.
func (s *MemoryStore) Inbox(_ context.Context, owner string) ([]models.InboxEntry, error) {
	s.mu.RLock()
	list := make([]models.InboxEntry, 0, len(s.inbox[owner]))
	for _, e := range s.inbox[owner] {
		list = append(list, e)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].LastMessageServerTimestamp != list[j].LastMessageServerTimestamp {
			return list[i].LastMessageServerTimestamp > list[j].LastMessageServerTimestamp
		}
		return list[i].CounterpartID < list[j].CounterpartID
	})
	return list, nil
}

// Watch registers a change listener on topic until ctx is done.
func (s *MemoryStore) Watch(ctx context.Context, topic string) (<-chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	signal := make(chan struct{}, 1)
	out := make(chan struct{}, 1)

	s.mu.Lock()
	if s.watchers[topic] == nil {
		s.watchers[topic] = make(map[int]chan struct{})
	}
	id := s.nextID
	s.nextID++
	s.watchers[topic][id] = signal
	s.mu.Unlock()

	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.watchers[topic], id)
			if len(s.watchers[topic]) == 0 {
				delete(s.watchers, topic)
			}
			s.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// notify signals every watcher of topic without blocking.
func (s *MemoryStore) notify(topic string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.watchers[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// UpsertUser creates or updates a profile. CreatedAt is kept from the first insert.
func (s *MemoryStore) UpsertUser(_ context.Context, user models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.users[user.ID]; ok {
		user.CreatedAt = prev.CreatedAt
	} else {
		user.CreatedAt = s.clock().UTC()
	}
	s.users[user.ID] = user
	return &user, nil
}

// GetUser returns a profile or nil when unknown.
func (s *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// ListUsers returns every profile in no particular order.
func (s *MemoryStore) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

// CountUsers returns the number of profiles.
func (s *MemoryStore) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}
