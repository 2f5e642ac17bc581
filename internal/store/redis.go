package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dsavault/clubchat/internal/models"
)

// RedisStore keeps conversation logs and inbox indexes in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// orderKey holds message ids scored by server timestamp.
func orderKey(conv models.Conversation) string {
	return fmt.Sprintf("%s:messages", conv)
}

// bodiesKey maps message id to the JSON record.
func bodiesKey(conv models.Conversation) string {
	return fmt.Sprintf("%s:bodies", conv)
}

func inboxEntriesKey(owner string) string {
	return fmt.Sprintf("inbox:%s:entries", owner)
}

func inboxOrderKey(owner string) string {
	return fmt.Sprintf("inbox:%s:order", owner)
}

func changesChannel(topic string) string {
	return "changes:" + topic
}

// Now returns the Redis server clock.
func (s *RedisStore) Now(ctx context.Context) (time.Time, error) {
	return s.client.Time(ctx).Result()
}

// AppendMessage stores a message and announces the change.
func (s *RedisStore) AppendMessage(ctx context.Context, conv models.Conversation, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, orderKey(conv), redis.Z{
			Score:  float64(msg.ServerTimestamp),
			Member: msg.ID,
		})
		pipe.HSet(ctx, bodiesKey(conv), msg.ID, string(data))
		pipe.Publish(ctx, changesChannel(conv.Topic()), msg.ID)
		return nil
	})
	return err
}

// Messages returns the full log of a conversation in ascending order.
func (s *RedisStore) Messages(ctx context.Context, conv models.Conversation) ([]models.Message, error) {
	ids, err := s.client.ZRange(ctx, orderKey(conv), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Message{}, nil
	}

	raw, err := s.client.HMGet(ctx, bodiesKey(conv), ids...).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(raw))
	for _, v := range raw {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// CountMessages returns the length of a conversation log.
func (s *RedisStore) CountMessages(ctx context.Context, conv models.Conversation) (int64, error) {
	return s.client.ZCard(ctx, orderKey(conv)).Result()
}

// upsertInboxScript writes an inbox entry unless the stored one is newer.
// KEYS[1] entries hash, KEYS[2] order zset.
// ARGV[1] counterpart id, ARGV[2] timestamp, ARGV[3] entry JSON.
var upsertInboxScript = redis.NewScript(`
local current = redis.call('ZSCORE', KEYS[2], ARGV[1])
if current and tonumber(current) > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

// UpsertInbox merges an inbox entry for owner.
func (s *RedisStore) UpsertInbox(ctx context.Context, owner string, entry models.InboxEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	keys := []string{inboxEntriesKey(owner), inboxOrderKey(owner)}
	applied, err := upsertInboxScript.Run(ctx, s.client, keys,
		entry.CounterpartID, entry.LastMessageServerTimestamp, string(data)).Int()
	if err != nil {
		return err
	}
	if applied == 0 {
		return nil
	}

	return s.client.Publish(ctx, changesChannel(models.InboxTopic(owner)), entry.CounterpartID).Err()
}

// Inbox returns the owner's inbox, most recent conversation first.
func (s *RedisStore) Inbox(ctx context.Context, owner string) ([]models.InboxEntry, error) {
	ids, err := s.client.ZRevRange(ctx, inboxOrderKey(owner), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.InboxEntry{}, nil
	}

	raw, err := s.client.HMGet(ctx, inboxEntriesKey(owner), ids...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]models.InboxEntry, 0, len(raw))
	for _, v := range raw {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var entry models.InboxEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Watch subscribes to change notifications for topic.
func (s *RedisStore) Watch(ctx context.Context, topic string) (<-chan struct{}, error) {
	pubsub := s.client.Subscribe(ctx, changesChannel(topic))

	// Wait for the subscription to be confirmed so no write is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, nil
}
