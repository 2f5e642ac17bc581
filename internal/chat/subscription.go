package chat

import (
	"context"
	"sync"

	"github.com/dsavault/clubchat/internal/metrics"
	"github.com/dsavault/clubchat/internal/models"
)

// Unsubscribe stops a subscription. It is safe to call more than once and
// from inside the subscription's own callback.
type Unsubscribe func()

// SubscribeRoomMessages delivers the full ordered log of a club now and after
// every change, until the returned Unsubscribe is called or ctx is done.
func (s *Service) SubscribeRoomMessages(ctx context.Context, roomID string, fn func([]models.Message)) (Unsubscribe, error) {
	if _, ok := LookupRoom(roomID); !ok {
		return nil, ErrUnknownRoom
	}
	return s.subscribeMessages(ctx, models.ClubConversation(roomID), fn)
}

// SubscribeDirectMessages is SubscribeRoomMessages for the log shared by two users.
func (s *Service) SubscribeDirectMessages(ctx context.Context, userA, userB string, fn func([]models.Message)) (Unsubscribe, error) {
	if userA == "" || userB == "" {
		return nil, ErrAuthRequired
	}
	return s.subscribeMessages(ctx, models.DirectConversation(userA, userB), fn)
}

// SubscribeInbox delivers the user's inbox, most recent first, now and after
// every change to any of its entries.
func (s *Service) SubscribeInbox(ctx context.Context, userID string, fn func([]models.InboxEntry)) (Unsubscribe, error) {
	if userID == "" {
		return nil, ErrAuthRequired
	}
	return s.subscribe(ctx, models.InboxTopic(userID), "inbox", func(ctx context.Context) error {
		entries, err := s.log.Inbox(ctx, userID)
		if err != nil {
			return err
		}
		if ctx.Err() == nil {
			fn(entries)
		}
		return nil
	})
}

func (s *Service) subscribeMessages(ctx context.Context, conv models.Conversation, fn func([]models.Message)) (Unsubscribe, error) {
	return s.subscribe(ctx, conv.Topic(), string(conv.Kind), func(ctx context.Context) error {
		messages, err := s.log.Messages(ctx, conv)
		if err != nil {
			return err
		}
		if ctx.Err() == nil {
			fn(messages)
		}
		return nil
	})
}

// subscribe watches topic and calls deliver once up front and once per
// change notification. deliver runs on a single goroutine, so each snapshot
// is read after the previous one and a subscriber never goes back in time.
func (s *Service) subscribe(parent context.Context, topic, kind string, deliver func(context.Context) error) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(parent)

	// Watch before the first read so no change slips between the two.
	changes, err := s.log.Watch(ctx, topic)
	if err != nil {
		cancel()
		return nil, err
	}

	metrics.ActiveSubscriptions.WithLabelValues(kind).Inc()
	logger := s.logger.With().Str("topic", topic).Logger()

	go func() {
		defer metrics.ActiveSubscriptions.WithLabelValues(kind).Dec()

		load := func() {
			if err := deliver(ctx); err != nil {
				if ctx.Err() == nil {
					logger.Warn().Err(err).Msg("snapshot read failed")
				}
				return
			}
			metrics.SnapshotsDelivered.WithLabelValues(kind).Inc()
		}

		load()
		for range changes {
			if ctx.Err() != nil {
				return
			}
			load()
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}
