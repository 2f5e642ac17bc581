// Package chat implements the conversation store: club logs, direct logs,
// the per-user inbox index and the user directory.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/dsavault/clubchat/internal/metrics"
	"github.com/dsavault/clubchat/internal/models"
	"github.com/dsavault/clubchat/internal/store"
)

// DisplayTimeLayout renders the send-time label shown next to a message.
const DisplayTimeLayout = "03:04 PM"

// Service is the conversation store. It keeps no state between calls;
// everything lives in the ConversationLog and DataStore.
type Service struct {
	log    store.ConversationLog
	users  store.DataStore
	logger zerolog.Logger
	loc    *time.Location
}

// Option configures a Service.
type Option func(*Service)

// WithLocation sets the zone used for display-time labels.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewService creates a conversation store over log and users.
func NewService(log store.ConversationLog, users store.DataStore, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		log:    log,
		users:  users,
		logger: logger.With().Str("component", "chat").Logger(),
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newMessage stamps a message for author at server time now.
func (s *Service) newMessage(author *models.User, body string, now time.Time) models.Message {
	return models.Message{
		ID:              ulid.Make().String(),
		Author:          author.AuthorLabel(),
		DisplayName:     author.Label(),
		AuthorID:        author.ID,
		Body:            body,
		DisplayTime:     now.In(s.loc).Format(DisplayTimeLayout),
		ServerTimestamp: now.UnixMilli(),
	}
}

func validateSend(author *models.User, body string) error {
	if author == nil || author.ID == "" {
		return &WriteError{Op: StepMessage, Err: ErrAuthRequired}
	}
	if strings.TrimSpace(body) == "" {
		return &WriteError{Op: StepMessage, Err: ErrEmptyBody}
	}
	return nil
}

func (s *Service) serverTime(ctx context.Context) (time.Time, error) {
	now, err := s.log.Now(ctx)
	if err != nil {
		metrics.WriteFailures.WithLabelValues(StepTimestamp).Inc()
		s.logger.Error().Err(err).Str("step", StepTimestamp).Msg("server time unavailable")
		return time.Time{}, &WriteError{Op: StepTimestamp, Err: err}
	}
	return now, nil
}

// SendRoomMessage appends one message to a club log.
func (s *Service) SendRoomMessage(ctx context.Context, roomID string, author *models.User, body string) (*models.Message, error) {
	if err := validateSend(author, body); err != nil {
		return nil, err
	}
	if _, ok := LookupRoom(roomID); !ok {
		return nil, &WriteError{Op: StepMessage, Err: ErrUnknownRoom}
	}

	now, err := s.serverTime(ctx)
	if err != nil {
		return nil, err
	}

	msg := s.newMessage(author, body, now)
	if err := s.log.AppendMessage(ctx, models.ClubConversation(roomID), msg); err != nil {
		metrics.WriteFailures.WithLabelValues(StepMessage).Inc()
		s.logger.Error().Err(err).
			Str("room", roomID).
			Str("message_id", msg.ID).
			Str("step", StepMessage).
			Msg("room message write failed")
		return nil, &WriteError{Op: StepMessage, Err: err}
	}

	metrics.MessagesPosted.WithLabelValues(string(models.KindClub)).Inc()
	return &msg, nil
}

// SendDirectMessage appends a message to the direct log of from and to, then
// upserts the sender's inbox entry and the recipient's inbox entry. All three
// writes share one server timestamp. Writes are sequential without rollback:
// on a PartialInboxWriteError the returned message has been committed.
func (s *Service) SendDirectMessage(ctx context.Context, from *models.User, to models.User, body string) (*models.Message, error) {
	if err := validateSend(from, body); err != nil {
		return nil, err
	}
	if to.ID == "" {
		return nil, &WriteError{Op: StepMessage, Err: ErrUserNotFound}
	}
	if to.ID == from.ID {
		return nil, &WriteError{Op: StepMessage, Err: ErrSelfMessage}
	}

	now, err := s.serverTime(ctx)
	if err != nil {
		return nil, err
	}

	msg := s.newMessage(from, body, now)
	if err := s.applyDirect(ctx, from, to, msg); err != nil {
		var partial *PartialInboxWriteError
		if errors.As(err, &partial) {
			return &msg, err
		}
		return nil, err
	}

	metrics.MessagesPosted.WithLabelValues(string(models.KindDirect)).Inc()
	return &msg, nil
}

// RetryDirectMessage replays the three writes of a direct message with its
// original id and timestamp. Replays never duplicate the message and never
// overwrite a newer inbox summary.
func (s *Service) RetryDirectMessage(ctx context.Context, from *models.User, to models.User, msg models.Message) error {
	if from == nil || from.ID == "" {
		return &WriteError{Op: StepMessage, Err: ErrAuthRequired}
	}
	if msg.ID == "" || msg.AuthorID != from.ID {
		return &WriteError{Op: StepMessage, Err: fmt.Errorf("message %q was not sent by %s", msg.ID, from.ID)}
	}
	return s.applyDirect(ctx, from, to, msg)
}

func (s *Service) applyDirect(ctx context.Context, from *models.User, to models.User, msg models.Message) error {
	conv := models.DirectConversation(from.ID, to.ID)
	logger := s.logger.With().
		Str("conversation", conv.Key).
		Str("message_id", msg.ID).
		Str("from", from.ID).
		Str("to", to.ID).
		Logger()

	if err := s.log.AppendMessage(ctx, conv, msg); err != nil {
		metrics.WriteFailures.WithLabelValues(StepMessage).Inc()
		logger.Error().Err(err).Str("step", StepMessage).Msg("direct message write failed")
		return &WriteError{Op: StepMessage, Err: err}
	}

	sender := models.InboxEntry{
		CounterpartID:              to.ID,
		DisplayName:                to.Label(),
		LastMessage:                msg.Body,
		LastMessageServerTimestamp: msg.ServerTimestamp,
		LastMessageDisplayTime:     msg.DisplayTime,
	}
	if err := s.log.UpsertInbox(ctx, from.ID, sender); err != nil {
		metrics.WriteFailures.WithLabelValues(StepSenderInbox).Inc()
		logger.Error().Err(err).Str("step", StepSenderInbox).Msg("inbox upsert failed after message commit")
		return &PartialInboxWriteError{Step: StepSenderInbox, Owner: from.ID, Message: msg, Err: err}
	}

	recipient := models.InboxEntry{
		CounterpartID:              from.ID,
		DisplayName:                from.Label(),
		LastMessage:                msg.Body,
		LastMessageServerTimestamp: msg.ServerTimestamp,
		LastMessageDisplayTime:     msg.DisplayTime,
	}
	if err := s.log.UpsertInbox(ctx, to.ID, recipient); err != nil {
		metrics.WriteFailures.WithLabelValues(StepRecipientInbox).Inc()
		logger.Error().Err(err).Str("step", StepRecipientInbox).Msg("inbox upsert failed after message commit")
		return &PartialInboxWriteError{Step: StepRecipientInbox, Owner: to.ID, Message: msg, Err: err}
	}

	return nil
}

// RoomMessages returns the current log of a club.
func (s *Service) RoomMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	if _, ok := LookupRoom(roomID); !ok {
		return nil, ErrUnknownRoom
	}
	return s.log.Messages(ctx, models.ClubConversation(roomID))
}

// DirectMessages returns the current log shared by two users.
func (s *Service) DirectMessages(ctx context.Context, userA, userB string) ([]models.Message, error) {
	return s.log.Messages(ctx, models.DirectConversation(userA, userB))
}

// Inbox returns the user's inbox, most recent first.
func (s *Service) Inbox(ctx context.Context, userID string) ([]models.InboxEntry, error) {
	return s.log.Inbox(ctx, userID)
}

// FetchAllUsers lists every registered user except the caller, ordered by
// display label.
func (s *Service) FetchAllUsers(ctx context.Context, excludingUserID string) ([]models.User, error) {
	if excludingUserID == "" {
		return nil, ErrAuthRequired
	}

	all, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]models.User, 0, len(all))
	for _, u := range all {
		if u.ID == excludingUserID {
			continue
		}
		users = append(users, u)
	}
	SortUsers(users)
	return users, nil
}

// RegisterUser stores the profile of a newly registered or returning user.
func (s *Service) RegisterUser(ctx context.Context, user models.User) (*models.User, error) {
	if user.ID == "" {
		return nil, ErrAuthRequired
	}
	user.DisplayName = strings.TrimSpace(user.DisplayName)

	saved, err := s.users.UpsertUser(ctx, user)
	if err != nil {
		s.logger.Error().Err(err).Str("user", user.ID).Msg("profile upsert failed")
		return nil, &WriteError{Op: "profile", Err: err}
	}
	metrics.UsersRegistered.Inc()
	return saved, nil
}

// GetUser returns a profile or ErrUserNotFound.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// RoomStat is the size of one club log.
type RoomStat struct {
	Room         models.Room
	MessageCount int64
}

// Stats reports the size of each club log and the directory.
func (s *Service) Stats(ctx context.Context) ([]RoomStat, int64, error) {
	stats := make([]RoomStat, 0, len(rooms))
	for _, r := range Rooms() {
		n, err := s.log.CountMessages(ctx, models.ClubConversation(r.ID))
		if err != nil {
			return nil, 0, fmt.Errorf("count %s: %w", r.ID, err)
		}
		stats = append(stats, RoomStat{Room: r, MessageCount: n})
	}

	users, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return stats, users, nil
}

// Ping checks both backing stores.
func (s *Service) Ping(ctx context.Context) map[string]error {
	return map[string]error{
		"conversations": s.log.Ping(ctx),
		"users":         s.users.Ping(ctx),
	}
}
