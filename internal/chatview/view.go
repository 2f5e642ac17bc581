// Package chatview holds the state of one chat session: which tab or
// conversation is active, the live message list, the inbox, the user
// directory and the compose field. It does no rendering itself.
package chatview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/dsavault/clubchat/internal/chat"
	"github.com/dsavault/clubchat/internal/models"
)

// State is the screen the session is on.
type State int

const (
	BrowsingRooms State = iota
	BrowsingInbox
	BrowsingDirectory
	InRoom
	InDirect
)

func (s State) String() string {
	switch s {
	case BrowsingRooms:
		return "rooms"
	case BrowsingInbox:
		return "inbox"
	case BrowsingDirectory:
		return "directory"
	case InRoom:
		return "room"
	case InDirect:
		return "direct"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// InConversation reports whether a message list is on screen.
func (s State) InConversation() bool {
	return s == InRoom || s == InDirect
}

var (
	// ErrTransition is returned when an action is not valid in the current state.
	ErrTransition = errors.New("action not available in this view")
	// ErrNoProfile is returned by MessageProfile when no popover is open.
	ErrNoProfile = errors.New("no profile open")
)

// Store is the part of the conversation store a session uses.
type Store interface {
	SubscribeRoomMessages(ctx context.Context, roomID string, fn func([]models.Message)) (chat.Unsubscribe, error)
	SubscribeDirectMessages(ctx context.Context, userA, userB string, fn func([]models.Message)) (chat.Unsubscribe, error)
	SubscribeInbox(ctx context.Context, userID string, fn func([]models.InboxEntry)) (chat.Unsubscribe, error)
	SendRoomMessage(ctx context.Context, roomID string, author *models.User, body string) (*models.Message, error)
	SendDirectMessage(ctx context.Context, from *models.User, to models.User, body string) (*models.Message, error)
	FetchAllUsers(ctx context.Context, excludingUserID string) ([]models.User, error)
}

var _ Store = (*chat.Service)(nil)

// Option configures a View.
type Option func(*View)

// WithOnChange registers fn to be called, outside the view's lock, after any
// state change including asynchronous deliveries.
func WithOnChange(fn func()) Option {
	return func(v *View) { v.onChange = fn }
}

// WithLocation sets the zone local echoes are labelled in. It should match
// the store's display zone so an echo keeps its label once confirmed.
func WithLocation(loc *time.Location) Option {
	return func(v *View) {
		if loc != nil {
			v.loc = loc
		}
	}
}

// View is one user's chat session. All methods are safe for concurrent use.
type View struct {
	store    Store
	me       *models.User
	logger   zerolog.Logger
	onChange func()
	loc      *time.Location

	mu          sync.Mutex
	state       State
	room        models.Room
	counterpart models.User
	messages    []models.Message
	pending     []models.Message
	inbox       []models.InboxEntry
	directory   []models.User
	dirLoading  bool
	search      string
	draft       string
	profile     *Profile

	// gen increases every time the active conversation changes; deliveries
	// tagged with an older generation are dropped.
	gen        uint64
	unsubConv  chat.Unsubscribe
	unsubInbox chat.Unsubscribe
}

// New starts a session for me in BrowsingRooms. When me is set, the inbox
// subscription stays open until Close.
func New(ctx context.Context, store Store, me *models.User, logger zerolog.Logger, opts ...Option) (*View, error) {
	v := &View{
		store:  store,
		me:     me,
		logger: logger.With().Str("component", "chatview").Logger(),
		state:  BrowsingRooms,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(v)
	}

	if me != nil && me.ID != "" {
		unsub, err := store.SubscribeInbox(ctx, me.ID, v.deliverInbox)
		if err != nil {
			return nil, fmt.Errorf("subscribe inbox: %w", err)
		}
		v.unsubInbox = unsub
	}
	return v, nil
}

// Me returns the signed-in user, or nil.
func (v *View) Me() *models.User {
	return v.me
}

func (v *View) changed() {
	if v.onChange != nil {
		v.onChange()
	}
}

func (v *View) deliverInbox(entries []models.InboxEntry) {
	v.mu.Lock()
	v.inbox = entries
	v.mu.Unlock()
	v.changed()
}

// State returns the current screen.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// ActiveRoom returns the room on screen, if any.
func (v *View) ActiveRoom() (models.Room, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.room, v.state == InRoom
}

// Counterpart returns the other party of the direct conversation on screen.
func (v *View) Counterpart() (models.User, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counterpart, v.state == InDirect
}

// Messages returns the last delivered snapshot followed by local echoes the
// snapshot does not contain yet.
func (v *View) Messages() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]models.Message, 0, len(v.messages)+len(v.pending))
	out = append(out, v.messages...)
	out = append(out, v.pending...)
	return out
}

// Inbox returns the latest inbox snapshot.
func (v *View) Inbox() []models.InboxEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.InboxEntry(nil), v.inbox...)
}

// IsMine reports whether msg was written by the signed-in user. Messages
// stored before author ids were recorded only match on email.
func (v *View) IsMine(msg models.Message) bool {
	if v.me == nil {
		return false
	}
	if msg.AuthorID != "" && msg.AuthorID == v.me.ID {
		return true
	}
	return v.me.Email != "" && msg.Author == v.me.Email
}

// ShowRooms switches to the rooms tab.
func (v *View) ShowRooms() {
	v.switchTab(BrowsingRooms)
}

// ShowInbox switches to the inbox tab.
func (v *View) ShowInbox() {
	v.switchTab(BrowsingInbox)
}

func (v *View) switchTab(s State) {
	v.mu.Lock()
	unsub := v.leaveConversation()
	v.state = s
	v.profile = nil
	v.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	v.changed()
}

// leaveConversation drops the conversation state and returns the listener
// to stop. Callers hold mu.
func (v *View) leaveConversation() chat.Unsubscribe {
	unsub := v.unsubConv
	v.unsubConv = nil
	v.gen++
	v.room = models.Room{}
	v.counterpart = models.User{}
	v.messages = nil
	v.pending = nil
	v.draft = ""
	v.dirLoading = false
	return unsub
}

// ShowDirectory switches to the directory tab and fetches the user list once.
// A failed fetch leaves an empty list.
func (v *View) ShowDirectory(ctx context.Context) error {
	if v.me == nil || v.me.ID == "" {
		return chat.ErrAuthRequired
	}

	v.mu.Lock()
	unsub := v.leaveConversation()
	v.state = BrowsingDirectory
	v.profile = nil
	v.search = ""
	v.directory = nil
	v.dirLoading = true
	gen := v.gen
	v.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	v.changed()

	users, err := v.store.FetchAllUsers(ctx, v.me.ID)
	if err != nil {
		v.logger.Error().Err(err).Msg("directory fetch failed")
		users = nil
	}

	v.mu.Lock()
	if v.gen == gen {
		v.directory = users
		v.dirLoading = false
	}
	v.mu.Unlock()
	v.changed()
	return nil
}

// DirectoryLoading reports whether the directory fetch is in flight.
func (v *View) DirectoryLoading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dirLoading
}

// SetSearch sets the directory filter term.
func (v *View) SetSearch(term string) {
	v.mu.Lock()
	v.search = term
	v.mu.Unlock()
	v.changed()
}

// Search returns the directory filter term.
func (v *View) Search() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.search
}

// FilteredDirectory returns the directory users whose name or email contains
// the search term.
func (v *View) FilteredDirectory() []models.User {
	v.mu.Lock()
	defer v.mu.Unlock()
	return chat.FilterUsers(v.directory, v.search)
}

// SelectRoom opens a club conversation from the rooms tab.
func (v *View) SelectRoom(ctx context.Context, roomID string) error {
	room, ok := chat.LookupRoom(roomID)
	if !ok {
		return chat.ErrUnknownRoom
	}

	v.mu.Lock()
	if v.state != BrowsingRooms {
		v.mu.Unlock()
		return ErrTransition
	}
	v.mu.Unlock()

	return v.open(InRoom, func(view *View) { view.room = room },
		func(fn func([]models.Message)) (chat.Unsubscribe, error) {
			return v.store.SubscribeRoomMessages(ctx, roomID, fn)
		})
}

// SelectInboxEntry opens the direct conversation summarized by entry.
func (v *View) SelectInboxEntry(ctx context.Context, entry models.InboxEntry) error {
	if v.me == nil || v.me.ID == "" {
		return chat.ErrAuthRequired
	}

	v.mu.Lock()
	if v.state != BrowsingInbox {
		v.mu.Unlock()
		return ErrTransition
	}
	v.mu.Unlock()

	return v.openDirect(ctx, models.User{ID: entry.CounterpartID, DisplayName: entry.DisplayName})
}

func (v *View) openDirect(ctx context.Context, with models.User) error {
	return v.open(InDirect, func(view *View) { view.counterpart = with },
		func(fn func([]models.Message)) (chat.Unsubscribe, error) {
			return v.store.SubscribeDirectMessages(ctx, v.me.ID, with.ID, fn)
		})
}

// open tears down the current listener, moves to state with an empty
// message list, and starts a new listener.
func (v *View) open(state State, set func(*View), subscribe func(func([]models.Message)) (chat.Unsubscribe, error)) error {
	v.mu.Lock()
	prev := v.leaveConversation()
	v.state = state
	v.profile = nil
	set(v)
	gen := v.gen
	v.mu.Unlock()

	if prev != nil {
		prev()
	}
	v.changed()

	unsub, err := subscribe(func(msgs []models.Message) {
		v.deliverMessages(gen, msgs)
	})
	if err != nil {
		v.logger.Error().Err(err).Str("state", state.String()).Msg("conversation subscribe failed")
		return err
	}

	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		unsub()
		return nil
	}
	v.unsubConv = unsub
	v.mu.Unlock()
	return nil
}

func (v *View) deliverMessages(gen uint64, msgs []models.Message) {
	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		return
	}
	v.messages = msgs

	if len(v.pending) > 0 {
		seen := make(map[string]struct{}, len(msgs))
		for _, m := range msgs {
			seen[m.ID] = struct{}{}
		}
		kept := v.pending[:0]
		for _, p := range v.pending {
			if _, ok := seen[p.ID]; !ok {
				kept = append(kept, p)
			}
		}
		v.pending = kept
	}
	v.mu.Unlock()
	v.changed()
}

// OpenMessageProfile opens the popover for the author of msg.
func (v *View) OpenMessageProfile(msg models.Message) {
	p := ProfileFromMessage(msg)
	v.mu.Lock()
	v.profile = &p
	v.mu.Unlock()
	v.changed()
}

// OpenUserProfile opens the popover for a directory user.
func (v *View) OpenUserProfile(u models.User) {
	p := ProfileFromUser(u)
	v.mu.Lock()
	v.profile = &p
	v.mu.Unlock()
	v.changed()
}

// Profile returns the open popover, if any.
func (v *View) Profile() (Profile, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.profile == nil {
		return Profile{}, false
	}
	return *v.profile, true
}

// CanMessageProfile reports whether the open popover offers "Message".
func (v *View) CanMessageProfile() bool {
	p, ok := v.Profile()
	return ok && p.CanMessage(v.me)
}

// CloseProfile discards the popover.
func (v *View) CloseProfile() {
	v.mu.Lock()
	v.profile = nil
	v.mu.Unlock()
	v.changed()
}

// MessageProfile opens a direct conversation with the user in the popover.
func (v *View) MessageProfile(ctx context.Context) error {
	if v.me == nil || v.me.ID == "" {
		return chat.ErrAuthRequired
	}
	p, ok := v.Profile()
	if !ok {
		return ErrNoProfile
	}
	if !p.CanMessage(v.me) {
		return chat.ErrSelfMessage
	}
	return v.openDirect(ctx, p.counterpart())
}

// Back leaves the conversation for its canonical parent tab: rooms for a
// club, inbox for a direct conversation.
func (v *View) Back() error {
	v.mu.Lock()
	var parent State
	switch v.state {
	case InRoom:
		parent = BrowsingRooms
	case InDirect:
		parent = BrowsingInbox
	default:
		v.mu.Unlock()
		return ErrTransition
	}
	v.mu.Unlock()

	v.switchTab(parent)
	return nil
}

// SetDraft replaces the compose field.
func (v *View) SetDraft(s string) {
	v.mu.Lock()
	v.draft = s
	v.mu.Unlock()
}

// Draft returns the compose field.
func (v *View) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

// CanSend reports whether Submit would issue a write.
func (v *View) CanSend() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.canSendLocked()
}

func (v *View) canSendLocked() bool {
	return v.me != nil && v.me.ID != "" &&
		v.state.InConversation() &&
		strings.TrimSpace(v.draft) != ""
}

// Submit sends the compose field to the active conversation. The field is
// cleared and a pending echo shown before the write; neither is restored if
// the write fails, which is only logged.
func (v *View) Submit(ctx context.Context) error {
	v.mu.Lock()
	if v.me == nil || v.me.ID == "" {
		v.mu.Unlock()
		return chat.ErrAuthRequired
	}
	if !v.state.InConversation() {
		v.mu.Unlock()
		return ErrTransition
	}
	if !v.canSendLocked() {
		v.mu.Unlock()
		return chat.ErrEmptyBody
	}

	body := v.draft
	v.draft = ""
	state, room, to, gen := v.state, v.room, v.counterpart, v.gen

	echo := models.Message{
		ID:          "local-" + ulid.Make().String(),
		Author:      v.me.AuthorLabel(),
		DisplayName: v.me.Label(),
		AuthorID:    v.me.ID,
		Body:        body,
		DisplayTime: time.Now().In(v.loc).Format(chat.DisplayTimeLayout),
		Pending:     true,
	}
	v.pending = append(v.pending, echo)
	v.mu.Unlock()
	v.changed()

	var (
		msg *models.Message
		err error
	)
	if state == InRoom {
		msg, err = v.store.SendRoomMessage(ctx, room.ID, v.me, body)
	} else {
		msg, err = v.store.SendDirectMessage(ctx, v.me, to, body)
	}

	if err != nil {
		event := v.logger.Error().Err(err).Str("state", state.String())
		var partial *chat.PartialInboxWriteError
		if errors.As(err, &partial) {
			event = event.Str("step", partial.Step).Str("message_id", partial.Message.ID)
		}
		event.Msg("send failed")
	}

	v.mu.Lock()
	if v.gen == gen {
		v.settleEcho(echo.ID, msg)
	}
	v.mu.Unlock()
	v.changed()
	return err
}

// settleEcho gives the echo its stored identity, or drops it when nothing
// was stored. Callers hold mu.
func (v *View) settleEcho(localID string, stored *models.Message) {
	for i, p := range v.pending {
		if p.ID != localID {
			continue
		}
		if stored == nil || v.hasMessageLocked(stored.ID) {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			return
		}
		confirmed := *stored
		confirmed.Pending = true
		v.pending[i] = confirmed
		return
	}
}

func (v *View) hasMessageLocked(id string) bool {
	for _, m := range v.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Close stops every listener of the session.
func (v *View) Close() {
	v.mu.Lock()
	conv := v.leaveConversation()
	inbox := v.unsubInbox
	v.unsubInbox = nil
	v.mu.Unlock()

	if conv != nil {
		conv()
	}
	if inbox != nil {
		inbox()
	}
}
