package chat

import (
	"errors"
	"fmt"

	"github.com/dsavault/clubchat/internal/models"
)

var (
	// ErrAuthRequired is returned when an action needs a signed-in user.
	ErrAuthRequired = errors.New("authentication required")
	// ErrEmptyBody is returned for a message that is blank after trimming.
	ErrEmptyBody = errors.New("message body is empty")
	// ErrUnknownRoom is returned for a room id outside the directory.
	ErrUnknownRoom = errors.New("unknown room")
	// ErrUserNotFound is returned when a profile does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrSelfMessage is returned when a user tries to message themselves.
	ErrSelfMessage = errors.New("cannot message yourself")
)

// Steps of a direct message send, in commit order.
const (
	StepTimestamp      = "timestamp"
	StepMessage        = "message"
	StepSenderInbox    = "sender_inbox"
	StepRecipientInbox = "recipient_inbox"
)

// WriteError reports a failed or rejected write.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// PartialInboxWriteError reports that a direct message committed but one of
// the inbox upserts did not. Message carries what is needed to retry.
type PartialInboxWriteError struct {
	Step    string
	Owner   string
	Message models.Message
	Err     error
}

func (e *PartialInboxWriteError) Error() string {
	return fmt.Sprintf("direct message %s committed, %s for %s failed: %v", e.Message.ID, e.Step, e.Owner, e.Err)
}

// Unwrap exposes the failure as a WriteError so generic handling applies.
func (e *PartialInboxWriteError) Unwrap() error {
	return &WriteError{Op: e.Step, Err: e.Err}
}
