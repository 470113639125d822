package prompt

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"

	"github.com/ashureev/rolelink/internal/domain"
)

var (
	// ErrMalformedToken is returned for custom ids that do not decode against the
	// wizard's schema. Users see it as an expired menu.
	ErrMalformedToken = fmt.Errorf("malformed custom id: %w", errdefs.ErrInvalidArgument)

	// ErrTooLong is returned when an encoded custom id exceeds MaxCustomIDLength.
	ErrTooLong = fmt.Errorf("custom id too long: %w", errdefs.ErrOutOfRange)

	// ErrSessionExpired is returned when a component fires for a session whose
	// state is gone.
	ErrSessionExpired = fmt.Errorf("prompt session expired: %w", errdefs.ErrNotFound)

	// ErrStoreUnavailable wraps every session store backend failure.
	ErrStoreUnavailable = fmt.Errorf("session store unavailable: %w", errdefs.ErrUnavailable)

	// ErrProtocolViolation is returned for interaction responses that break the
	// one-shot first-response contract, and for runaway navigation.
	ErrProtocolViolation = errors.New("interaction protocol violation")

	// ErrNotAuthor is returned when someone other than the wizard's author clicks.
	ErrNotAuthor = fmt.Errorf("actor is not the prompt author: %w", errdefs.ErrPermissionDenied)
)

// User-facing messages.
const (
	MsgExpired      = "This menu has expired. Please run the command again."
	MsgTryLater     = "I couldn't save your progress right now. Please try again later."
	MsgGeneric      = "An unexpected error occurred while processing this command. Please try again in a few minutes."
	MsgNotAuthor    = "You are not the person who ran this command!"
	MsgRobloxDown   = "Roblox appears to be down, so I was unable to process your command. Please try again in a few minutes."
	MsgBindConflict = "That bind already exists, so nothing was changed."
	MsgTooMany      = "You can only have 5 unsaved binds at a time. Publish or remove some first."
)

// UserError carries a message meant to be shown verbatim.
type UserError struct {
	Message string
}

func (e *UserError) Error() string { return e.Message }

// Reject returns a UserError with the given message.
func Reject(format string, args ...any) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// UserMessage converts an error into the text shown to the user.
func UserMessage(err error) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Message
	}
	if nf, ok := domain.AsEntityNotFound(err); ok {
		return fmt.Sprintf("The %s ID (%d) you gave is either invalid or does not exist.", nf.Kind, nf.ID)
	}
	switch {
	case errors.Is(err, ErrMalformedToken), errors.Is(err, ErrSessionExpired):
		return MsgExpired
	case errors.Is(err, ErrNotAuthor):
		return MsgNotAuthor
	case errors.Is(err, ErrStoreUnavailable):
		return MsgTryLater
	case errors.Is(err, domain.ErrBindConflict):
		return MsgBindConflict
	case errors.Is(err, domain.ErrTooManyPending):
		return MsgTooMany
	case errors.Is(err, domain.ErrExternalUnavailable):
		return MsgRobloxDown
	}
	return MsgGeneric
}

// expected reports errors that are part of normal operation and need no error log.
func expected(err error) bool {
	var ue *UserError
	return errors.As(err, &ue) ||
		errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrNotAuthor) ||
		errors.Is(err, domain.ErrBindConflict) ||
		errors.Is(err, domain.ErrTooManyPending) ||
		errors.Is(err, domain.ErrExternalNotFound)
}
