package types

import (
	"errors"

	"github.com/emersion/go-imap/v2"
)

// Sentinel errors surfaced by the synchronization core. Store errors
// are always fatal to the current operation; the session itself stays
// valid and may retry on the next command.
var (
	// ErrDatabaseFailure wraps any store-side error encountered while
	// materializing or synchronizing a mailbox.
	ErrDatabaseFailure = errors.New("mailsync: database failure")

	// ErrMailboxUnavailable is returned when a mailbox's UIDVALIDITY
	// cannot be read (missing mailbox record or missing property).
	ErrMailboxUnavailable = errors.New("mailsync: mailbox unavailable")

	// ErrNoSavedSearch is returned when a sequence set references the
	// saved-search token '$' with no prior SEARCH result recorded.
	ErrNoSavedSearch = errors.New("mailsync: no saved search found")

	// ErrCannotCopyToSelf is returned by append-path callers (COPY,
	// MOVE) when the target mailbox is the one currently selected.
	ErrCannotCopyToSelf = errors.New("mailsync: cannot copy to self")

	// ErrTryCreate signals the target mailbox of a COPY/MOVE/APPEND
	// does not exist; the command layer maps this to [TRYCREATE].
	ErrTryCreate = errors.New("mailsync: target mailbox does not exist")

	// ErrRetryableConflict is returned by a store adapter when a read
	// raced a concurrent write at the transaction layer and may
	// succeed if retried; the materializer retries up to MaxRetries
	// times before giving up with ErrDatabaseFailure.
	ErrRetryableConflict = errors.New("mailsync: retryable store conflict")
)

// cannotResponseCode is the IMAP [CANNOT] response code (RFC 5530);
// go-imap/v2 does not predefine it because it is rarely needed outside
// COPY/MOVE-to-self rejection.
const cannotResponseCode imap.ResponseCode = "CANNOT"

// IMAPResponse maps a sentinel error from this package to the tagged
// IMAP response the command layer should send. Returns nil for errors
// it does not recognize so callers can fall through to a generic NO.
func IMAPResponse(err error) *imap.Error {
	switch {
	case errors.Is(err, ErrDatabaseFailure):
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Text: "database failure",
		}
	case errors.Is(err, ErrMailboxUnavailable):
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Text: "Mailbox unavailable.",
		}
	case errors.Is(err, ErrNoSavedSearch):
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Text: "No saved search found.",
		}
	case errors.Is(err, ErrCannotCopyToSelf):
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: cannotResponseCode,
			Text: "Cannot copy to self.",
		}
	case errors.Is(err, ErrTryCreate):
		return &imap.Error{
			Type: imap.StatusResponseTypeNo,
			Code: imap.ResponseCodeTryCreate,
			Text: "Target mailbox does not exist.",
		}
	default:
		return nil
	}
}
