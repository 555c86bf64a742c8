// Package materializer builds an immutable MailboxSnapshot from the
// object store for a given mailbox, projecting its unordered
// "messages tagged with a mailbox id" membership into IMAP's ordered
// UID/sequence-number view.
package materializer

import (
	"context"

	"github.com/fenilsonani/email-server/internal/mailsync/types"
)

// JMAPStore is the narrow façade onto the object store this package
// needs, mirroring the four calls fetch_messages makes in the
// original core: a tag (membership bitmap) lookup, a single-property
// read, a batch-property read, and the collection's latest change id.
type JMAPStore interface {
	// GetTag returns the message ids tagged with mailboxID in the
	// email collection, or nil if none are tagged.
	GetTag(ctx context.Context, accountID, mailboxID uint32) ([]uint32, error)

	// GetMailboxCid returns the mailbox object's "cid" property
	// (UIDVALIDITY), and whether the mailbox record/property exists.
	GetMailboxCid(ctx context.Context, accountID, mailboxID uint32) (cid uint32, ok bool, err error)

	// GetMailboxIDsBatch returns, for each requested message id, its
	// full MailboxIds membership list (the message may belong to
	// several mailboxes, each with its own UID).
	GetMailboxIDsBatch(ctx context.Context, accountID uint32, messageIDs []uint32) (map[uint32][]types.UidMailbox, error)

	// GetLastChangeID returns the email collection's latest change
	// id (modseq) for the account, or nil if the collection has never
	// changed.
	GetLastChangeID(ctx context.Context, accountID uint32) (*uint64, error)
}
