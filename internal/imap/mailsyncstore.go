package imap

import (
	"context"
	"sync"

	"github.com/fenilsonani/email-server/internal/mailsync/types"
	"github.com/fenilsonani/email-server/internal/storage"
)

// mailsyncAdapter exposes the maildir-backed storage.Store through the
// materializer.JMAPStore and sync.ModSeqSource interfaces so the
// mailbox synchronization core can sit in front of it unmodified.
//
// storage.Store has no native per-account change counter — each
// mailbox only tracks its own UIDVALIDITY/UIDNEXT. The adapter
// maintains its own synthetic, monotonically increasing modseq per
// account, bumped by Touch whenever a mutating store call completes.
// This is enough for the synchronizer's cheap-no-op check: as long as
// every mutation that could change a selected mailbox's membership
// calls Touch first, a session that observed modseq N will always see
// a change when the mailbox's true state has moved past N.
type mailsyncAdapter struct {
	store storage.MessageStore

	mu        sync.Mutex
	modSeqs   map[uint32]uint64       // account id -> current modseq
	locations map[uint32]types.UidMailbox // message id -> (mailbox id, uid), refreshed by GetTag
}

func newMailsyncAdapter(store storage.MessageStore) *mailsyncAdapter {
	return &mailsyncAdapter{
		store:     store,
		modSeqs:   make(map[uint32]uint64),
		locations: make(map[uint32]types.UidMailbox),
	}
}

// Touch advances accountID's synthetic modseq. Call after any store
// mutation that can change a mailbox's membership, flags, or UID
// allocation.
func (a *mailsyncAdapter) Touch(accountID uint32) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modSeqs[accountID]++
	return a.modSeqs[accountID]
}

func (a *mailsyncAdapter) currentModSeq(accountID uint32) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := a.modSeqs[accountID]; ok {
		return v
	}
	return 0
}

// GetModSeq implements sync.ModSeqSource.
func (a *mailsyncAdapter) GetModSeq(ctx context.Context, accountID uint32) (*uint64, error) {
	v := a.currentModSeq(accountID)
	return &v, nil
}

// GetTag implements materializer.JMAPStore: the mailbox's membership,
// one message id per entry, since this store assigns each message to
// exactly one mailbox rather than tagging it with a set of mailboxes.
func (a *mailsyncAdapter) GetTag(ctx context.Context, accountID, mailboxID uint32) ([]uint32, error) {
	messages, err := a.store.ListMessages(ctx, int64(mailboxID), 0, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]uint32, 0, len(messages))

	a.mu.Lock()
	for _, msg := range messages {
		id := uint32(msg.ID)
		ids = append(ids, id)
		a.locations[id] = types.UidMailbox{MailboxID: uint32(msg.MailboxID), UID: msg.UID}
	}
	a.mu.Unlock()

	return ids, nil
}

// GetMailboxCid implements materializer.JMAPStore, returning the
// mailbox's UIDVALIDITY as its change-id / creation tag.
func (a *mailsyncAdapter) GetMailboxCid(ctx context.Context, accountID, mailboxID uint32) (uint32, bool, error) {
	mb, err := a.store.GetMailboxByID(ctx, int64(mailboxID))
	if err != nil {
		return 0, false, nil
	}
	return mb.UIDValidity, true, nil
}

// GetMailboxIDsBatch implements materializer.JMAPStore. Since this
// store's messages belong to a single mailbox, each entry's batch is
// exactly one UidMailbox pair.
func (a *mailsyncAdapter) GetMailboxIDsBatch(ctx context.Context, accountID uint32, messageIDs []uint32) (map[uint32][]types.UidMailbox, error) {
	out := make(map[uint32][]types.UidMailbox, len(messageIDs))

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range messageIDs {
		if loc, ok := a.locations[id]; ok {
			out[id] = []types.UidMailbox{loc}
		}
	}
	return out, nil
}

// GetLastChangeID implements materializer.JMAPStore.
func (a *mailsyncAdapter) GetLastChangeID(ctx context.Context, accountID uint32) (*uint64, error) {
	v := a.currentModSeq(accountID)
	return &v, nil
}
