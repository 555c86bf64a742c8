// Package sync compares a session's last observed mailbox state to a
// freshly materialized snapshot, stages the deletions the client has
// not yet been told about, and updates the mailbox-level cache.
package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/fenilsonani/email-server/internal/mailsync/metrics"
	"github.com/fenilsonani/email-server/internal/mailsync/selected"
	"github.com/fenilsonani/email-server/internal/mailsync/types"
)

// ModSeqSource reads the account's current authoritative modseq,
// without materializing a full snapshot — used as the cheap check
// that decides whether synchronization has anything to do.
type ModSeqSource interface {
	GetModSeq(ctx context.Context, accountID uint32) (*uint64, error)
}

// Materializer builds a fresh MailboxSnapshot for a mailbox.
type Materializer interface {
	FetchMessages(ctx context.Context, mailbox types.MailboxId) (*types.MailboxSnapshot, error)
}

// Cache is the process-wide, bounded mailbox snapshot cache the
// synchronizer publishes freshly materialized snapshots into. Writers
// (the synchronizer) insert; readers (other sessions selecting the
// same mailbox) clone the returned handle. Evictions are policy-only
// and never invalidate outstanding handles, since snapshots are
// immutable once published.
type Cache interface {
	Add(id types.MailboxId, snapshot *types.MailboxSnapshot)
}

// Synchronizer reconciles a session's SelectedMailbox against the
// object store's authoritative state.
type Synchronizer struct {
	modSeq       ModSeqSource
	materializer Materializer
	cache        Cache
	log          *slog.Logger
}

// New constructs a Synchronizer. log may be nil.
func New(modSeq ModSeqSource, materializer Materializer, cache Cache, log *slog.Logger) *Synchronizer {
	if log == nil {
		log = slog.Default()
	}
	return &Synchronizer{modSeq: modSeq, materializer: materializer, cache: cache, log: log}
}

// Synchronize returns the mailbox's authoritative modseq after
// reconciling sel against it.
//
// If the account's current modseq equals the session's recorded
// modseq, this is a no-op: no store read beyond the modseq check, no
// staged transition, no state change. Otherwise a fresh snapshot is
// materialized and, under the session's lock, every uid the session
// currently presents that is absent from the new snapshot becomes a
// deletion — accumulated with any still-pending deletions from a
// prior unconsumed PendingTransition, so unannounced deletions are
// never lost across back-to-back synchronizations. Surviving entries
// keep their old ImapId (old seqnum): the client still references old
// seqnums until the notification emitter announces the EXPUNGEs.
// Newly appearing uids are intentionally not added to id_to_imap here;
// they become visible only once the emitter swaps in the new
// snapshot.
func (s *Synchronizer) Synchronize(ctx context.Context, sel *selected.SelectedMailbox) (*uint64, error) {
	start := time.Now()

	authoritative, err := s.modSeq.GetModSeq(ctx, sel.ID.AccountID)
	if err != nil {
		s.log.Error("mailsync: failed to obtain modseq",
			slog.Uint64("account_id", uint64(sel.ID.AccountID)),
			slog.Any("error", err))
		metrics.RecordSynchronize("error", time.Since(start).Seconds())
		return nil, types.ErrDatabaseFailure
	}

	if modSeqEqual(authoritative, sel.ModSeq()) {
		metrics.RecordSynchronize("noop", time.Since(start).Seconds())
		return authoritative, nil
	}

	newState, err := s.materializer.FetchMessages(ctx, sel.ID)
	if err != nil {
		metrics.RecordSynchronize("error", time.Since(start).Seconds())
		return nil, err
	}

	sel.WithLock(func(state *selected.MailboxState) {
		deletions := []types.ImapId(nil)
		if state.NextState != nil {
			deletions = state.NextState.Deletions
		}

		survivors := make(map[uint32]types.ImapId, len(state.IDToImap))
		for id, imapID := range state.IDToImap {
			if _, stillMember := newState.UIDToID[imapID.UID]; !stillMember {
				deletions = append(deletions, imapID)
				delete(state.UIDToID, imapID.UID)
			} else {
				survivors[id] = imapID
			}
		}
		state.IDToImap = survivors

		state.ModSeq = newState.ModSeq
		state.NextState = &selected.PendingTransition{
			NextState: newState,
			Deletions: deletions,
		}
	})

	if s.cache != nil {
		s.cache.Add(sel.ID, newState)
	}

	metrics.RecordSynchronize("changed", time.Since(start).Seconds())
	return authoritative, nil
}

func modSeqEqual(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
