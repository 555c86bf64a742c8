// Package selected holds per-session, per-selection mailbox state: the
// snapshot a session currently presents to its client, plus any
// transition staged by the synchronizer but not yet announced.
package selected

import (
	"sync"

	"github.com/fenilsonani/email-server/internal/mailsync/types"
)

// PendingTransition is a staged snapshot plus the ordered list of
// deletions the notification emitter must announce before the new
// snapshot becomes visible to the client.
type PendingTransition struct {
	NextState *types.MailboxSnapshot
	Deletions []types.ImapId
}

// MailboxState extends a snapshot with the transition staged for the
// next notification flush. It is never mutated directly by protocol
// command handlers; only the synchronizer and notification emitter
// touch it, and always under SelectedMailbox's lock.
type MailboxState struct {
	types.MailboxSnapshot
	NextState *PendingTransition
}

// SelectedMailbox is the state a session holds for its currently
// selected mailbox, created on SELECT/EXAMINE and dropped on
// CLOSE/UNSELECT/logout.
type SelectedMailbox struct {
	ID types.MailboxId

	mu    sync.Mutex
	state MailboxState

	savedSearchMu sync.Mutex
	savedSearch   []types.ImapId
	hasSavedSearch bool
}

// New creates selection state for a freshly materialized snapshot,
// the state produced by SELECT/EXAMINE.
func New(id types.MailboxId, snapshot *types.MailboxSnapshot) *SelectedMailbox {
	return &SelectedMailbox{
		ID: id,
		state: MailboxState{
			MailboxSnapshot: *snapshot,
		},
	}
}

// WithLock runs fn with the mailbox state lock held. The lock must
// never be held across a store call; callers materialize or
// synchronize first, then call WithLock only to read or mutate the
// already-fetched state.
func (s *SelectedMailbox) WithLock(fn func(state *MailboxState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// Snapshot returns a copy of the currently observed snapshot (not the
// pending one), safe to read without holding the caller's own lock.
func (s *SelectedMailbox) Snapshot() types.MailboxSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.MailboxSnapshot
}

// ModSeq returns the modseq the session currently has recorded.
func (s *SelectedMailbox) ModSeq() *uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ModSeq
}

// SetSavedSearch records the uid-keyed result of the most recent
// SEARCH, referenced by the '$' sequence token. Saved searches are
// keyed by uid rather than seqnum so that intervening renumbering
// does not invalidate them.
func (s *SelectedMailbox) SetSavedSearch(ids []types.ImapId) {
	s.savedSearchMu.Lock()
	defer s.savedSearchMu.Unlock()
	s.savedSearch = append([]types.ImapId(nil), ids...)
	s.hasSavedSearch = true
}

// SavedSearch returns the session's saved search result, or ok=false
// if SetSavedSearch has not been called in this session.
func (s *SelectedMailbox) SavedSearch() (ids []types.ImapId, ok bool) {
	s.savedSearchMu.Lock()
	defer s.savedSearchMu.Unlock()
	if !s.hasSavedSearch {
		return nil, false
	}
	return append([]types.ImapId(nil), s.savedSearch...), true
}

// AppendMessages records messages the same session has just appended
// (via APPEND/COPY/MOVE) into this mailbox. It assigns dense seqnums
// in argument order and updates uid_max/uid_next/total_messages, but
// does not trigger a refetch: it is a privileged, in-order append by
// the originating session. Cross-session appends are picked up by the
// synchronizer on the next command.
//
// The append is applied only if modSeq is strictly greater than the
// snapshot's currently recorded modseq, so a stale append (raced by an
// intervening synchronize) is silently ignored rather than
// double-counted. Returns the snapshot's UIDVALIDITY regardless.
func (s *SelectedMailbox) AppendMessages(newlyAppended []types.AppendedID, modSeq *uint64) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if modSeqValue(modSeq) > modSeqValue(s.state.ModSeq) {
		var uidMax uint32
		for _, appended := range newlyAppended {
			s.state.TotalMessages++
			seqNum := uint32(s.state.TotalMessages)
			if s.state.IDToImap == nil {
				s.state.IDToImap = make(map[uint32]types.ImapId)
			}
			if s.state.UIDToID == nil {
				s.state.UIDToID = make(map[uint32]uint32)
			}
			s.state.IDToImap[appended.ID] = types.ImapId{UID: appended.UID, SeqNum: seqNum}
			s.state.UIDToID[appended.UID] = appended.ID
			// The caller is authoritative on ordering: uid_max takes
			// the last appended uid in argument order, matching the
			// append path's trust in the write path's own ordering
			// rather than re-deriving a max across the whole batch.
			uidMax = appended.UID
		}
		if len(newlyAppended) > 0 {
			s.state.UIDMax = uidMax
			s.state.UIDNext = s.state.UIDMax + 1
		}
	}

	return s.state.UIDValidity
}

func modSeqValue(m *uint64) uint64 {
	if m == nil {
		return 0
	}
	return *m
}
