package sequence

import (
	"sort"

	"github.com/fenilsonani/email-server/internal/mailsync/selected"
	"github.com/fenilsonani/email-server/internal/mailsync/types"
)

// Resolver translates Sequences into message identifiers over a
// session's current mailbox state.
type Resolver struct {
	sel *selected.SelectedMailbox
}

// NewResolver constructs a Resolver bound to a session's selected
// mailbox.
func NewResolver(sel *selected.SelectedMailbox) *Resolver {
	return &Resolver{sel: sel}
}

// SequenceToIDs resolves seq to the message ids it denotes, keyed by
// message id and mapped to the ImapId the session currently presents
// for it.
//
// A non-saved-search sequence is matched against the session's
// current id_to_imap directly. A saved-search sequence ('$') is
// resolved through the session's uid-keyed saved search result so
// that intervening renumbering does not invalidate it; ErrNoSavedSearch
// is returned if no search result has been saved in this session.
func (r *Resolver) SequenceToIDs(seq Sequence, isUID bool) (map[uint32]types.ImapId, error) {
	if !seq.IsSavedSearch() {
		state := r.sel.Snapshot()
		ids := make(map[uint32]types.ImapId)
		if state.TotalMessages == 0 {
			return ids, nil
		}
		for id, imapID := range state.IDToImap {
			var match bool
			if isUID {
				match = seq.Contains(imapID.UID, state.UIDMax)
			} else {
				match = seq.Contains(imapID.SeqNum, uint32(state.TotalMessages))
			}
			if match {
				ids[id] = imapID
			}
		}
		return ids, nil
	}

	saved, ok := r.sel.SavedSearch()
	if !ok {
		return nil, types.ErrNoSavedSearch
	}
	state := r.sel.Snapshot()
	ids := make(map[uint32]types.ImapId, len(saved))
	for _, imapID := range saved {
		if id, ok := state.UIDToID[imapID.UID]; ok {
			ids[id] = imapID
		}
	}
	return ids, nil
}

// SequenceExpandMissing returns, in ascending order with duplicates
// suppressed, every element of seq's expansion that is not present in
// the current state: used for UID EXPUNGE and similar commands that
// must report non-existent members to the client. For seqnum mode any
// value above total_messages is reported missing.
func (r *Resolver) SequenceExpandMissing(seq Sequence, isUID bool) []uint32 {
	state := r.sel.Snapshot()
	var missing []uint32

	if !seq.IsSavedSearch() {
		if isUID {
			for _, uid := range seq.Expand(state.UIDMax) {
				if _, ok := state.UIDToID[uid]; !ok {
					missing = append(missing, uid)
				}
			}
		} else {
			for _, seqNum := range seq.Expand(uint32(state.TotalMessages)) {
				if seqNum > uint32(state.TotalMessages) {
					missing = append(missing, seqNum)
				}
			}
		}
	} else if saved, ok := r.sel.SavedSearch(); ok {
		for _, imapID := range saved {
			if _, ok := state.UIDToID[imapID.UID]; !ok {
				if isUID {
					missing = append(missing, imapID.UID)
				} else {
					missing = append(missing, imapID.SeqNum)
				}
			}
		}
	}

	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return dedupe(missing)
}

func dedupe(sorted []uint32) []uint32 {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
