// Package notify renders EXPUNGE/EXISTS from a staged transition and
// commits it, swapping the session's observed snapshot to the one the
// synchronizer materialized.
package notify

import (
	"bytes"
	"context"
	"sort"

	"github.com/fenilsonani/email-server/internal/mailsync/metrics"
	"github.com/fenilsonani/email-server/internal/mailsync/proto"
	"github.com/fenilsonani/email-server/internal/mailsync/selected"
	"github.com/fenilsonani/email-server/internal/mailsync/types"
)

// Synchronizer is the subset of sync.Synchronizer this package needs.
type Synchronizer interface {
	Synchronize(ctx context.Context, sel *selected.SelectedMailbox) (*uint64, error)
}

// Writer flushes a rendered response buffer to the session's network
// stream.
type Writer interface {
	WriteBytes(ctx context.Context, buf []byte) error
}

// Emitter turns a staged PendingTransition into wire-exact EXPUNGE and
// EXISTS output, then commits the transition.
type Emitter struct {
	sync   Synchronizer
	writer Writer
}

// New constructs an Emitter.
func New(sync Synchronizer, writer Writer) *Emitter {
	return &Emitter{sync: sync, writer: writer}
}

// WriteMailboxChanges synchronizes sel, then renders and flushes any
// resulting EXPUNGE/EXISTS notifications. EXPUNGEs are always emitted
// before EXISTS, and both before the reply to the triggering command,
// as IMAP requires.
//
// Deletions are sorted ascending by the field being reported (uid
// under QRESYNC, seqnum otherwise) before rendering: this yields an
// ascending sequence of client-visible seqnums after renumbering, the
// simplest protocol-correct ordering for the non-QRESYNC case (an
// implementation may also emit descending pre-transition order with
// no renumbering; this core picks ascending-with-renumbering).
//
// EXISTS is emitted if any EXPUNGE was emitted, or if the new
// snapshot's uid_max exceeds the old uid_max — i.e. new messages
// arrived — even if nothing was expunged.
func (e *Emitter) WriteMailboxChanges(ctx context.Context, sel *selected.SelectedMailbox, isQResync bool) (*uint64, error) {
	modSeq, err := e.sync.Synchronize(ctx, sel)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	var oldUIDMax uint32

	sel.WithLock(func(state *selected.MailboxState) {
		oldUIDMax = state.UIDMax

		pending := state.NextState
		if pending == nil {
			return
		}
		state.NextState = nil

		if len(pending.Deletions) > 0 {
			ids := renumberedIDs(pending.Deletions, isQResync)
			_ = proto.RenderExpunge(&buf, isQResync, ids)
			metrics.RecordExpunge(len(ids))
		}

		if buf.Len() > 0 || pending.NextState.UIDMax > oldUIDMax {
			_ = proto.RenderExists(&buf, pending.NextState.TotalMessages)
			metrics.RecordExists()
		}

		state.MailboxSnapshot = *pending.NextState.Clone()
	})

	if buf.Len() == 0 {
		return modSeq, nil
	}

	if err := e.writer.WriteBytes(ctx, buf.Bytes()); err != nil {
		return modSeq, err
	}
	return modSeq, nil
}

// renumberedIDs extracts the reported field from each deletion. Under
// QRESYNC, uids are absolute and are simply sorted ascending. In
// seqnum mode, each reported value must reflect the mailbox view as
// of just before that particular expunge: sorting the original
// pre-transition seqnums ascending and then subtracting the count of
// expunges already reported before it (its index in the sorted list)
// yields exactly that — every earlier expunge in ascending order has
// already shifted this one's visible position down by one.
func renumberedIDs(deletions []types.ImapId, isQResync bool) []uint32 {
	if isQResync {
		ids := make([]uint32, len(deletions))
		for i, d := range deletions {
			ids[i] = d.UID
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return ids
	}

	seqNums := make([]uint32, len(deletions))
	for i, d := range deletions {
		seqNums[i] = d.SeqNum
	}
	sort.Slice(seqNums, func(i, j int) bool { return seqNums[i] < seqNums[j] })

	reported := make([]uint32, len(seqNums))
	for i, original := range seqNums {
		reported[i] = original - uint32(i)
	}
	return reported
}
