package notify

import (
	"bytes"
	"context"
	"testing"

	"github.com/fenilsonani/email-server/internal/mailsync/selected"
	"github.com/fenilsonani/email-server/internal/mailsync/types"
)

type fakeSync struct {
	modSeq    *uint64
	err       error
	onCall    func(sel *selected.SelectedMailbox)
}

func (f *fakeSync) Synchronize(ctx context.Context, sel *selected.SelectedMailbox) (*uint64, error) {
	if f.onCall != nil {
		f.onCall(sel)
	}
	return f.modSeq, f.err
}

type bufWriter struct{ buf bytes.Buffer }

func (w *bufWriter) WriteBytes(ctx context.Context, b []byte) error {
	w.buf.Write(b)
	return nil
}

func u64(v uint64) *uint64 { return &v }

func stageTransition(sel *selected.SelectedMailbox, next *types.MailboxSnapshot, deletions []types.ImapId) {
	sel.WithLock(func(s *selected.MailboxState) {
		s.NextState = &selected.PendingTransition{NextState: next, Deletions: deletions}
	})
}

// TestWriteMailboxChanges_AllFourCollapseToSeqnumOne reproduces the
// MOVE-of-everything scenario: four messages at seqnums 1..4 are all
// expunged in the same transition, and ascending renumbering collapses
// all four reported seqnums to 1.
func TestWriteMailboxChanges_AllFourCollapseToSeqnumOne(t *testing.T) {
	old := types.NewEmptySnapshot(1, u64(1))
	for i, uid := range []uint32{1, 2, 3, 4} {
		old.IDToImap[uid] = types.ImapId{UID: uid, SeqNum: uint32(i + 1)}
		old.UIDToID[uid] = uid
	}
	old.TotalMessages = 4
	old.UIDMax = 4
	old.UIDNext = 5

	sel := selected.New(types.MailboxId{AccountID: 1, MailboxID: 1}, old)

	next := types.NewEmptySnapshot(1, u64(2))
	next.TotalMessages = 0
	next.UIDMax = 4
	next.UIDNext = 5

	deletions := []types.ImapId{
		{UID: 1, SeqNum: 1}, {UID: 2, SeqNum: 2}, {UID: 3, SeqNum: 3}, {UID: 4, SeqNum: 4},
	}
	stageTransition(sel, next, deletions)

	w := &bufWriter{}
	emitter := New(&fakeSync{modSeq: u64(2)}, w)

	if _, err := emitter.WriteMailboxChanges(context.Background(), sel, false); err != nil {
		t.Fatalf("WriteMailboxChanges: %v", err)
	}

	want := "* 1 EXPUNGE\r\n* 1 EXPUNGE\r\n* 1 EXPUNGE\r\n* 1 EXPUNGE\r\n* 0 EXISTS\r\n"
	if w.buf.String() != want {
		t.Fatalf("got %q, want %q", w.buf.String(), want)
	}
}

func TestWriteMailboxChanges_QResyncEmitsVanishedUids(t *testing.T) {
	old := types.NewEmptySnapshot(1, u64(1))
	old.IDToImap[1] = types.ImapId{UID: 5, SeqNum: 1}
	old.IDToImap[2] = types.ImapId{UID: 9, SeqNum: 2}
	old.UIDToID[5] = 1
	old.UIDToID[9] = 2
	old.TotalMessages = 2
	old.UIDMax = 9
	old.UIDNext = 10

	sel := selected.New(types.MailboxId{AccountID: 1, MailboxID: 1}, old)

	next := types.NewEmptySnapshot(1, u64(2))
	next.IDToImap[1] = types.ImapId{UID: 5, SeqNum: 1}
	next.UIDToID[5] = 1
	next.TotalMessages = 1
	next.UIDMax = 9
	next.UIDNext = 10

	stageTransition(sel, next, []types.ImapId{{UID: 9, SeqNum: 2}})

	w := &bufWriter{}
	emitter := New(&fakeSync{modSeq: u64(2)}, w)

	if _, err := emitter.WriteMailboxChanges(context.Background(), sel, true); err != nil {
		t.Fatalf("WriteMailboxChanges: %v", err)
	}

	want := "* VANISHED 9\r\n* 1 EXISTS\r\n"
	if w.buf.String() != want {
		t.Fatalf("got %q, want %q", w.buf.String(), want)
	}
}

func TestWriteMailboxChanges_ExistsOnNewMessagesWithNoExpunge(t *testing.T) {
	old := types.NewEmptySnapshot(1, u64(1))
	old.TotalMessages = 0
	old.UIDMax = 0
	old.UIDNext = 1

	sel := selected.New(types.MailboxId{AccountID: 1, MailboxID: 1}, old)

	next := types.NewEmptySnapshot(1, u64(2))
	next.IDToImap[1] = types.ImapId{UID: 1, SeqNum: 1}
	next.UIDToID[1] = 1
	next.TotalMessages = 1
	next.UIDMax = 1
	next.UIDNext = 2

	stageTransition(sel, next, nil)

	w := &bufWriter{}
	emitter := New(&fakeSync{modSeq: u64(2)}, w)

	if _, err := emitter.WriteMailboxChanges(context.Background(), sel, false); err != nil {
		t.Fatalf("WriteMailboxChanges: %v", err)
	}

	if w.buf.String() != "* 1 EXISTS\r\n" {
		t.Fatalf("got %q, want EXISTS-only output", w.buf.String())
	}
}

func TestWriteMailboxChanges_NoPendingTransitionIsNoop(t *testing.T) {
	old := types.NewEmptySnapshot(1, u64(1))
	sel := selected.New(types.MailboxId{AccountID: 1, MailboxID: 1}, old)

	w := &bufWriter{}
	emitter := New(&fakeSync{modSeq: u64(1)}, w)

	if _, err := emitter.WriteMailboxChanges(context.Background(), sel, false); err != nil {
		t.Fatalf("WriteMailboxChanges: %v", err)
	}
	if w.buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", w.buf.String())
	}
}

func TestWriteMailboxChanges_CommitsStagedSnapshotAndClearsPending(t *testing.T) {
	old := types.NewEmptySnapshot(1, u64(1))
	sel := selected.New(types.MailboxId{AccountID: 1, MailboxID: 1}, old)

	next := types.NewEmptySnapshot(1, u64(2))
	next.TotalMessages = 3
	stageTransition(sel, next, nil)

	w := &bufWriter{}
	emitter := New(&fakeSync{modSeq: u64(2)}, w)
	if _, err := emitter.WriteMailboxChanges(context.Background(), sel, false); err != nil {
		t.Fatalf("WriteMailboxChanges: %v", err)
	}

	var hasPending bool
	sel.WithLock(func(s *selected.MailboxState) { hasPending = s.NextState != nil })
	if hasPending {
		t.Error("expected pending transition to be cleared after emission")
	}
	if got := sel.Snapshot(); got.TotalMessages != 3 {
		t.Errorf("expected committed snapshot, total_messages = %d, want 3", got.TotalMessages)
	}
}
