package sequence

import (
	"reflect"
	"testing"

	"github.com/fenilsonani/email-server/internal/mailsync/selected"
	"github.com/fenilsonani/email-server/internal/mailsync/types"
)

func TestSequence_ContainsWithWildcard(t *testing.T) {
	seq := New(Range{Start: 5, End: 0}) // "5:*"
	if !seq.Contains(5, 10) || !seq.Contains(10, 10) {
		t.Error("expected 5 and 10 to be contained in 5:* with max=10")
	}
	if seq.Contains(4, 10) {
		t.Error("expected 4 to be outside 5:* with max=10")
	}
}

func TestSequence_Expand_DedupesAndSorts(t *testing.T) {
	seq := New(Range{Start: 1, End: 3}, Range{Start: 2, End: 4})
	got := seq.Expand(10)
	want := []uint32{1, 2, 3, 4}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func buildSelected() *selected.SelectedMailbox {
	snap := types.NewEmptySnapshot(1, nil)
	snap.IDToImap[10] = types.ImapId{UID: 1, SeqNum: 1}
	snap.IDToImap[11] = types.ImapId{UID: 2, SeqNum: 2}
	snap.IDToImap[12] = types.ImapId{UID: 5, SeqNum: 3}
	snap.UIDToID[1] = 10
	snap.UIDToID[2] = 11
	snap.UIDToID[5] = 12
	snap.TotalMessages = 3
	snap.UIDMax = 5
	snap.UIDNext = 6
	return selected.New(types.MailboxId{AccountID: 1, MailboxID: 1}, snap)
}

func TestResolver_SequenceToIDs_ByUID(t *testing.T) {
	sel := buildSelected()
	r := NewResolver(sel)

	ids, err := r.SequenceToIDs(New(Range{Start: 1, End: 2}), true)
	if err != nil {
		t.Fatalf("SequenceToIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}
	if _, ok := ids[10]; !ok {
		t.Error("expected message 10 (uid 1) to match")
	}
	if _, ok := ids[11]; !ok {
		t.Error("expected message 11 (uid 2) to match")
	}
}

func TestResolver_SequenceToIDs_BySeqNum(t *testing.T) {
	sel := buildSelected()
	r := NewResolver(sel)

	ids, err := r.SequenceToIDs(New(Range{Start: 3, End: 0}), false) // "3:*"
	if err != nil {
		t.Fatalf("SequenceToIDs: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("got %d ids, want 1", len(ids))
	}
	if _, ok := ids[12]; !ok {
		t.Error("expected message 12 (seqnum 3) to match")
	}
}

func TestResolver_SequenceToIDs_EmptyMailbox(t *testing.T) {
	sel := selected.New(types.MailboxId{}, types.NewEmptySnapshot(1, nil))
	r := NewResolver(sel)

	ids, err := r.SequenceToIDs(New(Range{Start: 1, End: 0}), true)
	if err != nil {
		t.Fatalf("SequenceToIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty result for empty mailbox, got %v", ids)
	}
}

func TestResolver_SequenceToIDs_SavedSearchNoneRecorded(t *testing.T) {
	sel := buildSelected()
	r := NewResolver(sel)

	_, err := r.SequenceToIDs(SavedSearch(), true)
	if err != types.ErrNoSavedSearch {
		t.Fatalf("err = %v, want ErrNoSavedSearch", err)
	}
}

func TestResolver_SequenceToIDs_SavedSearchSurvivesRenumbering(t *testing.T) {
	sel := buildSelected()
	sel.SetSavedSearch([]types.ImapId{{UID: 5, SeqNum: 3}})
	r := NewResolver(sel)

	ids, err := r.SequenceToIDs(SavedSearch(), true)
	if err != nil {
		t.Fatalf("SequenceToIDs: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("got %d ids, want 1", len(ids))
	}
	if _, ok := ids[12]; !ok {
		t.Error("expected saved-search uid 5 to resolve to message 12 via uid_to_id")
	}
}

func TestResolver_SequenceExpandMissing_UID(t *testing.T) {
	sel := buildSelected()
	r := NewResolver(sel)

	missing := r.SequenceExpandMissing(New(Range{Start: 1, End: 6}), true)
	want := []uint32{3, 4, 6}
	if !reflect.DeepEqual(missing, want) {
		t.Fatalf("got %v, want %v", missing, want)
	}
}

func TestResolver_SequenceExpandMissing_SeqNumAboveTotal(t *testing.T) {
	sel := buildSelected()
	r := NewResolver(sel)

	missing := r.SequenceExpandMissing(New(Range{Start: 1, End: 5}), false)
	want := []uint32{4, 5}
	if !reflect.DeepEqual(missing, want) {
		t.Fatalf("got %v, want %v", missing, want)
	}
}
