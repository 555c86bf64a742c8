package materializer

import (
	"context"
	"errors"
	"testing"

	"github.com/fenilsonani/email-server/internal/mailsync/types"
)

type fakeStore struct {
	tag         []uint32
	tagErr      error
	cid         uint32
	cidOK       bool
	cidErr      error
	changeID    *uint64
	changeIDErr error
	memberships map[uint32][]types.UidMailbox
	membersErr  error

	conflictsLeft int
}

func (f *fakeStore) GetTag(ctx context.Context, accountID, mailboxID uint32) ([]uint32, error) {
	return f.tag, f.tagErr
}

func (f *fakeStore) GetMailboxCid(ctx context.Context, accountID, mailboxID uint32) (uint32, bool, error) {
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return 0, false, types.ErrRetryableConflict
	}
	return f.cid, f.cidOK, f.cidErr
}

func (f *fakeStore) GetMailboxIDsBatch(ctx context.Context, accountID uint32, messageIDs []uint32) (map[uint32][]types.UidMailbox, error) {
	return f.memberships, f.membersErr
}

func (f *fakeStore) GetLastChangeID(ctx context.Context, accountID uint32) (*uint64, error) {
	return f.changeID, f.changeIDErr
}

func u64(v uint64) *uint64 { return &v }

func TestFetchMessages_BuildsDenseSnapshot(t *testing.T) {
	fs := &fakeStore{
		tag:      []uint32{10, 11, 12},
		cid:      7,
		cidOK:    true,
		changeID: u64(100),
		memberships: map[uint32][]types.UidMailbox{
			10: {{MailboxID: 1, UID: 5}},
			11: {{MailboxID: 1, UID: 3}, {MailboxID: 2, UID: 99}},
			12: {{MailboxID: 1, UID: 8}},
		},
	}
	m := New(fs, nil)

	snap, err := m.FetchMessages(context.Background(), types.MailboxId{AccountID: 1, MailboxID: 1})
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}

	if snap.UIDValidity != 7 {
		t.Errorf("uid_validity = %d, want 7", snap.UIDValidity)
	}
	if snap.ModSeq == nil || *snap.ModSeq != 100 {
		t.Errorf("modseq = %v, want 100", snap.ModSeq)
	}
	if snap.TotalMessages != 3 {
		t.Errorf("total_messages = %d, want 3", snap.TotalMessages)
	}
	if snap.UIDMax != 8 {
		t.Errorf("uid_max = %d, want 8", snap.UIDMax)
	}
	if snap.UIDNext != 9 {
		t.Errorf("uid_next = %d, want 9", snap.UIDNext)
	}

	// Ascending-uid order: uid 3 -> seq 1, uid 5 -> seq 2, uid 8 -> seq 3.
	want := map[uint32]types.ImapId{
		11: {UID: 3, SeqNum: 1},
		10: {UID: 5, SeqNum: 2},
		12: {UID: 8, SeqNum: 3},
	}
	for id, imapID := range want {
		got, ok := snap.IDToImap[id]
		if !ok || got != imapID {
			t.Errorf("id_to_imap[%d] = %+v, want %+v", id, got, imapID)
		}
	}
	for uid, id := range map[uint32]uint32{3: 11, 5: 10, 8: 12} {
		if got := snap.UIDToID[uid]; got != id {
			t.Errorf("uid_to_id[%d] = %d, want %d", uid, got, id)
		}
	}
}

func TestFetchMessages_EmptyMailbox(t *testing.T) {
	fs := &fakeStore{cid: 3, cidOK: true}
	m := New(fs, nil)

	snap, err := m.FetchMessages(context.Background(), types.MailboxId{AccountID: 1, MailboxID: 2})
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if snap.TotalMessages != 0 || snap.UIDMax != 0 || snap.UIDNext != 1 {
		t.Errorf("unexpected empty snapshot: %+v", snap)
	}
}

func TestFetchMessages_DuplicateUIDIsSkippedNotRaised(t *testing.T) {
	fs := &fakeStore{
		tag:   []uint32{1, 2},
		cid:   1,
		cidOK: true,
		memberships: map[uint32][]types.UidMailbox{
			1: {{MailboxID: 1, UID: 5}},
			2: {{MailboxID: 1, UID: 5}}, // duplicate uid
		},
	}
	m := New(fs, nil)

	snap, err := m.FetchMessages(context.Background(), types.MailboxId{AccountID: 1, MailboxID: 1})
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if snap.TotalMessages != 1 {
		t.Fatalf("total_messages = %d, want 1 (duplicate kept first, not both)", snap.TotalMessages)
	}
}

func TestFetchMessages_MissingUidValidity(t *testing.T) {
	fs := &fakeStore{cidOK: false}
	m := New(fs, nil)

	_, err := m.FetchMessages(context.Background(), types.MailboxId{AccountID: 1, MailboxID: 1})
	if !errors.Is(err, types.ErrMailboxUnavailable) {
		t.Fatalf("err = %v, want ErrMailboxUnavailable", err)
	}
}

func TestFetchMessages_RetriesOnTransientConflict(t *testing.T) {
	fs := &fakeStore{cid: 1, cidOK: true, conflictsLeft: 3}
	m := New(fs, nil)
	m.sleep = func(int) {} // don't actually sleep in tests

	snap, err := m.FetchMessages(context.Background(), types.MailboxId{AccountID: 1, MailboxID: 1})
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if snap.UIDValidity != 1 {
		t.Errorf("expected successful fetch after retries")
	}
}

func TestFetchMessages_ExhaustsRetryBudget(t *testing.T) {
	fs := &fakeStore{cid: 1, cidOK: true, conflictsLeft: MaxRetries + 5}
	m := New(fs, nil)
	m.sleep = func(int) {}

	_, err := m.FetchMessages(context.Background(), types.MailboxId{AccountID: 1, MailboxID: 1})
	if !errors.Is(err, types.ErrDatabaseFailure) {
		t.Fatalf("err = %v, want ErrDatabaseFailure after exhausting retries", err)
	}
}

func TestFetchMessages_TagReadFailureIsDatabaseFailure(t *testing.T) {
	fs := &fakeStore{tagErr: errors.New("boom")}
	m := New(fs, nil)

	_, err := m.FetchMessages(context.Background(), types.MailboxId{AccountID: 1, MailboxID: 1})
	if !errors.Is(err, types.ErrDatabaseFailure) {
		t.Fatalf("err = %v, want ErrDatabaseFailure", err)
	}
}
