package materializer

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fenilsonani/email-server/internal/mailsync/metrics"
	"github.com/fenilsonani/email-server/internal/mailsync/types"
)

// MaxRetries bounds how many times FetchMessages will retry a store
// operation that reports a transient, retryable conflict before
// escalating to ErrDatabaseFailure.
const MaxRetries = 10

// Materializer builds MailboxSnapshots from a JMAPStore.
type Materializer struct {
	store  JMAPStore
	log    *slog.Logger
	sleep  func(attempt int)
}

// New constructs a Materializer. log may be nil, in which case a
// disabled logger is used.
func New(store JMAPStore, log *slog.Logger) *Materializer {
	if log == nil {
		log = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	return &Materializer{
		store: store,
		log:   log,
		sleep: func(attempt int) {
			time.Sleep(time.Duration(attempt) * 5 * time.Millisecond)
		},
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// FetchMessages builds a MailboxSnapshot for mailbox by reading its
// membership bitmap, UIDVALIDITY, the account's latest change id, and
// each member's MailboxIds property, then assigning dense sequence
// numbers in ascending-UID order.
//
// Reading the change id (step 3) strictly before the membership data
// it labels (step 4) is deliberate: if a write races this read, the
// modseq recorded here undercounts the data actually observed, so a
// subsequent synchronize_messages call will see a strictly greater
// modseq and redo the snapshot rather than silently miss the write.
func (m *Materializer) FetchMessages(ctx context.Context, mailbox types.MailboxId) (*types.MailboxSnapshot, error) {
	start := time.Now()
	requestID := uuid.NewString()
	var snapshot *types.MailboxSnapshot
	var lastErr error

	for attempt := 0; attempt < MaxRetries; attempt++ {
		snapshot, lastErr = m.fetchOnce(ctx, mailbox)
		if lastErr == nil {
			metrics.RecordMaterialize(time.Since(start).Seconds())
			return snapshot, nil
		}
		if !errors.Is(lastErr, types.ErrRetryableConflict) {
			metrics.RecordMaterialize(time.Since(start).Seconds())
			return nil, lastErr
		}
		metrics.RecordMaterializeRetry()
		m.log.Warn("mailsync: retrying materialization after transient conflict",
			slog.String("request_id", requestID),
			slog.Int("attempt", attempt+1),
			slog.Uint64("account_id", uint64(mailbox.AccountID)),
			slog.Uint64("mailbox_id", uint64(mailbox.MailboxID)))
		m.sleep(attempt + 1)
	}

	metrics.RecordMaterialize(time.Since(start).Seconds())
	m.log.Error("mailsync: materialization exhausted retry budget",
		slog.String("request_id", requestID),
		slog.Uint64("account_id", uint64(mailbox.AccountID)),
		slog.Uint64("mailbox_id", uint64(mailbox.MailboxID)),
		slog.Any("error", lastErr))
	return nil, types.ErrDatabaseFailure
}

func (m *Materializer) fetchOnce(ctx context.Context, mailbox types.MailboxId) (*types.MailboxSnapshot, error) {
	messageIDs, err := m.store.GetTag(ctx, mailbox.AccountID, mailbox.MailboxID)
	if err != nil {
		m.log.Error("mailsync: failed to read membership tag",
			slog.Uint64("account_id", uint64(mailbox.AccountID)),
			slog.Uint64("mailbox_id", uint64(mailbox.MailboxID)),
			slog.Any("error", err))
		return nil, errors.Join(types.ErrDatabaseFailure, err)
	}

	cid, ok, err := m.store.GetMailboxCid(ctx, mailbox.AccountID, mailbox.MailboxID)
	if errors.Is(err, types.ErrRetryableConflict) {
		return nil, err
	}
	if err != nil {
		m.log.Error("mailsync: failed to read uid validity",
			slog.Uint64("account_id", uint64(mailbox.AccountID)),
			slog.Uint64("mailbox_id", uint64(mailbox.MailboxID)),
			slog.Any("error", err))
		return nil, errors.Join(types.ErrDatabaseFailure, err)
	}
	if !ok {
		m.log.Debug("mailsync: failed to obtain uid validity",
			slog.Uint64("account_id", uint64(mailbox.AccountID)),
			slog.Uint64("mailbox_id", uint64(mailbox.MailboxID)))
		return nil, types.ErrMailboxUnavailable
	}

	modSeq, err := m.store.GetLastChangeID(ctx, mailbox.AccountID)
	if err != nil {
		m.log.Error("mailsync: failed to obtain state",
			slog.Uint64("account_id", uint64(mailbox.AccountID)),
			slog.Any("error", err))
		return nil, errors.Join(types.ErrDatabaseFailure, err)
	}

	if len(messageIDs) == 0 {
		return types.NewEmptySnapshot(cid, modSeq), nil
	}

	memberships, err := m.store.GetMailboxIDsBatch(ctx, mailbox.AccountID, messageIDs)
	if err != nil {
		return nil, errors.Join(types.ErrDatabaseFailure, err)
	}

	uidMap := make(map[uint32]uint32, len(messageIDs)) // uid -> message_id
	for _, messageID := range messageIDs {
		for _, item := range memberships[messageID] {
			if item.MailboxID != mailbox.MailboxID {
				continue
			}
			if item.UID == 0 {
				// Assertion in the spec: uid == 0 must never appear
				// in a materialized snapshot. A zero UID here
				// indicates store-side corruption upstream of this
				// core; skip rather than poison the snapshot.
				m.log.Warn("mailsync: zero uid for message",
					slog.Uint64("message_id", uint64(messageID)),
					slog.Uint64("mailbox_id", uint64(mailbox.MailboxID)))
				continue
			}
			if _, dup := uidMap[item.UID]; dup {
				m.log.Warn("mailsync: duplicate uid",
					slog.Uint64("account_id", uint64(mailbox.AccountID)),
					slog.Uint64("mailbox_id", uint64(mailbox.MailboxID)),
					slog.Uint64("message_id", uint64(messageID)),
					slog.Uint64("uid", uint64(item.UID)))
				continue
			}
			uidMap[item.UID] = messageID
			break
		}
	}

	uids := make([]uint32, 0, len(uidMap))
	for uid := range uidMap {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	idToImap := make(map[uint32]types.ImapId, len(uids))
	uidToID := make(map[uint32]uint32, len(uids))
	var uidMax uint32
	for i, uid := range uids {
		messageID := uidMap[uid]
		seqNum := uint32(i + 1)
		idToImap[messageID] = types.ImapId{UID: uid, SeqNum: seqNum}
		uidToID[uid] = messageID
		if uid > uidMax {
			uidMax = uid
		}
	}

	return &types.MailboxSnapshot{
		UIDValidity:   cid,
		ModSeq:        modSeq,
		UIDNext:       uidMax + 1,
		UIDMax:        uidMax,
		TotalMessages: len(idToImap),
		IDToImap:      idToImap,
		UIDToID:       uidToID,
	}, nil
}
