// Package types holds the shared data model of the mailbox
// synchronization core: mailbox/message identity and the materialized
// per-mailbox snapshot that projects the object store's unordered
// membership into IMAP's ordered UID/sequence-number view.
package types

// MailboxId identifies a mailbox within a tenant (account).
type MailboxId struct {
	AccountID uint32
	MailboxID uint32
}

// ImapId projects a durable message identifier into IMAP's two
// addressing modes. UID is stable across the lifetime of UIDVALIDITY;
// SeqNum is a 1-based dense index valid only relative to a specific
// snapshot.
type ImapId struct {
	UID    uint32
	SeqNum uint32
}

// UidMailbox is the store-side record stating that a message is a
// member of a mailbox with an assigned UID. UID zero is reserved as
// "unassigned" and must never appear in a materialized snapshot.
type UidMailbox struct {
	MailboxID uint32
	UID       uint32
}

// AppendedID is one entry of a privileged, same-session append: the
// store-assigned message id paired with the UID the write path already
// committed for it.
type AppendedID struct {
	ID  uint32
	UID uint32
}

// MailboxSnapshot is the materialized view of a mailbox at one
// instant. IDToImap and UIDToID are mutual inverses on the UID
// coordinate; listing IDToImap in ascending-UID order yields SeqNum
// values 1..=TotalMessages; UIDMax is zero iff the mailbox is empty;
// no UID is ever zero.
type MailboxSnapshot struct {
	UIDValidity   uint32
	ModSeq        *uint64
	UIDNext       uint32
	UIDMax        uint32
	TotalMessages int
	IDToImap      map[uint32]ImapId
	UIDToID       map[uint32]uint32
}

// NewEmptySnapshot returns the snapshot of a mailbox with no members,
// carrying the given UIDVALIDITY and modseq.
func NewEmptySnapshot(uidValidity uint32, modSeq *uint64) *MailboxSnapshot {
	return &MailboxSnapshot{
		UIDValidity: uidValidity,
		ModSeq:      modSeq,
		UIDNext:     1,
		IDToImap:    make(map[uint32]ImapId),
		UIDToID:     make(map[uint32]uint32),
	}
}

// Clone returns a deep copy safe for independent mutation: the
// mailbox-level cache and each session both hold their own snapshot,
// and the cache's copy must never be mutated by a session.
func (s *MailboxSnapshot) Clone() *MailboxSnapshot {
	if s == nil {
		return nil
	}
	out := &MailboxSnapshot{
		UIDValidity:   s.UIDValidity,
		UIDNext:       s.UIDNext,
		UIDMax:        s.UIDMax,
		TotalMessages: s.TotalMessages,
		IDToImap:      make(map[uint32]ImapId, len(s.IDToImap)),
		UIDToID:       make(map[uint32]uint32, len(s.UIDToID)),
	}
	if s.ModSeq != nil {
		modSeq := *s.ModSeq
		out.ModSeq = &modSeq
	}
	for id, imapID := range s.IDToImap {
		out.IDToImap[id] = imapID
	}
	for uid, id := range s.UIDToID {
		out.UIDToID[uid] = id
	}
	return out
}

// MailboxStatusView is the small set of fields the protocol layer
// reads off a snapshot for STATUS/SELECT responses, kept separate
// from MailboxSnapshot so command code never reaches into the maps
// directly.
type MailboxStatusView struct {
	Messages    int
	UIDNext     uint32
	UIDValidity uint32
}

// Status derives the STATUS-response view of a snapshot.
func (s *MailboxSnapshot) Status() MailboxStatusView {
	return MailboxStatusView{
		Messages:    s.TotalMessages,
		UIDNext:     s.UIDNext,
		UIDValidity: s.UIDValidity,
	}
}
