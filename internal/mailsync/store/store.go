// Package store provides the transactional key-value read primitives
// the mailbox synchronization core is built on: chunked value reads,
// bitmap reads, range iteration, and counter reads, all running under
// a cached read version so that a burst of reads inside one operation
// does not pay for a fresh version on every call.
package store

import (
	"context"
	"encoding/binary"

	"github.com/RoaringBitmap/roaring"
)

// U32Len is the width in bytes of a serialized uint32 document id,
// used when decoding the trailing key suffix of a bitmap range scan.
const U32Len = 4

// Key is anything that serializes to the bytes used as a store key.
// Implementations live alongside the collection they address
// (mailboxes, messages, counters); this package only needs the
// serialized form.
type Key interface {
	Serialize() []byte
}

// RawKey is a Key that is already serialized.
type RawKey []byte

// Serialize implements Key.
func (k RawKey) Serialize() []byte { return []byte(k) }

// BitmapKey addresses a membership bitmap subspace: the range
// [base, base-with-document-id=0xFFFFFFFF) holds one key per member,
// with the member's document id packed as a big-endian uint32 suffix.
type BitmapKey struct {
	Base []byte
}

// Range returns the inclusive-begin/exclusive-end byte bounds of the
// bitmap's subspace.
func (k BitmapKey) Range() (begin, end []byte) {
	begin = k.Base
	end = make([]byte, len(k.Base)+U32Len)
	copy(end, k.Base)
	for i := len(k.Base); i < len(end); i++ {
		end[i] = 0xFF
	}
	return begin, end
}

// IterateParams describes one range scan.
type IterateParams struct {
	Begin      Key
	End        Key
	Ascending  bool
	FirstOnly  bool // limit to a small streaming window, exit after first delivered pair
}

// Deserializer decodes a single logical value read by GetValue. It is
// implemented by the concrete value types the materializer needs
// (UIDVALIDITY records, MailboxIds membership lists, ...).
type Deserializer interface {
	DeserializeValue(b []byte) error
}

// Trx is a snapshot-consistent read transaction pinned to a cached
// read version; it has no methods of its own because all reads in
// this core go through Adapter, but it is returned so callers can
// scope multiple reads to one version when that matters.
type Trx interface {
	Version() int64
}

// Adapter is the store-facing contract the materializer is built on.
// A single implementation, MemoryAdapter, backs tests; RedisAdapter
// backs a real deployment.
type Adapter interface {
	// GetValue reads one logical value, transparently reassembling a
	// chunked payload. Returns found=false if the key is absent.
	GetValue(ctx context.Context, key Key, out Deserializer) (found bool, err error)

	// GetBitmap range-scans a bitmap subspace and decodes it into a
	// roaring bitmap. Returns nil if the bitmap is empty.
	GetBitmap(ctx context.Context, key BitmapKey) (*roaring.Bitmap, error)

	// Iterate delivers (key-without-subspace-prefix, value) pairs to
	// cb in the requested order; cb returns false to stop early.
	Iterate(ctx context.Context, params IterateParams, cb func(key, value []byte) (bool, error)) error

	// GetCounter reads a little-endian signed 64-bit counter. Absence
	// returns 0, not an error.
	GetCounter(ctx context.Context, key Key) (int64, error)

	// ReadTrx opens a read transaction pinned to the adapter's cached
	// read version, refreshing it first if expired.
	ReadTrx(ctx context.Context) (Trx, error)
}

// DeserializeI64LE decodes a little-endian signed 64-bit counter,
// matching the store's literal counter encoding.
func DeserializeI64LE(b []byte) (int64, error) {
	if len(b) < 8 {
		var padded [8]byte
		copy(padded[:], b)
		return int64(binary.LittleEndian.Uint64(padded[:])), nil
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}
