package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/sync/singleflight"
)

// MemoryAdapter is an in-process Adapter backed by plain maps, used
// by this package's deterministic unit tests; it implements the same
// chunking and read-version-caching contract a real backend must.
type MemoryAdapter struct {
	mu     sync.RWMutex
	values map[string][]byte
	chunks map[string][][]byte // secondary chunks, keyed by primary key
	counters map[string]int64

	version      readVersion
	versionGroup singleflight.Group
	versionTTL   time.Duration
	now          func() time.Time
}

type readVersion struct {
	mu      sync.Mutex
	value   int64
	issued  time.Time
}

func (v *readVersion) snapshot() (int64, time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value, v.issued
}

func (v *readVersion) set(value int64, issued time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = value
	v.issued = issued
}

// memTrx implements Trx for MemoryAdapter.
type memTrx struct{ version int64 }

func (t memTrx) Version() int64 { return t.version }

// NewMemoryAdapter constructs an empty adapter. versionTTL is the
// cached-read-version expiry (store.read_version_expiry_ms).
func NewMemoryAdapter(versionTTL time.Duration) *MemoryAdapter {
	return &MemoryAdapter{
		values:     make(map[string][]byte),
		chunks:     make(map[string][][]byte),
		counters:   make(map[string]int64),
		versionTTL: versionTTL,
		now:        time.Now,
	}
}

// SetValue stores a raw value directly, bypassing chunking; used by
// tests to seed fixtures.
func (m *MemoryAdapter) SetValue(key []byte, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[string(key)] = append([]byte(nil), value...)
}

// SetBitmapMembers sets the membership bitmap at key to exactly the
// given document ids, encoding one key per member as the real backend
// does.
func (m *MemoryAdapter) SetBitmapMembers(key BitmapKey, members []uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Clear any previous members under this base.
	prefix := string(key.Base)
	for k := range m.values {
		if len(k) == len(prefix)+U32Len && k[:len(prefix)] == prefix {
			delete(m.values, k)
		}
	}
	for _, id := range members {
		suffix := serializeBEU32(id)
		m.values[prefix+string(suffix)] = []byte{1}
	}
}

// SetCounter sets a counter's value directly.
func (m *MemoryAdapter) SetCounter(key []byte, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[string(key)] = value
}

// IncrCounter atomically increments a counter and returns the new
// value, used by tests to simulate the object store advancing modseq.
func (m *MemoryAdapter) IncrCounter(key []byte, delta int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.counters[string(key)] + delta
	m.counters[string(key)] = v
	return v
}

func serializeBEU32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func deserializeBEU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// MaxValueSize is the chunking threshold; values at or above this size
// are split across numbered continuation keys.
const MaxValueSize = 100_000

func (m *MemoryAdapter) GetValue(ctx context.Context, key Key, out Deserializer) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	primary, ok := m.values[string(key.Serialize())]
	if !ok {
		return false, nil
	}
	if len(primary) < MaxValueSize {
		if err := out.DeserializeValue(primary); err != nil {
			return false, err
		}
		return true, nil
	}

	value := append([]byte(nil), primary...)
	chunkKey := append(key.Serialize(), 0)
	for {
		next, ok := m.values[string(chunkKey)]
		if !ok {
			break
		}
		value = append(value, next...)
		chunkKey[len(chunkKey)-1]++
	}
	if err := out.DeserializeValue(value); err != nil {
		return false, err
	}
	return true, nil
}

func (m *MemoryAdapter) GetBitmap(ctx context.Context, key BitmapKey) (*roaring.Bitmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	begin, end := key.Range()
	m.mu.RLock()
	defer m.mu.RUnlock()

	bm := roaring.New()
	keyLen := len(begin)
	for k := range m.values {
		kb := []byte(k)
		if bytes.Compare(kb, begin) < 0 || bytes.Compare(kb, end) > 0 {
			continue
		}
		if len(kb) != keyLen+U32Len {
			continue
		}
		if !bytes.HasPrefix(kb, begin) {
			continue
		}
		bm.Add(deserializeBEU32(kb[len(kb)-U32Len:]))
	}
	if bm.IsEmpty() {
		return nil, nil
	}
	return bm, nil
}

func (m *MemoryAdapter) Iterate(ctx context.Context, params IterateParams, cb func(key, value []byte) (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	begin := params.Begin.Serialize()
	end := params.End.Serialize()

	m.mu.RLock()
	type kv struct {
		k, v []byte
	}
	var pairs []kv
	for k, v := range m.values {
		kb := []byte(k)
		if bytes.Compare(kb, begin) < 0 || bytes.Compare(kb, end) > 0 {
			continue
		}
		pairs = append(pairs, kv{kb, v})
	}
	m.mu.RUnlock()

	sort.Slice(pairs, func(i, j int) bool {
		if params.Ascending {
			return bytes.Compare(pairs[i].k, pairs[j].k) < 0
		}
		return bytes.Compare(pairs[i].k, pairs[j].k) > 0
	})

	for _, p := range pairs {
		cont, err := cb(p.k, p.v)
		if err != nil {
			return err
		}
		if !cont || params.FirstOnly {
			return nil
		}
	}
	return nil
}

func (m *MemoryAdapter) GetCounter(ctx context.Context, key Key) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[string(key.Serialize())], nil
}

func (m *MemoryAdapter) ReadTrx(ctx context.Context) (Trx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value, issued := m.version.snapshot()
	if !issued.IsZero() && m.now().Sub(issued) < m.versionTTL {
		return memTrx{version: value}, nil
	}

	refreshed, err, _ := m.versionGroup.Do("refresh", func() (interface{}, error) {
		// Re-check under the singleflight key: another caller may
		// have refreshed while we were waiting to enter.
		value, issued := m.version.snapshot()
		if !issued.IsZero() && m.now().Sub(issued) < m.versionTTL {
			return value, nil
		}
		next := value + 1
		m.version.set(next, m.now())
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return memTrx{version: refreshed.(int64)}, nil
}
