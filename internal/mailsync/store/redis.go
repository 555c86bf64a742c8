package store

import (
	"context"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RedisAdapter implements Adapter against Redis, treated as the
// pack's closest analogue to a snapshot-consistent transactional KV
// store: WATCH/MULTI/EXEC gives atomic multi-key writes from the
// write path we consume, and a monotonically incremented version key
// stands in for the store's native read-version token.
type RedisAdapter struct {
	client        redis.UniversalClient
	versionKey    string
	versionTTL    time.Duration
	maxValueSize  int

	versionMu    chan struct{} // 1-buffered mutex guarding cachedVersion/cachedAt
	cachedVersion int64
	cachedAt      time.Time
	group         singleflight.Group
}

// Config configures a RedisAdapter.
type Config struct {
	// VersionKey is the Redis key holding the monotonic read-version
	// counter (store.read_version_expiry_ms governs VersionTTL).
	VersionKey string
	// VersionTTL is how long a cached read version may be reused
	// before the next transaction refreshes it.
	VersionTTL time.Duration
	// MaxValueSize is the chunking threshold (store.max_value_size_bytes).
	MaxValueSize int
}

// NewRedisAdapter wraps an existing Redis client. Callers typically
// share the client with internal/queue's Redis-backed delivery queue;
// this adapter uses a disjoint key space (see Config.VersionKey).
func NewRedisAdapter(client redis.UniversalClient, cfg Config) *RedisAdapter {
	if cfg.VersionKey == "" {
		cfg.VersionKey = "mailsync:read_version"
	}
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = MaxValueSize
	}
	return &RedisAdapter{
		client:       client,
		versionKey:   cfg.VersionKey,
		versionTTL:   cfg.VersionTTL,
		maxValueSize: cfg.MaxValueSize,
		versionMu:    make(chan struct{}, 1),
	}
}

type redisTrx struct{ version int64 }

func (t redisTrx) Version() int64 { return t.version }

func (a *RedisAdapter) lockVersion()   { a.versionMu <- struct{}{} }
func (a *RedisAdapter) unlockVersion() { <-a.versionMu }

// ReadTrx returns the cached read version, refreshing it via
// singleflight exactly once per expiry window: concurrent callers
// that observe an expired version all join the same refresh and share
// its result, rather than each issuing a redundant INCR.
func (a *RedisAdapter) ReadTrx(ctx context.Context) (Trx, error) {
	a.lockVersion()
	version, at := a.cachedVersion, a.cachedAt
	a.unlockVersion()

	if !at.IsZero() && time.Since(at) < a.versionTTL {
		return redisTrx{version: version}, nil
	}

	v, err, _ := a.group.Do("refresh-read-version", func() (interface{}, error) {
		a.lockVersion()
		version, at := a.cachedVersion, a.cachedAt
		a.unlockVersion()
		if !at.IsZero() && time.Since(at) < a.versionTTL {
			return version, nil
		}

		next, err := a.client.Incr(ctx, a.versionKey).Result()
		if err != nil {
			return nil, fmt.Errorf("mailsync: refresh read version: %w", err)
		}

		a.lockVersion()
		a.cachedVersion, a.cachedAt = next, time.Now()
		a.unlockVersion()
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return redisTrx{version: v.(int64)}, nil
}

// chunkKeyBytes appends the chunk-tail counter used by continuation
// keys: key, key\x00, key\x01, ...
func chunkKeyBytes(key []byte, n byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	out[len(key)] = n
	return out
}

// GetValue reads one logical value, reassembling it from numbered
// continuation keys if the primary payload reached MaxValueSize.
func (a *RedisAdapter) GetValue(ctx context.Context, key Key, out Deserializer) (bool, error) {
	raw := key.Serialize()
	primary, err := a.client.Get(ctx, string(raw)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mailsync: get value: %w", err)
	}

	if len(primary) < a.maxValueSize {
		if err := out.DeserializeValue(primary); err != nil {
			return false, err
		}
		return true, nil
	}

	value := append([]byte(nil), primary...)
	var n byte
	for {
		chunk, err := a.client.Get(ctx, string(chunkKeyBytes(raw, n))).Bytes()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return false, fmt.Errorf("mailsync: get value chunk %d: %w", n, err)
		}
		value = append(value, chunk...)
		if n == 255 {
			// Exceeding 255 chunks is undefined per the chunking
			// contract; stop rather than wrap the counter.
			break
		}
		n++
	}
	if err := out.DeserializeValue(value); err != nil {
		return false, err
	}
	return true, nil
}

// GetBitmap decodes the membership sorted set at key into a roaring
// bitmap. Members are stored as the decimal string of each document
// id; a member that does not parse as a number is skipped.
func (a *RedisAdapter) GetBitmap(ctx context.Context, key BitmapKey) (*roaring.Bitmap, error) {
	members, err := a.client.ZRange(ctx, string(key.Base), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("mailsync: get bitmap: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	bm := roaring.New()
	for _, m := range members {
		var id uint32
		if _, err := fmt.Sscanf(m, "%d", &id); err != nil {
			continue
		}
		bm.Add(id)
	}
	return bm, nil
}

// Iterate range-scans a sorted set representing the requested
// subspace, honoring FirstOnly as a hard LIMIT the way the store's
// "small streaming window" does.
func (a *RedisAdapter) Iterate(ctx context.Context, params IterateParams, cb func(key, value []byte) (bool, error)) error {
	begin := string(params.Begin.Serialize())
	end := string(params.End.Serialize())

	opt := &redis.ZRangeBy{Min: "(" + begin, Max: "[" + end}
	if params.FirstOnly {
		opt.Count = 1
	}

	var members []string
	var err error
	if params.Ascending {
		members, err = a.client.ZRangeByScore(ctx, rangeSetKey(begin, end), opt).Result()
	} else {
		members, err = a.client.ZRevRangeByScore(ctx, rangeSetKey(begin, end), &redis.ZRangeBy{Min: opt.Min, Max: opt.Max, Count: opt.Count}).Result()
	}
	if err != nil {
		return fmt.Errorf("mailsync: iterate: %w", err)
	}

	for _, m := range members {
		cont, err := cb([]byte(m), nil)
		if err != nil {
			return err
		}
		if !cont || params.FirstOnly {
			return nil
		}
	}
	return nil
}

// rangeSetKey derives the sorted-set key shared by both endpoints of
// a range scan; callers construct Begin/End as sub-ranges of the same
// logical subspace.
func rangeSetKey(begin, end string) string {
	i := 0
	for i < len(begin) && i < len(end) && begin[i] == end[i] {
		i++
	}
	return begin[:i]
}

// GetCounter reads a little-endian signed 64-bit counter. Absence
// returns 0, not an error.
func (a *RedisAdapter) GetCounter(ctx context.Context, key Key) (int64, error) {
	b, err := a.client.Get(ctx, string(key.Serialize())).Bytes()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("mailsync: get counter: %w", err)
	}
	return DeserializeI64LE(b)
}
