// Package cache provides the bounded, process-wide mailbox snapshot
// cache that the synchronizer publishes into and that a newly
// selecting session can consult to skip a redundant materialize.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fenilsonani/email-server/internal/mailsync/metrics"
	"github.com/fenilsonani/email-server/internal/mailsync/types"
)

// SnapshotCache is a bounded LRU of the most recently materialized
// MailboxSnapshot per mailbox. Snapshots are immutable once published,
// so concurrent readers never race with an eviction.
type SnapshotCache struct {
	lru *lru.Cache[types.MailboxId, *types.MailboxSnapshot]
}

// New builds a SnapshotCache holding up to size mailboxes. size <= 0
// is treated as 1, since golang-lru rejects a non-positive size.
func New(size int) *SnapshotCache {
	if size <= 0 {
		size = 1
	}
	l, err := lru.NewWithEvict[types.MailboxId, *types.MailboxSnapshot](size, func(types.MailboxId, *types.MailboxSnapshot) {
		metrics.CacheEvictions.Inc()
	})
	if err != nil {
		// Only returns an error for size <= 0, already excluded above.
		panic(err)
	}
	return &SnapshotCache{lru: l}
}

// Add publishes a freshly materialized snapshot, satisfying sync.Cache.
func (c *SnapshotCache) Add(id types.MailboxId, snapshot *types.MailboxSnapshot) {
	c.lru.Add(id, snapshot)
}

// Get returns the cached snapshot for id, if present. Callers must
// still validate modseq before trusting it as current.
func (c *SnapshotCache) Get(id types.MailboxId) (*types.MailboxSnapshot, bool) {
	snap, ok := c.lru.Get(id)
	if ok {
		metrics.CacheHits.Inc()
	} else {
		metrics.CacheMisses.Inc()
	}
	return snap, ok
}

// Remove drops a mailbox from the cache, e.g. after it is deleted.
func (c *SnapshotCache) Remove(id types.MailboxId) {
	c.lru.Remove(id)
}

// Len reports the number of mailboxes currently cached.
func (c *SnapshotCache) Len() int {
	return c.lru.Len()
}
