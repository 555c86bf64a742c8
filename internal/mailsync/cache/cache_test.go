package cache

import (
	"testing"

	"github.com/fenilsonani/email-server/internal/mailsync/types"
)

func TestSnapshotCache_AddAndGet(t *testing.T) {
	c := New(2)
	id := types.MailboxId{AccountID: 1, MailboxID: 1}
	snap := types.NewEmptySnapshot(1, nil)

	if _, ok := c.Get(id); ok {
		t.Fatal("expected miss before Add")
	}

	c.Add(id, snap)

	got, ok := c.Get(id)
	if !ok {
		t.Fatal("expected hit after Add")
	}
	if got != snap {
		t.Error("expected Get to return the exact published snapshot")
	}
}

func TestSnapshotCache_EvictsOverCapacity(t *testing.T) {
	c := New(1)
	id1 := types.MailboxId{AccountID: 1, MailboxID: 1}
	id2 := types.MailboxId{AccountID: 1, MailboxID: 2}

	c.Add(id1, types.NewEmptySnapshot(1, nil))
	c.Add(id2, types.NewEmptySnapshot(1, nil))

	if _, ok := c.Get(id1); ok {
		t.Error("expected id1 to have been evicted")
	}
	if _, ok := c.Get(id2); !ok {
		t.Error("expected id2 to remain cached")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestSnapshotCache_Remove(t *testing.T) {
	c := New(2)
	id := types.MailboxId{AccountID: 1, MailboxID: 1}
	c.Add(id, types.NewEmptySnapshot(1, nil))

	c.Remove(id)

	if _, ok := c.Get(id); ok {
		t.Error("expected miss after Remove")
	}
}
