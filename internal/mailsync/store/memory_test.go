package store

import (
	"bytes"
	"context"
	"testing"
	"time"
)

type rawBytes []byte

func (r *rawBytes) DeserializeValue(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

func TestMemoryAdapter_GetValue_Single(t *testing.T) {
	a := NewMemoryAdapter(time.Minute)
	a.SetValue([]byte("k1"), []byte("hello"))

	var out rawBytes
	found, err := a.GetValue(context.Background(), RawKey("k1"), &out)
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if !found {
		t.Fatal("expected value to be found")
	}
	if !bytes.Equal(out, []byte("hello")) {
		t.Fatalf("got %q, want %q", out, "hello")
	}
}

func TestMemoryAdapter_GetValue_Missing(t *testing.T) {
	a := NewMemoryAdapter(time.Minute)
	var out rawBytes
	found, err := a.GetValue(context.Background(), RawKey("missing"), &out)
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if found {
		t.Fatal("expected value to be absent")
	}
}

func TestMemoryAdapter_GetValue_Chunked(t *testing.T) {
	a := NewMemoryAdapter(time.Minute)

	big := bytes.Repeat([]byte("x"), MaxValueSize)
	tail := []byte("TAIL")

	a.SetValue([]byte("k1"), big)
	a.SetValue(append([]byte("k1"), 0), tail)

	var out rawBytes
	found, err := a.GetValue(context.Background(), RawKey("k1"), &out)
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if !found {
		t.Fatal("expected chunked value to be found")
	}
	want := append(append([]byte(nil), big...), tail...)
	if !bytes.Equal(out, want) {
		t.Fatalf("chunked reassembly mismatch: got %d bytes, want %d", len(out), len(want))
	}
}

func TestMemoryAdapter_GetBitmap(t *testing.T) {
	a := NewMemoryAdapter(time.Minute)
	key := BitmapKey{Base: []byte("tag:mailbox:1:")}
	a.SetBitmapMembers(key, []uint32{3, 1, 2})

	bm, err := a.GetBitmap(context.Background(), key)
	if err != nil {
		t.Fatalf("GetBitmap: %v", err)
	}
	if bm == nil {
		t.Fatal("expected non-nil bitmap")
	}
	for _, want := range []uint32{1, 2, 3} {
		if !bm.Contains(want) {
			t.Errorf("bitmap missing member %d", want)
		}
	}
	if bm.GetCardinality() != 3 {
		t.Errorf("cardinality = %d, want 3", bm.GetCardinality())
	}
}

func TestMemoryAdapter_GetBitmap_Empty(t *testing.T) {
	a := NewMemoryAdapter(time.Minute)
	key := BitmapKey{Base: []byte("tag:mailbox:9:")}

	bm, err := a.GetBitmap(context.Background(), key)
	if err != nil {
		t.Fatalf("GetBitmap: %v", err)
	}
	if bm != nil {
		t.Fatal("expected nil bitmap for empty membership")
	}
}

func TestMemoryAdapter_GetCounter(t *testing.T) {
	a := NewMemoryAdapter(time.Minute)

	v, err := a.GetCounter(context.Background(), RawKey("missing-counter"))
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	if v != 0 {
		t.Errorf("absent counter = %d, want 0", v)
	}

	a.SetCounter([]byte("c1"), 42)
	v, err = a.GetCounter(context.Background(), RawKey("c1"))
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	if v != 42 {
		t.Errorf("counter = %d, want 42", v)
	}

	got := a.IncrCounter([]byte("c1"), 8)
	if got != 50 {
		t.Errorf("IncrCounter = %d, want 50", got)
	}
}

func TestMemoryAdapter_ReadTrx_CachesUntilExpiry(t *testing.T) {
	a := NewMemoryAdapter(10 * time.Millisecond)
	now := time.Now()
	a.now = func() time.Time { return now }

	trx1, err := a.ReadTrx(context.Background())
	if err != nil {
		t.Fatalf("ReadTrx: %v", err)
	}
	trx2, err := a.ReadTrx(context.Background())
	if err != nil {
		t.Fatalf("ReadTrx: %v", err)
	}
	if trx1.Version() != trx2.Version() {
		t.Errorf("expected cached version to be reused: %d != %d", trx1.Version(), trx2.Version())
	}

	now = now.Add(time.Hour)
	trx3, err := a.ReadTrx(context.Background())
	if err != nil {
		t.Fatalf("ReadTrx: %v", err)
	}
	if trx3.Version() == trx1.Version() {
		t.Error("expected version to refresh after expiry")
	}
}
