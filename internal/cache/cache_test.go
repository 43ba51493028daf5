package cache

import (
	"context"
	"testing"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
)

func TestKeyForIsContentAddressed(t *testing.T) {
	a := KeyFor([]byte("same bytes"), "v1")
	b := KeyFor([]byte("same bytes"), "v1")
	if a != b {
		t.Fatalf("identical bytes must hash identically: %v vs %v", a, b)
	}
	if len(a.ContentHash) != 64 {
		t.Fatalf("sha256 hex length: want=64 got=%d", len(a.ContentHash))
	}

	c := KeyFor([]byte("other bytes"), "v1")
	if a.ContentHash == c.ContentHash {
		t.Fatal("different bytes must hash differently")
	}
}

func TestKeyIncludesPipelineVersion(t *testing.T) {
	a := KeyFor([]byte("doc"), "v1")
	b := KeyFor([]byte("doc"), "v2")
	if a.ContentHash != b.ContentHash {
		t.Fatal("pipeline version must not change the content hash")
	}
	if a.String() == b.String() {
		t.Fatal("a version bump must produce a distinct cache key")
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	key := KeyFor([]byte("doc"), "v1")

	if _, ok, err := m.Get(ctx, key); err != nil || ok {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}

	want := &domain.ProcessingResult{DocumentID: "doc-1", ContentHash: key.ContentHash}
	if err := m.Put(ctx, key, want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := m.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("get after put: ok=%v err=%v", ok, err)
	}
	if got.DocumentID != "doc-1" {
		t.Fatalf("document id: want=doc-1 got=%s", got.DocumentID)
	}
	if m.Len() != 1 {
		t.Fatalf("entries: want=1 got=%d", m.Len())
	}
}
