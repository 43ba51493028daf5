package index

import (
	"context"
	"testing"
)

func seedIndex(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	err := m.Upsert(context.Background(), []Item{
		{ID: "a", ChapterID: "ch1", Vector: []float32{1, 0}},
		{ID: "b", ChapterID: "ch1", Vector: []float32{0.9, 0.1}},
		{ID: "c", ChapterID: "ch2", Vector: []float32{0, 1}},
		{ID: "d", ChapterID: "ch2", Vector: []float32{0.5, 0.5}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	return m
}

func TestQueryScopedToChapter(t *testing.T) {
	m := seedIndex(t)
	matches, err := m.Query(context.Background(), []float32{1, 0}, 10, "ch1", "a")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "b" {
		t.Fatalf("chapter query: want=[b] got=%v", matches)
	}
}

func TestQueryDocumentWideWhenChapterEmpty(t *testing.T) {
	m := seedIndex(t)
	matches, err := m.Query(context.Background(), []float32{1, 0}, 10, "", "a")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("document-wide query: want=3 got=%d", len(matches))
	}
	if matches[0].ID != "b" {
		t.Fatalf("ordering by similarity: want first=b got=%s", matches[0].ID)
	}
	for _, match := range matches {
		if match.ID == "a" {
			t.Fatal("the query concept must be excluded")
		}
	}
}

func TestQueryTruncatesTopK(t *testing.T) {
	m := seedIndex(t)
	matches, err := m.Query(context.Background(), []float32{1, 0}, 2, "", "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("topK: want=2 got=%d", len(matches))
	}
}

func TestUpsertRejectsEmptyID(t *testing.T) {
	m := NewMemory()
	if err := m.Upsert(context.Background(), []Item{{ID: ""}}); err == nil {
		t.Fatal("empty id must be rejected")
	}
}

func TestUpsertReplacesExisting(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Upsert(ctx, []Item{{ID: "x", ChapterID: "ch1", Vector: []float32{1, 0}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := m.Upsert(ctx, []Item{{ID: "x", ChapterID: "ch2", Vector: []float32{0, 1}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	matches, err := m.Query(ctx, []float32{0, 1}, 10, "ch2", "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("replaced item must live in its new chapter, got %v", matches)
	}
}
