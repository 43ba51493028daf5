package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atlasnotes/conceptmap-backend/internal/extract"
)

// Memory is the in-process index used for run-scoped concept embeddings.
// One instance per document run; nothing survives the run.
type Memory struct {
	mu    sync.RWMutex
	items map[string]Item
}

func NewMemory() *Memory {
	return &Memory{items: map[string]Item{}}
}

func (m *Memory) Upsert(_ context.Context, items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		if it.ID == "" {
			return fmt.Errorf("index item id required")
		}
		m.items[it.ID] = it
	}
	return nil
}

// Query returns up to topK neighbors by cosine similarity. chapterID == ""
// searches document-wide.
func (m *Memory) Query(_ context.Context, vector []float32, topK int, chapterID, excludeID string) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.items))
	for _, it := range m.items {
		if it.ID == excludeID {
			continue
		}
		if chapterID != "" && it.ChapterID != chapterID {
			continue
		}
		matches = append(matches, Match{ID: it.ID, Similarity: extract.Cosine(vector, it.Vector)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}
