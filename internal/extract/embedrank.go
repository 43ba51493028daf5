package extract

import (
	"context"
	"fmt"
	"math"

	"github.com/atlasnotes/conceptmap-backend/internal/clients/openai"
)

// EmbedRank ranks candidate phrases by semantic similarity to the whole
// segment, with an MMR pass so the returned terms are not near-duplicates
// of each other.
type EmbedRank struct {
	ai            openai.Client
	maxCandidates int
	maxSelected   int
	lambda        float64 // MMR relevance/diversity trade-off
	maxSegmentLen int
}

func NewEmbedRank(ai openai.Client, maxCandidates int) *EmbedRank {
	if maxCandidates <= 0 {
		maxCandidates = 120
	}
	return &EmbedRank{
		ai:            ai,
		maxCandidates: maxCandidates,
		maxSelected:   40,
		lambda:        0.7,
		maxSegmentLen: 6000,
	}
}

func (e *EmbedRank) Name() string { return "embedding" }

func (e *EmbedRank) Extract(ctx context.Context, text string) ([]Term, error) {
	if e.ai == nil {
		return nil, fmt.Errorf("embedding client unavailable")
	}
	candidates := candidatePhrases(text, e.maxCandidates)
	if len(candidates) == 0 {
		return nil, nil
	}

	segment := text
	if r := []rune(segment); len(r) > e.maxSegmentLen {
		segment = string(r[:e.maxSegmentLen])
	}

	inputs := append([]string{segment}, candidates...)
	vectors, err := e.ai.Embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embed candidates: %w", err)
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("embed candidates: want %d vectors got %d", len(inputs), len(vectors))
	}
	segVec := vectors[0]
	candVecs := vectors[1:]

	relevance := make([]float64, len(candidates))
	for i, v := range candVecs {
		relevance[i] = Cosine(segVec, v)
	}

	selected := e.mmrSelect(candVecs, relevance)
	terms := make([]Term, 0, len(selected))
	for _, idx := range selected {
		terms = append(terms, Term{Text: candidates[idx], Score: relevance[idx]})
	}
	return normalizeScores(terms), nil
}

// mmrSelect greedily picks candidates maximizing
// lambda*relevance - (1-lambda)*max-similarity-to-already-selected.
func (e *EmbedRank) mmrSelect(vecs [][]float32, relevance []float64) []int {
	n := len(vecs)
	limit := e.maxSelected
	if limit > n {
		limit = n
	}
	selected := make([]int, 0, limit)
	used := make([]bool, n)

	for len(selected) < limit {
		bestIdx, bestScore := -1, 0.0
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, s := range selected {
				if sim := Cosine(vecs[i], vecs[s]); sim > maxSim {
					maxSim = sim
				}
			}
			score := e.lambda*relevance[i] - (1-e.lambda)*maxSim
			if bestIdx == -1 || score > bestScore {
				bestIdx, bestScore = i, score
			}
		}
		if bestIdx == -1 {
			break
		}
		used[bestIdx] = true
		selected = append(selected, bestIdx)
	}
	return selected
}

// Cosine returns the cosine similarity of two vectors (0 on mismatch).
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
