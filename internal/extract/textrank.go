package extract

import (
	"context"
	"strings"
)

// TextRank builds a co-occurrence graph over the segment's content words and
// ranks them by centrality; phrase scores are the mean of their word scores.
type TextRank struct {
	window        int
	iterations    int
	damping       float64
	maxCandidates int
}

func NewTextRank(maxCandidates int) *TextRank {
	if maxCandidates <= 0 {
		maxCandidates = 120
	}
	return &TextRank{
		window:        4,
		iterations:    30,
		damping:       0.85,
		maxCandidates: maxCandidates,
	}
}

func (t *TextRank) Name() string { return "graph" }

func (t *TextRank) Extract(_ context.Context, text string) ([]Term, error) {
	toks := tokenize(text)

	// Adjacency over content words within the co-occurrence window.
	edges := map[string]map[string]bool{}
	content := make([]string, 0, len(toks))
	for _, tok := range toks {
		if !tok.stop {
			content = append(content, tok.lower)
		}
	}
	if len(content) == 0 {
		return nil, nil
	}
	for i, w := range content {
		for j := i + 1; j < len(content) && j <= i+t.window; j++ {
			v := content[j]
			if v == w {
				continue
			}
			if edges[w] == nil {
				edges[w] = map[string]bool{}
			}
			if edges[v] == nil {
				edges[v] = map[string]bool{}
			}
			edges[w][v] = true
			edges[v][w] = true
		}
	}

	rank := map[string]float64{}
	for w := range edges {
		rank[w] = 1.0
	}
	for iter := 0; iter < t.iterations; iter++ {
		next := map[string]float64{}
		for w, neighbors := range edges {
			sum := 0.0
			for v := range neighbors {
				deg := len(edges[v])
				if deg > 0 {
					sum += rank[v] / float64(deg)
				}
			}
			next[w] = (1 - t.damping) + t.damping*sum
		}
		rank = next
	}

	terms := make([]Term, 0, t.maxCandidates)
	for _, phrase := range candidatePhrases(text, t.maxCandidates) {
		words := strings.Fields(strings.ToLower(phrase))
		sum, n := 0.0, 0
		for _, w := range words {
			if r, ok := rank[w]; ok {
				sum += r
				n++
			}
		}
		if n == 0 {
			continue
		}
		terms = append(terms, Term{Text: phrase, Score: sum / float64(n)})
	}
	return normalizeScores(terms), nil
}
