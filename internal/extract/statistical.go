package extract

import "context"

// Statistical scores candidate phrases by raw frequency, damped for terms
// that blanket the whole segment. No semantics involved, which is exactly
// why it is a useful independent vote.
type Statistical struct {
	maxCandidates int
}

func NewStatistical(maxCandidates int) *Statistical {
	if maxCandidates <= 0 {
		maxCandidates = 120
	}
	return &Statistical{maxCandidates: maxCandidates}
}

func (s *Statistical) Name() string { return "statistical" }

func (s *Statistical) Extract(_ context.Context, text string) ([]Term, error) {
	candidates := candidatePhrases(text, s.maxCandidates)
	if len(candidates) == 0 {
		return nil, nil
	}
	sentences := splitSentences(text)
	totalSentences := len(sentences)

	terms := make([]Term, 0, len(candidates))
	for _, phrase := range candidates {
		tf := countOccurrences(text, phrase)
		if tf == 0 {
			continue
		}
		// Penalize phrases present in most sentences: connective vocabulary,
		// not domain terms.
		penalty := 1.0
		if totalSentences > 0 {
			inSentences := 0
			for _, sent := range sentences {
				if countOccurrences(sent, phrase) > 0 {
					inSentences++
				}
			}
			frac := float64(inSentences) / float64(totalSentences)
			penalty = 1.0 - frac
			if penalty < 0.05 {
				penalty = 0.05
			}
		}
		// Mild preference for multi-word phrases; single frequent words
		// dominate otherwise.
		words := 1
		for _, r := range phrase {
			if r == ' ' {
				words++
			}
		}
		boost := 1.0 + 0.25*float64(words-1)

		terms = append(terms, Term{Text: phrase, Score: float64(tf) * penalty * boost})
	}
	return normalizeScores(terms), nil
}
