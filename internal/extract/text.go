package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// Term is one (surface form, score) proposal from a single strategy.
type Term struct {
	Text  string
	Score float64
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"of": true, "in": true, "on": true, "at": true, "to": true, "for": true,
	"by": true, "with": true, "from": true, "as": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"this": true, "that": true, "these": true, "those": true, "it": true,
	"its": true, "their": true, "they": true, "we": true, "you": true,
	"he": true, "she": true, "his": true, "her": true, "can": true,
	"will": true, "would": true, "should": true, "could": true, "may": true,
	"might": true, "must": true, "not": true, "no": true, "nor": true,
	"so": true, "if": true, "then": true, "than": true, "too": true,
	"very": true, "also": true, "into": true, "over": true, "under": true,
	"such": true, "each": true, "more": true, "most": true, "other": true,
	"some": true, "any": true, "all": true, "both": true, "between": true,
	"about": true, "which": true, "when": true, "where": true, "while": true,
	"there": true, "here": true, "how": true, "what": true, "who": true,
	"whom": true, "do": true, "does": true, "did": true, "have": true,
	"has": true, "had": true, "per": true, "via": true, "e.g": true, "i.e": true,
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'-]*`)

type token struct {
	text  string // original casing
	lower string
	stop  bool
}

func tokenize(text string) []token {
	words := wordRe.FindAllString(text, -1)
	out := make([]token, 0, len(words))
	for _, w := range words {
		lower := strings.ToLower(w)
		out = append(out, token{text: w, lower: lower, stop: stopwords[lower] || len([]rune(lower)) < 2 || isNumeric(lower)})
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return false
		}
	}
	return true
}

// candidatePhrases returns 1..3-word runs of non-stopwords, first-seen
// casing preserved, deduplicated case-insensitively, capped at max.
func candidatePhrases(text string, max int) []string {
	toks := tokenize(text)
	seen := map[string]bool{}
	out := make([]string, 0, max)

	add := func(words []token) bool {
		parts := make([]string, len(words))
		for i, w := range words {
			parts[i] = w.text
		}
		phrase := strings.Join(parts, " ")
		key := strings.ToLower(phrase)
		if seen[key] {
			return true
		}
		seen[key] = true
		out = append(out, phrase)
		return len(out) < max
	}

	for i := 0; i < len(toks); i++ {
		if toks[i].stop {
			continue
		}
		for n := 1; n <= 3 && i+n <= len(toks); n++ {
			run := toks[i : i+n]
			if run[n-1].stop {
				break
			}
			if !add(run) {
				return out
			}
		}
	}
	return out
}

var sentenceSplit = regexp.MustCompile(`[.!?]+[\s\n]+`)

// splitSentences is a cheap splitter; good enough for grounding windows.
func splitSentences(text string) []string {
	parts := sentenceSplit.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sourceWindow returns up to `before` sentences before and `after` after the
// first sentence mentioning term, the grounding context stored on a Concept.
func sourceWindow(sentences []string, term string, before, after int) []string {
	needle := strings.ToLower(term)
	for i, s := range sentences {
		if !strings.Contains(strings.ToLower(s), needle) {
			continue
		}
		start := i - before
		if start < 0 {
			start = 0
		}
		end := i + after + 1
		if end > len(sentences) {
			end = len(sentences)
		}
		return append([]string(nil), sentences[start:end]...)
	}
	return nil
}

// countOccurrences counts case-insensitive occurrences of phrase in text.
func countOccurrences(text, phrase string) int {
	return strings.Count(strings.ToLower(text), strings.ToLower(phrase))
}

// normalizeScores maps scores into [0,1] by dividing by the maximum.
func normalizeScores(terms []Term) []Term {
	maxScore := 0.0
	for _, t := range terms {
		if t.Score > maxScore {
			maxScore = t.Score
		}
	}
	if maxScore <= 0 {
		return terms
	}
	out := make([]Term, len(terms))
	for i, t := range terms {
		out[i] = Term{Text: t.Text, Score: t.Score / maxScore}
	}
	return out
}
