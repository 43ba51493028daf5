// Package extract runs three independent term-extraction strategies over
// the same text segment and merges them by agreement. The 2-of-3 voting
// rule is the accuracy lever of this subsystem: a term proposed by a single
// method is discarded as likely noise, whatever its score.
package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/atlasnotes/conceptmap-backend/internal/clients/openai"
	"github.com/atlasnotes/conceptmap-backend/internal/domain"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
)

// Strategy is one independent extraction method.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, text string) ([]Term, error)
}

// ensembleSize is the fixed divisor of the confidence formula. It stays 3
// even when a strategy errors out: two surviving methods can still clear the
// agreement bar, but their confidence reflects the missing vote.
const ensembleSize = 3

type Options struct {
	MaxConcepts             int
	MinMethods              int
	DefinitionMinConfidence float64
	SentenceWindow          int
}

func (o *Options) defaults() {
	if o.MaxConcepts <= 0 {
		o.MaxConcepts = 20
	}
	if o.MinMethods <= 0 {
		o.MinMethods = 2
	}
	if o.DefinitionMinConfidence <= 0 {
		o.DefinitionMinConfidence = 0.5
	}
	if o.SentenceWindow <= 0 {
		o.SentenceWindow = 2
	}
}

type Ensemble struct {
	log        *logger.Logger
	strategies []Strategy
	ai         openai.Client
	opts       Options
}

// NewEnsemble wires the three default strategies. ai is used both by the
// embedding strategy and for definition generation.
func NewEnsemble(log *logger.Logger, ai openai.Client, maxCandidates int, opts Options) *Ensemble {
	opts.defaults()
	return &Ensemble{
		log: log.With("component", "EnsembleExtractor"),
		strategies: []Strategy{
			NewEmbedRank(ai, maxCandidates),
			NewStatistical(maxCandidates),
			NewTextRank(maxCandidates),
		},
		ai:   ai,
		opts: opts,
	}
}

// NewEnsembleWithStrategies is the injection point for tests and custom
// strategy sets.
func NewEnsembleWithStrategies(log *logger.Logger, ai openai.Client, strategies []Strategy, opts Options) *Ensemble {
	opts.defaults()
	return &Ensemble{
		log:        log.With("component", "EnsembleExtractor"),
		strategies: strategies,
		ai:         ai,
		opts:       opts,
	}
}

// Extract runs all strategies concurrently against the segment, merges
// their votes and returns concepts in descending confidence order, bounded
// by MaxConcepts. A failing strategy contributes zero results instead of
// failing the call.
func (e *Ensemble) Extract(ctx context.Context, segment string, node *domain.HierarchyNode) ([]domain.Concept, error) {
	if node == nil {
		return nil, fmt.Errorf("hierarchy node required")
	}
	if strings.TrimSpace(segment) == "" {
		return nil, nil
	}

	results := make([][]Term, len(e.strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range e.strategies {
		g.Go(func() error {
			terms, err := s.Extract(gctx, segment)
			if err != nil {
				e.log.Warn("extraction strategy failed",
					"strategy", s.Name(),
					"structure_id", node.ID,
					"error", err.Error(),
				)
				return nil
			}
			results[i] = terms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := vote(results, e.opts.MinMethods)
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].confidence != merged[j].confidence {
			return merged[i].confidence > merged[j].confidence
		}
		return merged[i].display < merged[j].display
	})
	if len(merged) > e.opts.MaxConcepts {
		merged = merged[:e.opts.MaxConcepts]
	}

	sentences := splitSentences(segment)
	concepts := make([]domain.Concept, 0, len(merged))
	for _, m := range merged {
		concepts = append(concepts, domain.Concept{
			ID:              conceptID(node.ID, m.display),
			Term:            m.display,
			Confidence:      domain.Clamp01(m.confidence),
			MethodsFound:    m.methods,
			StructureID:     node.ID,
			SourceSentences: sourceWindow(sentences, m.display, e.opts.SentenceWindow, e.opts.SentenceWindow),
		})
	}

	e.generateDefinitions(ctx, concepts, node.Title)
	return concepts, nil
}

type mergedTerm struct {
	display    string
	confidence float64
	methods    int
}

// vote groups case-insensitively identical terms across strategies and
// computes confidence = avg(normalized scores) * (methods_found / 3).
// The ≥ minMethods cut is strict; it never degrades to "majority of
// whatever ran".
func vote(results [][]Term, minMethods int) []mergedTerm {
	type agg struct {
		display string
		sum     float64
		methods int
	}
	byKey := map[string]*agg{}

	for _, terms := range results {
		// Best score per key within one strategy, so a strategy cannot vote
		// twice for the same term.
		best := map[string]Term{}
		for _, t := range terms {
			key := strings.ToLower(strings.TrimSpace(t.Text))
			if key == "" {
				continue
			}
			if cur, ok := best[key]; !ok || t.Score > cur.Score {
				best[key] = t
			}
		}
		for key, t := range best {
			a := byKey[key]
			if a == nil {
				a = &agg{display: strings.TrimSpace(t.Text)}
				byKey[key] = a
			}
			a.sum += domain.Clamp01(t.Score)
			a.methods++
		}
	}

	out := make([]mergedTerm, 0, len(byKey))
	for _, a := range byKey {
		if a.methods < minMethods {
			continue
		}
		avg := a.sum / float64(a.methods)
		out = append(out, mergedTerm{
			display:    a.display,
			confidence: avg * float64(a.methods) / ensembleSize,
			methods:    a.methods,
		})
	}
	return out
}

func conceptID(structureID, term string) string {
	slug := strings.ToLower(strings.TrimSpace(term))
	slug = strings.Join(strings.Fields(slug), "_")
	return structureID + ":" + slug
}

var definitionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"definition": map[string]any{
			"type":        "string",
			"description": "One to two sentence definition of the term in this document's context.",
		},
	},
	"required":             []string{"definition"},
	"additionalProperties": false,
}

// generateDefinitions fills in definitions for concepts above the second,
// higher confidence bar. Lower-confidence concepts are kept but stay
// undefined, bounding reasoning spend to the terms likely to matter.
func (e *Ensemble) generateDefinitions(ctx context.Context, concepts []domain.Concept, sectionTitle string) {
	if e.ai == nil {
		return
	}
	for i := range concepts {
		c := &concepts[i]
		if c.Confidence < e.opts.DefinitionMinConfidence {
			continue
		}
		if err := ctx.Err(); err != nil {
			return
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Term: %s\nSection: %s\n", c.Term, sectionTitle)
		if len(c.SourceSentences) > 0 {
			b.WriteString("Context:\n")
			for _, s := range c.SourceSentences {
				b.WriteString("- " + s + "\n")
			}
		}

		out, err := e.ai.GenerateJSON(ctx,
			"You write concise domain definitions. Use only the provided context; 1-2 sentences.",
			b.String(),
			"concept_definition",
			definitionSchema,
		)
		if err != nil {
			e.log.Warn("definition generation failed",
				"term", c.Term,
				"error", err.Error(),
			)
			continue
		}
		if def, ok := out["definition"].(string); ok {
			c.Definition = strings.TrimSpace(def)
		}
	}
}
