// Package relate infers typed relationships between extracted concepts.
// For each concept it retrieves semantically similar concepts (chapter-first,
// expanding document-wide only when the chapter pool is too small), assembles
// a bounded context and asks the reasoning service to classify each candidate
// pair. False negatives are acceptable; fabricated edges are not.
package relate

import (
	"context"
	"fmt"
	"strings"

	"github.com/atlasnotes/conceptmap-backend/internal/clients/openai"
	"github.com/atlasnotes/conceptmap-backend/internal/domain"
	"github.com/atlasnotes/conceptmap-backend/internal/index"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
)

type Options struct {
	TopK           int
	MinSameChapter int
	MaxContextLen  int
}

func (o *Options) defaults() {
	if o.TopK <= 0 {
		o.TopK = 10
	}
	if o.MinSameChapter <= 0 {
		o.MinSameChapter = 3
	}
	if o.MaxContextLen <= 0 {
		o.MaxContextLen = 8000
	}
}

type Detector struct {
	log  *logger.Logger
	ai   openai.Client
	idx  index.SimilarityIndex
	opts Options
}

func New(log *logger.Logger, ai openai.Client, idx index.SimilarityIndex, opts Options) *Detector {
	opts.defaults()
	return &Detector{
		log:  log.With("component", "RelationshipDetector"),
		ai:   ai,
		idx:  idx,
		opts: opts,
	}
}

// Detect returns the confirmed relationships for one concept. vector is the
// concept's run-scoped embedding; chapterID its top-level ancestor; byID
// resolves candidate IDs back to concepts.
func (d *Detector) Detect(ctx context.Context, concept domain.Concept, vector []float32, chapterID string, byID map[string]domain.Concept) ([]domain.Relationship, error) {
	if d.idx == nil || d.ai == nil {
		return nil, fmt.Errorf("detector requires index and reasoning client")
	}

	// Chapter-first, then expand: local coherence wins when the chapter has
	// enough neighbors, but short chapters must not starve the context.
	matches, err := d.idx.Query(ctx, vector, d.opts.TopK, chapterID, concept.ID)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	if len(matches) < d.opts.MinSameChapter {
		matches, err = d.idx.Query(ctx, vector, d.opts.TopK, "", concept.ID)
		if err != nil {
			return nil, fmt.Errorf("similarity query (document-wide): %w", err)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}

	candidates := make([]domain.Concept, 0, len(matches))
	similarity := map[string]float64{}
	for _, m := range matches {
		c, ok := byID[m.ID]
		if !ok {
			continue
		}
		candidates = append(candidates, c)
		similarity[c.ID] = domain.Clamp01(m.Similarity)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	classified, err := d.classify(ctx, concept, candidates)
	if err != nil {
		// A failed reasoning call drops the candidates; edges are never
		// guessed.
		d.log.Warn("relationship classification failed",
			"concept", concept.Term,
			"candidates", len(candidates),
			"error", err.Error(),
		)
		return nil, nil
	}

	out := make([]domain.Relationship, 0, len(classified))
	for _, r := range classified {
		sim := similarity[r.otherID]
		source, target := concept.ID, r.otherID
		if r.reversed {
			source, target = r.otherID, concept.ID
		}
		out = append(out, domain.Relationship{
			SourceConceptID: source,
			TargetConceptID: target,
			Type:            r.relType,
			Strength:        domain.Clamp01((r.confidence + sim) / 2),
			SimilarityScore: sim,
			Explanation:     r.explanation,
		})
	}
	return out, nil
}

type classifiedEdge struct {
	otherID     string
	relType     domain.RelationType
	reversed    bool
	confidence  float64
	explanation string
}

var relationshipSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"relationships": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"candidate_id": map[string]any{"type": "string"},
					"related":      map[string]any{"type": "boolean"},
					"type": map[string]any{
						"type": "string",
						"enum": []string{"is_a", "has_component", "precedes", "enables", "contrasts_with", "none"},
					},
					"direction": map[string]any{
						"type": "string",
						"enum": []string{"main_to_candidate", "candidate_to_main"},
					},
					"confidence":  map[string]any{"type": "number"},
					"explanation": map[string]any{"type": "string"},
				},
				"required":             []string{"candidate_id", "related", "type", "direction", "confidence", "explanation"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"relationships"},
	"additionalProperties": false,
}

func (d *Detector) classify(ctx context.Context, main domain.Concept, candidates []domain.Concept) ([]classifiedEdge, error) {
	user := d.buildContext(main, candidates)
	out, err := d.ai.GenerateJSON(ctx,
		"You classify relationships between domain concepts from the same document. "+
			"Only confirm a relationship when the definitions and context support it; answer related=false otherwise.",
		user,
		"concept_relationships",
		relationshipSchema,
	)
	if err != nil {
		return nil, err
	}

	raw, _ := out["relationships"].([]any)
	edges := make([]classifiedEdge, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		related, _ := obj["related"].(bool)
		if !related {
			continue
		}
		id, _ := obj["candidate_id"].(string)
		relType := domain.RelationType(strings.TrimSpace(fmt.Sprint(obj["type"])))
		if id == "" || !domain.ValidRelationType(relType) {
			continue
		}
		conf, _ := obj["confidence"].(float64)
		direction, _ := obj["direction"].(string)
		explanation, _ := obj["explanation"].(string)
		edges = append(edges, classifiedEdge{
			otherID:     id,
			relType:     relType,
			reversed:    direction == "candidate_to_main",
			confidence:  domain.Clamp01(conf),
			explanation: strings.TrimSpace(explanation),
		})
	}
	return edges, nil
}

// buildContext renders the main concept and candidates into a bounded prompt
// context: term, definition and structural location for each.
func (d *Detector) buildContext(main domain.Concept, candidates []domain.Concept) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Main concept:\n  term: %s\n  location: %s\n", main.Term, main.StructureID)
	if main.Definition != "" {
		fmt.Fprintf(&b, "  definition: %s\n", main.Definition)
	}
	b.WriteString("\nCandidates:\n")
	for _, c := range candidates {
		entry := fmt.Sprintf("- id: %s\n  term: %s\n  location: %s\n", c.ID, c.Term, c.StructureID)
		if c.Definition != "" {
			entry += fmt.Sprintf("  definition: %s\n", c.Definition)
		}
		if b.Len()+len(entry) > d.opts.MaxContextLen {
			break
		}
		b.WriteString(entry)
	}
	return b.String()
}
