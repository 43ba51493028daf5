// Package pipeline sequences the document-understanding stages:
// classify -> parse -> hierarchy -> ensemble concepts -> relationships,
// with content-hash caching, progress reporting and cost tracking. Only
// fatal errors (unparseable input) escape; everything else degrades.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/atlasnotes/conceptmap-backend/internal/app"
	"github.com/atlasnotes/conceptmap-backend/internal/cache"
	"github.com/atlasnotes/conceptmap-backend/internal/classify"
	"github.com/atlasnotes/conceptmap-backend/internal/clients/openai"
	"github.com/atlasnotes/conceptmap-backend/internal/costs"
	"github.com/atlasnotes/conceptmap-backend/internal/domain"
	"github.com/atlasnotes/conceptmap-backend/internal/extract"
	"github.com/atlasnotes/conceptmap-backend/internal/graph"
	"github.com/atlasnotes/conceptmap-backend/internal/hierarchy"
	"github.com/atlasnotes/conceptmap-backend/internal/index"
	"github.com/atlasnotes/conceptmap-backend/internal/parse"
	pkgerrors "github.com/atlasnotes/conceptmap-backend/internal/pkg/errors"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
	"github.com/atlasnotes/conceptmap-backend/internal/progress"
	"github.com/atlasnotes/conceptmap-backend/internal/relate"
	"github.com/atlasnotes/conceptmap-backend/internal/store"
)

// Deps are the collaborators the orchestrator is constructed with. No
// module-level singletons: everything external arrives here.
type Deps struct {
	Classifier *classify.Classifier
	Parser     *parse.Parser
	Extractor  *hierarchy.Extractor
	Ensemble   *extract.Ensemble
	AI         openai.Client
	Cache      cache.ResultCache
	Notify     progress.Notifier
	Costs      *costs.Ledger
	Store      *store.Store // optional
	Graph      graph.Writer // optional
}

type Orchestrator struct {
	log    *logger.Logger
	cfg    app.Config
	deps   Deps
	tracer trace.Tracer
	group  singleflight.Group
}

func New(log *logger.Logger, cfg app.Config, deps Deps) (*Orchestrator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Classifier == nil || deps.Parser == nil || deps.Extractor == nil || deps.Ensemble == nil {
		return nil, fmt.Errorf("classifier, parser, extractor and ensemble required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("result cache required")
	}
	if deps.Notify == nil {
		deps.Notify = progress.Nop{}
	}
	return &Orchestrator{
		log:    log.With("component", "PipelineOrchestrator"),
		cfg:    cfg,
		deps:   deps,
		tracer: otel.Tracer("conceptmap/pipeline"),
	}, nil
}

// Process runs the full pipeline for one document. Concurrent calls with
// byte-identical content share a single computation; later callers attach to
// the in-flight run. Cancellation takes effect at stage boundaries and never
// leaves a partial result in the cache.
func (o *Orchestrator) Process(ctx context.Context, documentID string, data []byte) (*domain.ProcessingResult, error) {
	if documentID == "" || len(data) == 0 {
		o.fail(ctx, documentID, "empty document")
		return nil, fmt.Errorf("document id and content required: %w", pkgerrors.ErrInvalidArgument)
	}

	key := cache.KeyFor(data, o.cfg.PipelineVersion)
	log := o.log.With("document_id", documentID, "content_hash", key.ContentHash[:12])

	o.notify(ctx, documentID, domain.StageQueued, 0, "queued")

	if res, ok, err := o.deps.Cache.Get(ctx, key); err != nil {
		log.Warn("cache get failed", "error", err.Error())
	} else if ok {
		log.Info("cache hit; skipping pipeline")
		out := *res
		out.DocumentID = documentID
		out.Metrics.CacheHit = true
		o.notify(ctx, documentID, domain.StageCompleted, 100, "served from cache")
		return &out, nil
	}

	v, err, shared := o.group.Do(key.String(), func() (any, error) {
		return o.run(ctx, documentID, data, key)
	})
	if err != nil {
		// Caller cancellation is not a pipeline failure; the failed state is
		// reserved for fatal errors.
		if !errors.Is(err, pkgerrors.ErrCanceled) {
			o.fail(ctx, documentID, err.Error())
		}
		return nil, err
	}
	res := v.(*domain.ProcessingResult)
	if shared && res.DocumentID != documentID {
		out := *res
		out.DocumentID = documentID
		res = &out
	}
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, documentID string, data []byte, key cache.Key) (res *domain.ProcessingResult, err error) {
	started := time.Now()
	costsBefore := o.costTotals()
	log := o.log.With("document_id", documentID)

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("document.id", documentID),
		attribute.String("content.hash", key.ContentHash[:12]),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// --- parsing ---
	o.notify(ctx, documentID, domain.StageParsing, 10, "classifying and parsing document")
	pctx, parseSpan := o.tracer.Start(ctx, "pipeline.parse")
	classification := o.deps.Classifier.Classify(data)
	pr := o.deps.Parser.Parse(pctx, data, classification.Class)
	parseSpan.SetAttributes(
		attribute.String("document.class", string(classification.Class)),
		attribute.String("parse.method", pr.MethodUsed.String()),
	)
	parseSpan.End()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parsing: %w: %w", pkgerrors.ErrCanceled, err)
	}
	if pr.MethodUsed == domain.MethodNone {
		reason := "no parser stage produced text"
		if len(pr.Warnings) > 0 {
			reason = pr.Warnings[len(pr.Warnings)-1]
		}
		return nil, fmt.Errorf("document %s: %s: %w", documentID, reason, pkgerrors.ErrFatalDocument)
	}
	o.notify(ctx, documentID, domain.StageParsing, 30, "parsed via "+pr.MethodUsed.String())

	// --- hierarchy extraction ---
	o.notify(ctx, documentID, domain.StageHierarchy, 40, "extracting document structure")
	_, hierSpan := o.tracer.Start(ctx, "pipeline.hierarchy")
	outline := o.deps.Extractor.Extract(pr)
	hierSpan.SetAttributes(attribute.Int("hierarchy.nodes", len(outline.Nodes())))
	hierSpan.End()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("hierarchy: %w: %w", pkgerrors.ErrCanceled, err)
	}

	// --- concept extraction ---
	o.notify(ctx, documentID, domain.StageConcepts, 55, "extracting concepts")
	cctx, conceptSpan := o.tracer.Start(ctx, "pipeline.concepts")
	concepts, err := o.extractConcepts(cctx, outline)
	if err != nil {
		conceptSpan.RecordError(err)
		conceptSpan.SetStatus(codes.Error, err.Error())
		conceptSpan.End()
		return nil, err
	}
	conceptSpan.SetAttributes(attribute.Int("concepts.count", len(concepts)))
	conceptSpan.End()
	o.notify(ctx, documentID, domain.StageConcepts, 75, fmt.Sprintf("%d concepts extracted", len(concepts)))

	// --- relationship detection ---
	o.notify(ctx, documentID, domain.StageRelationship, 80, "detecting relationships")
	rctx, relSpan := o.tracer.Start(ctx, "pipeline.relationships")
	relationships, err := o.detectRelationships(rctx, outline, concepts)
	if err != nil {
		relSpan.RecordError(err)
		relSpan.SetStatus(codes.Error, err.Error())
		relSpan.End()
		return nil, err
	}
	relSpan.SetAttributes(attribute.Int("relationships.count", len(relationships)))
	relSpan.End()
	o.notify(ctx, documentID, domain.StageRelationship, 95, fmt.Sprintf("%d relationships detected", len(relationships)))

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("finalize: %w: %w", pkgerrors.ErrCanceled, err)
	}

	res = &domain.ProcessingResult{
		DocumentID:      documentID,
		ContentHash:     key.ContentHash,
		PipelineVersion: key.PipelineVersion,
		Hierarchy:       outline.Roots,
		Concepts:        concepts,
		Relationships:   relationships,
		Metrics: domain.Metrics{
			MethodUsed:        pr.MethodUsed.String(),
			ParseConfidence:   pr.Confidence,
			DocumentClass:     string(classification.Class),
			NodeCount:         len(outline.Nodes()),
			ConceptCount:      len(concepts),
			RelationshipCount: len(relationships),
			Costs:             costsDelta(costsBefore, o.costTotals()),
			Duration:          time.Since(started),
		},
	}

	// Persistence and graph mirroring are best effort: the result itself is
	// already complete.
	if o.deps.Store != nil {
		if err := o.deps.Store.SaveResult(ctx, res); err != nil {
			log.Warn("result persistence failed", "error", err.Error())
		}
	}
	if o.deps.Graph != nil {
		if err := o.deps.Graph.MirrorResult(ctx, res); err != nil {
			log.Warn("graph mirror failed", "error", err.Error())
		}
	}

	if err := ctx.Err(); err != nil {
		// Canceled after the work finished but before the cache write: per
		// the cancellation contract, nothing is cached.
		return nil, fmt.Errorf("finalize: %w: %w", pkgerrors.ErrCanceled, err)
	}
	if err := o.deps.Cache.Put(ctx, key, res); err != nil {
		log.Warn("cache put failed", "error", err.Error())
	}

	o.notify(ctx, documentID, domain.StageCompleted, 100, "processing complete")
	log.Info("pipeline completed",
		"method", res.Metrics.MethodUsed,
		"nodes", res.Metrics.NodeCount,
		"concepts", res.Metrics.ConceptCount,
		"relationships", res.Metrics.RelationshipCount,
		"duration", res.Metrics.Duration.String(),
	)
	return res, nil
}

// extractConcepts fans the ensemble out over hierarchy nodes, bounded by the
// configured concurrency. Node order is preserved in the flattened output;
// concepts within a node already arrive confidence-sorted.
func (o *Orchestrator) extractConcepts(ctx context.Context, outline *hierarchy.Outline) ([]domain.Concept, error) {
	nodes := outline.Nodes()
	perNode := make([][]domain.Concept, len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	limit := o.cfg.NodeConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, node := range nodes {
		segment := outline.Segments[node.ID]
		if strings.TrimSpace(segment) == "" {
			continue
		}
		g.Go(func() error {
			concepts, err := o.deps.Ensemble.Extract(gctx, segment, node)
			if err != nil {
				return err
			}
			perNode[i] = concepts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("concept extraction: %w: %w", pkgerrors.ErrCanceled, ctx.Err())
		}
		return nil, fmt.Errorf("concept extraction: %w", err)
	}

	var out []domain.Concept
	for _, cs := range perNode {
		out = append(out, cs...)
	}
	return out, nil
}

// detectRelationships embeds all concepts into a run-scoped index, then runs
// the detector per concept with bounded parallelism. An embedding failure is
// degradable: the run completes with an empty relationship list.
func (o *Orchestrator) detectRelationships(ctx context.Context, outline *hierarchy.Outline, concepts []domain.Concept) ([]domain.Relationship, error) {
	if len(concepts) < 2 || o.deps.AI == nil {
		return nil, nil
	}

	inputs := make([]string, len(concepts))
	for i, c := range concepts {
		inputs[i] = strings.TrimSpace(c.Term + " " + c.Definition)
	}
	vectors, err := o.deps.AI.Embed(ctx, inputs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("relationship embedding: %w: %w", pkgerrors.ErrCanceled, ctx.Err())
		}
		o.log.Warn("concept embedding failed; skipping relationship detection", "error", err.Error())
		return nil, nil
	}

	chapterOf := outline.ChapterOf()
	idx := index.NewMemory()
	items := make([]index.Item, len(concepts))
	byID := make(map[string]domain.Concept, len(concepts))
	for i, c := range concepts {
		items[i] = index.Item{ID: c.ID, ChapterID: chapterOf[c.StructureID], Vector: vectors[i]}
		byID[c.ID] = c
	}
	if err := idx.Upsert(ctx, items); err != nil {
		return nil, fmt.Errorf("index upsert: %w", err)
	}

	detector := relate.New(o.log, o.deps.AI, idx, relate.Options{
		TopK:           o.cfg.NeighborTopK,
		MinSameChapter: o.cfg.MinSameChapter,
		MaxContextLen:  o.cfg.MaxContextTokens * 4,
	})

	perConcept := make([][]domain.Relationship, len(concepts))
	g, gctx := errgroup.WithContext(ctx)
	limit := o.cfg.ConceptConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, c := range concepts {
		g.Go(func() error {
			rels, err := detector.Detect(gctx, c, vectors[i], chapterOf[c.StructureID], byID)
			if err != nil {
				// Detector errors are degradable per concept.
				o.log.Warn("relationship detection failed", "concept", c.Term, "error", err.Error())
				return nil
			}
			perConcept[i] = rels
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("relationship detection: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("relationship detection: %w: %w", pkgerrors.ErrCanceled, err)
	}

	seen := map[string]bool{}
	var out []domain.Relationship
	for _, rels := range perConcept {
		for _, r := range rels {
			k := r.SourceConceptID + "->" + r.TargetConceptID + ":" + string(r.Type)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, r)
		}
	}
	return out, nil
}

func (o *Orchestrator) notify(ctx context.Context, documentID string, stage domain.Stage, percent int, message string) {
	o.deps.Notify.Publish(ctx, progress.Update{
		DocumentID: documentID,
		Stage:      stage,
		Percent:    percent,
		Message:    message,
	})
}

func (o *Orchestrator) fail(ctx context.Context, documentID, reason string) {
	o.notify(ctx, documentID, domain.StageFailed, 100, reason)
}

func (o *Orchestrator) costTotals() map[string]float64 {
	if o.deps.Costs == nil {
		return nil
	}
	return o.deps.Costs.Totals()
}

func costsDelta(before, after map[string]float64) map[string]float64 {
	if after == nil {
		return nil
	}
	out := map[string]float64{}
	for svc, total := range after {
		if d := total - before[svc]; d > 0 {
			out[svc] = d
		}
	}
	return out
}
