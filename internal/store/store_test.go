package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
	pkgerrors "github.com/atlasnotes/conceptmap-backend/internal/pkg/errors"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, err := New(db, logger.NewNop())
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	return s
}

func resultFixture(documentID string) *domain.ProcessingResult {
	root := &domain.HierarchyNode{
		ID: "chapter_1", Level: 1, Title: "Intro", Kind: domain.KindHierarchical,
		Children: []*domain.HierarchyNode{
			{ID: "chapter_1_section_1", Level: 2, Title: "Basics", Kind: domain.KindHierarchical, ParentID: "chapter_1"},
		},
	}
	return &domain.ProcessingResult{
		DocumentID:      documentID,
		ContentHash:     "abc123",
		PipelineVersion: "v1",
		Hierarchy:       []*domain.HierarchyNode{root},
		Concepts: []domain.Concept{
			{ID: "chapter_1:alpha", Term: "alpha", Confidence: 0.8, MethodsFound: 3, StructureID: "chapter_1", SourceSentences: []string{"alpha appears"}},
			{ID: "chapter_1:beta", Term: "beta", Confidence: 0.6, MethodsFound: 2, StructureID: "chapter_1"},
		},
		Relationships: []domain.Relationship{
			{SourceConceptID: "chapter_1:alpha", TargetConceptID: "chapter_1:beta", Type: domain.RelEnables, Strength: 0.7, SimilarityScore: 0.6},
		},
		Metrics: domain.Metrics{
			MethodUsed: "structured", ParseConfidence: 0.9, DocumentClass: "digital",
			NodeCount: 2, ConceptCount: 2, RelationshipCount: 1,
			Costs: map[string]float64{"embedding": 0.001}, Duration: 1500 * time.Millisecond,
		},
	}
}

func TestSaveResultPersistsAllTables(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveResult(context.Background(), resultFixture("doc-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	var hier []HierarchyRow
	if err := s.db.Order("position").Find(&hier).Error; err != nil {
		t.Fatalf("query hierarchy: %v", err)
	}
	if len(hier) != 2 {
		t.Fatalf("hierarchy rows: want=2 got=%d", len(hier))
	}
	if hier[0].NodeID != "chapter_1" || hier[0].Position != 0 {
		t.Fatalf("pre-order position: got node=%s pos=%d", hier[0].NodeID, hier[0].Position)
	}
	if hier[1].ParentID != "chapter_1" {
		t.Fatalf("child parent: got=%s", hier[1].ParentID)
	}

	var concepts int64
	s.db.Model(&ConceptRow{}).Count(&concepts)
	if concepts != 2 {
		t.Fatalf("concept rows: want=2 got=%d", concepts)
	}

	var metrics MetricsRow
	if err := s.db.First(&metrics).Error; err != nil {
		t.Fatalf("query metrics: %v", err)
	}
	if metrics.DurationMS != 1500 {
		t.Fatalf("duration ms: want=1500 got=%d", metrics.DurationMS)
	}
	if metrics.Costs == "" || metrics.Costs == "null" {
		t.Fatalf("costs json: got=%q", metrics.Costs)
	}
}

func TestSaveResultReplacesPreviousRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SaveResult(ctx, resultFixture("doc-1")); err != nil {
		t.Fatalf("first save: %v", err)
	}

	updated := resultFixture("doc-1")
	updated.Concepts = updated.Concepts[:1]
	if err := s.SaveResult(ctx, updated); err != nil {
		t.Fatalf("second save: %v", err)
	}

	var concepts int64
	s.db.Model(&ConceptRow{}).Where("document_id = ?", "doc-1").Count(&concepts)
	if concepts != 1 {
		t.Fatalf("concept rows after replace: want=1 got=%d", concepts)
	}
	var metrics int64
	s.db.Model(&MetricsRow{}).Where("document_id = ?", "doc-1").Count(&metrics)
	if metrics != 1 {
		t.Fatalf("metrics rows after replace: want=1 got=%d", metrics)
	}
}

func TestSaveResultKeepsOtherDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SaveResult(ctx, resultFixture("doc-1")); err != nil {
		t.Fatalf("save doc-1: %v", err)
	}
	if err := s.SaveResult(ctx, resultFixture("doc-2")); err != nil {
		t.Fatalf("save doc-2: %v", err)
	}

	var concepts int64
	s.db.Model(&ConceptRow{}).Where("document_id = ?", "doc-1").Count(&concepts)
	if concepts != 2 {
		t.Fatalf("doc-1 rows must survive a doc-2 save: got=%d", concepts)
	}
}

func TestLoadMetrics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SaveResult(ctx, resultFixture("doc-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	row, err := s.LoadMetrics(ctx, "doc-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if row.MethodUsed != "structured" || row.NodeCount != 2 {
		t.Fatalf("metrics row: got method=%s nodes=%d", row.MethodUsed, row.NodeCount)
	}

	if _, err := s.LoadMetrics(ctx, "doc-missing"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSaveResultRejectsMissingDocumentID(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveResult(context.Background(), &domain.ProcessingResult{}); err == nil {
		t.Fatal("missing document id must be rejected")
	}
}
