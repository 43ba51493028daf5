// Package store persists completed processing results: one hierarchy, one
// concept list, one relationship list and one metrics record per document.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
	pkgerrors "github.com/atlasnotes/conceptmap-backend/internal/pkg/errors"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
)

type HierarchyRow struct {
	ID         uint   `gorm:"primaryKey"`
	DocumentID string `gorm:"index:idx_hier_doc"`
	NodeID     string
	Level      int
	Title      string
	Kind       string
	ParentID   string
	Position   int // pre-order position within the document
	PageStart  int
	PageEnd    int
}

type ConceptRow struct {
	ID              uint   `gorm:"primaryKey"`
	DocumentID      string `gorm:"index:idx_concept_doc"`
	ConceptID       string
	Term            string
	Definition      string
	Confidence      float64
	MethodsFound    int
	StructureID     string
	SourceSentences string // JSON array
}

type RelationshipRow struct {
	ID              uint   `gorm:"primaryKey"`
	DocumentID      string `gorm:"index:idx_rel_doc"`
	SourceConceptID string
	TargetConceptID string
	Type            string
	Strength        float64
	SimilarityScore float64
	Explanation     string
}

type MetricsRow struct {
	ID                uint   `gorm:"primaryKey"`
	DocumentID        string `gorm:"uniqueIndex:idx_metrics_doc"`
	ContentHash       string
	PipelineVersion   string
	MethodUsed        string
	ParseConfidence   float64
	DocumentClass     string
	NodeCount         int
	ConceptCount      int
	RelationshipCount int
	Costs             string // JSON object service -> estimate
	DurationMS        int64
	CreatedAt         time.Time
}

type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(db *gorm.DB, log *logger.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := db.AutoMigrate(&HierarchyRow{}, &ConceptRow{}, &RelationshipRow{}, &MetricsRow{}); err != nil {
		return nil, fmt.Errorf("migrate result tables: %w", err)
	}
	return &Store{db: db, log: log.With("component", "ResultStore")}, nil
}

// SaveResult replaces any previous rows for the document in one
// transaction.
func (s *Store) SaveResult(ctx context.Context, res *domain.ProcessingResult) error {
	if res == nil || res.DocumentID == "" {
		return fmt.Errorf("result with document id required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&HierarchyRow{}, &ConceptRow{}, &RelationshipRow{}, &MetricsRow{}} {
			if err := tx.Where("document_id = ?", res.DocumentID).Delete(model).Error; err != nil {
				return fmt.Errorf("clear previous rows: %w", err)
			}
		}

		position := 0
		var hierRows []HierarchyRow
		for _, root := range res.Hierarchy {
			root.Walk(func(n *domain.HierarchyNode) {
				hierRows = append(hierRows, HierarchyRow{
					DocumentID: res.DocumentID,
					NodeID:     n.ID,
					Level:      n.Level,
					Title:      n.Title,
					Kind:       string(n.Kind),
					ParentID:   n.ParentID,
					Position:   position,
					PageStart:  n.PageStart,
					PageEnd:    n.PageEnd,
				})
				position++
			})
		}
		if len(hierRows) > 0 {
			if err := tx.Create(&hierRows).Error; err != nil {
				return fmt.Errorf("insert hierarchy: %w", err)
			}
		}

		var conceptRows []ConceptRow
		for _, c := range res.Concepts {
			sentences, _ := json.Marshal(c.SourceSentences)
			conceptRows = append(conceptRows, ConceptRow{
				DocumentID:      res.DocumentID,
				ConceptID:       c.ID,
				Term:            c.Term,
				Definition:      c.Definition,
				Confidence:      c.Confidence,
				MethodsFound:    c.MethodsFound,
				StructureID:     c.StructureID,
				SourceSentences: string(sentences),
			})
		}
		if len(conceptRows) > 0 {
			if err := tx.Create(&conceptRows).Error; err != nil {
				return fmt.Errorf("insert concepts: %w", err)
			}
		}

		var relRows []RelationshipRow
		for _, r := range res.Relationships {
			relRows = append(relRows, RelationshipRow{
				DocumentID:      res.DocumentID,
				SourceConceptID: r.SourceConceptID,
				TargetConceptID: r.TargetConceptID,
				Type:            string(r.Type),
				Strength:        r.Strength,
				SimilarityScore: r.SimilarityScore,
				Explanation:     r.Explanation,
			})
		}
		if len(relRows) > 0 {
			if err := tx.Create(&relRows).Error; err != nil {
				return fmt.Errorf("insert relationships: %w", err)
			}
		}

		costs, _ := json.Marshal(res.Metrics.Costs)
		metrics := MetricsRow{
			DocumentID:        res.DocumentID,
			ContentHash:       res.ContentHash,
			PipelineVersion:   res.PipelineVersion,
			MethodUsed:        res.Metrics.MethodUsed,
			ParseConfidence:   res.Metrics.ParseConfidence,
			DocumentClass:     res.Metrics.DocumentClass,
			NodeCount:         res.Metrics.NodeCount,
			ConceptCount:      res.Metrics.ConceptCount,
			RelationshipCount: res.Metrics.RelationshipCount,
			Costs:             string(costs),
			DurationMS:        res.Metrics.Duration.Milliseconds(),
			CreatedAt:         time.Now().UTC(),
		}
		if err := tx.Create(&metrics).Error; err != nil {
			return fmt.Errorf("insert metrics: %w", err)
		}
		return nil
	})
}

// LoadMetrics returns the persisted metrics record for a document.
func (s *Store) LoadMetrics(ctx context.Context, documentID string) (*MetricsRow, error) {
	if documentID == "" {
		return nil, fmt.Errorf("document id required: %w", pkgerrors.ErrInvalidArgument)
	}
	var row MetricsRow
	err := s.db.WithContext(ctx).Where("document_id = ?", documentID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("metrics for document %s: %w", documentID, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	return &row, nil
}
