// Package domain holds the shared data model of the document-understanding
// pipeline: structural hierarchy nodes, extracted concepts, typed
// relationships between them, and the parse/processing envelopes.
package domain

import "time"

// DocumentClass is the content classifier's verdict for a PDF.
type DocumentClass string

const (
	ClassDigital DocumentClass = "digital"
	ClassScanned DocumentClass = "scanned"
	ClassHybrid  DocumentClass = "hybrid"
)

// PageSignal is the per-page evidence behind a classification.
type PageSignal struct {
	Page      int  `json:"page"`
	TextRunes int  `json:"text_runes"`
	HasText   bool `json:"has_text"`
}

// Classification bundles the class with its per-page signals.
type Classification struct {
	Class         DocumentClass `json:"class"`
	PageCount     int           `json:"page_count"`
	TextPageRatio float64       `json:"text_page_ratio"`
	Pages         []PageSignal  `json:"pages,omitempty"`
}

// ParseMethod is a closed tagged variant naming which parser stage produced
// a ParseResult. The fallback chain is an ordered list of attempts, each
// producing exactly one of these.
type ParseMethod int

const (
	MethodNone ParseMethod = iota
	MethodStructured
	MethodOCR
	MethodPlainText
)

func (m ParseMethod) String() string {
	switch m {
	case MethodStructured:
		return "structured"
	case MethodOCR:
		return "ocr"
	case MethodPlainText:
		return "plaintext"
	default:
		return "none"
	}
}

// Heading is one entry of a parser-provided heading list.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	Page  int    `json:"page,omitempty"`
}

// LayoutBlock is one detected layout region from an OCR/layout parse.
type LayoutBlock struct {
	Type string `json:"type"` // "title", "section_header", "paragraph"
	Text string `json:"text"`
	Page int    `json:"page,omitempty"`
}

// HierarchyHint carries whatever structural evidence the parser saw.
type HierarchyHint struct {
	Headings []Heading     `json:"headings,omitempty"`
	Blocks   []LayoutBlock `json:"blocks,omitempty"`
}

// ParseResult is the output of the structured parser fallback chain.
type ParseResult struct {
	Text       string         `json:"text"`
	Markdown   string         `json:"markdown,omitempty"`
	Hint       HierarchyHint  `json:"hierarchy_hint,omitempty"`
	MethodUsed ParseMethod    `json:"method_used"`
	Confidence float64        `json:"confidence"`
	PageCount  int            `json:"page_count,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
	Diag       map[string]any `json:"diag,omitempty"`
}

// NodeKind distinguishes organizational structure from ordered procedure.
type NodeKind string

const (
	KindHierarchical NodeKind = "hierarchical"
	KindSequential   NodeKind = "sequential"
)

// HierarchyNode is one addressable structural unit of a document. Nodes are
// created once during hierarchy extraction and immutable afterwards.
type HierarchyNode struct {
	ID        string           `json:"id"`
	Level     int              `json:"level"` // 1..6
	Title     string           `json:"title"`
	Kind      NodeKind         `json:"kind"`
	ParentID  string           `json:"parent_id,omitempty"`
	Children  []*HierarchyNode `json:"children,omitempty"`
	PageStart int              `json:"page_start"` // 0 when unknown
	PageEnd   int              `json:"page_end"`
}

// Walk visits the node and its descendants in document (pre-)order.
func (n *HierarchyNode) Walk(visit func(*HierarchyNode)) {
	if n == nil {
		return
	}
	visit(n)
	for _, c := range n.Children {
		c.Walk(visit)
	}
}

// Concept is a candidate domain term anchored to a structural node.
type Concept struct {
	ID              string   `json:"id"`
	Term            string   `json:"term"`
	Definition      string   `json:"definition,omitempty"`
	Confidence      float64  `json:"confidence"`
	MethodsFound    int      `json:"methods_found"` // 1..3
	StructureID     string   `json:"structure_id"`
	SourceSentences []string `json:"source_sentences,omitempty"`
}

// RelationType is the closed vocabulary for concept edges.
type RelationType string

const (
	RelIsA           RelationType = "is_a"
	RelHasComponent  RelationType = "has_component"
	RelPrecedes      RelationType = "precedes"
	RelEnables       RelationType = "enables"
	RelContrastsWith RelationType = "contrasts_with"
)

// ValidRelationType reports whether t is part of the closed vocabulary.
func ValidRelationType(t RelationType) bool {
	switch t {
	case RelIsA, RelHasComponent, RelPrecedes, RelEnables, RelContrastsWith:
		return true
	default:
		return false
	}
}

// Relationship is a directed, typed edge between two concepts of the same
// processing run.
type Relationship struct {
	SourceConceptID string       `json:"source_concept_id"`
	TargetConceptID string       `json:"target_concept_id"`
	Type            RelationType `json:"relationship_type"`
	Strength        float64      `json:"strength"`
	SimilarityScore float64      `json:"similarity_score,omitempty"`
	Explanation     string       `json:"explanation,omitempty"`
}

// Stage names one orchestrator state.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageParsing      Stage = "parsing"
	StageHierarchy    Stage = "hierarchy_extraction"
	StageConcepts     Stage = "concept_extraction"
	StageRelationship Stage = "relationship_detection"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// Metrics is the per-document processing record.
type Metrics struct {
	MethodUsed        string             `json:"method_used"`
	ParseConfidence   float64            `json:"parse_confidence"`
	DocumentClass     string             `json:"document_class"`
	NodeCount         int                `json:"node_count"`
	ConceptCount      int                `json:"concept_count"`
	RelationshipCount int                `json:"relationship_count"`
	Costs             map[string]float64 `json:"costs,omitempty"`
	Duration          time.Duration      `json:"duration"`
	CacheHit          bool               `json:"cache_hit"`
}

// ProcessingResult is the complete, immutable output of one pipeline run.
type ProcessingResult struct {
	DocumentID      string           `json:"document_id"`
	ContentHash     string           `json:"content_hash"`
	PipelineVersion string           `json:"pipeline_version"`
	Hierarchy       []*HierarchyNode `json:"hierarchy"`
	Concepts        []Concept        `json:"concepts"`
	Relationships   []Relationship   `json:"relationships"`
	Metrics         Metrics          `json:"metrics"`
}

// Clamp01 clamps a score to [0,1]. Every confidence, strength and similarity
// stored on the model goes through this.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
