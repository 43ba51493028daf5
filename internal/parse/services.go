package parse

import (
	"context"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
)

// StructuredResult is what a structure-preserving parse service returns:
// markdown with a heading hierarchy plus its own quality estimate.
type StructuredResult struct {
	Markdown   string
	Text       string
	Headings   []domain.Heading
	PageCount  int
	Confidence float64
}

// OCRResult is what an OCR/layout service returns for image-heavy documents.
type OCRResult struct {
	Text       string
	Blocks     []domain.LayoutBlock
	PageCount  int
	Confidence float64
}

// StructuredParseService converts PDF bytes into markdown preserving the
// heading hierarchy. May fail or time out; the parser treats that as the
// stage missing its confidence bar.
type StructuredParseService interface {
	ParseBytes(ctx context.Context, data []byte) (*StructuredResult, error)
}

// OCRService runs OCR with layout detection over PDF bytes.
type OCRService interface {
	OCRBytes(ctx context.Context, data []byte) (*OCRResult, error)
}
