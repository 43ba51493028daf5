package parse

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
)

type fakeStructured struct {
	parseFn func(ctx context.Context, data []byte) (*StructuredResult, error)
	calls   int
}

func (f *fakeStructured) ParseBytes(ctx context.Context, data []byte) (*StructuredResult, error) {
	f.calls++
	return f.parseFn(ctx, data)
}

type fakeOCR struct {
	ocrFn func(ctx context.Context, data []byte) (*OCRResult, error)
	calls int
}

func (f *fakeOCR) OCRBytes(ctx context.Context, data []byte) (*OCRResult, error) {
	f.calls++
	return f.ocrFn(ctx, data)
}

func newTestParser(t *testing.T, structured StructuredParseService, ocr OCRService, plaintext func([]byte) (string, int, error)) *Parser {
	t.Helper()
	p := New(logger.NewNop(), structured, ocr, nil, Options{
		StructuredMinConfidence: 0.8,
		OCRMinConfidence:        0.6,
		PlainTextConfidence:     0.6,
	})
	if plaintext != nil {
		p.plaintext = plaintext
	}
	return p
}

func TestParseUsesStructuredWhenConfident(t *testing.T) {
	structured := &fakeStructured{parseFn: func(context.Context, []byte) (*StructuredResult, error) {
		return &StructuredResult{
			Markdown:   "# Chapter\n\nBody text.",
			Text:       "Chapter Body text.",
			Confidence: 0.95,
			PageCount:  3,
		}, nil
	}}
	ocr := &fakeOCR{ocrFn: func(context.Context, []byte) (*OCRResult, error) {
		t.Fatal("ocr must not be called when structured parse succeeds")
		return nil, nil
	}}
	p := newTestParser(t, structured, ocr, nil)

	res := p.Parse(context.Background(), []byte("%PDF-"), domain.ClassDigital)
	if res.MethodUsed != domain.MethodStructured {
		t.Fatalf("method: want=%v got=%v", domain.MethodStructured, res.MethodUsed)
	}
	if res.Confidence != 0.95 {
		t.Fatalf("confidence: want=0.95 got=%v", res.Confidence)
	}
	if res.Markdown == "" {
		t.Fatal("markdown must be preserved")
	}
}

func TestParseFallsThroughToOCR(t *testing.T) {
	structured := &fakeStructured{parseFn: func(context.Context, []byte) (*StructuredResult, error) {
		return &StructuredResult{Text: "garbled", Confidence: 0.4}, nil
	}}
	ocr := &fakeOCR{ocrFn: func(context.Context, []byte) (*OCRResult, error) {
		return &OCRResult{Text: "scanned body", Confidence: 0.7, PageCount: 2}, nil
	}}
	p := newTestParser(t, structured, ocr, nil)

	res := p.Parse(context.Background(), []byte("%PDF-"), domain.ClassDigital)
	if res.MethodUsed != domain.MethodOCR {
		t.Fatalf("method: want=%v got=%v", domain.MethodOCR, res.MethodUsed)
	}
	if structured.calls != 1 {
		t.Fatalf("structured calls: want=1 got=%d", structured.calls)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("the rejected structured stage must leave a warning")
	}
	if !strings.Contains(res.Warnings[0], "confidence bar") {
		t.Fatalf("unexpected warning: %q", res.Warnings[0])
	}
}

func TestParseFallsThroughToPlainTextWithFlatConfidence(t *testing.T) {
	structured := &fakeStructured{parseFn: func(context.Context, []byte) (*StructuredResult, error) {
		return nil, errors.New("service exploded")
	}}
	ocr := &fakeOCR{ocrFn: func(context.Context, []byte) (*OCRResult, error) {
		return nil, errors.New("ocr down")
	}}
	p := newTestParser(t, structured, ocr, func([]byte) (string, int, error) {
		return "raw extracted text", 4, nil
	})

	res := p.Parse(context.Background(), []byte("%PDF-"), domain.ClassDigital)
	if res.MethodUsed != domain.MethodPlainText {
		t.Fatalf("method: want=%v got=%v", domain.MethodPlainText, res.MethodUsed)
	}
	if res.Confidence != 0.6 {
		t.Fatalf("plaintext confidence is flat: want=0.6 got=%v", res.Confidence)
	}
	if res.PageCount != 4 {
		t.Fatalf("page count: want=4 got=%d", res.PageCount)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("warnings: want=2 got=%d (%v)", len(res.Warnings), res.Warnings)
	}
}

func TestParseSkipsStructuredForScannedDocuments(t *testing.T) {
	structured := &fakeStructured{parseFn: func(context.Context, []byte) (*StructuredResult, error) {
		t.Fatal("structured parse must be skipped for scanned documents")
		return nil, nil
	}}
	ocr := &fakeOCR{ocrFn: func(context.Context, []byte) (*OCRResult, error) {
		return &OCRResult{Text: "scan", Confidence: 0.8}, nil
	}}
	p := newTestParser(t, structured, ocr, nil)

	res := p.Parse(context.Background(), []byte("%PDF-"), domain.ClassScanned)
	if res.MethodUsed != domain.MethodOCR {
		t.Fatalf("method: want=%v got=%v", domain.MethodOCR, res.MethodUsed)
	}
	if structured.calls != 0 {
		t.Fatalf("structured calls: want=0 got=%d", structured.calls)
	}
	if res.Diag["structured_skipped"] != true {
		t.Fatal("diag must record the skipped stage")
	}
}

func TestParseTotalFailureReturnsMethodNone(t *testing.T) {
	structured := &fakeStructured{parseFn: func(context.Context, []byte) (*StructuredResult, error) {
		return nil, errors.New("boom")
	}}
	ocr := &fakeOCR{ocrFn: func(context.Context, []byte) (*OCRResult, error) {
		return nil, errors.New("boom")
	}}
	p := newTestParser(t, structured, ocr, func([]byte) (string, int, error) {
		return "", 0, errors.New("no text layer")
	})

	res := p.Parse(context.Background(), []byte("not a pdf"), domain.ClassHybrid)
	if res.MethodUsed != domain.MethodNone {
		t.Fatalf("method: want=%v got=%v", domain.MethodNone, res.MethodUsed)
	}
	if res.Confidence != 0 {
		t.Fatalf("confidence: want=0 got=%v", res.Confidence)
	}
	if len(res.Warnings) != 3 {
		t.Fatalf("warnings: want=3 got=%d", len(res.Warnings))
	}
}

func TestParseWithoutExternalServicesUsesPlainText(t *testing.T) {
	p := newTestParser(t, nil, nil, func([]byte) (string, int, error) {
		return "local text", 1, nil
	})

	res := p.Parse(context.Background(), []byte("%PDF-"), domain.ClassDigital)
	if res.MethodUsed != domain.MethodPlainText {
		t.Fatalf("method: want=%v got=%v", domain.MethodPlainText, res.MethodUsed)
	}
	if res.Diag["structured_skipped"] != true || res.Diag["ocr_skipped"] != true {
		t.Fatalf("absent services must be recorded as skipped: %v", res.Diag)
	}
}
