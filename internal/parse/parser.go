// Package parse implements the structured-parser fallback chain: a
// structure-preserving parse, then OCR with layout detection, then local
// plain-text extraction. No single external dependency failure aborts
// processing; each failed stage only degrades output quality.
package parse

import (
	"context"
	"fmt"
	"time"

	"github.com/atlasnotes/conceptmap-backend/internal/costs"
	"github.com/atlasnotes/conceptmap-backend/internal/domain"
	"github.com/atlasnotes/conceptmap-backend/internal/pkg/httpx"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
)

// Options are the acceptance bars and retry policy of the chain.
type Options struct {
	StructuredMinConfidence float64
	OCRMinConfidence        float64
	PlainTextConfidence     float64
	StageTimeout            time.Duration
	MaxRetries              int
	Backoff                 time.Duration
}

func (o *Options) defaults() {
	if o.StructuredMinConfidence <= 0 {
		o.StructuredMinConfidence = 0.8
	}
	if o.OCRMinConfidence <= 0 {
		o.OCRMinConfidence = 0.6
	}
	if o.PlainTextConfidence <= 0 {
		o.PlainTextConfidence = 0.6
	}
	if o.StageTimeout <= 0 {
		o.StageTimeout = 2 * time.Minute
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
}

type Parser struct {
	log        *logger.Logger
	structured StructuredParseService
	ocr        OCRService
	costs      costs.Recorder
	opts       Options
	plaintext  func(data []byte) (string, int, error)
}

// New builds the parser. structured and ocr may be nil: an absent
// collaborator behaves like a stage that never meets its confidence bar.
func New(log *logger.Logger, structured StructuredParseService, ocr OCRService, rec costs.Recorder, opts Options) *Parser {
	opts.defaults()
	return &Parser{
		log:        log.With("component", "StructuredParser"),
		structured: structured,
		ocr:        ocr,
		costs:      rec,
		opts:       opts,
		plaintext:  ExtractPlainText,
	}
}

// attempt is one entry of the ordered fallback chain. Each run produces a
// ParseResult tagged with its own method variant.
type attempt struct {
	method domain.ParseMethod
	bar    float64
	skip   bool
	run    func(ctx context.Context, data []byte) (*domain.ParseResult, error)
}

// Parse never returns an error for a well-formed PDF. On total failure the
// result carries MethodNone and confidence 0; the orchestrator surfaces that
// as a fatal per-document error.
func (p *Parser) Parse(ctx context.Context, data []byte, class domain.DocumentClass) *domain.ParseResult {
	diag := map[string]any{"class": string(class)}
	var warnings []string

	chain := []attempt{
		{
			method: domain.MethodStructured,
			bar:    p.opts.StructuredMinConfidence,
			skip:   class == domain.ClassScanned || p.structured == nil,
			run:    p.runStructured,
		},
		{
			method: domain.MethodOCR,
			bar:    p.opts.OCRMinConfidence,
			skip:   p.ocr == nil,
			run:    p.runOCR,
		},
		{
			method: domain.MethodPlainText,
			bar:    0, // always accepted when it produces text
			run:    p.runPlainText,
		},
	}

	for _, a := range chain {
		if a.skip {
			diag[a.method.String()+"_skipped"] = true
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}

		started := time.Now()
		res, err := p.runWithRetry(ctx, a, data)
		diag[a.method.String()+"_ms"] = time.Since(started).Milliseconds()

		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s stage failed: %v", a.method, err))
			diag[a.method.String()+"_error"] = err.Error()
			continue
		}
		if res.Confidence < a.bar {
			warnings = append(warnings, fmt.Sprintf("%s stage below confidence bar (%.2f < %.2f)", a.method, res.Confidence, a.bar))
			diag[a.method.String()+"_confidence"] = res.Confidence
			continue
		}

		res.MethodUsed = a.method
		res.Confidence = domain.Clamp01(res.Confidence)
		res.Warnings = append(warnings, res.Warnings...)
		res.Diag = diag
		p.log.Info("parse succeeded",
			"method", a.method.String(),
			"confidence", res.Confidence,
			"text_len", len(res.Text),
		)
		return res
	}

	p.log.Error("all parser stages failed", "warnings", len(warnings))
	return &domain.ParseResult{
		MethodUsed: domain.MethodNone,
		Confidence: 0,
		Warnings:   warnings,
		Diag:       diag,
	}
}

// runWithRetry retries transient failures with backoff before the stage is
// treated as degradable. Context cancellation is never retried.
func (p *Parser) runWithRetry(ctx context.Context, a attempt, data []byte) (*domain.ParseResult, error) {
	var lastErr error
	for try := 0; try <= p.opts.MaxRetries; try++ {
		callCtx, cancel := context.WithTimeout(ctx, p.opts.StageTimeout)
		res, err := a.run(callCtx, data)
		cancel()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !httpx.IsRetryableError(err) || try == p.opts.MaxRetries {
			return nil, err
		}
		delay := httpx.RetryDelay(nil, try, p.opts.Backoff, 10*time.Second)
		p.log.Warn("parser stage retrying",
			"method", a.method.String(),
			"attempt", try+1,
			"sleep", delay.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func (p *Parser) runStructured(ctx context.Context, data []byte) (*domain.ParseResult, error) {
	out, err := p.structured.ParseBytes(ctx, data)
	if err != nil {
		return nil, err
	}
	if p.costs != nil {
		p.costs.Record("structured_parse", costPerMB(len(data), 0.01))
	}
	text := out.Text
	if text == "" {
		text = out.Markdown
	}
	return &domain.ParseResult{
		Text:       text,
		Markdown:   out.Markdown,
		Hint:       domain.HierarchyHint{Headings: out.Headings},
		Confidence: out.Confidence,
		PageCount:  out.PageCount,
	}, nil
}

func (p *Parser) runOCR(ctx context.Context, data []byte) (*domain.ParseResult, error) {
	out, err := p.ocr.OCRBytes(ctx, data)
	if err != nil {
		return nil, err
	}
	if p.costs != nil {
		p.costs.Record("ocr", costPerMB(len(data), 0.05))
	}
	return &domain.ParseResult{
		Text:       out.Text,
		Hint:       domain.HierarchyHint{Blocks: out.Blocks},
		Confidence: out.Confidence,
		PageCount:  out.PageCount,
	}, nil
}

func (p *Parser) runPlainText(_ context.Context, data []byte) (*domain.ParseResult, error) {
	text, pages, err := p.plaintext(data)
	if err != nil {
		return nil, err
	}
	return &domain.ParseResult{
		Text:       text,
		Confidence: p.opts.PlainTextConfidence,
		PageCount:  pages,
	}, nil
}

func costPerMB(sizeBytes int, ratePerMB float64) float64 {
	mb := float64(sizeBytes) / (1024 * 1024)
	if mb < 0.01 {
		mb = 0.01
	}
	return mb * ratePerMB
}
