// Package classify decides whether a PDF is digital, scanned or hybrid by
// counting pages with extractable text glyphs. Pure heuristic, no external
// calls; anything unreadable defaults to hybrid so the parser runs its full
// fallback chain.
package classify

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
)

type Classifier struct {
	log              *logger.Logger
	digitalRatio     float64
	scannedRatio     float64
	minPageTextRunes int
}

func New(log *logger.Logger, digitalRatio, scannedRatio float64, minPageTextRunes int) *Classifier {
	if digitalRatio <= 0 {
		digitalRatio = 0.9
	}
	if scannedRatio <= 0 {
		scannedRatio = 0.1
	}
	if minPageTextRunes <= 0 {
		minPageTextRunes = 32
	}
	return &Classifier{
		log:              log.With("component", "ContentClassifier"),
		digitalRatio:     digitalRatio,
		scannedRatio:     scannedRatio,
		minPageTextRunes: minPageTextRunes,
	}
}

// Classify never fails: a PDF we cannot read at all comes back as hybrid
// with zero pages, which forces the parser through its full fallback chain.
func (c *Classifier) Classify(data []byte) domain.Classification {
	signals, ok := c.pageSignals(data)
	if !ok || len(signals) == 0 {
		c.log.Warn("classification fell back to hybrid", "pages", len(signals))
		return domain.Classification{Class: domain.ClassHybrid, PageCount: len(signals), Pages: signals}
	}

	withText := 0
	for _, s := range signals {
		if s.HasText {
			withText++
		}
	}
	ratio := float64(withText) / float64(len(signals))

	class := domain.ClassHybrid
	switch {
	case ratio >= c.digitalRatio:
		class = domain.ClassDigital
	case ratio <= c.scannedRatio:
		class = domain.ClassScanned
	}

	c.log.Debug("document classified",
		"class", string(class),
		"pages", len(signals),
		"text_page_ratio", ratio,
	)
	return domain.Classification{
		Class:         class,
		PageCount:     len(signals),
		TextPageRatio: ratio,
		Pages:         signals,
	}
}

// pageSignals walks every page counting extractable text runes. The pdf
// library panics on some malformed inputs, so the walk is recover-guarded.
func (c *Classifier) pageSignals(data []byte) (signals []domain.PageSignal, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("pdf inspection panicked", "panic", r)
			signals = nil
			ok = false
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		c.log.Warn("pdf open failed", "error", err)
		return nil, false
	}

	total := reader.NumPage()
	signals = make([]domain.PageSignal, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		runes := 0
		if !page.V.IsNull() {
			content := page.Content()
			for _, t := range content.Text {
				runes += len(strings.TrimSpace(t.S))
			}
		}
		signals = append(signals, domain.PageSignal{
			Page:      i,
			TextRunes: runes,
			HasText:   runes >= c.minPageTextRunes,
		})
	}
	return signals, true
}
