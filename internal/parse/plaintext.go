package parse

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPlainText pulls raw text out of PDF bytes locally, page by page.
// The lowest rung of the fallback chain: no layout, no headings, but it
// works for any non-corrupt PDF without leaving the process.
func ExtractPlainText(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pages = "", 0
			err = fmt.Errorf("pdf text extraction panicked: %v", r)
		}
	}()

	reader, rerr := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if rerr != nil {
		return "", 0, fmt.Errorf("open pdf: %w", rerr)
	}

	total := reader.NumPage()
	var b strings.Builder
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		var line strings.Builder
		lastY := -1.0
		for _, t := range content.Text {
			if lastY >= 0 && t.Y != lastY {
				line.WriteByte('\n')
			}
			line.WriteString(t.S)
			lastY = t.Y
		}
		pageText := strings.TrimSpace(line.String())
		if pageText != "" {
			b.WriteString(pageText)
			b.WriteString("\n\n")
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", 0, fmt.Errorf("no extractable text in %d pages", total)
	}
	return out, total, nil
}
