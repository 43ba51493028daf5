// Package docparse holds HTTP clients for the two external parsing
// collaborators: a structure-preserving parse service (bytes in, markdown
// with heading hierarchy out) and an OCR/layout service. Both are treated
// as unreliable; retries happen in the parser's fallback chain, not here.
package docparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
	"github.com/atlasnotes/conceptmap-backend/internal/parse"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
)

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("docparse http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newClient(log *logger.Logger, service, envPrefix string) (*client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimSpace(os.Getenv(envPrefix + "_BASE_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing %s_BASE_URL", envPrefix)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeoutSec := 120
	if v := strings.TrimSpace(os.Getenv(envPrefix + "_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &client{
		log:        log.With("client", service),
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(os.Getenv(envPrefix + "_API_KEY")),
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (c *client) post(ctx context.Context, path string, data []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/pdf")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("docparse decode: %w", err)
	}
	return nil
}

// --- structure-preserving parse service ---

type structuredService struct{ c *client }

// NewStructuredService reads DOCPARSE_BASE_URL / DOCPARSE_API_KEY /
// DOCPARSE_TIMEOUT_SECONDS. Returns (nil, nil) when the base URL is unset so
// callers can wire "stage unavailable" without special-casing.
func NewStructuredService(log *logger.Logger) (parse.StructuredParseService, error) {
	if strings.TrimSpace(os.Getenv("DOCPARSE_BASE_URL")) == "" {
		return nil, nil
	}
	c, err := newClient(log, "StructuredParseService", "DOCPARSE")
	if err != nil {
		return nil, err
	}
	return &structuredService{c: c}, nil
}

type structuredWire struct {
	Markdown string `json:"markdown"`
	Text     string `json:"text"`
	Headings []struct {
		Level int    `json:"level"`
		Text  string `json:"text"`
		Page  int    `json:"page"`
	} `json:"headings"`
	PageCount  int     `json:"page_count"`
	Confidence float64 `json:"confidence"`
}

func (s *structuredService) ParseBytes(ctx context.Context, data []byte) (*parse.StructuredResult, error) {
	var wire structuredWire
	if err := s.c.post(ctx, "/v1/parse", data, &wire); err != nil {
		return nil, err
	}
	headings := make([]domain.Heading, 0, len(wire.Headings))
	for _, h := range wire.Headings {
		headings = append(headings, domain.Heading{Level: h.Level, Text: h.Text, Page: h.Page})
	}
	return &parse.StructuredResult{
		Markdown:   wire.Markdown,
		Text:       wire.Text,
		Headings:   headings,
		PageCount:  wire.PageCount,
		Confidence: domain.Clamp01(wire.Confidence),
	}, nil
}

// --- OCR/layout service ---

type ocrService struct{ c *client }

// NewOCRService reads OCR_BASE_URL / OCR_API_KEY / OCR_TIMEOUT_SECONDS.
// Returns (nil, nil) when unset.
func NewOCRService(log *logger.Logger) (parse.OCRService, error) {
	if strings.TrimSpace(os.Getenv("OCR_BASE_URL")) == "" {
		return nil, nil
	}
	c, err := newClient(log, "OCRService", "OCR")
	if err != nil {
		return nil, err
	}
	return &ocrService{c: c}, nil
}

type ocrWire struct {
	Text  string `json:"text"`
	Pages []struct {
		Page   int `json:"page"`
		Blocks []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"blocks"`
	} `json:"pages"`
	Confidence float64 `json:"confidence"`
}

func (s *ocrService) OCRBytes(ctx context.Context, data []byte) (*parse.OCRResult, error) {
	var wire ocrWire
	if err := s.c.post(ctx, "/v1/ocr", data, &wire); err != nil {
		return nil, err
	}
	var blocks []domain.LayoutBlock
	for _, p := range wire.Pages {
		for _, b := range p.Blocks {
			blocks = append(blocks, domain.LayoutBlock{Type: b.Type, Text: b.Text, Page: p.Page})
		}
	}
	return &parse.OCRResult{
		Text:       wire.Text,
		Blocks:     blocks,
		PageCount:  len(wire.Pages),
		Confidence: domain.Clamp01(wire.Confidence),
	}, nil
}
