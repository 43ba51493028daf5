package docparse

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
)

func TestNewStructuredServiceUnconfigured(t *testing.T) {
	t.Setenv("DOCPARSE_BASE_URL", "")
	svc, err := NewStructuredService(logger.NewNop())
	if err != nil {
		t.Fatalf("unset base url must not error: %v", err)
	}
	if svc != nil {
		t.Fatal("unset base url must yield a nil service")
	}
}

func TestNewOCRServiceUnconfigured(t *testing.T) {
	t.Setenv("OCR_BASE_URL", "")
	svc, err := NewOCRService(logger.NewNop())
	if err != nil || svc != nil {
		t.Fatalf("unset base url: svc=%v err=%v", svc, err)
	}
}

func TestStructuredParseBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/parse" {
			t.Fatalf("path: got=%s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/pdf" {
			t.Fatalf("content type: got=%s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "%PDF-bytes" {
			t.Fatalf("body: got=%q", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"markdown":   "# Title\nbody",
			"text":       "Title body",
			"headings":   []map[string]any{{"level": 1, "text": "Title", "page": 1}},
			"page_count": 3,
			"confidence": 0.92,
		})
	}))
	defer srv.Close()
	t.Setenv("DOCPARSE_BASE_URL", srv.URL)

	svc, err := NewStructuredService(logger.NewNop())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	res, err := svc.ParseBytes(context.Background(), []byte("%PDF-bytes"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Confidence != 0.92 || res.PageCount != 3 {
		t.Fatalf("result: confidence=%v pages=%d", res.Confidence, res.PageCount)
	}
	if len(res.Headings) != 1 || res.Headings[0].Text != "Title" {
		t.Fatalf("headings: got=%v", res.Headings)
	}
}

func TestStructuredParseBytesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	t.Setenv("DOCPARSE_BASE_URL", srv.URL)

	svc, err := NewStructuredService(logger.NewNop())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_, err = svc.ParseBytes(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("expected error")
	}
	var he *httpError
	if !errors.As(err, &he) || he.HTTPStatusCode() != http.StatusBadGateway {
		t.Fatalf("error must carry the status code: %v", err)
	}
}

func TestOCRBytesFlattensBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ocr" {
			t.Fatalf("path: got=%s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text": "scanned text",
			"pages": []map[string]any{
				{"page": 1, "blocks": []map[string]any{
					{"type": "title", "text": "Manual"},
					{"type": "paragraph", "text": "Intro."},
				}},
				{"page": 2, "blocks": []map[string]any{
					{"type": "section_header", "text": "Setup"},
				}},
			},
			"confidence": 0.7,
		})
	}))
	defer srv.Close()
	t.Setenv("OCR_BASE_URL", srv.URL)

	svc, err := NewOCRService(logger.NewNop())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	res, err := svc.OCRBytes(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("ocr: %v", err)
	}
	if len(res.Blocks) != 3 {
		t.Fatalf("blocks: want=3 got=%d", len(res.Blocks))
	}
	if res.Blocks[2].Page != 2 {
		t.Fatalf("block page: want=2 got=%d", res.Blocks[2].Page)
	}
	if res.PageCount != 2 {
		t.Fatalf("pages: want=2 got=%d", res.PageCount)
	}
}
