package classify

import (
	"testing"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
)

func TestClassifyUnreadableInputFallsBackToHybrid(t *testing.T) {
	c := New(logger.NewNop(), 0.9, 0.1, 32)

	got := c.Classify([]byte("definitely not a pdf"))
	if got.Class != domain.ClassHybrid {
		t.Fatalf("class: want=%v got=%v", domain.ClassHybrid, got.Class)
	}
	if got.PageCount != 0 {
		t.Fatalf("page count: want=0 got=%d", got.PageCount)
	}
}

func TestClassifyEmptyInput(t *testing.T) {
	c := New(logger.NewNop(), 0.9, 0.1, 32)
	if got := c.Classify(nil); got.Class != domain.ClassHybrid {
		t.Fatalf("class: want=%v got=%v", domain.ClassHybrid, got.Class)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(logger.NewNop(), 0, 0, 0)
	if c.digitalRatio != 0.9 || c.scannedRatio != 0.1 || c.minPageTextRunes != 32 {
		t.Fatalf("defaults: got %v / %v / %d", c.digitalRatio, c.scannedRatio, c.minPageTextRunes)
	}
}
