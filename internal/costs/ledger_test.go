package costs

import (
	"sync"
	"testing"
)

func TestLedgerAccumulatesPerService(t *testing.T) {
	l := NewLedger(nil)
	l.Record("embedding", 0.002)
	l.Record("embedding", 0.003)
	l.Record("reasoning", 0.01)

	totals := l.Totals()
	if got := totals["embedding"]; got != 0.005 {
		t.Fatalf("embedding total: want=0.005 got=%v", got)
	}
	if got := totals["reasoning"]; got != 0.01 {
		t.Fatalf("reasoning total: want=0.01 got=%v", got)
	}
}

func TestLedgerIgnoresInvalidRecords(t *testing.T) {
	l := NewLedger(nil)
	l.Record("", 1)
	l.Record("ocr", -5)

	totals := l.Totals()
	if len(totals) != 1 || totals["ocr"] != 0 {
		t.Fatalf("totals: got=%v", totals)
	}
}

func TestLedgerTotalsReturnsCopy(t *testing.T) {
	l := NewLedger(nil)
	l.Record("ocr", 1)
	totals := l.Totals()
	totals["ocr"] = 99
	if l.Totals()["ocr"] != 1 {
		t.Fatal("Totals must return a copy")
	}
}

func TestLedgerReset(t *testing.T) {
	l := NewLedger(nil)
	l.Record("ocr", 1)
	l.Reset()
	if len(l.Totals()) != 0 {
		t.Fatalf("totals after reset: got=%v", l.Totals())
	}
}

func TestLedgerConcurrentRecords(t *testing.T) {
	l := NewLedger(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record("embedding", 0.001)
		}()
	}
	wg.Wait()
	got := l.Totals()["embedding"]
	if got < 0.049 || got > 0.051 {
		t.Fatalf("concurrent total: want=0.05 got=%v", got)
	}
}
