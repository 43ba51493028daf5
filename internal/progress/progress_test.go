package progress

import (
	"context"
	"testing"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
)

func TestRecorderKeepsOrder(t *testing.T) {
	r := &Recorder{}
	r.Publish(context.Background(), Update{DocumentID: "d", Stage: domain.StageQueued, Percent: 0})
	r.Publish(context.Background(), Update{DocumentID: "d", Stage: domain.StageParsing, Percent: 10})

	if len(r.Updates) != 2 {
		t.Fatalf("updates: want=2 got=%d", len(r.Updates))
	}
	if r.Updates[0].Stage != domain.StageQueued || r.Updates[1].Stage != domain.StageParsing {
		t.Fatalf("order: got=%v", r.Updates)
	}
}

func TestFuncAdapter(t *testing.T) {
	var got Update
	n := Func(func(u Update) { got = u })
	n.Publish(context.Background(), Update{DocumentID: "d", Percent: 55})
	if got.Percent != 55 {
		t.Fatalf("percent: want=55 got=%d", got.Percent)
	}
}
