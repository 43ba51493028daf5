// Package progress carries per-document stage updates from the orchestrator
// to whatever UI/polling layer sits outside the core.
package progress

import (
	"context"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
)

// Update is one progress event.
type Update struct {
	DocumentID string       `json:"document_id"`
	Stage      domain.Stage `json:"stage"`
	Percent    int          `json:"percent"`
	Message    string       `json:"message,omitempty"`
}

// Notifier is the sink interface. Publishing must never block the pipeline
// for long and must never fail it.
type Notifier interface {
	Publish(ctx context.Context, u Update)
}

// Func adapts a function to a Notifier.
type Func func(u Update)

func (f Func) Publish(_ context.Context, u Update) { f(u) }

// Nop discards updates.
type Nop struct{}

func (Nop) Publish(context.Context, Update) {}

// Recorder collects updates in order; used by tests.
type Recorder struct {
	Updates []Update
}

func (r *Recorder) Publish(_ context.Context, u Update) {
	r.Updates = append(r.Updates, u)
}
