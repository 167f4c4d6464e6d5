package ticketsync

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/tracing"
)

// WatermarkGate guards the persisted resume point. The watermark only moves forward.
type WatermarkGate struct {
	store interfaces.WatermarkStore
}

func NewWatermarkGate(store interfaces.WatermarkStore) *WatermarkGate {
	return &WatermarkGate{store: store}
}

// ResumePoint returns the timestamp the next pass fetches strictly after, nil for
// a mailbox that was never synced.
func (g *WatermarkGate) ResumePoint(ctx context.Context) (*time.Time, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WatermarkGate.ResumePoint")
	defer span.Finish()

	resumeFrom, err := g.store.GetLastSuccessfulSync(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to read watermark")
	}
	return resumeFrom, nil
}

// Commit advances the watermark to t. A t at or before the current watermark is a no-op.
func (g *WatermarkGate) Commit(ctx context.Context, t time.Time) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WatermarkGate.Commit")
	defer span.Finish()
	span.LogKV("watermark", t.UTC().Format(time.RFC3339Nano))

	current, err := g.store.GetLastSuccessfulSync(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, errors.Wrap(err, "failed to read watermark")
	}
	if current != nil && !t.After(*current) {
		return false, nil
	}

	advanced, err := g.store.SetLastSuccessfulSync(ctx, t)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, errors.Wrap(err, "failed to advance watermark")
	}
	return advanced, nil
}
