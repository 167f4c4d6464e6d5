package interfaces

import (
	"context"
	"time"
)

type WatermarkStore interface {
	GetLastSuccessfulSync(ctx context.Context) (*time.Time, error)
	// SetLastSuccessfulSync stores t only when it is later than the stored value and
	// reports whether the row changed.
	SetLastSuccessfulSync(ctx context.Context, t time.Time) (bool, error)
}
