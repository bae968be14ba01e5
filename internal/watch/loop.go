package watch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/jab/internal/logging"
)

// DefaultInterval is the minimum time between two snapshots.
const DefaultInterval = 30 * time.Second

// Snapshotter takes one snapshot.
type Snapshotter func(ctx context.Context) error

// Loop takes a snapshot for every detector event, at most once per
// interval. Snapshot errors are logged and do not stop the loop. Loop
// returns when ctx is done.
func Loop(ctx context.Context, d *Detector, interval time.Duration, snap Snapshotter) error {
	logger := logging.FromContext(ctx)

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.Events():
			if err := limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			logger.Debug(ctx, "taking snapshot", zap.Time("changed_at", ev.Timestamp))
			if err := snap(ctx); err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return nil
				}
				logger.Error(ctx, "snapshot failed", zap.Error(err))
			}
		}
	}
}
