package provider

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"skycover/internal/oracle"
)

// Source yields observations for pending requests.
type Source interface {
	Observe(ctx context.Context, location, parameter string) (Observation, error)
}

// AutoFulfiller drains pending weather requests by fetching live data and
// delivering it through the gateway as the configured oracle subject. Meant
// for deployments where the operator runs the oracle itself.
type AutoFulfiller struct {
	Gateway    *oracle.Gateway
	Source     Source
	Logger     *zap.Logger
	Subject    string
	BatchLimit int
}

// Run processes one batch of pending requests. Individual failures are
// logged and skipped so one bad location cannot stall the queue.
func (a *AutoFulfiller) Run(ctx context.Context) error {
	limit := a.BatchLimit
	if limit <= 0 {
		limit = 20
	}
	pending, err := a.Gateway.PendingRequests(ctx, limit)
	if err != nil {
		return err
	}
	for _, req := range pending {
		obs, err := a.Source.Observe(ctx, req.Location, req.Parameter)
		if err != nil {
			if a.Logger != nil {
				a.Logger.Warn("auto-fulfill observe failed",
					zap.String("request_id", req.RequestID),
					zap.String("location", req.Location),
					zap.Error(err),
				)
			}
			continue
		}
		observedAt := obs.ObservedAt
		if observedAt.IsZero() {
			observedAt = time.Now().UTC()
		}
		result, err := a.Gateway.Fulfill(ctx, a.Subject, req.RequestID, obs.Value, observedAt)
		if err != nil {
			// Another deliverer may have won; that is not a failure.
			if errors.Is(err, oracle.ErrRequestNotPending) {
				continue
			}
			if a.Logger != nil {
				a.Logger.Warn("auto-fulfill delivery failed",
					zap.String("request_id", req.RequestID),
					zap.Error(err),
				)
			}
			continue
		}
		if a.Logger != nil {
			a.Logger.Info("auto-fulfilled weather request",
				zap.String("request_id", req.RequestID),
				zap.Int64("value", obs.Value),
				zap.Int("claims", len(result.Claims)),
			)
		}
	}
	return nil
}
