package cronrunner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"skycover/internal/policy"
	"skycover/internal/repository"
)

// ExpirySweep transitions past-window active policies to expired so recorded
// liability falls back in line with live exposure.
func ExpirySweep(repo repository.Repository, registry *policy.Registry, logger *zap.Logger, limit int) func(context.Context) error {
	return func(ctx context.Context) error {
		ids, err := repo.ListDueActivePolicyIDs(ctx, time.Now().UTC(), limit)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		n, err := registry.ExpirePolicies(ctx, ids)
		if err != nil {
			return err
		}
		if n > 0 && logger != nil {
			logger.Info("expired policies", zap.Int("count", n))
		}
		return nil
	}
}

// EventRetention deletes event rows older than the retention window.
func EventRetention(repo repository.Repository, logger *zap.Logger, retentionDays int) func(context.Context) error {
	return func(ctx context.Context) error {
		if retentionDays <= 0 {
			return nil
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
		n, err := repo.DeleteEventsBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		if n > 0 && logger != nil {
			logger.Info("pruned events", zap.Int64("count", n))
		}
		return nil
	}
}
