package observability

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/certexam-service/internal/traffic"
)

// FlushTelemetry writes a last summary of the traffic window and syncs the
// logger. Run it after in-flight requests have drained.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, window time.Duration) error {
	if logger == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	errs, total := traffic.ErrorRate(window)
	logger.Info("final traffic window",
		zap.Duration("window", window),
		zap.Int("requests", total),
		zap.Int("errors", errs),
		zap.Int("rate_limited", traffic.Count(traffic.Denied, window)),
	)
	if err := logger.Sync(); err != nil && !isConsoleSyncErr(err) {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}

// Syncing a terminal or pipe fails with EINVAL/ENOTTY on Linux; nothing was lost.
func isConsoleSyncErr(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
