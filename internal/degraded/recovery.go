package degraded

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ProbeFunc checks whether the backend answers again. Returns nil if recovered.
type ProbeFunc func(ctx context.Context) error

// RecoveryConfig controls the probe schedule.
type RecoveryConfig struct {
	// Initial and Max bound the Fibonacci delay sequence (1, 2, 3, 5, ... x Initial).
	Initial time.Duration
	Max     time.Duration
	// ProbeTimeout bounds a single probe. Defaults to 10s.
	ProbeTimeout time.Duration
	// OnExhausted runs when the last probe fails.
	OnExhausted func()
	// OnRecovered runs after a successful probe.
	OnRecovered func()
	Clock       clockwork.Clock
}

// Recovery probes the backend after the service reports degraded. At most one
// probe sequence runs at a time.
type Recovery struct {
	probe   ProbeFunc
	cfg     RecoveryConfig
	logger  *zap.Logger
	notify  chan struct{}
	running atomic.Bool
}

// NewRecovery creates a Recovery. Call Run to start listening for Notify.
func NewRecovery(probe ProbeFunc, cfg RecoveryConfig, logger *zap.Logger) *Recovery {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.OnExhausted == nil {
		cfg.OnExhausted = func() {}
	}
	if cfg.OnRecovered == nil {
		cfg.OnRecovered = func() {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recovery{probe: probe, cfg: cfg, logger: logger, notify: make(chan struct{}, 1)}
}

// Notify signals that the service is degraded. Non-blocking; safe to call from handlers.
func (r *Recovery) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Running reports whether a probe sequence is in progress.
func (r *Recovery) Running() bool {
	return r.running.Load()
}

// Run starts a probe sequence for each Notify until ctx is done. Notifications
// during a running sequence are dropped.
func (r *Recovery) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.notify:
			if r.running.Swap(true) {
				continue
			}
			go func() {
				defer r.running.Store(false)
				r.Recover(ctx)
			}()
		}
	}
}

// Recover waits out each delay and probes. On success the recorded outcomes
// are cleared so health reports healthy again. After the final failed probe
// OnExhausted is called. Returns true when the backend recovered.
func (r *Recovery) Recover(ctx context.Context) bool {
	delays := fibDelays(r.cfg.Initial, r.cfg.Max)
	for i, d := range delays {
		select {
		case <-ctx.Done():
			return false
		case <-r.cfg.Clock.After(d):
		}
		probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
		err := r.probe(probeCtx)
		cancel()
		if err == nil {
			r.logger.Info("backend recovered", zap.Int("attempt", i+1))
			Reset()
			r.cfg.OnRecovered()
			return true
		}
		r.logger.Warn("recovery probe failed", zap.Int("attempt", i+1), zap.Error(err))
	}
	if len(delays) > 0 && ctx.Err() == nil {
		r.logger.Error("recovery attempts exhausted", zap.Int("attempts", len(delays)))
		r.cfg.OnExhausted()
	}
	return false
}

// fibDelays returns initial x (1, 2, 3, 5, 8, ...) up to max. Empty when
// initial is not positive or exceeds max.
func fibDelays(initial, max time.Duration) []time.Duration {
	if initial <= 0 || max < initial {
		return nil
	}
	var out []time.Duration
	for a, b := int64(1), int64(2); ; a, b = b, a+b {
		d := time.Duration(a) * initial
		if d > max {
			break
		}
		out = append(out, d)
	}
	return out
}
