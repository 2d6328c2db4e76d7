// Package control wraps worker invocations with the retry policy and
// scores finished artifacts. It decides, per result envelope, whether to
// re-delegate, escalate, or accept.
package control

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/knowflow/knowflow/internal/envelope"
	"github.com/knowflow/knowflow/internal/metrics"
)

// Worker is the unit of delegation the controller drives. Implementations
// must never fail past this boundary; every failure comes back as a
// typed result envelope.
type Worker interface {
	// Execute performs one attempt of the delegated task.
	Execute(ctx context.Context, task envelope.Task) envelope.Result
}

// Config holds the retry policy knobs.
type Config struct {
	// MaxRetries is how many times a retryable failure is re-delegated
	// before it escalates, so total attempts = MaxRetries + 1.
	MaxRetries int
	// BackoffBase is the delay before the first retry; each subsequent
	// retry doubles it, capped at BackoffCap.
	BackoffBase time.Duration
	// BackoffCap bounds the per-retry delay.
	BackoffCap time.Duration
}

// Controller applies the retry policy around worker execution.
type Controller struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	// sleep is swapped in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a controller. A nil logger falls back to a nop logger;
// nil metrics fall back to an unexported registry.
func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Controller {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Controller{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		sleep:   sleepCtx,
	}
}

// Execute drives a worker to a terminal result. Retryable failures are
// re-delegated with a fresh task envelope (new task id, attempt+1) and
// bounded backoff; exhausting the retry budget converts the last
// retryable failure into a fatal one carrying the original cause.
// Fatal failures never retry.
func (c *Controller) Execute(ctx context.Context, w Worker, task envelope.Task) envelope.Result {
	for {
		res := w.Execute(ctx, task)

		switch res.Status {
		case envelope.StatusSuccess:
			return res
		case envelope.StatusFatalFailure:
			c.metrics.StageFailures.WithLabelValues(string(task.Kind), string(res.Class)).Inc()
			c.logger.Warn("stage failed fatally",
				zap.String("kind", string(task.Kind)),
				zap.String("task_id", task.TaskID),
				zap.Int("attempt", task.Attempt),
				zap.String("class", string(res.Class)),
				zap.Error(res.Err))
			return res
		}

		// Retryable failure from here on.
		if task.Attempt >= c.cfg.MaxRetries {
			c.metrics.StageFailures.WithLabelValues(string(task.Kind), string(res.Class)).Inc()
			c.logger.Warn("retry budget exhausted",
				zap.String("kind", string(task.Kind)),
				zap.String("correlation_id", task.CorrelationID),
				zap.Int("attempts", task.Attempt+1),
				zap.Error(res.Err))
			res.Status = envelope.StatusFatalFailure
			res.Err = fmt.Errorf("%s failed after %d attempts: %w", task.Kind, task.Attempt+1, res.Err)
			return res
		}

		c.metrics.StageRetries.WithLabelValues(string(task.Kind)).Inc()
		delay := c.backoff(task.Attempt)
		c.logger.Info("retrying stage",
			zap.String("kind", string(task.Kind)),
			zap.String("correlation_id", task.CorrelationID),
			zap.Int("next_attempt", task.Attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(res.Err))

		if err := c.sleep(ctx, delay); err != nil {
			res.Status = envelope.StatusFatalFailure
			res.Err = fmt.Errorf("%s aborted during backoff: %w", task.Kind, err)
			return res
		}
		task = task.Retry()
	}
}

// backoff returns the delay before re-delegating attempt+1.
func (c *Controller) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffBase
	for i := 0; i < attempt && d < c.cfg.BackoffCap; i++ {
		d *= 2
	}
	if d > c.cfg.BackoffCap {
		d = c.cfg.BackoffCap
	}
	return d
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
