// Package resilience wraps calls to external systems with bounded retries and
// a per-dependency circuit breaker.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Config configures retry and breaker behaviour.
type Config struct {
	// MaxAttempts is the total number of tries, including the first one.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// FailureThreshold trips the breaker after this many consecutive failures.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		InitialInterval:  200 * time.Millisecond,
		MaxInterval:      2 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// Runner executes idempotent operations against named dependencies.
type Runner struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func New(cfg Config, logger *zap.Logger) *Runner {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func isPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

func (r *Runner) breaker(name string) *gobreaker.CircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    name,
		Timeout: r.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// a permanent error is the caller's problem, not the dependency's
			return err == nil || isPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("circuit breaker state changed",
				zap.String("dependency", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	r.breakers[name] = cb
	return cb
}

// Retry runs op until it succeeds, returns a Permanent error, the attempts are
// exhausted or ctx is done.
func (r *Runner) Retry(ctx context.Context, name string, op func(ctx context.Context) error) error {
	cb := r.breaker(name)
	attempt := 0

	operation := func() error {
		attempt++
		_, err := cb.Execute(func() (any, error) {
			return nil, op(ctx)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		if !isPermanent(err) {
			r.logger.Debug("retryable failure",
				zap.String("dependency", name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1)), ctx)
	return backoff.Retry(operation, policy)
}
