package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
)

// Config configures a Policy.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
	}
}

// Normalize clamps the config to usable values.
func (c Config) Normalize() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = 0
	}
	return c
}

// ConfigSource yields the current retry config. It is consulted once per call so
// tuning changes apply to the next operation.
type ConfigSource func() Config

// Policy executes a single remote operation with bounded attempts and linear
// backoff: after failed attempt n it waits BaseDelay*n before attempt n+1.
type Policy struct {
	source ConfigSource
	log    *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Policy {
	cfg = cfg.Normalize()
	return NewWithSource(func() Config { return cfg }, log)
}

func NewWithSource(source ConfigSource, log *zap.Logger) *Policy {
	if source == nil {
		source = DefaultConfig
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Policy{source: source, log: log.Named("retry")}
}

// Config returns the config the next call will use.
func (p *Policy) Config() Config {
	return p.source().Normalize()
}

// Do runs op until it succeeds, attempts are exhausted, op returns a Permanent
// error, or ctx is done. The last operation error (or the context cause) is
// returned; escalation is up to the caller.
func (p *Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that return a result.
func DoValue[T any](ctx context.Context, p *Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	cfg := p.Config()
	attempt := 0
	log := p.log.With(zap.String("operation", name))

	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		out, err := op(ctx)
		if err != nil && isContextErr(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(&linearBackOff{base: cfg.BaseDelay}),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("remote call failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", cfg.MaxAttempts),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		log.Warn("remote call gave up",
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
	}
	return res, err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// linearBackOff yields base, 2*base, 3*base, ...
type linearBackOff struct {
	base time.Duration
	n    int64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.base * time.Duration(b.n)
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
