package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const keyProductLock = "marketplace:product:lock:%d"

var ErrLocked = errors.New("product_locked")

// ProductLock serializes mutations of one product across instances. A nil or
// disabled ProductLock always succeeds.
type ProductLock struct {
	locker *Locker
	ttl    time.Duration
	log    *zap.Logger
}

func NewProductLock(locker *Locker, ttl time.Duration, log *zap.Logger) *ProductLock {
	if locker == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductLock{locker: locker, ttl: ttl, log: log.Named("product.lock")}
}

func (p *ProductLock) Enabled() bool {
	return p != nil && p.locker != nil
}

// Acquire takes the lock for productID. The returned release func is always
// non-nil and safe to call once.
func (p *ProductLock) Acquire(ctx context.Context, productID int64) (func(), error) {
	if !p.Enabled() {
		return func() {}, nil
	}

	key := fmt.Sprintf(keyProductLock, productID)
	token, ok, err := p.locker.TryLock(ctx, key, p.ttl)
	if err != nil {
		return func() {}, fmt.Errorf("acquire product lock: %w", err)
	}
	if !ok {
		return func() {}, ErrLocked
	}

	return func() {
		// Release even if the request context is already done.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := p.locker.Release(releaseCtx, key, token); err != nil {
			p.log.Warn("failed to release product lock", zap.Int64("product_id", productID), zap.Error(err))
		}
	}, nil
}
