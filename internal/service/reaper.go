package service

import (
	"context"
	"sync"
	"time"

	"courier/internal/config"
	"courier/internal/domain"
	"courier/internal/logger"
	"courier/internal/repository"
)

// Reaper recycles unclaimed, time-expired pending offers. Instead of
// dropping an expired offer it gets a fresh expiry, its advisory claim is
// cleared, and its reset counter is incremented, so the offer re-enters the
// open pool.
type Reaper struct {
	orders repository.OrderRepository
	cfg    config.LifecycleConfig
	log    logger.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReaper creates a Reaper.
func NewReaper(orders repository.OrderRepository, cfg config.LifecycleConfig, log logger.Logger) *Reaper {
	return &Reaper{
		orders: orders,
		cfg:    cfg,
		log:    log,
		done:   make(chan struct{}),
	}
}

// ReapExpired performs one sweep and returns how many offers were recycled.
// Per-order failures are logged and skipped; the sweep keeps going.
func (r *Reaper) ReapExpired(ctx context.Context) (int, error) {
	all, err := r.orders.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	reaped := 0
	for _, o := range all {
		if o.Status != domain.OrderStatusPending || !o.ExpiresAt.Before(now) {
			continue
		}

		err := r.orders.Patch(ctx, o.ID, map[string]any{
			"expiresAt":       now.Add(r.cfg.OfferTTL),
			"viewingDriverId": nil,
			"resetCount":      o.ResetCount + 1,
			"updatedAt":       now,
		})
		if err != nil {
			r.log.Warn("failed to recycle expired offer",
				logger.String("orderId", o.ID), logger.Error(err))
			continue
		}
		reaped++
	}

	if reaped > 0 {
		r.log.Info("recycled expired offers", logger.Int("count", reaped))
	}
	return reaped, nil
}

// Start launches the periodic sweep. Stop ends it.
func (r *Reaper) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.ReapInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := r.ReapExpired(ctx); err != nil {
					r.log.Warn("reap sweep failed", logger.Error(err))
				}
			case <-r.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the periodic sweep and waits for it to exit. Idempotent.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
	r.wg.Wait()
}
