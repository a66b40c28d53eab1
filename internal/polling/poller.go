// Package polling implements pseudo-realtime updates by re-fetching on a
// fixed interval. The subscription surface (start/stop/callback) matches
// what a push-based transport would expose, so consumers do not change if
// polling is ever replaced.
package polling

import (
	"context"
	"sync"
	"time"
)

// Options configures one subscription. Interval is caller configuration:
// distinct call sites use distinct intervals (a message feed polls every
// couple of seconds, a list refresh every half minute).
type Options struct {
	// Interval between successful fetches.
	Interval time.Duration

	// MaxAttempts bounds consecutive failed fetches before the subscription
	// gives up. Zero means DefaultMaxAttempts.
	MaxAttempts int

	// Backoff is the base delay after a failed fetch; the actual delay grows
	// linearly with the consecutive failure count. Zero means DefaultBackoff.
	Backoff time.Duration
}

// Defaults applied when Options fields are zero.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = time.Second
)

// Subscription is a live polling loop. Stop tears down the timer and
// discards the result of a fetch still in flight; the request itself is not
// aborted.
type Subscription[T any] struct {
	fetch    func(context.Context) (T, error)
	onResult func(T)
	onError  func(error)
	opts     Options

	mu       sync.Mutex
	stopped  bool
	done     chan struct{}
	stopOnce sync.Once
}

// Subscribe starts polling: one immediate fetch, then one fetch per
// interval. Each successful result is delivered to onResult. After
// MaxAttempts consecutive failures the loop stops and onError fires exactly
// once. Fetches within one subscription are serialized: a new fetch never
// starts before the previous callback returns.
func Subscribe[T any](
	ctx context.Context,
	fetch func(context.Context) (T, error),
	opts Options,
	onResult func(T),
	onError func(error),
) *Subscription[T] {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}

	s := &Subscription[T]{
		fetch:    fetch,
		onResult: onResult,
		onError:  onError,
		opts:     opts,
		done:     make(chan struct{}),
	}

	go s.run(ctx)
	return s
}

// Stop cancels the subscription. Idempotent; safe to call from callbacks.
// Stop does not wait for the loop: a delivery that passed the stopped check
// just before Stop may still fire or complete concurrently with it.
func (s *Subscription[T]) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription[T]) run(ctx context.Context) {
	failures := 0

	for {
		value, err := s.fetch(ctx)

		if err != nil {
			failures++
			if failures >= s.opts.MaxAttempts {
				s.deliverError(err)
				return
			}
			if !s.wait(time.Duration(failures) * s.opts.Backoff) {
				return
			}
			continue
		}

		failures = 0
		if !s.deliver(value) {
			return
		}
		if !s.wait(s.opts.Interval) {
			return
		}
	}
}

// deliver invokes onResult unless the subscription was stopped while the
// fetch was in flight. The lock is not held during the callback so that
// callbacks may call Stop. Returns false when the loop should exit.
func (s *Subscription[T]) deliver(value T) bool {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return false
	}
	s.onResult(value)
	return true
}

func (s *Subscription[T]) deliverError(err error) {
	s.mu.Lock()
	alreadyStopped := s.stopped
	s.stopped = true
	s.mu.Unlock()
	if alreadyStopped {
		return
	}
	if s.onError != nil {
		s.onError(err)
	}
}

// wait sleeps for d or until Stop. Returns false when stopped.
func (s *Subscription[T]) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.done:
		return false
	}
}
