package analyzer

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// probeLimiter paces distribution probes and bounds how many run at once.
type probeLimiter struct {
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// newProbeLimiter returns a limiter allowing requestsPerSecond (0 = unlimited)
// and at most concurrency probes in flight (0 = unbounded).
func newProbeLimiter(requestsPerSecond float64, concurrency int) *probeLimiter {
	l := &probeLimiter{}
	if requestsPerSecond > 0 {
		burst := concurrency
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	if concurrency > 0 {
		l.sem = semaphore.NewWeighted(int64(concurrency))
	}
	return l
}

// acquire blocks until a probe may start. The returned func releases the slot.
func (l *probeLimiter) acquire(ctx context.Context) (func(), error) {
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	release := func() {
		if l.sem != nil {
			l.sem.Release(1)
		}
	}
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			release()
			return nil, err
		}
	}
	return release, nil
}
