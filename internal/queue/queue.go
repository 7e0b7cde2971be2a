// Package queue serializes unit cost fetches with a fixed pause between
// requests so the wiki is not hammered while a tree resolves.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"TechTreeCost/internal/domain"
	"TechTreeCost/internal/ports"
)

// DefaultDelay is the pause after every job, including failed ones.
const DefaultDelay = 500 * time.Millisecond

type job struct {
	unitID string
	onDone func(domain.Resolution)
}

// Queue is a FIFO of fetch jobs drained by at most one worker goroutine.
// Enqueued jobs always run; there is no cancellation.
type Queue struct {
	fetcher ports.CostFetcher
	cache   ports.CostCache
	delay   time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending []job
	running bool
	idle    chan struct{}
}

var _ ports.FetchQueue = (*Queue)(nil)

// New builds a queue. A nil cache skips persistence; a negative delay becomes zero.
func New(fetcher ports.CostFetcher, cache ports.CostCache, delay time.Duration, logger *slog.Logger) *Queue {
	if delay < 0 {
		delay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		fetcher: fetcher,
		cache:   cache,
		delay:   delay,
		logger:  logger,
		now:     time.Now,
	}
}

// Enqueue appends a job and starts the worker unless it is already running.
// onDone is called from the worker goroutine.
func (q *Queue) Enqueue(unitID string, onDone func(domain.Resolution)) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, job{unitID: unitID, onDone: onDone})
	if q.running {
		return
	}
	q.running = true
	q.idle = make(chan struct{})
	go q.drain(q.idle)
}

// Wait blocks until the worker has drained the queue or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) drain(idle chan struct{}) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			close(idle)
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.run(next)
		time.Sleep(q.delay)
	}
}

func (q *Queue) run(j job) {
	ctx := context.Background()

	var res domain.Resolution
	rec, err := q.fetcher.FetchCosts(ctx, j.unitID)
	if err != nil {
		q.logger.Warn("fetch failed", "unit", j.unitID, "error", err)
		res = domain.Unresolved(q.now())
	} else {
		res = domain.Resolution{Record: rec, Resolved: true}
		if q.cache != nil {
			if err := q.cache.Set(ctx, j.unitID, rec); err != nil {
				q.logger.Warn("cache write failed", "unit", j.unitID, "error", err)
			}
		}
	}

	if j.onDone != nil {
		j.onDone(res)
	}
}
