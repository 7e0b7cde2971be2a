package scheduler

import (
	"context"
	"sync"
	"time"

	"TechTreeCost/internal/ports"
)

// IntervalPoller runs a job right away and then on every tick of a fixed interval.
type IntervalPoller struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

var _ ports.Poller = (*IntervalPoller)(nil)

// NewIntervalPoller builds a poller; non-positive intervals fall back to one second.
func NewIntervalPoller(interval time.Duration) *IntervalPoller {
	if interval <= 0 {
		interval = time.Second
	}
	return &IntervalPoller{interval: interval}
}

// Start begins ticking in a background goroutine. Starting twice is a no-op.
func (p *IntervalPoller) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	p.mu.Lock()
	if p.stop != nil {
		p.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		job(time.Now())
		for {
			select {
			case t := <-ticker.C:
				select {
				case <-stop:
					return
				default:
				}
				job(t)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine. It is safe to call from inside the job.
func (p *IntervalPoller) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stop == nil {
		return nil
	}
	close(p.stop)
	p.stop = nil
	return nil
}
