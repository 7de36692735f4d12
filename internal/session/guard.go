package session

import (
	"context"
	"sync"
	"time"
)

// Guard counts down a fixed duration, reporting the remaining time on every
// tick and calling onExpire once when it reaches zero.
type Guard struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartGuard starts the countdown. Callbacks run on the guard goroutine and
// receive a context that is canceled by Stop, so they must not block past it.
func StartGuard(ctx context.Context, total, tick time.Duration, onTick func(context.Context, time.Duration), onExpire func(context.Context)) *Guard {
	if tick <= 0 {
		tick = time.Second
	}
	gctx, cancel := context.WithCancel(ctx)
	g := &Guard{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(g.done)
		t := time.NewTicker(tick)
		defer t.Stop()

		remaining := total
		for {
			select {
			case <-gctx.Done():
				return
			case <-t.C:
			}
			if gctx.Err() != nil {
				return
			}

			remaining -= tick
			if remaining <= 0 {
				onTick(gctx, 0)
				if gctx.Err() == nil {
					onExpire(gctx)
				}
				return
			}
			onTick(gctx, remaining)
		}
	}()

	return g
}

// Stop halts the countdown and waits for the guard goroutine to exit. It is
// safe to call more than once and after expiry.
func (g *Guard) Stop() {
	g.once.Do(g.cancel)
	<-g.done
}

// Done is closed once the guard goroutine has exited.
func (g *Guard) Done() <-chan struct{} { return g.done }
