package netcore

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// leaderPool is the fixed pool of worker goroutines driving the event
// loop. Each worker takes turns owning the event loop: acquire the leader
// mutex, run exactly one blocking iteration of the demultiplexer, release
// the mutex, then — outside the mutex — dispatch whatever was claimed.
// Holding leaderMu only across the demultiplexer call means only one
// worker blocks in the kernel at a time, while handlers run in parallel
// on the rest.
type leaderPool struct {
	ctx        *Context
	leaderMu   sync.Mutex
	wg         sync.WaitGroup
	numThreads atomic.Int32
}

func newLeaderPool(ctx *Context) *leaderPool {
	return &leaderPool{ctx: ctx}
}

// wait blocks until every worker goroutine has exited.
func (lp *leaderPool) wait() {
	lp.wg.Wait()
}

// run is the body of a single worker: register once on first leader
// acquisition, then loop acquiring leadership, running one poller
// iteration, releasing leadership, and dispatching outside the lock.
// The caller (Context.StartWorker) owns lp.wg's Add/Done pairing.
func (lp *leaderPool) run() {
	var registerOnce sync.Once
	for {
		lp.leaderMu.Lock()

		registerOnce.Do(func() {
			lp.numThreads.Inc()
		})

		// Drain pending re-arm / exit events under the leader mutex, so
		// every epoll_ctl-equivalent call made on this fd's behalf is
		// serialised with the blocking wait below.
		exitRequested := lp.ctx.drainAsync()

		// Exit once should_run goes false.
		if exitRequested || !lp.ctx.shouldRun.Load() {
			lp.leaderMu.Unlock()
			return
		}

		ev, err := lp.ctx.poller.waitOne()

		lp.leaderMu.Unlock()

		if err != nil {
			lp.ctx.logger.Error("poller wait failed", zap.Error(err))
			continue
		}
		if ev.isWake {
			// A re-arm post or Shutdown woke us up; loop around to drain
			// the queue and observe should_run.
			continue
		}

		lp.ctx.dispatch(ev)
	}
}
