package control

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Watcher polls a Signals set on an interval and caches the result, so hot
// read loops never touch the filesystem. The watcher context is canceled on
// the first interrupt, which releases requests blocked on the network.
type Watcher struct {
	signals  *Signals
	interval time.Duration
	state    atomic.Pointer[State]
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func (s *Signals) Watch(parent context.Context, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(parent)
	w := &Watcher{
		signals:  s,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	w.refresh()
	go w.loop()
	return w
}

func (w *Watcher) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.refresh()
		}
	}
}

func (w *Watcher) refresh() State {
	st := w.signals.Read()
	w.state.Store(&st)
	if st.Interrupted() {
		w.cancel()
	}
	return st
}

// State returns the last cached observation.
func (w *Watcher) State() State {
	return *w.state.Load()
}

// Fresh re-reads the flags immediately.
func (w *Watcher) Fresh() State {
	return w.refresh()
}

// Context is canceled on interrupt, parent cancellation or Stop.
func (w *Watcher) Context() context.Context {
	return w.ctx
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.cancel()
		<-w.done
	})
}
