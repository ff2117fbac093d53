// Package evictor runs the periodic sweep that finalizes in-flight traces
// producers abandoned partway through, so neither the in-flight store nor
// its span indexes grow without bound.
package evictor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeluard/otel-ui-backend/internal/appstate"
)

// Default period/age constants; callers may override both via New.
const (
	DefaultInterval = 30 * time.Second
	DefaultMaxAge   = 60 * time.Second
)

type Evictor struct {
	state    *appstate.AppState
	interval time.Duration
	maxAge   time.Duration
	log      *zap.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(state *appstate.AppState, interval, maxAge time.Duration, log *zap.Logger) *Evictor {
	return &Evictor{state: state, interval: interval, maxAge: maxAge, log: log}
}

func (e *Evictor) Start() {
	e.stop = make(chan struct{})
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		t := time.NewTicker(e.interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				if n := e.state.CleanupStaleTraces(e.maxAge, time.Now()); n > 0 {
					e.log.Debug("evicted stale traces", zap.Int("count", n))
				}
			case <-e.stop:
				return
			}
		}
	}()
}

func (e *Evictor) Stop() {
	close(e.stop)
	e.wg.Wait()
}
