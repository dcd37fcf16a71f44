package app

import (
	"context"
	"time"
)

// Ticker drives the periodic republish cycle: every interval it asks the
// engine to push fresh snapshots for all active sessions with a running
// question. This is what moves client countdowns and leaderboards even when
// nobody has just answered.
type Ticker struct {
	engine   *Engine
	interval time.Duration
}

func NewTicker(engine *Engine, interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Ticker{engine: engine, interval: interval}
}

// Run blocks until the context is canceled, ticking at the fixed interval.
// Errors inside a tick are contained by the engine; the loop never stops
// because one cycle went wrong.
func (t *Ticker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.engine.Tick(ctx)
		}
	}
}
