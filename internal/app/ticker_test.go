package app

import (
	"context"
	"testing"
	"time"

	"livequiz/internal/domain"
)

func TestTickerPublishesWhileRunning(t *testing.T) {
	engine, _, _, pub := newTestEngine(t)
	ctx := context.Background()
	session, err := engine.CreateSession(ctx, "geo", "host-1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	engine.Join(ctx, session.Token, alice)
	engine.StartQuestion(ctx, session.Token, host, 1)
	before := pub.count()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewTicker(engine, 10*time.Millisecond).Run(runCtx)
	}()

	deadline := time.After(2 * time.Second)
	for pub.count() < before+3 {
		select {
		case <-deadline:
			t.Fatalf("ticker published %d events, want at least 3", pub.count()-before)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	event, ok := pub.lastNamed(domain.EventAnswerUpdate)
	if !ok || event.Token != session.Token {
		t.Fatalf("ticker events missing or misrouted: %+v, %v", event, ok)
	}
}

func TestNewTickerDefaultsInterval(t *testing.T) {
	ticker := NewTicker(nil, 0)
	if ticker.interval != time.Second {
		t.Fatalf("interval = %v, want 1s", ticker.interval)
	}
	ticker = NewTicker(nil, -time.Minute)
	if ticker.interval != time.Second {
		t.Fatalf("negative interval = %v, want 1s", ticker.interval)
	}
}
