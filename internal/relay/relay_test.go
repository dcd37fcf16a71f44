package relay

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPublishReachesRoomMembersOnly(t *testing.T) {
	r := New()
	a := r.Join("room-a")
	b := r.Join("room-a")
	other := r.Join("room-b")

	r.Publish("room-a", "session_state", "hello")

	for _, sub := range []*Subscriber{a, b} {
		select {
		case ev := <-sub.C:
			if ev.Name != "session_state" || ev.Payload != "hello" {
				t.Fatalf("unexpected event %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive the event")
		}
	}

	select {
	case ev := <-other.C:
		t.Fatalf("event leaked into another room: %+v", ev)
	default:
	}
}

func TestPublishToUnknownRoomIsNoOp(t *testing.T) {
	r := New()
	r.Publish("ghost", "session_state", nil)
}

func TestLeaveClosesChannelAndPrunesRoom(t *testing.T) {
	r := New()
	sub := r.Join("room")
	if got := r.RoomSize("room"); got != 1 {
		t.Fatalf("room size = %d, want 1", got)
	}

	r.Leave("room", sub)
	if _, open := <-sub.C; open {
		t.Fatalf("channel must be closed after leave")
	}
	if got := r.RoomSize("room"); got != 0 {
		t.Fatalf("room size after leave = %d, want 0", got)
	}

	// Leaving twice must not panic or double-close.
	r.Leave("room", sub)
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	r := New()
	slow := r.Join("room")

	total := subscriberBuffer + 5
	for i := 0; i < total; i++ {
		r.Publish("room", "answer_update", i)
	}

	// The buffer holds the newest events; the oldest were dropped to make room.
	var got []int
	for {
		select {
		case ev := <-slow.C:
			got = append(got, ev.Payload.(int))
			continue
		default:
		}
		break
	}
	if len(got) != subscriberBuffer {
		t.Fatalf("buffered events = %d, want %d", len(got), subscriberBuffer)
	}
	if got[len(got)-1] != total-1 {
		t.Fatalf("newest event = %d, want %d", got[len(got)-1], total-1)
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("events out of order: %v", got)
		}
	}
}

func TestConcurrentPublishAndChurn(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		token := fmt.Sprintf("room-%d", i%2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sub := r.Join(token)
				r.Leave(token, sub)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Publish(token, "answer_update", j)
			}
		}()
	}
	wg.Wait()
}
