// Package relay fans session events out to every connection subscribed to a
// session room. Rooms are keyed by the session URL token and live only as
// long as the session does; delivery is best-effort.
package relay

import "sync"

// Event is one message pushed to a room.
type Event struct {
	Name    string
	Payload any
}

// Subscriber receives room events on C. A slow subscriber never blocks the
// room: when its buffer is full the oldest pending event is dropped, since
// every event is a full snapshot and only the newest matters.
type Subscriber struct {
	C chan Event
}

const subscriberBuffer = 16

// Relay owns room membership for all sessions in the process.
type Relay struct {
	mu    sync.RWMutex
	rooms map[string]map[*Subscriber]struct{}
}

func New() *Relay {
	return &Relay{rooms: make(map[string]map[*Subscriber]struct{})}
}

// Join subscribes to a room, creating it on first use. Callers are expected
// to have validated the session before joining.
func (r *Relay) Join(token string) *Subscriber {
	sub := &Subscriber{C: make(chan Event, subscriberBuffer)}
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[token]
	if !ok {
		room = make(map[*Subscriber]struct{})
		r.rooms[token] = room
	}
	room[sub] = struct{}{}
	return sub
}

// Leave removes the subscriber and closes its channel. Empty rooms are
// deleted. Leaving twice is a no-op.
func (r *Relay) Leave(token string, sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[token]
	if !ok {
		return
	}
	if _, ok := room[sub]; !ok {
		return
	}
	delete(room, sub)
	close(sub.C)
	if len(room) == 0 {
		delete(r.rooms, token)
	}
}

// Publish delivers an event to every subscriber in the room. When a
// subscriber's buffer is full the oldest queued event is dropped to make
// space, so a stalled connection cannot starve the rest of the room.
func (r *Relay) Publish(token, name string, payload any) {
	ev := Event{Name: name, Payload: payload}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sub := range r.rooms[token] {
		select {
		case sub.C <- ev:
		default:
			select {
			case <-sub.C:
			default:
			}
			select {
			case sub.C <- ev:
			default:
			}
		}
	}
}

// RoomSize reports the number of live subscribers for a token.
func (r *Relay) RoomSize(token string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[token])
}
