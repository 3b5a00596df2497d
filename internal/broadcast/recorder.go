package broadcast

import (
	"context"
	"sync"
)

// Recorded is one captured broadcast.
type Recorded struct {
	RoomID  string
	Event   string
	Payload map[string]any
}

// Recorder is a Broadcaster that captures everything it is given. Tests
// use it to assert on emitted events without a socket layer.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) ToRoom(_ context.Context, roomID, event string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{RoomID: roomID, Event: event, Payload: payload})
}

func (r *Recorder) Emit(_ context.Context, event string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Event: event, Payload: payload})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// ByEvent returns recorded broadcasts with the given event name.
func (r *Recorder) ByEvent(event string) []Recorded {
	var out []Recorded
	for _, e := range r.Events() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
