package bridge

import "sync"

// Recorder is an in-memory Sink for tests and embedding callers.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	// FailAfter makes Send return FailErr once this many events were
	// accepted; zero disables it.
	FailAfter int
	FailErr   error
}

func (r *Recorder) Send(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.events); n > 0 && r.events[n-1].Terminal() {
		return ErrClosed
	}
	if r.FailAfter > 0 && len(r.events) >= r.FailAfter {
		return r.FailErr
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything sent so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names returns the sent event names in order.
func (r *Recorder) Names() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Name
	}
	return out
}
