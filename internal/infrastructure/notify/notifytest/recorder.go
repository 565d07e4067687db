// Package notifytest provides an in-memory publisher for asserting on emitted events.
package notifytest

import (
	"context"
	"sync"

	"greencoin-backend/internal/infrastructure/notify"
)

type Recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *Recorder) Publish(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Types returns the published event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// Of returns the published events of one type.
func (r *Recorder) Of(typ string) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
