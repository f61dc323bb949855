package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"adgen-jobs/dto"
)

// Observer receives lifecycle events. Send must return an error once the
// underlying transport is unusable; the hub then drops the observer.
type Observer interface {
	ID() string
	Send(ctx context.Context, event dto.Event) error
	Close() error
}

// Broadcaster is the publishing side of the hub as seen by the runner.
type Broadcaster interface {
	Broadcast(ctx context.Context, event dto.Event)
}

type Hub struct {
	mu        sync.Mutex
	observers map[Observer]struct{}
}

func NewHub() *Hub {
	return &Hub{observers: make(map[Observer]struct{})}
}

func (h *Hub) Register(ctx context.Context, o Observer) {
	h.mu.Lock()
	h.observers[o] = struct{}{}
	n := len(h.observers)
	h.mu.Unlock()
	zerolog.Ctx(ctx).Debug().Str("observer", o.ID()).Int("observers", n).Msg("observer registered")
}

// Unregister removes o and closes it. Safe on an observer that is already gone.
func (h *Hub) Unregister(ctx context.Context, o Observer) {
	h.mu.Lock()
	_, ok := h.observers[o]
	delete(h.observers, o)
	h.mu.Unlock()
	if !ok {
		return
	}
	if err := o.Close(); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("observer", o.ID()).Msg("observer close")
	}
	zerolog.Ctx(ctx).Debug().Str("observer", o.ID()).Msg("observer unregistered")
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Broadcast delivers event to every registered observer. A failed delivery
// unregisters that observer and does not stop delivery to the rest.
func (h *Hub) Broadcast(ctx context.Context, event dto.Event) {
	h.mu.Lock()
	targets := make([]Observer, 0, len(h.observers))
	for o := range h.observers {
		targets = append(targets, o)
	}
	h.mu.Unlock()

	for _, o := range targets {
		if err := o.Send(ctx, event); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("observer", o.ID()).
				Str("event", string(event.Type)).
				Str("job_id", event.JobId).
				Msg("dropping observer after failed delivery")
			h.Unregister(ctx, o)
		}
	}
}

// Close unregisters every observer.
func (h *Hub) Close(ctx context.Context) {
	h.mu.Lock()
	targets := make([]Observer, 0, len(h.observers))
	for o := range h.observers {
		targets = append(targets, o)
	}
	h.mu.Unlock()
	for _, o := range targets {
		h.Unregister(ctx, o)
	}
}
