package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"adgen-jobs/dto"
)

var errObserverBehind = errors.New("observer buffer full")

// StreamObserver buffers events for a pull-style transport such as
// server-sent events. A full buffer counts as a failed delivery.
type StreamObserver struct {
	id     string
	events chan dto.Event
	done   chan struct{}
	once   sync.Once
}

func NewStreamObserver(buffer int) *StreamObserver {
	if buffer < 1 {
		buffer = 1
	}
	return &StreamObserver{
		id:     "sse-" + uuid.NewString(),
		events: make(chan dto.Event, buffer),
		done:   make(chan struct{}),
	}
}

func (s *StreamObserver) ID() string {
	return s.id
}

func (s *StreamObserver) Send(_ context.Context, event dto.Event) error {
	select {
	case <-s.done:
		return errObserverClosed
	default:
	}
	select {
	case s.events <- event:
		return nil
	default:
		return errObserverBehind
	}
}

// Events yields buffered events; Done is closed once the observer is closed.
func (s *StreamObserver) Events() <-chan dto.Event {
	return s.events
}

func (s *StreamObserver) Done() <-chan struct{} {
	return s.done
}

func (s *StreamObserver) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
