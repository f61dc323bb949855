package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"adgen-jobs/constant"
	"adgen-jobs/dto"
)

type recordingObserver struct {
	id     string
	fail   bool
	mu     sync.Mutex
	events []dto.Event
	closed int
}

func (r *recordingObserver) ID() string { return r.id }

func (r *recordingObserver) Send(_ context.Context, event dto.Event) error {
	if r.fail {
		return errors.New("broken pipe")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingObserver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *recordingObserver) received() []dto.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dto.Event(nil), r.events...)
}

func TestBroadcastDropsFailingObserverOnly(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	a := &recordingObserver{id: "a"}
	broken := &recordingObserver{id: "broken", fail: true}
	b := &recordingObserver{id: "b"}
	hub.Register(ctx, a)
	hub.Register(ctx, broken)
	hub.Register(ctx, b)

	hub.Broadcast(ctx, dto.JobStartedEvent("job_1", "coffee", false))

	if len(a.received()) != 1 || len(b.received()) != 1 {
		t.Fatalf("expected healthy observers to receive the event, got %d and %d", len(a.received()), len(b.received()))
	}
	if hub.Count() != 2 {
		t.Fatalf("expected broken observer to be unregistered, count=%d", hub.Count())
	}
	if broken.closed != 1 {
		t.Fatalf("expected broken observer closed once, got %d", broken.closed)
	}

	hub.Broadcast(ctx, dto.JobCancelledEvent("job_1"))
	got := a.received()
	if len(got) != 2 || got[1].Type != constant.EventJobCancelled || got[1].JobId != "job_1" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	o := &recordingObserver{id: "o"}
	hub.Register(ctx, o)
	hub.Register(ctx, o)
	if hub.Count() != 1 {
		t.Fatalf("duplicate registration should be harmless, count=%d", hub.Count())
	}
	hub.Unregister(ctx, o)
	hub.Unregister(ctx, o)
	if o.closed != 1 {
		t.Fatalf("expected a single close, got %d", o.closed)
	}
	hub.Broadcast(ctx, dto.JobCancelledEvent("job_2"))
	if len(o.received()) != 0 {
		t.Fatalf("unregistered observer received events")
	}
}

func TestStreamObserverOverflowIsDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	s := NewStreamObserver(1)
	hub.Register(ctx, s)

	hub.Broadcast(ctx, dto.JobCancelledEvent("job_1"))
	hub.Broadcast(ctx, dto.JobCancelledEvent("job_2"))

	if hub.Count() != 0 {
		t.Fatalf("expected lagging stream observer to be dropped")
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("expected stream observer closed")
	}
	ev := <-s.Events()
	if ev.JobId != "job_1" {
		t.Fatalf("expected first buffered event, got %+v", ev)
	}
}

func TestWebsocketObserverReceivesBroadcastAndEcho(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewWebsocketObserver(conn).Serve(ctx, hub)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("observer never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast(ctx, dto.JobStartedEvent("job_ws", "bakery", true))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev dto.Event
	if err := client.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != constant.EventJobStarted || ev.JobId != "job_ws" || ev.GenerateVideo == nil || !*ev.GenerateVideo {
		t.Fatalf("unexpected event %+v", ev)
	}

	if err := client.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, msg, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if string(msg) != "Received: hello" {
		t.Fatalf("unexpected echo %q", msg)
	}

	client.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("observer not unregistered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
