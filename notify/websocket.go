package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"adgen-jobs/dto"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var errObserverClosed = errors.New("observer closed")

// WebsocketObserver pushes events as JSON text frames. gorilla connections
// allow one concurrent writer, so every write goes through mu.
type WebsocketObserver struct {
	id     string
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func NewWebsocketObserver(conn *websocket.Conn) *WebsocketObserver {
	return &WebsocketObserver{id: "ws-" + uuid.NewString(), conn: conn}
}

func (w *WebsocketObserver) ID() string {
	return w.id
}

func (w *WebsocketObserver) Send(_ context.Context, event dto.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errObserverClosed
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return w.conn.WriteJSON(event)
}

func (w *WebsocketObserver) sendText(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errObserverClosed
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (w *WebsocketObserver) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errObserverClosed
	}
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (w *WebsocketObserver) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.conn.Close()
}

// Serve registers w with hub and blocks reading client frames until the
// connection drops or ctx ends. Text frames are echoed back to the sender.
func (w *WebsocketObserver) Serve(ctx context.Context, hub *Hub) {
	logger := zerolog.Ctx(ctx).With().Str("observer", w.id).Logger()
	hub.Register(ctx, w)
	defer hub.Unregister(ctx, w)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := w.ping(); err != nil {
					return
				}
			case <-ctx.Done():
				hub.Unregister(ctx, w)
				return
			case <-done:
				return
			}
		}
	}()

	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("websocket read")
			}
			return
		}
		_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			continue
		}
		if err := w.sendText(fmt.Sprintf("Received: %s", data)); err != nil {
			return
		}
	}
}
