package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"adgen-jobs/dto"
)

// EventExchange is a fanout exchange carrying job lifecycle events.
const EventExchange = "job_events"

const publishTimeout = 5 * time.Second

// EventPublisher forwards hub broadcasts to EventExchange. It is registered
// on the hub like any other observer.
type EventPublisher struct {
	id string
	mu sync.Mutex
	ch *amqp.Channel
}

func NewEventPublisher(conn *amqp.Connection) (*EventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(EventExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &EventPublisher{id: "amqp-" + uuid.NewString(), ch: ch}, nil
}

func (p *EventPublisher) ID() string {
	return p.id
}

func (p *EventPublisher) Send(ctx context.Context, event dto.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, EventExchange, string(event.Type), false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Type:        string(event.Type),
		Body:        body,
	})
}

func (p *EventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch.IsClosed() {
		return nil
	}
	return p.ch.Close()
}

// PublishJobRequest enqueues a generation request for the consumer side.
func PublishJobRequest(ctx context.Context, conn *amqp.Connection, kind string, message dto.JobRequestMessage) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declareTopology(ch, kind); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}

	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(ctx, RequestExchange, RequestRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("exchange", RequestExchange).
		Str("routing_key", RequestRoutingKey).
		Bool("generate_video", message.GenerateVideo).
		Msg("published generation request")
	return nil
}
