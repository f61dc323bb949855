package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"adgen-jobs/config"
)

const (
	RequestExchange   = "generation_exchange"
	RequestQueue      = "generation_queue"
	RequestRoutingKey = "generation.request"

	deadLetterExchange   = "generation_exchange_dlx"
	deadLetterQueue      = "generation_queue_dlq"
	deadLetterRoutingKey = "dlq.generation.request"

	maxHandleTries = 5
)

// ErrReject marks a delivery that can never succeed. It goes straight to the
// dead letter queue without retries.
var ErrReject = errors.New("rabbitmq: reject message")

type Consumer[T any] interface {
	Consume(ctx context.Context, dependencies T) error
}

type consumer[T any] struct {
	conn       *amqp.Connection
	cfg        *config.RabbitMQ
	handler    func(ctx context.Context, msg amqp.Delivery, dependencies T) error
	numWorkers int
}

func (c consumer[T]) Consume(ctx context.Context, dependencies T) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	logger := zerolog.Ctx(ctx).With().Str("queue", RequestQueue).Logger()

	if err := declareTopology(ch, c.cfg.Kind); err != nil {
		logger.Error().Err(err).Msg("failed to declare topology")
		return err
	}

	if err := ch.Qos(c.numWorkers, 0, false); err != nil {
		logger.Error().Err(err).Msg("failed to set QoS")
		return err
	}

	deliveries, err := ch.Consume(RequestQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to consume queue")
		return err
	}

	logger.Info().
		Str("exchange", RequestExchange).
		Str("routing_key", RequestRoutingKey).
		Int("workers", c.numWorkers).
		Msg("generation request consumer started")

	jobs := make(chan amqp.Delivery, c.numWorkers)
	var wg sync.WaitGroup
	for i := 1; i <= c.numWorkers; i++ {
		wg.Add(1)
		go func(workerId int) {
			defer wg.Done()
			for msg := range jobs {
				c.handle(ctx, msg, dependencies, workerId)
			}
		}(i)
	}

	for {
		select {
		case delivery, ok := <-deliveries:
			if !ok {
				close(jobs)
				wg.Wait()
				return nil
			}

			jobs <- delivery
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		}
	}
}

// handle retries transient failures, dead-letters rejected or exhausted
// deliveries and requeues what is interrupted by shutdown.
func (c consumer[T]) handle(ctx context.Context, msg amqp.Delivery, dependencies T, workerId int) {
	logger := zerolog.Ctx(ctx).With().Int("worker_id", workerId).Str("message_id", msg.MessageId).Logger()

	operation := func() (struct{}, error) {
		err := c.handler(ctx, msg, dependencies)
		if errors.Is(err, ErrReject) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second

	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(maxHandleTries))
	switch dispositionFor(ctx, err) {
	case ack:
		if ackErr := msg.Ack(false); ackErr != nil {
			logger.Error().Err(ackErr).Msg("failed to acknowledge message")
		}
	case requeue:
		logger.Warn().Err(err).Msg("consumer stopping, requeueing message")
		if nackErr := msg.Nack(false, true); nackErr != nil {
			logger.Error().Err(nackErr).Msg("failed to requeue message")
		}
	default:
		logger.Error().Err(err).Msg("failed to handle message, sending to DLQ")
		if nackErr := msg.Nack(false, false); nackErr != nil {
			logger.Error().Err(nackErr).Msg("failed to nack message to send to DLQ")
		}
	}
}

type disposition int

const (
	ack disposition = iota
	requeue
	deadLetter
)

func dispositionFor(ctx context.Context, err error) disposition {
	switch {
	case err == nil:
		return ack
	case errors.Is(err, ErrReject):
		return deadLetter
	case ctx.Err() != nil:
		return requeue
	default:
		return deadLetter
	}
}

func declareTopology(ch *amqp.Channel, kind string) error {
	if err := ch.ExchangeDeclare(RequestExchange, kind, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(deadLetterExchange, kind, true, false, false, false, nil); err != nil {
		return err
	}

	dlq, err := ch.QueueDeclare(deadLetterQueue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(dlq.Name, deadLetterRoutingKey, deadLetterExchange, false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    deadLetterExchange,
		"x-dead-letter-routing-key": deadLetterRoutingKey,
	}
	q, err := ch.QueueDeclare(RequestQueue, true, false, false, false, args)
	if err != nil {
		return err
	}
	return ch.QueueBind(q.Name, RequestRoutingKey, RequestExchange, false, nil)
}

func NewConsumer[T any](
	conn *amqp.Connection,
	cfg *config.RabbitMQ,
	numWorkers int,
	handler func(ctx context.Context, msg amqp.Delivery, dependencies T) error,
) Consumer[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &consumer[T]{
		conn:       conn,
		cfg:        cfg,
		handler:    handler,
		numWorkers: numWorkers,
	}
}
