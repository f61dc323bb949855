package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"adgen-jobs/dto"
	"adgen-jobs/pkg/rabbitmq"
	"adgen-jobs/service"
)

type ServiceDependencies struct {
	Runner service.JobRunner
}

// JobRequestHandler starts a generation job for each queued request.
// Undecodable or empty requests are rejected to the dead letter queue.
func JobRequestHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var req dto.JobRequestMessage
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal generation request")
		return fmt.Errorf("%w: %v", rabbitmq.ErrReject, err)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", rabbitmq.ErrReject)
	}

	jobId, err := deps.Runner.StartJob(ctx, req.Prompt, req.GenerateVideo, req.OwnerId)
	if err != nil {
		// ErrRunnerClosed only happens while draining; the consumer requeues it.
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", jobId).
		Str("owner_id", req.OwnerId).
		Msg("accepted queued generation request")
	return nil
}
