package handler

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"adgen-jobs/pkg/rabbitmq"
)

func TestJobRequestHandler(t *testing.T) {
	f := newFixture(t)
	deps := ServiceDependencies{Runner: f.runner}
	ctx := context.Background()

	for _, body := range []string{`{`, `{"prompt":""}`} {
		err := JobRequestHandler(ctx, amqp.Delivery{Body: []byte(body)}, deps)
		if !errors.Is(err, rabbitmq.ErrReject) {
			t.Fatalf("body %q: expected ErrReject, got %v", body, err)
		}
	}

	err := JobRequestHandler(ctx, amqp.Delivery{Body: []byte(`{"prompt":"kebab","generateVideo":true,"ownerId":"q"}`)}, deps)
	if err != nil {
		t.Fatalf("valid request: %v", err)
	}
	jobs := f.runner.ListJobs(ctx, "q", 0)
	if len(jobs) != 1 || jobs[0].Prompt != "kebab" {
		t.Fatalf("expected queued job to be started, got %+v", jobs)
	}
}
