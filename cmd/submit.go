package cmd

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"adgen-jobs/config"
	"adgen-jobs/dto"
	"adgen-jobs/pkg/rabbitmq"
	server2 "adgen-jobs/server"
)

// submit publishes a generation request onto the intake queue, the way an
// upstream backend hands work to a running server.
func submit(cfg *config.Config) *cobra.Command {
	var msg dto.JobRequestMessage
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "queue a generation request over rabbitmq",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(msg.Prompt) == "" {
				return errors.New("--prompt is required")
			}
			ctx, cancel := context.WithTimeout(server2.SetupLogger(cfg), 30*time.Second)
			defer cancel()

			conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
			if err != nil {
				return err
			}
			return rabbitmq.PublishJobRequest(ctx, conn, cfg.Queue.Kind, msg)
		},
	}
	cmd.Flags().StringVar(&msg.Prompt, "prompt", "", "business description to generate assets for")
	cmd.Flags().BoolVar(&msg.GenerateVideo, "video", false, "also generate an advertisement video")
	cmd.Flags().StringVar(&msg.OwnerId, "owner", "", "owner id (defaults to \"default\")")
	return cmd
}
