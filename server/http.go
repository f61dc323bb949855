package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"adgen-jobs/config"
	"adgen-jobs/constant"
	jobHandler "adgen-jobs/handler"
	"adgen-jobs/notify"
	"adgen-jobs/pkg/genai"
	"adgen-jobs/pkg/objectstore"
	"adgen-jobs/pkg/rabbitmq"
	"adgen-jobs/repository"
	"adgen-jobs/service"
)

const syntheticDelay = time.Second

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(SetupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	logger := zerolog.Ctx(ctx)

	logger.Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.DB != nil {
		defer cfg.DB.Close()
	}

	repo, err := repository.Open(cfg)
	if err != nil {
		logger.Error().Err(err).Str("driver", string(cfg.Jobs.Driver)).Msg("failed to open job store")
		return
	}

	backend, err := newGenerator(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set up generation backend")
		return
	}

	hub := notify.NewHub()
	runner := service.NewJobRunner(ctx, repo, hub, backend, backend, cfg.Runner.MaxConcurrency)
	if cfg.Runner.RecoverOnStart {
		runner.Recover(ctx)
	}

	if cfg.Queue.Enabled {
		startQueue(ctx, cfg, runner, hub)
	}

	r := gin.New()
	r.Use(gin.Recovery(), jobHandler.CORS(), jobHandler.RequestLogger(*logger))
	jobHandler.NewJobHandler(ctx, runner, hub, repo.Driver()).Register(r)
	if cfg.Storage == nil {
		r.Static("/"+filepath.Base(cfg.Assets.Path), cfg.Assets.Path)
	}

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("env", cfg.App.Environment).Str("addr", handler.Addr).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Str("env", cfg.App.Environment).Msg(err.Error())
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), cfg.Runner.ShutdownTimeout)
	defer stop()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Int("active", runner.ActiveCount()).Msg("job runner did not drain in time")
	}
	hub.Close(shutdownCtx)
	if err := handler.Shutdown(shutdownCtx); err != nil {
		logger.Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	logger.Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

// newGenerator picks the generation backend. Gemini without an API key
// falls back to the synthetic backend.
func newGenerator(ctx context.Context, cfg *config.Config) (service.Generator, error) {
	logger := zerolog.Ctx(ctx)
	if cfg.Generator.Provider == "synthetic" {
		logger.Info().Msg("using synthetic generation backend")
		return service.NewSyntheticBackend(syntheticDelay), nil
	}

	client, err := genai.NewClient(genai.Options{
		APIKey:       cfg.Generator.APIKey,
		BaseURL:      cfg.Generator.BaseURL,
		ImageModel:   cfg.Generator.ImageModel,
		VideoModel:   cfg.Generator.VideoModel,
		PollInterval: cfg.Generator.PollInterval,
		VideoTimeout: cfg.Generator.VideoTimeout,
	})
	if errors.Is(err, genai.ErrMissingAPIKey) {
		logger.Warn().Msg("no gemini api key configured, using synthetic generation backend")
		return service.NewSyntheticBackend(syntheticDelay), nil
	}
	if err != nil {
		return nil, err
	}

	assets, err := newPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("image_model", cfg.Generator.ImageModel).Str("video_model", cfg.Generator.VideoModel).Msg("using gemini generation backend")
	return service.NewGeminiBackend(client, assets), nil
}

func newPublisher(ctx context.Context, cfg *config.Config) (objectstore.Publisher, error) {
	if cfg.Storage == nil {
		return objectstore.NewFileStore(cfg.Assets.Path)
	}
	store := objectstore.NewMinIO(cfg.Storage, cfg.MinIOBucket, fmt.Sprintf("%s://%s", cfg.App.Protocol, cfg.App.Host))
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.MinIOBucket, err)
	}
	return store, nil
}

// startQueue wires AMQP intake and event fan-out. A broker outage leaves the
// HTTP API running without them.
func startQueue(ctx context.Context, cfg *config.Config, runner service.JobRunner, hub *notify.Hub) {
	logger := zerolog.Ctx(ctx)
	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		logger.Error().Err(err).Msg("NewRabbitMQConn")
		return
	}

	publisher, err := rabbitmq.NewEventPublisher(conn)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set up event publisher")
	} else {
		hub.Register(ctx, publisher)
	}

	serviceDeps := jobHandler.ServiceDependencies{Runner: runner}
	requestConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, cfg.Server.Workers, jobHandler.JobRequestHandler)
	go func() {
		err := requestConsumer.Consume(ctx, serviceDeps)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("generation request consumer error")
		}
	}()
}

func SetupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
