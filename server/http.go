package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assembly-worker/config"
	"assembly-worker/constant"
	jobHandler "assembly-worker/handler"
	"assembly-worker/pkg/media"
	"assembly-worker/pkg/rabbitmq"
	"assembly-worker/repository"
	"assembly-worker/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	transformer, err := media.NewFFmpeg()
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("media transform capability unavailable")
	}

	var store repository.Store
	if cfg.DB != nil {
		store, err = repository.NewRepo(cfg.DB)
		if err != nil {
			zerolog.Ctx(ctx).Fatal().Err(err).Msg("failed to open job store")
		}
	} else {
		zerolog.Ctx(ctx).Warn().Msg("no postgresql_host configured, using in-memory job store")
		store = repository.NewMemoryStore()
	}

	// Jobs interrupted by a previous crash can never finish; fail them so
	// polling clients reach a terminal state.
	if reaped, err := store.ReapProcessing(ctx, "interrupted by service restart"); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to reap stale processing jobs")
	} else if reaped > 0 {
		zerolog.Ctx(ctx).Warn().Int64("reaped", reaped).Msg("failed stale processing jobs from previous run")
	}

	assemblyService := service.NewAssemblyService(ctx, store, transformer, cfg)

	if cfg.Queue != nil {
		conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
		} else {
			serviceDeps := jobHandler.ServiceDependencies{
				AssemblyService: assemblyService,
			}
			assemblyConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, cfg.Server.Workers, jobHandler.AssemblyHandler)
			go func() {
				if err := assemblyConsumer.Consume(ctx, serviceDeps); err != nil {
					zerolog.Ctx(ctx).Error().Err(err).Msg("Assembly consumer error")
				}
			}()
		}
	}

	r := newRouter(assemblyService)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	if err := handler.Shutdown(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
