package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"

	"github.com/notewellhq/notewell-backend/api"
	"github.com/notewellhq/notewell-backend/api/controllers"
	"github.com/notewellhq/notewell-backend/api/routes"
	"github.com/notewellhq/notewell-backend/internal/notes"
	"github.com/notewellhq/notewell-backend/pkg/awsx"
	"github.com/notewellhq/notewell-backend/pkg/config"
	"github.com/notewellhq/notewell-backend/pkg/dynamo"
	"github.com/notewellhq/notewell-backend/pkg/identity"
	"github.com/notewellhq/notewell-backend/pkg/logger"
	"github.com/notewellhq/notewell-backend/pkg/queue"
	"github.com/notewellhq/notewell-backend/pkg/redis"
	s3store "github.com/notewellhq/notewell-backend/pkg/storage/s3"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	awsCfg, err := awsx.NewConfig(ctx, cfg.AWS)
	requireResource(ctx, logg, "aws config", err)
	endpoint := awsx.Endpoint(cfg.AWS)

	queueClient, err := queue.New(queue.NewSQS(awsCfg, endpoint), cfg.Queue)
	requireResource(ctx, logg, "queue", err)

	rawS3 := s3store.NewS3(awsCfg, endpoint)
	objectStore, err := s3store.New(rawS3, awss3.NewPresignClient(rawS3), cfg.ObjectStore)
	requireResource(ctx, logg, "object store", err)

	dynamoClient := dynamo.New(awsCfg, endpoint)
	noteRepo, err := notes.NewRepository(dynamoClient, cfg.NoteStore)
	requireResource(ctx, logg, "note repository", err)
	noteService, err := notes.NewService(noteRepo, objectStore, logg, cfg.Notes)
	requireResource(ctx, logg, "note service", err)
	notePinger, err := dynamo.NewPinger(dynamoClient, cfg.NoteStore)
	requireResource(ctx, logg, "note store pinger", err)

	identityClient, err := identity.New(identity.NewCognito(awsCfg, endpoint), cfg.Identity)
	requireResource(ctx, logg, "identity", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	router := routes.NewRouter(routes.Deps{
		Config:   cfg,
		Log:      logg,
		Redis:    redisClient,
		Notes:    noteService,
		Uploads:  objectStore,
		Identity: identityClient,
		Queue:    queueClient,
		Health: map[string]controllers.Pinger{
			"note_store":   notePinger,
			"object_store": objectStore,
			"queue":        queueClient,
			"identity":     identityClient,
			"redis":        redisClient,
		},
	})

	server := api.NewServer(cfg, router)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":  cfg.App.Env,
		"addr": server.Addr,
	})
	logg.Info(runCtx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(runCtx, "api server stopped")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
