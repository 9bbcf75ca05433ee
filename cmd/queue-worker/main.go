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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/notewellhq/notewell-backend/internal/notes"
	"github.com/notewellhq/notewell-backend/internal/worker"
	"github.com/notewellhq/notewell-backend/internal/worker/handlers"
	"github.com/notewellhq/notewell-backend/pkg/awsx"
	"github.com/notewellhq/notewell-backend/pkg/config"
	"github.com/notewellhq/notewell-backend/pkg/dynamo"
	"github.com/notewellhq/notewell-backend/pkg/identity"
	"github.com/notewellhq/notewell-backend/pkg/logger"
	"github.com/notewellhq/notewell-backend/pkg/metrics"
	"github.com/notewellhq/notewell-backend/pkg/queue"
	s3store "github.com/notewellhq/notewell-backend/pkg/storage/s3"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "queue-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "queue-worker"

	logg = logger.New(logger.Options{
		ServiceName: "queue-worker",
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

	identityClient, err := identity.New(identity.NewCognito(awsCfg, endpoint), cfg.Identity)
	requireResource(ctx, logg, "identity", err)

	workerMetrics := metrics.NewWorkerMetrics(prometheus.DefaultRegisterer)

	policy, err := handlers.NewPolicy(cfg.Worker.MaxAttempt, logg, workerMetrics)
	requireResource(ctx, logg, "handler policy", err)

	createObject, err := handlers.NewCreateObjectHandler(policy, noteService, identityClient, objectStore)
	requireResource(ctx, logg, "create object handler", err)
	deleteMedias, err := handlers.NewDeleteMediasHandler(policy, objectStore)
	requireResource(ctx, logg, "delete medias handler", err)
	deleteNotes, err := handlers.NewDeleteNotesHandler(policy, objectStore)
	requireResource(ctx, logg, "delete notes handler", err)
	deleteUser, err := handlers.NewDeleteUserHandler(policy, noteService, objectStore)
	requireResource(ctx, logg, "delete user handler", err)
	deleteProfilePhoto, err := handlers.NewDeleteProfilePhotoHandler(
		policy, objectStore, cfg.Worker.RetryBatchSize, cfg.Worker.RetryBatchDelay,
	)
	requireResource(ctx, logg, "delete profile photo handler", err)

	registry, err := worker.NewRegistry(worker.RegistryHandlers{
		CreateObject:       createObject,
		DeleteMedias:       deleteMedias,
		DeleteNotes:        deleteNotes,
		DeleteUser:         deleteUser,
		DeleteProfilePhoto: deleteProfilePhoto,
		Unknown:            handlers.NewUnknownHandler(policy),
	})
	requireResource(ctx, logg, "handler registry", err)

	service, err := worker.NewService(queueClient, registry, logg, workerMetrics, cfg.Worker)
	requireResource(ctx, logg, "worker service", err)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.Worker.MetricsPort,
		Handler:           metricsHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped unexpectedly", err)
		}
	}()

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"maxAttempt":  cfg.Worker.MaxAttempt,
		"metricsPort": cfg.Worker.MetricsPort,
	})
	logg.Info(runCtx, "queue worker ready")

	runErr := service.Run(runCtx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownGrace)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logg.Error(runCtx, "metrics server shutdown failed", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(runCtx, "queue worker stopped unexpectedly", runErr)
		time.Sleep(cfg.Worker.ShutdownGrace)
		os.Exit(1)
	}
	logg.Info(runCtx, "queue worker shut down")
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
