package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/flixbridge/internal/bridge"
	"github.com/your-org/flixbridge/internal/downstream"
	"github.com/your-org/flixbridge/internal/eventlog"
	"github.com/your-org/flixbridge/internal/intake"
	"github.com/your-org/flixbridge/internal/services"
	"github.com/your-org/flixbridge/pkg/config"
	"github.com/your-org/flixbridge/pkg/kafka"
	"github.com/your-org/flixbridge/pkg/logger"
	"github.com/your-org/flixbridge/pkg/storage/objectstore"
	"github.com/your-org/flixbridge/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, cfg.Development())
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:     cfg.Tracing.Endpoint,
		Insecure:     cfg.Tracing.Insecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
		ResourceAttr: cfg.Tracing.ResourceAttr,
		ServiceName:  cfg.App.Name,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	svcCfg, err := services.Load(cfg.Services.Path)
	if err != nil {
		logr.Fatal("load service credentials", zap.Error(err))
	}

	store, err := eventlog.Open(eventlog.Config{Path: cfg.Store.Path}, logr)
	if err != nil {
		logr.Fatal("open event store", zap.Error(err))
	}

	in, err := intake.New(store, logr)
	if err != nil {
		logr.Fatal("init intake", zap.Error(err))
	}

	var publisher kafka.Publisher
	if cfg.Kafka.Enabled {
		publisher = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.EventsTopic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			Compression:  cfg.Kafka.CompressionCodec,
			MaxAttempts:  cfg.Kafka.Retries,
		})
	}

	var archive objectstore.Client
	if cfg.Archive.Enabled {
		archive, err = objectstore.New(objectstore.Config{
			Provider:  cfg.Archive.Provider,
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			Bucket:    cfg.Archive.Bucket,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			logr.Fatal("init archive store", zap.Error(err))
		}
	}

	service := bridge.NewService(bridge.Params{
		Intake:     in,
		Store:      store,
		Dispatcher: downstream.NewDispatcher(svcCfg, logr),
		Publisher:  publisher,
		Archive:    archive,
		Logger:     logr,
	})

	handler := bridge.NewHTTPHandler(service, logr, cfg.HTTP.MaxBodyBytes)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
		if err := service.Close(shutdownCtx); err != nil {
			logr.Error("service shutdown failed", zap.Error(err))
		}
	}()

	logr.Info("bridge starting",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("event_store", cfg.Store.Path),
		zap.Bool("kafka_fanout", cfg.Kafka.Enabled),
		zap.Bool("archive", cfg.Archive.Enabled),
	)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Fatal("http server failed", zap.Error(err))
	}
}
