package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/richardliu001/agenda-service/internal/config"
	"github.com/richardliu001/agenda-service/internal/logger"
	"github.com/richardliu001/agenda-service/internal/repo"
	"github.com/richardliu001/agenda-service/internal/service"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/segmentio/kafka-go"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	var kw *kafka.Writer
	if len(cfg.Kafka.Brokers) > 0 {
		kw = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Kafka.Brokers...),
			Topic:    cfg.Kafka.Topic,
			Balancer: &kafka.Hash{},
		}
		defer kw.Close()
	}

	repository := repo.NewRepository(gdb, nil, kw, log)
	svc := service.NewAgendaService(repository, log)
	worker := service.NewOutboxWorker(repository, svc, service.OutboxConfig{
		Batch:       cfg.Outbox.Batch,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		RetryDelay:  cfg.Outbox.RetryDelay,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("agenda-poller started", "interval", cfg.Outbox.Interval, "batch", cfg.Outbox.Batch)
	if err := worker.Run(ctx, cfg.Outbox.Interval); err != nil {
		log.Errorf("poller stopped: %v", err)
	}
}
