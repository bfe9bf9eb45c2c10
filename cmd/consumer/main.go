package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/richardliu001/agenda-service/internal/config"
	"github.com/richardliu001/agenda-service/internal/logger"
	"github.com/richardliu001/agenda-service/internal/repo"
	"github.com/richardliu001/agenda-service/internal/service"
	"github.com/richardliu001/agenda-service/internal/worker"
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

	svc := service.NewAgendaService(repo.NewRepository(gdb, nil, kw, log), log)
	cons := worker.NewConsumer(cfg.RabbitMQ, svc, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		if err := cons.Connect(); err != nil {
			log.Warnf("rabbit connect failed: %v; retry in 2s", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}
		break
	}
	defer cons.Close()

	log.Infow("agenda-consumer started", "queue", cfg.RabbitMQ.Queue, "bindings", cfg.RabbitMQ.Bindings)
	if err := cons.Run(ctx); err != nil {
		log.Errorf("consumer stopped: %v", err)
	}
}
