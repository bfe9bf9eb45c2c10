package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/richardliu001/agenda-service/internal/config"
	"github.com/richardliu001/agenda-service/internal/logger"
	"github.com/richardliu001/agenda-service/internal/repo"
	"github.com/richardliu001/agenda-service/internal/service"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

type options struct {
	orgID  *int64
	all    bool
	batch  int
	config string
}

var errUsage = errors.New("usage")

// parseArgs requires exactly one of --org and --all.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	fs.SetOutput(stderr)
	org := fs.Int64("org", 0, "rebuild a single organization")
	fs.BoolVar(&opts.all, "all", false, "rebuild every organization")
	fs.IntVar(&opts.batch, "batch", 0, "page size for source scans (default from config)")
	fs.StringVar(&opts.config, "config", "internal/config/config.yaml", "config file")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: rebuild (--org <id> | --all) [--batch <n>] [--config <path>]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return opts, errUsage
	}

	orgSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "org" {
			orgSet = true
		}
	})
	if orgSet == opts.all || fs.NArg() > 0 {
		fs.Usage()
		return opts, errUsage
	}
	if orgSet {
		opts.orgID = org
	}
	return opts, nil
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load(opts.config)
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
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

	svc := service.NewAgendaService(repo.NewRepository(gdb, rdb, kw, log), log).
		WithRebuildLockTTL(cfg.Rebuild.LockTTL)

	batch := opts.batch
	if batch <= 0 {
		batch = cfg.Rebuild.BatchSize
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := svc.Rebuild(ctx, service.RebuildParams{
		OrganizationID: opts.orgID,
		BatchSize:      batch,
		Logger:         service.ZapRebuildLogger(log),
	})
	if err != nil {
		log.Errorf("rebuild failed: %v", err)
		_ = log.Sync()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatalf("write summary: %v", err)
	}
}
