package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"smartattend/internal/config"
	"smartattend/internal/notify"
	"smartattend/internal/queue"
	"smartattend/internal/store"
)

// Worker drains attendance events from the shared redis queue and stores a
// notification for each marked student.
func main() {
	cfg := config.Load()
	logger := cfg.Logger(os.Stdout)

	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis, got %q (the api consumes in-memory queues itself)", cfg.QueueBackend)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying", "addr", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, logger)
	consumer := notify.NewConsumer(notify.NewRedis(redisClient.Client, ""), clockwork.NewRealClock(), logger)

	logger.Info("worker started, waiting for messages", "queue", queue.DefaultKey)
	if err := consumer.Run(ctx, q); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
	logger.Info("worker stopped")
}
