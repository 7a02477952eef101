package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/faredown/bargain-engine.git/internal/analytics"
	"github.com/faredown/bargain-engine.git/internal/bargain"
	"github.com/faredown/bargain-engine.git/internal/config"
	kafkax "github.com/faredown/bargain-engine.git/internal/kafka"
	"github.com/faredown/bargain-engine.git/internal/postgres"
	"github.com/faredown/bargain-engine.git/internal/redisx"
	"github.com/joho/godotenv"
)

var allTopics = []string{
	bargain.TopicSessionStarted,
	bargain.TopicRoundSubmitted,
	bargain.TopicHoldIssued,
	bargain.TopicHoldConsumed,
	bargain.TopicSessionClosed,
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Analytics consumer
	svc := &analytics.Service{
		Repo:        &bargain.EventRepo{DB: db},
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-analytics",
	}
	group := getenv("ANALYTICS_GROUP", "bargain-analytics")
	workers := mustAtoi(os.Getenv("ANALYTICS_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, allTopics, workers)

	go func() {
		log.Printf("analytics consumer started: group=%s workers=%d", group, workers)
		if err := cons.Start(ctx, svc.HandleEvent); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	// Hold sweeper: scheduler internal, selain endpoint maintenance on-demand.
	holds := &bargain.HoldRepo{DB: db}
	interval := time.Duration(mustAtoi(os.Getenv("SWEEP_INTERVAL_SEC"), "15")) * time.Second
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				n, err := holds.SweepExpired(ctx, now.UTC())
				if err != nil {
					log.Printf("sweep holds: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("swept %d expired holds", n)
				}
			}
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down worker...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
