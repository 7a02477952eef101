package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/faredown/bargain-engine.git/internal/bargain"
	"github.com/faredown/bargain-engine.git/internal/config"
	"github.com/faredown/bargain-engine.git/internal/httpx"
	kafkax "github.com/faredown/bargain-engine.git/internal/kafka"
	"github.com/faredown/bargain-engine.git/internal/postgres"
	"github.com/faredown/bargain-engine.git/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer (semua topic bargain.*)
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	policyCfg := bargain.PolicyConfig{
		MaxRounds:         cfg.MaxRounds,
		MatchToleranceBps: cfg.MatchToleranceBps,
		Round1TiltBps:     cfg.Round1TiltBps,
		RiskJitterBps:     cfg.RiskJitterBps,
		FinalJitterBps:    cfg.FinalJitterBps,
		HoldTTL:           cfg.HoldTTL,
		SessionTTL:        cfg.SessionTTL,
	}

	svc := &bargain.Service{
		Sessions: &bargain.SessionRepo{DB: db},
		Holds:    &bargain.HoldRepo{DB: db},
		Promos:   &bargain.PromoRepo{DB: db},
		Catalog:  &bargain.CatalogRepo{DB: db},
		Bookings: &bargain.BookingRepo{DB: db},
		Events:   &bargain.KafkaEvents{Producer: prod, Service: cfg.ServiceName},
		Calc: &bargain.Calculator{
			Markups:      &bargain.MarkupRepo{DB: db},
			Promos:       &bargain.PromoRepo{DB: db},
			MinMarginBps: cfg.MinMarginBps,
		},
		Policy: &bargain.Policy{
			Cfg:  policyCfg,
			Rand: bargain.NewLockedRand(time.Now().UnixNano()),
		},
		Cfg: policyCfg,
	}

	router := httpx.NewRouter()
	bh := &httpx.BargainHandler{Svc: svc, Redis: rdb}
	bh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // tutup inbox -> flush & close writer
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
}
