package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/angebot/offers/internal/clock"
	"github.com/angebot/offers/internal/config"
	"github.com/angebot/offers/internal/httpx"
	"github.com/angebot/offers/internal/inventory"
	kafkax "github.com/angebot/offers/internal/kafka"
	"github.com/angebot/offers/internal/offers"
	"github.com/angebot/offers/internal/postgres"
	"github.com/angebot/offers/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		if err := postgres.Migrate(cfg.PostgresDSN, dir); err != nil {
			log.Fatal("migrations", zap.Error(err))
		}
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pubCreated := kafkax.NewProducer(cfg.KafkaBrokers, offers.TopicOfferCreated, 1024, log)
	pubCreated.Start(ctx)
	pubStatus := kafkax.NewProducer(cfg.KafkaBrokers, offers.TopicOfferStatusChanged, 1024, log)
	pubStatus.Start(ctx)

	// Inventory gateway + core services
	gw := inventory.NewClient(cfg.InventoryBaseURL, cfg.InventoryToken, log)
	clk := clock.NewSystem()
	repo := &offers.Repo{DB: db}
	history := &offers.HistoryRepo{DB: db}
	coordinator := offers.NewReservationCoordinator(gw, repo, clk, cfg.ReservationTTL, log)
	checker := offers.NewAvailabilityChecker(gw, cfg.SalesChannelID, cfg.LowStockThreshold, log)
	svc := offers.NewService(repo, history, coordinator, checker,
		pubCreated, pubStatus, clk, cfg.ServiceName, cfg.NotificationsEnabled, log)

	router := httpx.NewRouter()
	oh := &httpx.OffersHandler{Service: svc, History: history, Redis: rdb, Log: log}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pubCreated.Close() // close inbox -> flush & close writer
	pubStatus.Close()
	cancel() // stop producer loops
	pubCreated.WaitClosed()
	pubStatus.WaitClosed()
}
