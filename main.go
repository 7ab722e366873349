package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mpesa-checkout/domain/payment"
	"mpesa-checkout/infrastructure/config"
	"mpesa-checkout/infrastructure/database"
	"mpesa-checkout/infrastructure/queue"
	"mpesa-checkout/infrastructure/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log.SetLevel(logLevel(cfg.LogLevel))

	api := fiber.New(fiber.Config{
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		Concurrency:           2048,
		DisableStartupMessage: true,
		EnablePrintRoutes:     false,
		BodyLimit:             1 * 1024 * 1024,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	durable := payment.NewPostgresRepository(db)
	cache := payment.NewCache()

	sweeper := payment.NewSweeper(cache, cfg.Cache.SweepInterval, cfg.Cache.Retention)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	var resync payment.ResyncPublisher
	if cfg.Nats.URL != "" {
		paymentQueue, err := queue.NewPaymentQueue(cfg.Nats.URL)
		if err != nil {
			log.Fatal(err)
		}
		defer paymentQueue.Close()
		resync = paymentQueue

		consumer := payment.NewNatsConsumer(paymentQueue, durable, cache, cfg.Nats)
		defer consumer.Close()

		go func() {
			if err := consumer.StartProcess(); err != nil {
				log.Fatal(err)
			}
		}()
	} else {
		log.Info("NATS_URL not set, fallback-only payments will not be resynced")
	}

	var (
		journal   payment.IUnmatchedJournal
		pingRedis payment.Pinger
	)
	if cfg.Redis.Addr != "" {
		rdb, err := database.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatal(err)
		}
		defer rdb.Close()
		journal = payment.NewUnmatchedJournal(rdb)
		pingRedis = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		log.Info("REDIS_HOST not set, unmatched callbacks will only be logged")
	}

	store := payment.NewStore(durable, cache, resync)
	paymentService := payment.NewService(service.NewGateway(cfg.Gateway), store, payment.NewReferenceGenerator(), cfg.Gateway)
	reconciler := payment.NewReconciler(store, journal)

	payment.NewController(paymentService, store, reconciler, journal).
		WithHealth(db.PingContext, pingRedis).
		InitRoutes(api)
	api.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	go func() {
		<-ctx.Done()
		if err := api.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Errorw("shutdown", "error", err)
		}
	}()

	log.Infow("listening", "port", cfg.ServerPort)
	if err = api.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatal(err)
	}
}

func logLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn", "warning":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}
