package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-checkout-core/internal/cart"
	"github.com/ariefcatur/go-checkout-core/internal/checkout"
	"github.com/ariefcatur/go-checkout-core/internal/config"
	"github.com/ariefcatur/go-checkout-core/internal/httpx"
	"github.com/ariefcatur/go-checkout-core/internal/inventory"
	kafkax "github.com/ariefcatur/go-checkout-core/internal/kafka"
	"github.com/ariefcatur/go-checkout-core/internal/logx"
	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/ariefcatur/go-checkout-core/internal/payment"
	"github.com/ariefcatur/go-checkout-core/internal/postgres"
	"github.com/ariefcatur/go-checkout-core/internal/redisx"
	"github.com/ariefcatur/go-checkout-core/internal/returns"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := logx.New(cfg.LogLevel, cfg.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("migrate")
		}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		// the cache is an optimisation; run without it being reachable yet
		log.WithError(err).Warn("redis ping")
	}
	kv := redisx.NewKV(rdb)

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.WithField("component", "producer"))
	prod.Start()
	pub := &kafkax.EventPublisher{P: prod}

	// Services
	store := orders.NewPGStore(db, cfg.QueryTimeout)
	api := &httpx.API{
		Catalog: &inventory.Catalog{Products: store.Products(), Cache: kv, TTL: cfg.CatalogCacheTTL, Log: log},
		Cart:    cart.NewService(store, log),
		Checkout: checkout.NewService(store, kv, pub, log, checkout.Options{
			ServiceName:    cfg.ServiceName,
			IdempotencyTTL: cfg.IdempotencyTTL,
			Timeout:        cfg.CheckoutTimeout,
		}),
		Payments:  payment.NewService(store, pub, log, cfg.ServiceName),
		Returns:   returns.NewService(store, pub, log, cfg.ServiceName),
		JWTSecret: []byte(cfg.JWTSecret),
		Log:       log,
	}
	router := httpx.NewRouter(log)
	router.Get("/readyz", httpx.Ready(log,
		httpx.Check{Name: "postgres", Ping: db.Ping},
		httpx.Check{Name: "redis", Ping: func(ctx context.Context) error { return redisx.Ping(ctx, rdb) }},
	))
	api.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	prod.Close()      // stop accepting, flush the inbox
	prod.WaitClosed() // writer closed
}
