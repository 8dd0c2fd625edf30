package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-checkout-core/internal/config"
	"github.com/ariefcatur/go-checkout-core/internal/inventory"
	kafkax "github.com/ariefcatur/go-checkout-core/internal/kafka"
	"github.com/ariefcatur/go-checkout-core/internal/logx"
	"github.com/ariefcatur/go-checkout-core/internal/redisx"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	name := cfg.ServiceName + "-cache-invalidator"
	log := logx.New(cfg.LogLevel, name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.WithError(err).Fatal("redis ping")
	}

	inv := &inventory.Invalidator{Cache: redisx.NewKV(rdb), ServiceName: name, Log: log}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InvalidatorGroup, inventory.InvalidationTopics, cfg.InvalidatorWorkers, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.WithFields(logrus.Fields{
			"group":   cfg.InvalidatorGroup,
			"topics":  inventory.InvalidationTopics,
			"workers": cfg.InvalidatorWorkers,
		}).Info("cache invalidator started")
		if err := cons.Start(ctx, inv.Handle); err != nil {
			log.WithError(err).Error("consumer exit")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutting down consumer")
	case <-done:
	}
	cancel()
	<-done
}
