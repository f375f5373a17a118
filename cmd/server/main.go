package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/matthewbaird/pagecomposer/internal/activity"
	"github.com/matthewbaird/pagecomposer/internal/config"
	"github.com/matthewbaird/pagecomposer/internal/eventbus"
	"github.com/matthewbaird/pagecomposer/internal/hst"
	"github.com/matthewbaird/pagecomposer/internal/server"
	"github.com/matthewbaird/pagecomposer/internal/session"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a CUE or JSON config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	store, err := hst.OpenSQLStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer store.Close()

	if cfg.Seed {
		if err := hst.SeedDemo(ctx, store); err != nil {
			log.Fatalf("seeding demo page: %v", err)
		}
	}

	bus := eventbus.New(0)
	history := activity.NewMemoryStore(10000)
	bus.Subscribe("log", eventbus.NewLogConsumer())
	bus.Subscribe("activity", activity.NewIndexer(history))
	bus.Start(ctx)
	defer bus.Stop()

	if err := server.Run(ctx, server.Config{
		Port:        cfg.Port,
		Store:       store,
		Origins:     cfg.Origins,
		HSTURL:      cfg.HSTURL,
		User:        cfg.User,
		CallTimeout: cfg.CallTimeout,
		Sessions:    session.NewManager(cfg.SessionMax, cfg.SessionIdle),
		Bus:         bus,
		Activity:    history,
		Debug:       cfg.Debug,
	}); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
