// The kakebo agent keeps a durable local copy of the server data and
// replays mutations queued while the server was unreachable. It syncs on
// a timer, on connectivity recovery, and on broker notifications.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"kakebo/internal/amqp"
	"kakebo/internal/client"
	"kakebo/internal/config"
	"kakebo/internal/localstore"
	"kakebo/internal/log"
	"kakebo/internal/offline"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{Level: log.DefaultConfig().Level, Component: "kakebo-agent"})
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	store, err := localstore.Open(cfg.AgentDBPath)
	if err != nil {
		logger.Error("Failed to open local store", "error", err, "path", cfg.AgentDBPath)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("Local store ready", "path", cfg.AgentDBPath)

	api := client.New(cfg.APIBaseURL, cfg.HTTPTimeout)
	manager := offline.NewManager(store, api)
	manager.OnSync(func(event offline.Event, err error) {
		switch event {
		case offline.EventError:
			logger.Error("Sync cycle failed", "error", err)
		case offline.EventComplete:
			logger.Info("Sync cycle completed")
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Connectivity prober. Flipping offline-to-online triggers a sync.
	g.Go(func() error {
		probe := func() {
			err := api.Ping(ctx)
			manager.SetOnline(ctx, err == nil)
		}
		probe()
		ticker := time.NewTicker(cfg.ProbeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				probe()
			}
		}
	})

	// Periodic sync.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				manager.RequestSync(ctx)
			}
		}
	})

	// Broker notifications, when configured.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP", "error", err, "url", cfg.AMQPURL)
			os.Exit(1)
		}
		defer amqpClient.Close()
		logger.Info("Listening for sync notifications",
			"exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)

		g.Go(func() error {
			return amqpClient.ConsumeSyncRequired(ctx, func(msg *amqp.SyncRequiredMessage) error {
				logger.Info("Sync notification received", "entity", msg.Entity, "id", msg.ID)
				manager.RequestSync(ctx)
				return nil
			})
		})
	}

	logger.Info("Agent started",
		"api", cfg.APIBaseURL,
		"sync_interval", cfg.SyncInterval,
		"probe_interval", cfg.ProbeInterval)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("Agent error", "error", err)
		os.Exit(1)
	}
	logger.Info("Agent stopped gracefully")
}
