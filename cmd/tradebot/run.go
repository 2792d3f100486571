package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jwebster45206/villager-trader/internal/antiidle"
	"github.com/jwebster45206/villager-trader/internal/commands"
	"github.com/jwebster45206/villager-trader/internal/config"
	"github.com/jwebster45206/villager-trader/internal/console"
	"github.com/jwebster45206/villager-trader/internal/container"
	"github.com/jwebster45206/villager-trader/internal/controller"
	"github.com/jwebster45206/villager-trader/internal/handlers"
	"github.com/jwebster45206/villager-trader/internal/logger"
	"github.com/jwebster45206/villager-trader/internal/metrics"
	"github.com/jwebster45206/villager-trader/internal/services/discord"
	"github.com/jwebster45206/villager-trader/internal/services/events"
	"github.com/jwebster45206/villager-trader/internal/storage"
	"github.com/jwebster45206/villager-trader/internal/worker"
	"github.com/jwebster45206/villager-trader/internal/world"
	"github.com/jwebster45206/villager-trader/internal/world/bridge"
	"github.com/jwebster45206/villager-trader/pkg/state"
	"github.com/jwebster45206/villager-trader/pkg/trade"
)

const (
	redisConnectRetries = 5
	redisConnectDelay   = 2 * time.Second
	logFileName         = "tradebot.log"
)

func runBot(parent context.Context, configPath string, withConsole bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// The console owns the terminal, so logs go to a file instead.
	var logOut io.Writer = os.Stdout
	if withConsole {
		f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	instanceID := uuid.New().String()
	log := logger.WithBot(logger.Setup(cfg, logOut), cfg.Server.Username, instanceID)

	log.Info("Starting trading bot",
		"environment", cfg.Environment,
		"version", Version,
		"bridge_url", cfg.BridgeURL,
		"server", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, quit := context.WithCancel(ctx)
	defer quit()

	order, err := trade.ParseOrder(cfg.Trade.Order)
	if err != nil {
		return err
	}

	m := metrics.New()

	// Optional Redis: ledger and event broadcast share one client.
	var (
		ledger      storage.Ledger = storage.NewMemoryLedger()
		redisLedger *storage.RedisLedger
		sinks       []events.Sink
	)
	if cfg.RedisURL != "" {
		redisClient, err := storage.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Failed to close Redis client", "error", err)
			}
		}()
		redisLedger = storage.NewRedisLedger(redisClient, cfg.Server.Username, log)
		if err := redisLedger.WaitForConnection(ctx, redisConnectRetries, redisConnectDelay); err != nil {
			return fmt.Errorf("redis unavailable: %w", err)
		}
		ledger = redisLedger
		log.Info("Redis connection established successfully")
		if cfg.Notifier.Redis.Enabled {
			sinks = append(sinks, events.NewBroadcaster(redisClient, cfg.Notifier.Redis.Channel, log))
		}
	}
	if cfg.Notifier.Discord.Enabled {
		client := &http.Client{Timeout: 10 * time.Second}
		sinks = append(sinks, discord.NewWebhook(cfg.Notifier.Discord.WebhookURL, cfg.Notifier.Discord.Footer, client, log))
	}
	bus := events.NewBus(cfg.Server.Username, log, sinks...)
	m.TrackDroppedEvents(bus.Dropped)

	client, err := bridge.Dial(ctx, cfg.BridgeURL, cfg.Server.Username, log)
	if err != nil {
		return err
	}
	defer client.Close()
	log.Info("Connected to bridge")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Run(gctx) })
	g.Go(func() error { return bus.Run(gctx) })

	if err := client.Login(gctx, loginOptions(cfg)); err != nil {
		quit()
		_ = g.Wait()
		return fmt.Errorf("failed to join %s:%d: %w", cfg.Server.Host, cfg.Server.Port, err)
	}
	log.Info("Joined game server", "host", cfg.Server.Host, "port", cfg.Server.Port, "version", cfg.Server.Version)

	if err := configureMovements(gctx, client, cfg, log); err != nil {
		log.Warn("Failed to configure safe movements", "error", err)
	}

	st := state.New(cfg.Whitelist, cfg.Bounds, cfg.Trade.Keywords)

	opts := worker.Options{
		MoveTimeout:      cfg.Timing.MoveTimeout,
		PreTradeDelay:    cfg.Timing.PreTradeDelay,
		WindowSettle:     cfg.Timing.WindowSettle,
		TradeDelay:       cfg.Timing.TradeDelay,
		VillagerDelay:    cfg.Timing.VillagerDelay,
		EmptyScanWait:    cfg.Timing.EmptyScanWait,
		CycleWait:        cfg.Timing.CycleWait,
		ErrorBackoff:     cfg.Timing.ErrorBackoff,
		NotSpawnedWait:   cfg.Timing.NotSpawnedWait,
		GoalRadius:       cfg.Movement.GoalRadius,
		InteractionRange: cfg.Movement.InteractionRange,
		Currency:         cfg.Trade.Currency,
		Order:            order,
		RefillLow:        cfg.Trade.RefillLow,
		RefillHigh:       cfg.Trade.RefillHigh,
	}
	containers := container.NewInteractor(client, container.Options{
		Radius:      cfg.Movement.GoalRadius,
		MoveTimeout: cfg.Timing.MoveTimeout,
	}, bus, m, log)
	trader := worker.NewTrader(client, st, containers, ledger, bus, m, opts, log)
	cycle := worker.New(client, st, trader, bus, m, opts, log, instanceID)
	ctrl := controller.New(gctx, st, cycle, bus, m, log)

	dispatcher := commands.NewDispatcher(st, ctrl, client, ledger, quit, log)
	g.Go(func() error { return dispatcher.Serve(gctx, client.Whispers()) })

	if cfg.AntiIdle.Enabled {
		keeper := antiidle.New(client, antiidle.Options{
			Interval:   cfg.AntiIdle.Interval,
			Command:    cfg.AntiIdle.Command,
			LookJitter: cfg.AntiIdle.LookJitter,
		}, log)
		g.Go(func() error { return keeper.Run(gctx) })
	}
	if cfg.Metrics.Addr != "" {
		health := handlers.NewHealthHandler(healthChecks(client, redisLedger), st.Snapshot, log)
		g.Go(func() error { return m.Serve(gctx, cfg.Metrics.Addr, health, log) })
	}
	if withConsole {
		g.Go(func() error {
			err := console.Run(gctx, dispatcher, st.Snapshot, cfg.Server.Username)
			// Closing the console ends the process.
			quit()
			return err
		})
	}

	log.Info("Trading bot ready", "whitelist", cfg.Whitelist, "bounds", cfg.Bounds.String())

	err = g.Wait()
	ctrl.Stop("shutdown")
	ctrl.Wait()
	if err != nil {
		log.Error("Trading bot stopped with error", "error", err)
		return err
	}
	log.Info("Trading bot shut down")
	return nil
}

func loginOptions(cfg *config.Config) bridge.LoginOptions {
	return bridge.LoginOptions{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		Username: cfg.Server.Username,
		Version:  cfg.Server.Version,
		Auth:     cfg.Server.Auth,
	}
}

func configureMovements(ctx context.Context, w world.World, cfg *config.Config, log *slog.Logger) error {
	opts := world.MovementOptions{
		AllowDig:    cfg.Movement.AllowDig,
		AllowPlace:  cfg.Movement.AllowPlace,
		AllowSprint: cfg.Movement.AllowSprint,
	}
	if err := w.SetMovements(ctx, opts); err != nil {
		return err
	}
	log.Info("Safe pathfinding initialized", "allow_dig", opts.AllowDig, "allow_place", opts.AllowPlace)
	return nil
}

func healthChecks(w world.World, redisLedger *storage.RedisLedger) map[string]handlers.Check {
	checks := map[string]handlers.Check{
		"bridge": func(ctx context.Context) error {
			_, err := w.Self(ctx)
			if errors.Is(err, world.ErrNotFound) {
				return nil // connected, not yet spawned
			}
			return err
		},
	}
	if redisLedger != nil {
		checks["redis"] = redisLedger.Ping
	}
	return checks
}
