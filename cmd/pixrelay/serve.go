package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/pixrelay/pixrelay/internal/bridge"
	"github.com/pixrelay/pixrelay/internal/channel"
	"github.com/pixrelay/pixrelay/internal/channel/discord"
	"github.com/pixrelay/pixrelay/internal/config"
	"github.com/pixrelay/pixrelay/internal/logger"
	"github.com/pixrelay/pixrelay/internal/receiver"
	"github.com/pixrelay/pixrelay/internal/server"
	"github.com/pixrelay/pixrelay/internal/version"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideReceiverClient,
			provideDiscordAdapter,
			provideRouter,
			provideLifecycle,
			provideStatusHandler,
			provideServer,
		),
		fx.Invoke(
			startBridge,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideReceiverClient(log *slog.Logger, cfg config.Config) (*receiver.Client, error) {
	return receiver.NewClient(log, cfg.Receiver.URL, cfg.Receiver.Token)
}

func provideDiscordAdapter(log *slog.Logger, cfg config.Config) (*discord.Adapter, error) {
	return discord.NewAdapter(log, cfg.Discord.Token)
}

func provideRouter(log *slog.Logger, cfg config.Config, client *receiver.Client, adapter *discord.Adapter) *bridge.Router {
	return bridge.NewRouter(log, client, client, client, adapter, cfg.Bridge.AllowedChannels)
}

func provideLifecycle(log *slog.Logger, adapter *discord.Adapter, router *bridge.Router) *channel.Lifecycle {
	return channel.NewLifecycle(log, adapter, router.Handle)
}

func provideStatusHandler(lifecycle *channel.Lifecycle) *server.StatusHandler {
	return server.NewStatusHandler(&lifecycleReporter{lifecycle: lifecycle})
}

func provideServer(log *slog.Logger, cfg config.Config, statusHandler *server.StatusHandler) *server.Server {
	return server.New(log, cfg.Server.Addr, statusHandler)
}

func startBridge(lc fx.Lifecycle, log *slog.Logger, lifecycle *channel.Lifecycle) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			log.Info("starting bridge", slog.String("version", version.GetInfo()))
			return lifecycle.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			return lifecycle.Stop(stopCtx)
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

type lifecycleReporter struct {
	lifecycle *channel.Lifecycle
}

func (r *lifecycleReporter) State() string {
	return string(r.lifecycle.State())
}

func (r *lifecycleReporter) Running() bool {
	return r.lifecycle.Running()
}
