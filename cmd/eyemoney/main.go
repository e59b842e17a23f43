package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"eyemoney/internal/config"
	"eyemoney/internal/engine"
	apphttp "eyemoney/internal/http"
	"eyemoney/internal/log"
	"eyemoney/internal/notify"
	"eyemoney/internal/persist"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log.Setup(cfg.LogLevel)
	logger := log.New("eyemoney")

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var slot engine.StateSlot
	switch cfg.StateBackend {
	case "sqlite":
		sqliteSlot, err := persist.NewSQLiteSlot(cfg.SQLiteDBPath, cfg.StateKey)
		if err != nil {
			logger.Error("failed to open state database", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer sqliteSlot.Close()
		slot = sqliteSlot
		logger.Info("using sqlite state backend", "path", cfg.SQLiteDBPath)
	default:
		slot = persist.NewMemorySlot()
		logger.Info("using memory state backend")
	}

	eng, err := engine.New(ctx, slot, logger.WithComponent("engine"))
	if err != nil {
		logger.Error("failed to initialize engine", "error", err)
		os.Exit(1)
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		broadcaster, err := notify.New(cfg.AMQPURL, cfg.AMQPExchange, logger.WithComponent("notify"))
		if err != nil {
			logger.Error("failed to connect to AMQP", "error", err)
			os.Exit(1)
		}
		defer broadcaster.Close()

		// Publish from the mutation hook, not OnChange: a reload after
		// another instance's notification must not publish again.
		eng.OnMutate(func(*engine.Engine) {
			if err := broadcaster.Publish(ctx); err != nil {
				logger.Warn("change notification failed", "error", err)
			}
		})
		g.Go(func() error {
			err := broadcaster.Listen(ctx, func() {
				if err := eng.Reload(ctx); err != nil {
					logger.Warn("reload after external change failed", "error", err)
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		logger.Info("cross-process change notification enabled", "exchange", cfg.AMQPExchange)
	}

	srv := apphttp.NewServer(":"+cfg.Port, eng, logger.WithComponent("http"))

	g.Go(func() error {
		logger.Info("starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down cleanly")
}
