// cmd/lobby/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/jason-s-yu/arcade/internal/auth"
	"github.com/jason-s-yu/arcade/internal/cache"
	"github.com/jason-s-yu/arcade/internal/config"
	"github.com/jason-s-yu/arcade/internal/database"
	"github.com/jason-s-yu/arcade/internal/handlers"
	"github.com/jason-s-yu/arcade/internal/lobby"
	"github.com/jason-s-yu/arcade/internal/middleware"
	"github.com/jason-s-yu/arcade/internal/portpool"
	"github.com/jason-s-yu/arcade/internal/server"
	"github.com/jason-s-yu/arcade/internal/supervisor"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		config.Usage(os.Stdout)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "lobby: %v\n", err)
		os.Exit(2)
	}
	logger := cfg.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("lobby exited")
	}
	logger.Info("lobby shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	catalog := cache.NewCatalog(store, cfg.CatalogTTL)

	ports, err := portpool.New(cfg.PortFirst, cfg.PortLast, logger)
	if err != nil {
		return err
	}
	rooms := lobby.NewManager(store, supervisor.New(cfg.ScriptRuntime, cfg.BindHost, logger), ports, lobby.Options{
		StorageDir:     cfg.StorageDir,
		AdvertiseHost:  cfg.AdvertiseHost,
		LaunchGrace:    cfg.LaunchGrace,
		TerminateGrace: cfg.TerminateGrace,
		RoomIDAttempts: cfg.RoomIDAttempts,
	}, logger)

	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Warn("room journal disabled")
		} else {
			defer rdb.Close()
			rooms.WithEvents(cache.NewEventPublisher(rdb, cfg.RedisQueue, logger))
		}
	}

	issuer, err := newIssuer(cfg)
	if err != nil {
		return err
	}

	disp := handlers.NewDispatcher(catalog, rooms, cfg.StorageDir, logger).
		WithTokens(issuer).
		WithTimeouts(cfg.ReadTimeout, cfg.WriteTimeout).
		WithTempDir(cfg.TempDir)

	tcp := server.NewTCPServer("lobby", cfg.ListenAddr, disp.ServeConn, logger)
	if err := tcp.Listen(); err != nil {
		return err
	}

	// Listeners stay up until rooms have been closed so members still get
	// the shutdown notice.
	serveCtx, stopServing := context.WithCancel(context.Background())
	defer stopServing()
	g, gctx := errgroup.WithContext(serveCtx)

	g.Go(func() error { return tcp.Serve(gctx) })

	if cfg.WSAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", middleware.LogMiddleware(logger)(disp.WebSocketHandler(gctx, cfg.WSOrigins)))
		mux.Handle("/healthz", middleware.LogMiddleware(logger)(disp.HealthHandler()))
		hs := &http.Server{Addr: cfg.WSAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			logger.Infof("websocket gateway running on %s", cfg.WSAddr)
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("websocket gateway: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-gctx.Done():
		}
		logger.Info("shutting down")
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.TerminateGrace+5*time.Second)
		defer cancel()
		rooms.Close(closeCtx)
		stopServing()
		return nil
	})

	return g.Wait()
}

// openStore connects to Postgres, or falls back to an empty in-memory store
// when no database is configured.
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (database.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database configured, using in-memory store")
		return database.NewMemory(nil), nil
	}
	if cfg.Migrate {
		if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
			return nil, err
		}
	}
	return database.Connect(ctx, cfg.DatabaseURL, logger)
}

func newIssuer(cfg *config.Config) (*auth.Issuer, error) {
	ttl, err := auth.ParseTTL(cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token ttl: %w", err)
	}
	if cfg.TokenKeyPath != "" {
		return auth.NewIssuerFromPath(cfg.TokenKeyPath, ttl)
	}
	return auth.NewIssuer(ttl)
}
