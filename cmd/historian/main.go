// cmd/historian/main.go drains the lobby's room journal from Redis into
// PostgreSQL.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/jason-s-yu/arcade/internal/cache"
	"github.com/jason-s-yu/arcade/internal/database"
	"github.com/jason-s-yu/arcade/internal/historian"
)

func main() {
	opts := historian.DefaultOptions()
	fs := flag.NewFlagSet("historian", flag.ContinueOnError)

	databaseURL := fs.String("database-url", getEnv("DATABASE_URL", ""), "postgres URL")
	redisAddr := fs.String("redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "redis address")
	redisDB := fs.Int("redis-db", getEnvInt("REDIS_DB", 0), "redis database number")
	queue := fs.String("queue", getEnv("HISTORIAN_QUEUE", cache.DefaultQueueName), "redis list to drain")
	migrate := fs.Bool("migrate", false, "apply schema migrations on startup")
	fs.IntVar(&opts.BatchSize, "batch-size", getEnvInt("HISTORIAN_BATCH_SIZE", opts.BatchSize), "events per insert")
	fs.DurationVar(&opts.FlushInterval, "flush-interval", getEnvDuration("HISTORIAN_FLUSH_INTERVAL", opts.FlushInterval), "max wait before a partial batch is written")
	fs.DurationVar(&opts.StaleAfter, "stale-after", getEnvDuration("HISTORIAN_STALE_AFTER", opts.StaleAfter), "mark rooms abandoned after this much silence, 0 disables")
	verbose := fs.BoolP("verbose", "v", false, "debug logging")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "historian: %v\n", err)
		os.Exit(2)
	}

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	if *databaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *migrate {
		if err := database.Migrate(*databaseURL, logger); err != nil {
			logger.WithError(err).Fatal("migration failed")
		}
	}
	db, err := database.Connect(ctx, *databaseURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("database unavailable")
	}
	defer db.Close()

	rdb, err := cache.Connect(ctx, *redisAddr, *redisDB)
	if err != nil {
		logger.WithError(err).Fatal("redis unavailable")
	}
	defer rdb.Close()

	h := historian.New(historian.NewRedisQueue(rdb, *queue), db, opts, logger)
	if err := h.Run(ctx); err != nil {
		logger.WithError(err).Error("historian exited")
	}
	logger.Info("historian shutdown complete")
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer value from an environment variable or returns a default value.
func getEnvInt(key string, defVal int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defVal
	}
	return i
}

func getEnvDuration(key string, defVal time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defVal
	}
	return d
}
