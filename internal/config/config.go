// Package config loads lobby settings from defaults, an optional YAML file,
// the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the full set of lobby settings.
type Config struct {
	ConfigFile string `yaml:"-"`

	ListenAddr string   `yaml:"listen_addr"`
	WSAddr     string   `yaml:"ws_addr"`
	WSOrigins  []string `yaml:"ws_origins"`

	PortFirst int `yaml:"port_first"`
	PortLast  int `yaml:"port_last"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	LaunchGrace    time.Duration `yaml:"launch_grace"`
	TerminateGrace time.Duration `yaml:"terminate_grace"`
	RoomIDAttempts int           `yaml:"room_id_attempts"`

	StorageDir    string `yaml:"storage_dir"`
	TempDir       string `yaml:"temp_dir"`
	AdvertiseHost string `yaml:"advertise_host"`
	BindHost      string `yaml:"bind_host"`
	ScriptRuntime string `yaml:"script_runtime"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	CatalogTTL  time.Duration `yaml:"catalog_ttl"`
	DatabaseURL string        `yaml:"database_url"`
	Migrate     bool          `yaml:"migrate"`

	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	RedisQueue string `yaml:"redis_queue"`

	TokenKeyPath string `yaml:"token_key_path"`
	TokenTTL     string `yaml:"token_ttl"`
}

// Default returns the settings used when nothing else is given.
func Default() Config {
	return Config{
		ListenAddr:     ":8888",
		PortFirst:      9000,
		PortLast:       9099,
		WriteTimeout:   10 * time.Second,
		LaunchGrace:    time.Second,
		TerminateGrace: time.Second,
		RoomIDAttempts: 32,
		StorageDir:     "storage",
		AdvertiseHost:  "127.0.0.1",
		BindHost:       "0.0.0.0",
		ScriptRuntime:  "python3",
		LogLevel:       "info",
		LogFormat:      "text",
		CatalogTTL:     5 * time.Second,
		RedisQueue:     "lobby_room_events",
		TokenTTL:       "24h",
	}
}

// Load builds a Config from args (without the program name) and the process
// environment.
func Load(args []string) (*Config, error) {
	return load(args, os.LookupEnv)
}

func load(args []string, lookup func(string) (string, bool)) (*Config, error) {
	// first pass only finds the config file; flag values are applied last
	probe := Default()
	fs := newFlagSet(&probe)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if probe.ConfigFile == "" {
		probe.ConfigFile, _ = lookup("LOBBY_CONFIG")
	}

	cfg := Default()
	if probe.ConfigFile != "" {
		if err := cfg.loadFile(probe.ConfigFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	fs = newFlagSet(&cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.ConfigFile = probe.ConfigFile

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Usage writes the flag help to w.
func Usage(w io.Writer) {
	cfg := Default()
	fs := newFlagSet(&cfg)
	fs.SetOutput(w)
	fmt.Fprintln(w, "Usage: lobby [options]")
	fs.PrintDefaults()
}

func newFlagSet(cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("lobby", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVarP(&cfg.ConfigFile, "config", "c", cfg.ConfigFile, "YAML config file")

	// ── listeners ────────────────────────────────────────────────
	fs.StringVarP(&cfg.ListenAddr, "listen", "l", cfg.ListenAddr, "TCP lobby address")
	fs.StringVar(&cfg.WSAddr, "ws-listen", cfg.WSAddr, "websocket gateway address (disabled when empty)")
	fs.StringSliceVar(&cfg.WSOrigins, "ws-origins", cfg.WSOrigins, "allowed websocket origin patterns")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "idle read timeout per client, 0 waits forever")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "write timeout per message")

	// ── game servers ─────────────────────────────────────────────
	fs.IntVar(&cfg.PortFirst, "port-first", cfg.PortFirst, "first game server port")
	fs.IntVar(&cfg.PortLast, "port-last", cfg.PortLast, "last game server port")
	fs.DurationVar(&cfg.LaunchGrace, "launch-grace", cfg.LaunchGrace, "wait after launch before players are told to connect")
	fs.DurationVar(&cfg.TerminateGrace, "terminate-grace", cfg.TerminateGrace, "wait after SIGTERM before a game server is killed")
	fs.IntVar(&cfg.RoomIDAttempts, "room-id-attempts", cfg.RoomIDAttempts, "random room id retries")
	fs.StringVar(&cfg.StorageDir, "storage", cfg.StorageDir, "directory holding uploaded games")
	fs.StringVar(&cfg.TempDir, "temp-dir", cfg.TempDir, "directory for download archives")
	fs.StringVar(&cfg.AdvertiseHost, "advertise-host", cfg.AdvertiseHost, "game server address sent to players")
	fs.StringVar(&cfg.BindHost, "bind-host", cfg.BindHost, "address game servers bind to")
	fs.StringVar(&cfg.ScriptRuntime, "runtime", cfg.ScriptRuntime, "interpreter for script entry points")

	// ── storage ──────────────────────────────────────────────────
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "postgres URL (in-memory store when empty)")
	fs.BoolVar(&cfg.Migrate, "migrate", cfg.Migrate, "apply schema migrations on startup")
	fs.DurationVar(&cfg.CatalogTTL, "catalog-ttl", cfg.CatalogTTL, "catalog cache lifetime, 0 disables")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address for room events (disabled when empty)")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "redis database number")
	fs.StringVar(&cfg.RedisQueue, "redis-queue", cfg.RedisQueue, "redis list receiving room events")

	// ── auth ─────────────────────────────────────────────────────
	fs.StringVar(&cfg.TokenKeyPath, "token-key", cfg.TokenKeyPath, "PEM ed25519 key for login tokens (ephemeral when empty)")
	fs.StringVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "login token lifetime, 0 or never for no expiry")

	// ── output ───────────────────────────────────────────────────
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")

	return fs
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from LOBBY_* variables and the shared names
// other services use for the same resources.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errList []error
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	num := func(dst *int, key string) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str(&c.ListenAddr, "LOBBY_LISTEN_ADDR")
	str(&c.WSAddr, "LOBBY_WS_ADDR")
	if v, ok := lookup("LOBBY_WS_ORIGINS"); ok && v != "" {
		c.WSOrigins = strings.Split(v, ",")
	}
	num(&c.PortFirst, "LOBBY_PORT_FIRST")
	num(&c.PortLast, "LOBBY_PORT_LAST")
	dur(&c.ReadTimeout, "LOBBY_READ_TIMEOUT")
	dur(&c.WriteTimeout, "LOBBY_WRITE_TIMEOUT")
	dur(&c.LaunchGrace, "LOBBY_LAUNCH_GRACE")
	dur(&c.TerminateGrace, "LOBBY_TERMINATE_GRACE")
	num(&c.RoomIDAttempts, "LOBBY_ROOM_ID_ATTEMPTS")
	str(&c.StorageDir, "LOBBY_STORAGE_DIR")
	str(&c.TempDir, "LOBBY_TEMP_DIR")
	str(&c.AdvertiseHost, "LOBBY_ADVERTISE_HOST")
	str(&c.BindHost, "LOBBY_BIND_HOST")
	str(&c.ScriptRuntime, "LOBBY_RUNTIME")
	str(&c.LogLevel, "LOBBY_LOG_LEVEL")
	str(&c.LogFormat, "LOBBY_LOG_FORMAT")
	dur(&c.CatalogTTL, "LOBBY_CATALOG_TTL")
	str(&c.DatabaseURL, "LOBBY_DATABASE_URL", "DATABASE_URL")
	if v, ok := lookup("LOBBY_MIGRATE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errList = append(errList, fmt.Errorf("LOBBY_MIGRATE: %w", err))
		} else {
			c.Migrate = b
		}
	}
	str(&c.RedisAddr, "LOBBY_REDIS_ADDR", "REDIS_ADDR")
	num(&c.RedisDB, "REDIS_DB")
	str(&c.RedisQueue, "LOBBY_REDIS_QUEUE", "HISTORIAN_QUEUE")
	str(&c.TokenKeyPath, "LOBBY_TOKEN_KEY")
	str(&c.TokenTTL, "LOBBY_TOKEN_TTL", "TOKEN_EXPIRE_TIME")

	return errors.Join(errList...)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errList []error
	if c.ListenAddr == "" {
		errList = append(errList, errors.New("listen_addr is required"))
	}
	if c.PortFirst < 1 || c.PortLast > 65535 || c.PortFirst > c.PortLast {
		errList = append(errList, fmt.Errorf("invalid game port range %d-%d", c.PortFirst, c.PortLast))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.LaunchGrace < 0 || c.TerminateGrace < 0 || c.CatalogTTL < 0 {
		errList = append(errList, errors.New("durations must not be negative"))
	}
	if c.RoomIDAttempts < 1 {
		errList = append(errList, errors.New("room_id_attempts must be at least 1"))
	}
	if c.StorageDir == "" {
		errList = append(errList, errors.New("storage_dir is required"))
	}
	if c.ScriptRuntime == "" {
		errList = append(errList, errors.New("script_runtime is required"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errList = append(errList, fmt.Errorf("log_level: %w", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errList = append(errList, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errList...)
}

// NewLogger builds the process logger from the log settings.
func (c *Config) NewLogger(out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
