package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/olyamironova/matching-engine/internal/core"
	"github.com/olyamironova/matching-engine/internal/domain"
)

type Server struct {
	HTTPAddr       string
	MarketDataAddr string
	GRPCAddr       string
	RequestTimeout time.Duration
	RateLimit      time.Duration
	CORSOrigins    []string
}

type Engine struct {
	// Symbols are listed in symbol id order: the first name is symbol 0.
	Symbols      []string
	TickSize     decimal.Decimal
	Limits       core.Limits
	InboxSize    int
	ChannelSize  int
	DepthLevels  int
	DepthRefresh time.Duration
}

type Postgres struct {
	DSN string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type Kafka struct {
	Brokers         []string
	MarketDataTopic string
	ExecutionsTopic string
}

type Outbox struct {
	Dir           string
	RelayInterval time.Duration
	RelayBatch    int
}

type Config struct {
	Server   Server
	Engine   Engine
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Outbox   Outbox
	LogLevel string
}

func Default() Config {
	return Config{
		Server: Server{
			HTTPAddr:       ":8080",
			MarketDataAddr: ":8081",
			GRPCAddr:       ":9090",
			RequestTimeout: 2 * time.Second,
			RateLimit:      10 * time.Millisecond,
			CORSOrigins:    []string{"*"},
		},
		Engine: Engine{
			Symbols:      []string{"BTC-USD"},
			TickSize:     decimal.RequireFromString("0.01"),
			Limits:       core.DefaultLimits(),
			InboxSize:    4096,
			ChannelSize:  8192,
			DepthLevels:  20,
			DepthRefresh: 50 * time.Millisecond,
		},
		Redis: Redis{
			TTL: 5 * time.Minute,
		},
		Kafka: Kafka{
			MarketDataTopic: "market-data",
			ExecutionsTopic: "execution-reports",
		},
		Outbox: Outbox{
			RelayInterval: 250 * time.Millisecond,
			RelayBatch:    512,
		},
		LogLevel: "info",
	}
}

// LoadFromEnv reads an optional .env file (envPath, or ./.env when empty) and
// then applies environment overrides on top of Default. Environment values
// win over the file.
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	var errs []string
	fail := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", key, err))
	}

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitList(v)
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = n
		}
	}
	millis := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			ms, err := strconv.Atoi(v)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = time.Duration(ms) * time.Millisecond
		}
	}

	str("HTTP_ADDR", &cfg.Server.HTTPAddr)
	str("MARKET_DATA_ADDR", &cfg.Server.MarketDataAddr)
	str("GRPC_ADDR", &cfg.Server.GRPCAddr)
	millis("REQUEST_TIMEOUT_MS", &cfg.Server.RequestTimeout)
	millis("RATE_LIMIT_MS", &cfg.Server.RateLimit)
	list("CORS_ORIGINS", &cfg.Server.CORSOrigins)

	list("SYMBOLS", &cfg.Engine.Symbols)
	if v := os.Getenv("TICK_SIZE"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			fail("TICK_SIZE", err)
		} else {
			cfg.Engine.TickSize = d
		}
	}
	num("MAX_PARTICIPANTS", &cfg.Engine.Limits.MaxParticipants)
	num("MAX_ORDER_IDS", &cfg.Engine.Limits.MaxOrderIDs)
	num("MAX_ORDERS", &cfg.Engine.Limits.MaxOrders)
	num("MAX_PRICE_LEVELS", &cfg.Engine.Limits.MaxPriceLevels)
	num("INBOX_SIZE", &cfg.Engine.InboxSize)
	num("CHANNEL_SIZE", &cfg.Engine.ChannelSize)
	num("DEPTH_LEVELS", &cfg.Engine.DepthLevels)
	millis("DEPTH_REFRESH_MS", &cfg.Engine.DepthRefresh)

	str("POSTGRES_DSN", &cfg.Postgres.DSN)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	num("REDIS_DB", &cfg.Redis.DB)
	millis("REDIS_TTL_MS", &cfg.Redis.TTL)

	list("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	str("KAFKA_MARKET_DATA_TOPIC", &cfg.Kafka.MarketDataTopic)
	str("KAFKA_EXECUTIONS_TOPIC", &cfg.Kafka.ExecutionsTopic)

	str("OUTBOX_DIR", &cfg.Outbox.Dir)
	millis("RELAY_INTERVAL_MS", &cfg.Outbox.RelayInterval)
	num("RELAY_BATCH", &cfg.Outbox.RelayBatch)

	str("LOG_LEVEL", &cfg.LogLevel)

	if len(errs) > 0 {
		return cfg, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Engine.Symbols) == 0 {
		return fmt.Errorf("config: at least one symbol is required")
	}
	if len(c.Engine.Symbols) > domain.MaxSymbols {
		return fmt.Errorf("config: %d symbols configured, max %d", len(c.Engine.Symbols), domain.MaxSymbols)
	}
	if !c.Engine.TickSize.IsPositive() {
		return fmt.Errorf("config: tick size must be positive, got %s", c.Engine.TickSize)
	}
	if c.Engine.ChannelSize < 0 || c.Engine.InboxSize < 0 {
		return fmt.Errorf("config: channel sizes must not be negative")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("config: request timeout must be positive")
	}
	if c.Outbox.Dir == "" && len(c.Kafka.Brokers) > 0 {
		return fmt.Errorf("config: kafka publishing needs OUTBOX_DIR")
	}
	return c.Engine.Limits.Validate()
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
