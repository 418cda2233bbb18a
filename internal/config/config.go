package config

import (
	"cmp"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type StoreKind string

const (
	Postgres StoreKind = "postgres"
	Memory   StoreKind = "memory"
)

type ServerConfig struct {
	Port            string        `yaml:"port"`
	Mode            string        `yaml:"mode"` // gin mode: debug, release, test
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Store    StoreKind `yaml:"store"`
	Host     string    `yaml:"host"`
	Port     string    `yaml:"port"`
	User     string    `yaml:"user"`
	Password string    `yaml:"password"`
	Name     string    `yaml:"name"`
	SSLMode  string    `yaml:"ssl_mode"`
	MaxOpen  int       `yaml:"max_open_conns"`
	MaxIdle  int       `yaml:"max_idle_conns"`
}

type PricesConfig struct {
	CoinGeckoURL      string            `yaml:"coingecko_url"`
	Coins             map[string]string `yaml:"coins"` // coingecko id -> symbol
	RefreshSchedule   string            `yaml:"refresh_schedule"`
	RequestsPerMinute int               `yaml:"requests_per_minute"`
	Timeout           time.Duration     `yaml:"timeout"`
}

type TradingConfig struct {
	Workers      int             `yaml:"workers"`
	QueueSize    int             `yaml:"queue_size"`
	StartingCash decimal.Decimal `yaml:"starting_cash"`
	HistoryLimit int             `yaml:"history_limit"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Prices   PricesConfig   `yaml:"prices"`
	Trading  TradingConfig  `yaml:"trading"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

const (
	_defaultPort            = "8080"
	_defaultShutdownTimeout = 10 * time.Second
	_defaultCoinGeckoURL    = "https://api.coingecko.com/api/v3"
	_defaultRequestsPerMin  = 30
	_defaultPriceTimeout    = 10 * time.Second
	_defaultWorkers         = 5
	_defaultQueueSize       = 100
	_defaultStartingCash    = 100000
	_defaultHistoryLimit    = 50
)

// DefaultCoins are the assets refreshed from CoinGecko when none are configured.
func DefaultCoins() map[string]string {
	return map[string]string{
		"bitcoin":  "BTC",
		"ethereum": "ETH",
		"cardano":  "ADA",
	}
}

// Load reads an optional YAML file, applies environment overrides and fills defaults.
// An empty filename skips the file.
func Load(filename string) (Config, error) {
	var cfg Config
	if filename != "" {
		input, err := os.ReadFile(filename)
		if err != nil {
			return cfg, fmt.Errorf("%w: can't read file", err)
		}
		if err := yaml.Unmarshal(input, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: can't unmarshal config", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, fmt.Errorf("%w: can't apply env", err)
	}
	cfg.Setup()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%w: config validation failed", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Mode = getEnv("GIN_MODE", c.Server.Mode)

	c.Database.Store = StoreKind(getEnv("STORE", string(c.Database.Store)))
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Prices.CoinGeckoURL = getEnv("COINGECKO_URL", c.Prices.CoinGeckoURL)
	c.Prices.RefreshSchedule = getEnv("PRICE_REFRESH_SCHEDULE", c.Prices.RefreshSchedule)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	if workers := os.Getenv("NUM_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return fmt.Errorf("%w: NUM_WORKERS", err)
		}
		c.Trading.Workers = n
	}
	if cash := os.Getenv("STARTING_CASH"); cash != "" {
		d, err := decimal.NewFromString(cash)
		if err != nil {
			return fmt.Errorf("%w: STARTING_CASH", err)
		}
		c.Trading.StartingCash = d
	}

	return nil
}

func (c *Config) Setup() {
	c.Server.Port = cmp.Or(c.Server.Port, _defaultPort)
	c.Server.Mode = cmp.Or(c.Server.Mode, "release")
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = _defaultShutdownTimeout
	}

	c.Database.Store = cmp.Or(c.Database.Store, Postgres)
	c.Database.Host = cmp.Or(c.Database.Host, "localhost")
	c.Database.Port = cmp.Or(c.Database.Port, "5432")
	c.Database.User = cmp.Or(c.Database.User, "postgres")
	c.Database.Password = cmp.Or(c.Database.Password, "postgres")
	c.Database.Name = cmp.Or(c.Database.Name, "crypto_academy")
	c.Database.SSLMode = cmp.Or(c.Database.SSLMode, "disable")
	if c.Database.MaxOpen <= 0 {
		c.Database.MaxOpen = 25
	}
	if c.Database.MaxIdle <= 0 {
		c.Database.MaxIdle = 5
	}

	c.Prices.CoinGeckoURL = strings.TrimRight(cmp.Or(c.Prices.CoinGeckoURL, _defaultCoinGeckoURL), "/")
	if len(c.Prices.Coins) == 0 {
		c.Prices.Coins = DefaultCoins()
	}
	for id, symbol := range c.Prices.Coins {
		c.Prices.Coins[id] = strings.ToUpper(symbol)
	}
	if c.Prices.RequestsPerMinute <= 0 {
		c.Prices.RequestsPerMinute = _defaultRequestsPerMin
	}
	if c.Prices.Timeout <= 0 {
		c.Prices.Timeout = _defaultPriceTimeout
	}

	if c.Trading.Workers <= 0 {
		c.Trading.Workers = _defaultWorkers
	}
	if c.Trading.QueueSize <= 0 {
		c.Trading.QueueSize = _defaultQueueSize
	}
	if c.Trading.StartingCash.IsZero() {
		c.Trading.StartingCash = decimal.NewFromInt(_defaultStartingCash)
	}
	if c.Trading.HistoryLimit <= 0 {
		c.Trading.HistoryLimit = _defaultHistoryLimit
	}

	c.Log.Level = cmp.Or(c.Log.Level, "info")
}

func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Server.Port)
	}
	switch c.Database.Store {
	case Postgres, Memory:
	default:
		return fmt.Errorf("unknown store %q", c.Database.Store)
	}
	if _, err := url.ParseRequestURI(c.Prices.CoinGeckoURL); err != nil {
		return fmt.Errorf("%w: invalid coingecko url", err)
	}
	if c.Trading.StartingCash.IsNegative() {
		return fmt.Errorf("starting cash must not be negative")
	}
	return nil
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper function to get environment variable with default
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
