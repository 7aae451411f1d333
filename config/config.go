package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Events     EventsConfig     `mapstructure:"events"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	StepUp     StepUpConfig     `mapstructure:"stepup"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Fraud      FraudConfig      `mapstructure:"fraud"`
	Investment InvestmentConfig `mapstructure:"investment"`
	Revenue    RevenueConfig    `mapstructure:"revenue"`
	Security   SecurityConfig   `mapstructure:"security"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Assets     []AssetConfig    `mapstructure:"assets"`
	Seed       []SeedAccount    `mapstructure:"seed"`
}

type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Mode          string `mapstructure:"mode"`           // debug, release, test
	OperatorToken string `mapstructure:"operator_token"` // static bearer for /internal routes
	RateLimit     int    `mapstructure:"rate_limit"`     // requests per minute per account, 0 disables
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// EventsConfig selects where ledger events are published.
type EventsConfig struct {
	Driver  string   `mapstructure:"driver"`  // none, redis, kafka
	Channel string   `mapstructure:"channel"` // redis pub/sub channel
	Topic   string   `mapstructure:"topic"`   // kafka topic
	Brokers []string `mapstructure:"brokers"` // kafka brokers
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type StepUpConfig struct {
	Secret string        `mapstructure:"secret"` // falls back to jwt.secret
	TTL    time.Duration `mapstructure:"ttl"`
}

// LedgerConfig carries money parameters as strings so they can be parsed
// into exact decimals.
type LedgerConfig struct {
	Currency     string `mapstructure:"currency"`
	FeeRate      string `mapstructure:"fee_rate"`
	DefaultLimit string `mapstructure:"default_limit"`
}

func (l LedgerConfig) FeeRateDecimal() decimal.Decimal {
	return decimal.RequireFromString(l.FeeRate)
}

func (l LedgerConfig) DefaultLimitDecimal() decimal.Decimal {
	return decimal.RequireFromString(l.DefaultLimit)
}

// FraudConfig holds the velocity and step-up thresholds. Profile "tight"
// replaces the velocity pair with 3 transactions per 5 minutes.
type FraudConfig struct {
	Profile          string        `mapstructure:"profile"` // default, tight
	VelocityMaxCount int           `mapstructure:"velocity_max_count"`
	VelocityWindow   time.Duration `mapstructure:"velocity_window"`
	StepUpThreshold  string        `mapstructure:"step_up_threshold"`
}

const (
	FraudProfileDefault = "default"
	FraudProfileTight   = "tight"
)

// Velocity returns the effective (count, window) pair.
func (f FraudConfig) Velocity() (int, time.Duration) {
	if f.Profile == FraudProfileTight {
		return 3, 5 * time.Minute
	}
	return f.VelocityMaxCount, f.VelocityWindow
}

func (f FraudConfig) StepUpThresholdDecimal() decimal.Decimal {
	return decimal.RequireFromString(f.StepUpThreshold)
}

type InvestmentConfig struct {
	CommissionOnSell bool `mapstructure:"commission_on_sell"`
}

type RevenueConfig struct {
	AllocationInterval time.Duration `mapstructure:"allocation_interval"` // 0 disables the scheduler
	Community          string        `mapstructure:"community"`
	Research           string        `mapstructure:"research"`
	Emergency          string        `mapstructure:"emergency"`
}

// Splits returns the community, research and emergency shares.
func (r RevenueConfig) Splits() (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	return decimal.RequireFromString(r.Community),
		decimal.RequireFromString(r.Research),
		decimal.RequireFromString(r.Emergency)
}

type SecurityConfig struct {
	ChainKey string `mapstructure:"chain_key"` // HMAC key for the security log chain, falls back to jwt.secret
}

type JournalConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type AssetConfig struct {
	Key        string `mapstructure:"key"`
	Name       string `mapstructure:"name"`
	Category   string `mapstructure:"category"`
	UnitPrice  string `mapstructure:"unit_price"`
	FeePercent string `mapstructure:"fee_percent"`
}

// SeedAccount is opened at boot when no account with the id exists yet.
type SeedAccount struct {
	ID       string `mapstructure:"id"`
	Balance  string `mapstructure:"balance"`
	Limit    string `mapstructure:"limit"`
	Verified bool   `mapstructure:"verified"`
}

// DefaultAssets is the tradeable catalog used when the config file has none.
func DefaultAssets() []AssetConfig {
	return []AssetConfig{
		{Key: "gold", Name: "Gold", Category: "precious_metals", UnitPrice: "1925.00", FeePercent: "0.02"},
		{Key: "silver", Name: "Silver", Category: "precious_metals", UnitPrice: "23.75", FeePercent: "0.02"},
		{Key: "platinum", Name: "Platinum", Category: "precious_metals", UnitPrice: "890.00", FeePercent: "0.025"},
		{Key: "treasury_bonds", Name: "Treasury Bonds", Category: "bonds", UnitPrice: "1000.00", FeePercent: "0.01"},
	}
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: BBL_.
// Nested keys use underscore: BBL_DATABASE_HOST, BBL_FRAUD_PROFILE, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.operator_token", "")
	v.SetDefault("server.rate_limit", 60)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "breakbread")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("events.driver", "none")
	v.SetDefault("events.channel", "ledger_events")
	v.SetDefault("events.topic", "ledger-events")
	v.SetDefault("events.brokers", []string{"localhost:9092"})
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "breakbread-ledger")
	v.SetDefault("stepup.secret", "")
	v.SetDefault("stepup.ttl", "5m")
	v.SetDefault("ledger.currency", "USD")
	v.SetDefault("ledger.fee_rate", "0.015")
	v.SetDefault("ledger.default_limit", "1000.00")
	v.SetDefault("fraud.profile", FraudProfileDefault)
	v.SetDefault("fraud.velocity_max_count", 10)
	v.SetDefault("fraud.velocity_window", "24h")
	v.SetDefault("fraud.step_up_threshold", "500.00")
	v.SetDefault("investment.commission_on_sell", false)
	v.SetDefault("revenue.allocation_interval", "0s")
	v.SetDefault("revenue.community", "0.40")
	v.SetDefault("revenue.research", "0.35")
	v.SetDefault("revenue.emergency", "0.25")
	v.SetDefault("security.chain_key", "")
	v.SetDefault("journal.buffer_size", 1024)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("metrics.enabled", true)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: BBL_DATABASE_HOST -> database.host
	v.SetEnvPrefix("BBL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Assets) == 0 {
		cfg.Assets = DefaultAssets()
	}
	if cfg.StepUp.Secret == "" {
		cfg.StepUp.Secret = cfg.JWT.Secret
	}
	if cfg.Security.ChainKey == "" {
		cfg.Security.ChainKey = cfg.JWT.Secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that every decimal setting parses and that thresholds
// are usable. It does not require secrets; the caller decides that.
func (c *Config) Validate() error {
	var errs []error

	checkDecimal := func(name, value string, allowZero bool) {
		d, err := decimal.NewFromString(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		if d.IsNegative() || (!allowZero && d.IsZero()) {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %s", name, value))
		}
	}

	checkDecimal("ledger.fee_rate", c.Ledger.FeeRate, true)
	checkDecimal("ledger.default_limit", c.Ledger.DefaultLimit, false)
	checkDecimal("fraud.step_up_threshold", c.Fraud.StepUpThreshold, true)
	checkDecimal("revenue.community", c.Revenue.Community, true)
	checkDecimal("revenue.research", c.Revenue.Research, true)
	checkDecimal("revenue.emergency", c.Revenue.Emergency, true)

	if c.Fraud.Profile != FraudProfileDefault && c.Fraud.Profile != FraudProfileTight {
		errs = append(errs, fmt.Errorf("fraud.profile: unknown profile %q", c.Fraud.Profile))
	}
	if count, window := c.Fraud.Velocity(); count <= 0 || window <= 0 {
		errs = append(errs, errors.New("fraud: velocity count and window must be positive"))
	}

	if len(errs) == 0 {
		a, b, e := c.Revenue.Splits()
		if !a.Add(b).Add(e).Equal(decimal.NewFromInt(1)) {
			errs = append(errs, errors.New("revenue: splits must sum to 1"))
		}
	}

	for i, a := range c.Assets {
		if a.Key == "" {
			errs = append(errs, fmt.Errorf("assets[%d]: key is required", i))
		}
		checkDecimal(fmt.Sprintf("assets[%d].unit_price", i), a.UnitPrice, false)
		checkDecimal(fmt.Sprintf("assets[%d].fee_percent", i), a.FeePercent, true)
	}
	for i, s := range c.Seed {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("seed[%d]: id is required", i))
		}
		checkDecimal(fmt.Sprintf("seed[%d].balance", i), s.Balance, true)
		if s.Limit != "" {
			checkDecimal(fmt.Sprintf("seed[%d].limit", i), s.Limit, false)
		}
	}

	switch c.Events.Driver {
	case "none", "redis", "kafka":
	default:
		errs = append(errs, fmt.Errorf("events.driver: unknown driver %q", c.Events.Driver))
	}

	return errors.Join(errs...)
}
