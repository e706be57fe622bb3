package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Router      RouterConfig     `mapstructure:"router"`
	Flash       FlashConfig      `mapstructure:"flash"`
	Protection  ProtectionConfig `mapstructure:"protection"`
	Security    SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
}

type RouterConfig struct {
	MaxHops            uint8  `mapstructure:"max_hops"`
	DefaultSlippageBps uint16 `mapstructure:"default_slippage_bps"`
	RoutingFeeBps      uint16 `mapstructure:"routing_fee_bps"`
	Active             bool   `mapstructure:"active"`
	Authority          string `mapstructure:"authority"`
}

type FlashConfig struct {
	FeeRateBps     uint16 `mapstructure:"fee_rate_bps"`
	MaxSlippageBps uint16 `mapstructure:"max_slippage_bps"`
	PoolLiquidity  uint64 `mapstructure:"pool_liquidity"`
	Paused         bool   `mapstructure:"paused"`
}

type ProtectionConfig struct {
	BaseDelay         string `mapstructure:"base_delay"`
	MaxSlippageBps    uint16 `mapstructure:"max_slippage_bps"`
	MaxPriceImpactBps uint16 `mapstructure:"max_price_impact_bps"`
	Active            bool   `mapstructure:"active"`
}

type SecurityConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	JWTExpiry       string `mapstructure:"jwt_expiry"`
	AdminAPIKeyHash string `mapstructure:"admin_api_key_hash" json:"-" yaml:"-"`
	BcryptCost      int    `mapstructure:"bcrypt_cost"`
}

// BaseDelayDuration parses the configured protection delay.
func (p ProtectionConfig) BaseDelayDuration() (time.Duration, error) {
	return time.ParseDuration(p.BaseDelay)
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Bind secrets to their conventional environment variables
	if err := viper.BindEnv("security.jwt_secret", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind JWT_SECRET environment variable: %w", err)
	}
	if err := viper.BindEnv("security.admin_api_key_hash", "ADMIN_API_KEY_HASH"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_API_KEY_HASH environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	environment := strings.ToLower(config.Environment)

	// Validate JWT secret in non-development environments
	if environment != "development" && config.Security.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required in non-development environments")
	}

	// Validate JWT expiry duration
	if config.Security.JWTExpiry != "" {
		if _, err := time.ParseDuration(config.Security.JWTExpiry); err != nil {
			return nil, fmt.Errorf("invalid JWT expiry duration: %w", err)
		}
	}

	// Validate bcrypt cost parameter
	if config.Security.BcryptCost < bcrypt.MinCost || config.Security.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, config.Security.BcryptCost)
	}

	baseDelay, err := config.Protection.BaseDelayDuration()
	if err != nil {
		return nil, fmt.Errorf("invalid protection base delay: %w", err)
	}
	if baseDelay < 0 || baseDelay > 5*time.Minute {
		return nil, fmt.Errorf("protection base_delay must be between 0s and 5m, got %s", baseDelay)
	}

	if config.Router.MaxHops == 0 || config.Router.MaxHops > 10 {
		return nil, fmt.Errorf("router max_hops must be between 1 and 10, got %d", config.Router.MaxHops)
	}
	if config.Router.DefaultSlippageBps > 5000 {
		return nil, fmt.Errorf("router default_slippage_bps must not exceed 5000, got %d", config.Router.DefaultSlippageBps)
	}
	if config.Router.RoutingFeeBps > 1000 {
		return nil, fmt.Errorf("router routing_fee_bps must not exceed 1000, got %d", config.Router.RoutingFeeBps)
	}
	if config.Flash.FeeRateBps > 1000 {
		return nil, fmt.Errorf("flash fee_rate_bps must not exceed 1000, got %d", config.Flash.FeeRateBps)
	}
	if config.Flash.MaxSlippageBps > 5000 {
		return nil, fmt.Errorf("flash max_slippage_bps must not exceed 5000, got %d", config.Flash.MaxSlippageBps)
	}
	if config.Protection.MaxSlippageBps > 1000 {
		return nil, fmt.Errorf("protection max_slippage_bps must not exceed 1000, got %d", config.Protection.MaxSlippageBps)
	}
	if config.Protection.MaxPriceImpactBps > 5000 {
		return nil, fmt.Errorf("protection max_price_impact_bps must not exceed 5000, got %d", config.Protection.MaxPriceImpactBps)
	}

	// Update config with normalized environment
	config.Environment = environment

	return &config, nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Set database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "dextra")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "300s")
	viper.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.stream", "dextra:events")

	// Router
	viper.SetDefault("router.max_hops", 2)
	viper.SetDefault("router.default_slippage_bps", 100)
	viper.SetDefault("router.routing_fee_bps", 10)
	viper.SetDefault("router.active", true)
	viper.SetDefault("router.authority", "")

	// Flash
	viper.SetDefault("flash.fee_rate_bps", 300)
	viper.SetDefault("flash.max_slippage_bps", 100)
	viper.SetDefault("flash.pool_liquidity", uint64(1_000_000_000_000))
	viper.SetDefault("flash.paused", false)

	// Protection
	viper.SetDefault("protection.base_delay", "1m")
	viper.SetDefault("protection.max_slippage_bps", 1000)
	viper.SetDefault("protection.max_price_impact_bps", 1000)
	viper.SetDefault("protection.active", true)

	// Security
	viper.SetDefault("security.jwt_secret", "")
	viper.SetDefault("security.jwt_expiry", "24h")
	viper.SetDefault("security.admin_api_key_hash", "")
	viper.SetDefault("security.bcrypt_cost", 12)
}
