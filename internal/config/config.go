package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ArowuTest/raffle-engine/internal/models"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	JWT       JWTConfig
	Admin     AdminConfig
	Gateway   GatewayConfig
	Executor  ExecutorConfig
	Scheduler SchedulerConfig
	Dispersal DispersalConfig
	Log       LogConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	AllowedHosts []string
	Mode         string
}

// MongoDBConfig holds MongoDB-specific configuration. An empty URI selects
// the in-memory store.
type MongoDBConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// JWTConfig holds JWT-specific configuration
type JWTConfig struct {
	Secret    string
	ExpiresIn time.Duration
	Issuer    string
}

// AdminConfig holds the operator accounts allowed to log in
type AdminConfig struct {
	Operators []models.Operator
}

// GatewayConfig holds chain API configuration
type GatewayConfig struct {
	KaspaAPIURL       string
	KasplexAPIURL     string
	PageSize          int
	MaxPages          int
	RequestsPerSecond float64
	Timeout           time.Duration
	MockAPI           bool
}

// ExecutorConfig holds payment executor configuration
type ExecutorConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MockAPI     bool
	TreasuryKey string
}

// SchedulerConfig holds reconciliation scheduler configuration
type SchedulerConfig struct {
	Interval time.Duration
	Enabled  bool
}

// DispersalConfig holds prize payout and settlement configuration
type DispersalConfig struct {
	TreasuryAddress   string
	LeaseMaxHold      time.Duration
	ConfirmationDelay time.Duration
	TokenReserve      float64
	NativeReserve     float64
	MaxRaffleDuration time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string
	Service    string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load loads configuration from .env, environment variables and config files
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "4000")
	v.SetDefault("Server.AllowedHosts", []string{"localhost:3000"})
	v.SetDefault("Server.Mode", "release")
	v.SetDefault("MongoDB.URI", "")
	v.SetDefault("MongoDB.Database", "raffle-engine")
	v.SetDefault("MongoDB.ConnectTimeout", 10*time.Second)
	v.SetDefault("JWT.Secret", "")
	v.SetDefault("JWT.ExpiresIn", 24*time.Hour)
	v.SetDefault("JWT.Issuer", "raffle-engine")
	v.SetDefault("Gateway.KaspaAPIURL", "https://api.kaspa.org")
	v.SetDefault("Gateway.KasplexAPIURL", "https://api.kasplex.org")
	v.SetDefault("Gateway.PageSize", 50)
	v.SetDefault("Gateway.MaxPages", 20)
	v.SetDefault("Gateway.RequestsPerSecond", 5.0)
	v.SetDefault("Gateway.Timeout", 15*time.Second)
	v.SetDefault("Gateway.MockAPI", true)
	v.SetDefault("Executor.BaseURL", "")
	v.SetDefault("Executor.APIKey", "")
	v.SetDefault("Executor.TreasuryKey", "treasury")
	v.SetDefault("Executor.Timeout", 3*time.Minute)
	v.SetDefault("Executor.MockAPI", true)
	v.SetDefault("Scheduler.Interval", time.Minute)
	v.SetDefault("Scheduler.Enabled", true)
	v.SetDefault("Dispersal.TreasuryAddress", "")
	v.SetDefault("Dispersal.LeaseMaxHold", 30*time.Minute)
	v.SetDefault("Dispersal.ConfirmationDelay", 10*time.Second)
	v.SetDefault("Dispersal.TokenReserve", 15.0)
	v.SetDefault("Dispersal.NativeReserve", 3.0)
	v.SetDefault("Dispersal.MaxRaffleDuration", 5*24*time.Hour)
	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.Service", "raffle-engine")
	v.SetDefault("Log.File", "")
	v.SetDefault("Log.MaxSizeMB", 100)
	v.SetDefault("Log.MaxBackups", 5)
	v.SetDefault("Log.MaxAgeDays", 28)
}
