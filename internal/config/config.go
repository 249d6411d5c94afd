package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// FeedConfig holds the upstream daily-order-report export parameters.
// The report window always spans yesterday..today; the remaining values are
// opaque identifiers the upstream API requires verbatim.
type FeedConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	CompanyID     string        `mapstructure:"company_id"`
	ITSFromPersol string        `mapstructure:"its_from_persol"`
	GroupBy       string        `mapstructure:"group_by"`
	GroupBy1      string        `mapstructure:"group_by1"`
	Query1        string        `mapstructure:"query1"`
	Query4        string        `mapstructure:"query4"`
	PeriodID      string        `mapstructure:"period_id"`
	UserID        string        `mapstructure:"user_id"`
	AppID         string        `mapstructure:"app_id"`
	Timeout       time.Duration `mapstructure:"timeout"`
	DepotFilter   string        `mapstructure:"depot_filter"`
}

// TelegramConfig holds the bot transport configuration
type TelegramConfig struct {
	BotToken      string        `mapstructure:"bot_token"`
	APIBaseURL    string        `mapstructure:"api_base_url"`
	SuperadminIDs []string      `mapstructure:"superadmin_ids"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
}

// NATSConfig holds NATS JetStream configuration
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// PollerConfig holds the poll scheduler configuration
type PollerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	WorkerPoolSize  int           `mapstructure:"worker_pool_size"`
	RecentEventKeep int           `mapstructure:"recent_event_keep"`
}

// NotifierConfig holds notification delivery configuration
type NotifierConfig struct {
	WorkerPoolSize     int           `mapstructure:"worker_pool_size"`
	DeliveryTimeout    time.Duration `mapstructure:"delivery_timeout"`
	MaxRetries         uint64        `mapstructure:"max_retries"`
	InitialBackoff     time.Duration `mapstructure:"initial_backoff"`
	MaxDetailedRecords int           `mapstructure:"max_detailed_records"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	JWTPublicKey string   `mapstructure:"jwt_public_key"`
	APIKeys      []string `mapstructure:"api_keys"`
}

// MonitorConfig holds configuration for the monitor service
type MonitorConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	Feed       FeedConfig     `mapstructure:"feed"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Poller     PollerConfig   `mapstructure:"poller"`
	Notifier   NotifierConfig `mapstructure:"notifier"`
	Server     ServerConfig   `mapstructure:"server"`
	Auth       AuthConfig     `mapstructure:"auth"`
}

// APIConfig holds configuration for the standalone API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
	Server     ServerConfig   `mapstructure:"server"`
	Auth       AuthConfig     `mapstructure:"auth"`
}

// LoadMonitorConfig loads configuration for the monitor service
func LoadMonitorConfig(configFile string, envPath string) (*MonitorConfig, error) {
	v := configureViper("monitor", configFile, envPath)

	setDatabaseDefaults(v)
	setServerDefaults(v)
	v.SetDefault("feed.base_url", "https://iml.npa-enterprise.com/NPAAPILIVE/Home/ExportDailyOrderReport")
	v.SetDefault("feed.timeout", "60s")
	v.SetDefault("feed.depot_filter", "BOST-KUMASI")
	v.SetDefault("telegram.api_base_url", "https://api.telegram.org")
	v.SetDefault("telegram.send_timeout", "10s")
	v.SetDefault("nats.stream_name", "NPA_RECORDS")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connection_name", "report-bot-monitor")
	v.SetDefault("poller.interval", "5m")
	v.SetDefault("poller.worker_pool_size", 4)
	v.SetDefault("poller.recent_event_keep", 200)
	v.SetDefault("notifier.worker_pool_size", 10)
	v.SetDefault("notifier.delivery_timeout", "10s")
	v.SetDefault("notifier.max_retries", 3)
	v.SetDefault("notifier.initial_backoff", "1s")
	v.SetDefault("notifier.max_detailed_records", 5)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config MonitorConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadAPIConfig loads configuration for the standalone API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	setDatabaseDefaults(v)
	setServerDefaults(v)
	v.SetDefault("telegram.api_base_url", "https://api.telegram.org")
	v.SetDefault("telegram.send_timeout", "10s")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *MonitorConfig) validate() error {
	if c.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required")
	}
	if len(c.Telegram.SuperadminIDs) == 0 {
		return errors.New("telegram.superadmin_ids requires at least one entry")
	}
	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be positive")
	}
	return nil
}

func setDatabaseDefaults(v *viper.Viper) {
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// configureViper creates a viper instance for a service with env overrides
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath, service)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix("REPORT_BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars binds every known key so AutomaticEnv resolves nested keys
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// Feed
		"feed.base_url",
		"feed.company_id",
		"feed.its_from_persol",
		"feed.group_by",
		"feed.group_by1",
		"feed.query1",
		"feed.query4",
		"feed.period_id",
		"feed.user_id",
		"feed.app_id",
		"feed.timeout",
		"feed.depot_filter",
		// Telegram
		"telegram.bot_token",
		"telegram.api_base_url",
		"telegram.superadmin_ids",
		"telegram.send_timeout",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		// Poller
		"poller.interval",
		"poller.worker_pool_size",
		"poller.recent_event_keep",
		// Notifier
		"notifier.worker_pool_size",
		"notifier.delivery_timeout",
		"notifier.max_retries",
		"notifier.initial_backoff",
		"notifier.max_detailed_records",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Auth
		"auth.jwt_public_key",
		"auth.api_keys",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads .env files: shared base first, then local overrides
func loadEnv(envPath string, service string) {
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate)
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}
