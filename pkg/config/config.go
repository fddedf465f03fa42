package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds runtime settings for the monitor server.
type Config struct {
	Addr string

	// Registry backend: memory|mysql|sqlite|consul
	Store      string
	MySQLDSN   string
	MySQLHost  string
	MySQLPort  string
	MySQLUser  string
	MySQLPass  string
	MySQLDB    string
	SQLitePath string
	ConsulAddr string

	ProbeTimeout   time.Duration
	QueryTimeout   time.Duration
	SlowQueryLimit int
	WSPushInterval time.Duration
	Seed           int64 // 0 seeds history synthesis from the clock

	RequireJWT bool
	JWTSecret  string

	DingTalkWebhook string
	DingTalkSecret  string

	TLSCert  string
	TLSKey   string
	ClientCA string

	LogLevel string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	loadDotEnv()

	c := &Config{
		Addr:            getEnvOrDefault("MONITOR_ADDR", ":8080"),
		Store:           getEnvOrDefault("REGISTRY_STORE", "memory"),
		MySQLDSN:        os.Getenv("MYSQL_DSN"),
		MySQLHost:       getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
		MySQLPort:       getEnvOrDefault("MYSQL_PORT", "3306"),
		MySQLUser:       getEnvOrDefault("MYSQL_USER", "root"),
		MySQLPass:       os.Getenv("MYSQL_PASS"),
		MySQLDB:         getEnvOrDefault("MYSQL_DB", "db_monitor"),
		SQLitePath:      getEnvOrDefault("SQLITE_PATH", "/var/lib/db-monitor/registry.db"),
		ConsulAddr:      getEnvOrDefault("CONSUL_ADDR", "127.0.0.1:8500"),
		RequireJWT:      getEnvOrDefault("REQUIRE_JWT", "false") == "true",
		JWTSecret:       os.Getenv("JWT_SECRET"),
		DingTalkWebhook: os.Getenv("DINGTALK_WEBHOOK"),
		DingTalkSecret:  os.Getenv("DINGTALK_SECRET"),
		TLSCert:         os.Getenv("TLS_CERT"),
		TLSKey:          os.Getenv("TLS_KEY"),
		ClientCA:        os.Getenv("TLS_CLIENT_CA"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
	}

	var err error
	if c.ProbeTimeout, err = parseDuration("PROBE_TIMEOUT", "5s"); err != nil {
		return nil, err
	}
	if c.QueryTimeout, err = parseDuration("QUERY_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if c.WSPushInterval, err = parseDuration("WS_PUSH_INTERVAL", "5s"); err != nil {
		return nil, err
	}
	if c.SlowQueryLimit, err = strconv.Atoi(getEnvOrDefault("SLOW_QUERY_LIMIT", "10")); err != nil {
		return nil, fmt.Errorf("invalid SLOW_QUERY_LIMIT: %w", err)
	}
	if c.Seed, err = strconv.ParseInt(getEnvOrDefault("HISTORY_SEED", "0"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid HISTORY_SEED: %w", err)
	}
	return c, nil
}

// Validate checks the settings after flags have been applied.
func (c *Config) Validate() error {
	switch c.Store {
	case "memory", "mysql", "sqlite", "consul":
	default:
		return fmt.Errorf("unsupported store type: %s", c.Store)
	}
	if c.ProbeTimeout <= 0 || c.ProbeTimeout > 5*time.Second {
		return fmt.Errorf("PROBE_TIMEOUT must be within (0s, 5s], got %s", c.ProbeTimeout)
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be positive")
	}
	if c.SlowQueryLimit < 1 {
		return fmt.Errorf("SLOW_QUERY_LIMIT must be at least 1")
	}
	if c.WSPushInterval < time.Second {
		return fmt.Errorf("WS_PUSH_INTERVAL must be at least 1 second")
	}
	if c.RequireJWT && c.Store != "mysql" {
		return fmt.Errorf("REQUIRE_JWT needs the mysql store for user accounts")
	}
	if c.Store == "sqlite" && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
	}
	return nil
}

// RegistryDSN returns MYSQL_DSN or one assembled from the MYSQL_* parts.
func (c *Config) RegistryDSN() string {
	if c.MySQLDSN != "" {
		return c.MySQLDSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.MySQLUser, c.MySQLPass, c.MySQLHost, c.MySQLPort, c.MySQLDB)
}

// Logger builds the process logger at the configured level.
func (c *Config) Logger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		l.WithField("level", c.LogLevel).Warn("unknown LOG_LEVEL; using info")
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

func loadDotEnv() {
	for _, path := range []string{".env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			logrus.WithField("path", path).Debug("loaded config")
			return
		}
	}
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnvOrDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
