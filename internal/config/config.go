// Package config loads the gatekeeper daemon configuration from a yaml file
// and GATEKEEPER_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full daemon configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Limits      LimitsConfig      `mapstructure:"limits"`
	Detector    DetectorConfig    `mapstructure:"detector"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	AdminAddr string `mapstructure:"admin_addr"`
	LogLevel  string `mapstructure:"log_level"`
}

// RedisConfig configures the counter store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig configures the audit store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LimitsConfig points at the optional limit-type table file.
type LimitsConfig struct {
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

// DetectorConfig carries escalation and burst-detection tunables.
type DetectorConfig struct {
	ViolationThreshold int64         `mapstructure:"violation_threshold"`
	ViolationWindow    time.Duration `mapstructure:"violation_window"`
	BanDuration        time.Duration `mapstructure:"ban_duration"`
	DDoSWindow         time.Duration `mapstructure:"ddos_window"`
	DDoSThreshold      int64         `mapstructure:"ddos_threshold"`
}

// AlertingConfig configures the notification sink.
type AlertingConfig struct {
	QueueSize    int      `mapstructure:"queue_size"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

// MaintenanceConfig configures the periodic cleanup task.
type MaintenanceConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.admin_addr", ":8090")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("limits.watch", true)
	v.SetDefault("detector.violation_threshold", 3)
	v.SetDefault("detector.violation_window", time.Hour)
	v.SetDefault("detector.ban_duration", time.Hour)
	v.SetDefault("detector.ddos_window", time.Minute)
	v.SetDefault("detector.ddos_threshold", 1000)
	v.SetDefault("alerting.queue_size", 256)
	v.SetDefault("alerting.kafka_topic", "gatekeeper.alerts")
	v.SetDefault("maintenance.interval", 5*time.Minute)

	v.SetEnvPrefix("GATEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
