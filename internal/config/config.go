package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/localrivet/meosbackup/pkg/meos"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database        DatabaseConfig   `yaml:"database"`
	RecencyDays     int              `yaml:"recency_days"`
	OutputFolder    string           `yaml:"output_folder"`
	IntervalSeconds int              `yaml:"interval_seconds"`
	Schedule        string           `yaml:"schedule"` // Optional cron expression, replaces the interval
	DryRun          bool             `yaml:"dry_run"`
	Log             LogConfig        `yaml:"log"`
	Tools           ToolsConfig      `yaml:"tools"`
	Mirror          MirrorConfig     `yaml:"mirror"`
	Monitoring      MonitoringConfig `yaml:"monitoring"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ToolsConfig struct {
	Mysqldump string `yaml:"mysqldump"`
	Mysql     string `yaml:"mysql"`
}

type MirrorConfig struct {
	Backend string   `yaml:"backend"` // "", "local" or "s3"
	Path    string   `yaml:"path"`
	S3      S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type MonitoringConfig struct {
	MetricsPort int    `yaml:"metrics_port"`
	HealthPort  int    `yaml:"health_port"`
	WebhookURL  string `yaml:"webhook_url"`
	MCPPort     int    `yaml:"mcp_port"`
}

func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host: "localhost",
			Port: 3306,
			User: "meos",
		},
		RecencyDays:     3,
		OutputFolder:    "backups",
		IntervalSeconds: 60,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tools: ToolsConfig{
			Mysqldump: "mysqldump",
			Mysql:     "mysql",
		},
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, err
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("MEOSBACKUP_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("MEOSBACKUP_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("MEOSBACKUP_DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("MEOSBACKUP_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}

	if v := os.Getenv("MEOSBACKUP_RECENCY_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RecencyDays = n
		}
	}
	if v := os.Getenv("MEOSBACKUP_OUTPUT_FOLDER"); v != "" {
		c.OutputFolder = v
	}
	if v := os.Getenv("MEOSBACKUP_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.IntervalSeconds = n
		}
	}
	if v := os.Getenv("MEOSBACKUP_SCHEDULE"); v != "" {
		c.Schedule = v
	}
	if v := os.Getenv("MEOSBACKUP_DRY_RUN"); v != "" {
		c.DryRun = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("MEOSBACKUP_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MEOSBACKUP_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	if v := os.Getenv("MEOSBACKUP_MYSQLDUMP"); v != "" {
		c.Tools.Mysqldump = v
	}
	if v := os.Getenv("MEOSBACKUP_MYSQL"); v != "" {
		c.Tools.Mysql = v
	}

	if v := os.Getenv("MEOSBACKUP_MIRROR_BACKEND"); v != "" {
		c.Mirror.Backend = v
	}
	if v := os.Getenv("MEOSBACKUP_MIRROR_PATH"); v != "" {
		c.Mirror.Path = v
	}
	if v := os.Getenv("MEOSBACKUP_S3_BUCKET"); v != "" {
		c.Mirror.S3.Bucket = v
	}
	if v := os.Getenv("MEOSBACKUP_S3_ENDPOINT"); v != "" {
		c.Mirror.S3.Endpoint = v
	}
	if v := os.Getenv("MEOSBACKUP_S3_REGION"); v != "" {
		c.Mirror.S3.Region = v
	}
	if v := os.Getenv("MEOSBACKUP_S3_ACCESS_KEY"); v != "" {
		c.Mirror.S3.AccessKey = v
	}
	if v := os.Getenv("MEOSBACKUP_S3_SECRET_KEY"); v != "" {
		c.Mirror.S3.SecretKey = v
	}
	if v := os.Getenv("MEOSBACKUP_S3_USE_SSL"); v != "" {
		c.Mirror.S3.UseSSL = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("MEOSBACKUP_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Monitoring.MetricsPort = port
		}
	}
	if v := os.Getenv("MEOSBACKUP_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Monitoring.HealthPort = port
		}
	}
	if v := os.Getenv("MEOSBACKUP_WEBHOOK_URL"); v != "" {
		c.Monitoring.WebhookURL = v
	}
	if v := os.Getenv("MEOSBACKUP_MCP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Monitoring.MCPPort = port
		}
	}
}

// Validate checks the settings. It is also called after command line
// overrides have been applied.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535, got %d", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.RecencyDays < 0 {
		return fmt.Errorf("recency_days must not be negative")
	}
	if c.OutputFolder == "" {
		return fmt.Errorf("output_folder is required")
	}

	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
	} else if c.IntervalSeconds <= 0 {
		return fmt.Errorf("interval_seconds must be positive")
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	switch c.Mirror.Backend {
	case "":
	case "local":
		if c.Mirror.Path == "" {
			return fmt.Errorf("mirror path is required when using local mirror")
		}
	case "s3":
		if c.Mirror.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required when using S3 mirror")
		}
		if c.Mirror.S3.AccessKey == "" || c.Mirror.S3.SecretKey == "" {
			return fmt.Errorf("S3 access key and secret key are required")
		}
	default:
		return fmt.Errorf("mirror backend must be empty, 'local' or 's3'")
	}

	return nil
}

// MeosEndpoint is where the MeOS MySQL server listens.
func (c *Config) MeosEndpoint() meos.Endpoint {
	return meos.Endpoint{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
	}
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// CycleSchedule returns when cycles are due: the cron expression if one is
// configured, a constant interval otherwise.
func (c *Config) CycleSchedule() (cron.Schedule, error) {
	if c.Schedule != "" {
		return cron.ParseStandard(c.Schedule)
	}
	return cron.Every(c.Interval()), nil
}

func (c *Config) LogLevel() slog.Level {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c *Config) MirrorEnabled() bool {
	return c.Mirror.Backend != ""
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level: %s (supported: debug, info, warn, error)", s)
	}
}
