package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Storefront  StorefrontConfig          `json:"storefront"`
	Responders  RespondersConfig          `json:"responders"`
	Plans       map[string]PlanConfig     `json:"plans"`
	Widget      WidgetConfig              `json:"widget"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	LogLevel      string `json:"log_level"`
	LogConsole    bool   `json:"log_console"`
	// ProxySecret verifies storefront app-proxy signatures. Empty disables
	// verification (local development).
	ProxySecret  string `json:"proxy_secret"`
	HistoryLimit int    `json:"history_limit"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	DB          int    `json:"db"`
	SettingsTTL int    `json:"settings_ttl_minutes"`
}

// StorefrontConfig points the catalog adapter at the shop storefront API.
type StorefrontConfig struct {
	APIVersion     string `json:"api_version"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxProducts    int    `json:"max_products"`
}

// RespondersConfig wires each plan tier to its default upstream webhook.
type RespondersConfig struct {
	PlanWebhooks   map[string]string `json:"plan_webhooks"`
	TimeoutSeconds int               `json:"timeout_seconds"`
}

// PlanConfig holds the per-tier quota ceiling. SessionLimit <= 0 means
// unlimited.
type PlanConfig struct {
	SessionLimit int64 `json:"session_limit"`
}

type WidgetConfig struct {
	QuickReplies []string `json:"quick_replies"`
}

// Load reads configuration from the provided path (defaults to config.json).
// A .env file, when present, is loaded first; selected env vars override the
// file so secrets stay out of it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if db, ok := cfg.Databases["sqlite3"]; ok && db.DSN != "" && db.DSN != ":memory:" && !filepath.IsAbs(db.DSN) {
		db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
		cfg.Databases["sqlite3"] = db
	}

	applyEnvOverrides(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHOPCHAT_PROXY_SECRET"); v != "" {
		cfg.BasicConfig.ProxySecret = v
	}
	if v := os.Getenv("SHOPCHAT_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SHOPCHAT_SERVER_ADDRESS"); v != "" {
		cfg.BasicConfig.ServerAddress = v
	}
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.LogLevel == "" {
		c.BasicConfig.LogLevel = "info"
	}
	if c.BasicConfig.HistoryLimit <= 0 {
		c.BasicConfig.HistoryLimit = 10
	}
	if c.Storefront.APIVersion == "" {
		c.Storefront.APIVersion = "2024-01"
	}
	if c.Storefront.TimeoutSeconds <= 0 {
		c.Storefront.TimeoutSeconds = 10
	}
	if c.Storefront.MaxProducts <= 0 {
		c.Storefront.MaxProducts = 8
	}
	if c.Responders.TimeoutSeconds <= 0 {
		c.Responders.TimeoutSeconds = 15
	}
	if c.Redis.SettingsTTL <= 0 {
		c.Redis.SettingsTTL = 5
	}
	if c.Plans == nil {
		c.Plans = map[string]PlanConfig{}
	}
	if _, ok := c.Plans["free"]; !ok {
		c.Plans["free"] = PlanConfig{SessionLimit: 50}
	}
}

// Validate returns the first missing required field.
func (c *Config) Validate() error {
	if len(c.Databases) == 0 {
		return fmt.Errorf("at least one database must be configured")
	}
	for name, db := range c.Databases {
		switch name {
		case "sqlite", "sqlite3":
			if db.DSN == "" {
				return fmt.Errorf("database %s: dsn must be provided", name)
			}
		case "mysql":
			if db.Host == "" || db.DBName == "" {
				return fmt.Errorf("database %s: host and db_name must be provided", name)
			}
		}
	}
	return nil
}

// PlanLimit returns the session ceiling for a plan tier; unknown tiers fall
// back to the free tier's ceiling.
func (c *Config) PlanLimit(plan string) int64 {
	if p, ok := c.Plans[plan]; ok {
		return p.SessionLimit
	}
	return c.Plans["free"].SessionLimit
}

// PlanWebhook returns the default responder endpoint for a plan tier, or ""
// when the tier has no webhook wired.
func (c *Config) PlanWebhook(plan string) string {
	return c.Responders.PlanWebhooks[plan]
}
