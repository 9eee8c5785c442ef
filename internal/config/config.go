package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
	} `yaml:"telegram"`
	Arera struct {
		BaseURL     string `yaml:"base_url"`
		SupplierVAT string `yaml:"supplier_vat"`
		MaxDaysBack int    `yaml:"max_days_back"`
	} `yaml:"arera"`
	Schedule struct {
		IngestCron string `yaml:"ingest_cron"`
		CheckCron  string `yaml:"check_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	API struct {
		Addr string `yaml:"addr"`
	} `yaml:"api"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("ARERA_BASE_URL"); v != "" {
		cfg.Arera.BaseURL = v
	}
	if v := os.Getenv("ARERA_SUPPLIER_VAT"); v != "" {
		cfg.Arera.SupplierVAT = v
	}
	if v := os.Getenv("ARERA_MAX_DAYS_BACK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Arera.MaxDaysBack = n
		}
	}
	if v := os.Getenv("CRON_INGEST"); v != "" {
		cfg.Schedule.IngestCron = v
	}
	if v := os.Getenv("CRON_CHECK"); v != "" {
		cfg.Schedule.CheckCron = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if cfg.Arera.BaseURL == "" {
		cfg.Arera.BaseURL = "https://www.ilportaleofferte.it/portaleOfferte/resources/opendata/csv/offerteML"
	}
	if cfg.Arera.SupplierVAT == "" {
		cfg.Arera.SupplierVAT = "01771990445"
	}
	if cfg.Arera.MaxDaysBack == 0 {
		cfg.Arera.MaxDaysBack = 7
	}
	if cfg.Schedule.IngestCron == "" {
		cfg.Schedule.IngestCron = "0 30 9 * * *"
	}
	if cfg.Schedule.CheckCron == "" {
		cfg.Schedule.CheckCron = "0 0 10 * * *"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/octotracker.db"
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8080"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Arera.BaseURL == "" {
		return fmt.Errorf("arera.base_url is required")
	}
	if c.Arera.SupplierVAT == "" {
		return fmt.Errorf("arera.supplier_vat is required")
	}
	if c.Arera.MaxDaysBack < 1 {
		return fmt.Errorf("arera.max_days_back must be positive")
	}
	return nil
}
