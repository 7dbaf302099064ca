package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the monitoring pipeline
type Config struct {
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`
	Gemini    GeminiConfig    `yaml:"gemini" json:"gemini"`
	Drive     DriveConfig     `yaml:"drive" json:"drive"`
	SMTP      SMTPConfig      `yaml:"smtp" json:"smtp"`
	Monitor   MonitorConfig   `yaml:"monitor" json:"monitor"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// InstagramConfig holds Instagram access configuration. SessionID and
// CSRFToken are only required when stories are monitored.
type InstagramConfig struct {
	SessionID         string        `yaml:"session_id" json:"session_id"`
	CSRFToken         string        `yaml:"csrf_token" json:"csrf_token"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey  string        `yaml:"api_key" json:"api_key"`
	Model   string        `yaml:"model" json:"model"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DriveConfig holds Google Drive upload configuration
type DriveConfig struct {
	Enabled            bool   `yaml:"enabled" json:"enabled"`
	ServiceAccountPath string `yaml:"service_account_path" json:"service_account_path"`
	RootFolderID       string `yaml:"root_folder_id" json:"root_folder_id"`
}

// SMTPConfig holds report email configuration. Port 465 uses implicit TLS,
// anything else STARTTLS.
type SMTPConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Server          string `yaml:"server" json:"server"`
	Port            int    `yaml:"port" json:"port"`
	Username        string `yaml:"username" json:"username"`
	Password        string `yaml:"password" json:"password"`
	FromEmail       string `yaml:"from_email" json:"from_email"`
	FromName        string `yaml:"from_name" json:"from_name"`
	SubscribersFile string `yaml:"subscribers_file" json:"subscribers_file"`
}

// MonitorConfig holds run cadence and bookkeeping paths
type MonitorConfig struct {
	AccountsFile    string        `yaml:"accounts_file" json:"accounts_file"`
	StateFile       string        `yaml:"state_file" json:"state_file"`
	StatsDB         string        `yaml:"stats_db" json:"stats_db"`
	ResultsDir      string        `yaml:"results_dir" json:"results_dir"`
	TempDir         string        `yaml:"temp_dir" json:"temp_dir"`
	AccountDelayMin time.Duration `yaml:"account_delay_min" json:"account_delay_min"`
	AccountDelayMax time.Duration `yaml:"account_delay_max" json:"account_delay_max"`
	StoryDelayMin   time.Duration `yaml:"story_delay_min" json:"story_delay_min"`
	StoryDelayMax   time.Duration `yaml:"story_delay_max" json:"story_delay_max"`
	MaxItems        int           `yaml:"max_items" json:"max_items"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestsPerMinute: 30,
			RequestTimeout:    30 * time.Second,
			MaxRetries:        3,
		},
		Gemini: GeminiConfig{
			Model:   "gemini-2.0-flash",
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Timeout: 2 * time.Minute,
		},
		Drive: DriveConfig{
			Enabled:            true,
			ServiceAccountPath: "service_account.json",
		},
		SMTP: SMTPConfig{
			Enabled:         true,
			Server:          "smtp.gmail.com",
			Port:            465,
			FromName:        "Instagram Monitor",
			SubscribersFile: "subscribers.json",
		},
		Monitor: MonitorConfig{
			AccountsFile:    "accounts.json",
			StateFile:       "state.json",
			StatsDB:         "stats.db",
			ResultsDir:      "results",
			TempDir:         "temp_downloads",
			AccountDelayMin: 20 * time.Second,
			AccountDelayMax: 40 * time.Second,
			StoryDelayMin:   5 * time.Second,
			StoryDelayMax:   15 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv overrides configuration from IGMONITOR_* environment variables
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("IGMONITOR_SESSION_ID"); v != "" {
		c.Instagram.SessionID = v
	}
	if v := os.Getenv("IGMONITOR_CSRF_TOKEN"); v != "" {
		c.Instagram.CSRFToken = v
	}
	if v := os.Getenv("IGMONITOR_USER_AGENT"); v != "" {
		c.Instagram.UserAgent = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("GOOGLE_SERVICE_ACCOUNT_PATH"); v != "" {
		c.Drive.ServiceAccountPath = v
	}
	if v := os.Getenv("GOOGLE_DRIVE_ROOT_FOLDER_ID"); v != "" {
		c.Drive.RootFolderID = v
	}
	if v := os.Getenv("SMTP_SERVER"); v != "" {
		c.SMTP.Server = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.SMTP.Port = port
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		c.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_FROM_EMAIL"); v != "" {
		c.SMTP.FromEmail = v
	}
	if v := os.Getenv("SMTP_FROM_NAME"); v != "" {
		c.SMTP.FromName = v
	}
	if v := os.Getenv("IGMONITOR_STATE_FILE"); v != "" {
		c.Monitor.StateFile = v
	}
	if v := os.Getenv("IGMONITOR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// LoadFromFile merges configuration from a YAML file. An empty path checks
// the standard locations and is not an error when nothing is found.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func findConfigFile() string {
	locations := []string{
		".igmonitor.yaml",
		".igmonitor.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "igmonitor", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".igmonitor.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks the final configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Monitor.AccountsFile == "" {
		errs = append(errs, errors.New("accounts file is required"))
	}
	if c.Monitor.StateFile == "" {
		errs = append(errs, errors.New("state file is required"))
	}
	if c.Monitor.AccountDelayMin < 0 || c.Monitor.AccountDelayMax < c.Monitor.AccountDelayMin {
		errs = append(errs, errors.New("account delay range is invalid"))
	}
	if c.Instagram.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.Gemini.Model == "" {
		errs = append(errs, errors.New("gemini model is required"))
	}
	if c.Drive.Enabled && c.Drive.ServiceAccountPath == "" {
		errs = append(errs, errors.New("drive service account path is required when drive is enabled"))
	}
	if c.SMTP.Enabled {
		if c.SMTP.Server == "" {
			errs = append(errs, errors.New("smtp server is required when email is enabled"))
		}
		if c.SMTP.Port <= 0 {
			errs = append(errs, errors.New("smtp port must be positive"))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Flags carries command-line overrides into Load
type Flags struct {
	AccountsFile string
	StateFile    string
	MaxItems     int
	LogLevel     string
}

func (c *Config) mergeFlags(f Flags) {
	if f.AccountsFile != "" {
		c.Monitor.AccountsFile = f.AccountsFile
	}
	if f.StateFile != "" {
		c.Monitor.StateFile = f.StateFile
	}
	if f.MaxItems > 0 {
		c.Monitor.MaxItems = f.MaxItems
	}
	if f.LogLevel != "" {
		c.Logging.Level = f.LogLevel
	}
}

// Load builds configuration from all sources.
// Precedence: flags > environment (including .env) > config file > defaults.
func Load(configPath string, flags Flags) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igmonitor.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg.LoadFromEnv()
	cfg.mergeFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
