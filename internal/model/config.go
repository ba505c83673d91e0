package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// IMAPConfig holds the settings for the direct IMAP provider.
// The account password lives in the system keyring, not here.
type IMAPConfig struct {
	// Host is the IMAP server hostname.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the IMAPS port, normally 993.
	Port int `mapstructure:"port" yaml:"port"`

	// Username is the mailbox login, usually the email address.
	Username string `mapstructure:"username" yaml:"username"`
}

// GraphConfig holds the settings for the Microsoft Graph provider.
// Tokens live in the system keyring, not here.
type GraphConfig struct {
	// ClientID is the registered OAuth application id.
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
}

// ScrapeConfig holds defaults for scrape runs.
type ScrapeConfig struct {
	// Folder is the mailbox folder scraped when none is given.
	Folder string `mapstructure:"folder" yaml:"folder"`

	// MaxResults caps how many messages one run processes.
	MaxResults int `mapstructure:"max_results" yaml:"max_results"`

	// AttachmentsDir is where scraped attachment bytes are written.
	AttachmentsDir string `mapstructure:"attachments_dir" yaml:"attachments_dir"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// Provider selects the mailbox transport: "imap" or "graph".
	Provider string `mapstructure:"provider" yaml:"provider"`

	// DBPath is the SQLite database file location.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	IMAP   IMAPConfig   `mapstructure:"imap" yaml:"imap"`
	Graph  GraphConfig  `mapstructure:"graph" yaml:"graph"`
	Scrape ScrapeConfig `mapstructure:"scrape" yaml:"scrape"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailscreen/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailscreen", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Provider: "imap",
		DBPath:   filepath.Join(".", "mailscreen.db"),
		IMAP: IMAPConfig{
			Host: "imap.gmail.com",
			Port: 993,
		},
		Scrape: ScrapeConfig{
			Folder:         "INBOX",
			MaxResults:     50,
			AttachmentsDir: filepath.Join(".", "attachments"),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("provider", "imap")
	v.SetDefault("db_path", filepath.Join(".", "mailscreen.db"))
	v.SetDefault("imap.host", "imap.gmail.com")
	v.SetDefault("imap.port", 993)
	v.SetDefault("scrape.folder", "INBOX")
	v.SetDefault("scrape.max_results", 50)
	v.SetDefault("scrape.attachments_dir", filepath.Join(".", "attachments"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("provider", cfg.Provider)
	v.Set("db_path", cfg.DBPath)
	v.Set("imap", cfg.IMAP)
	v.Set("graph", cfg.Graph)
	v.Set("scrape", cfg.Scrape)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
