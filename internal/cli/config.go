package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by the CLI.
const (
	EnvEmail      = "IFUNNY_EMAIL"
	EnvPassword   = "IFUNNY_PASSWORD"
	EnvConfigRoot = "IFUNNY_CONFIG_ROOT"
)

// DefaultConfigName is the CLI settings file looked up in the config root.
const DefaultConfigName = "cli.yaml"

// FileConfig is the YAML settings file. Every field is optional.
type FileConfig struct {
	Email        string `yaml:"email"`
	BaseURL      string `yaml:"base_url"`
	ChatURL      string `yaml:"chat_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	UserAgent    string `yaml:"user_agent"`
	ProjectID    string `yaml:"project_id"`
	Root         string `yaml:"root"`
	Keyring      bool   `yaml:"keyring"`
	PageSize     int    `yaml:"page_size"`

	GuestSettleDelay  time.Duration `yaml:"guest_settle_delay"`
	RequestsPerMinute float64       `yaml:"requests_per_minute"`
	Burst             int           `yaml:"burst"`
}

// LoadFileConfig reads path. When explicit is false a missing file yields an
// empty config.
func LoadFileConfig(path string, explicit bool) (*FileConfig, error) {
	cfg := &FileConfig{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// loadDotEnv loads .env from the working directory when present. Variables
// already set in the environment win.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	return godotenv.Load(".env")
}

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func defaultConfigPath(root string) string {
	if root == "" {
		return ""
	}
	return filepath.Join(root, DefaultConfigName)
}
