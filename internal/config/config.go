// Package config loads webmon settings from config.yaml and WEBMON_*
// environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration.
type Config struct {
	Listen          string        `yaml:"listen"           env:"WEBMON_LISTEN"`
	PublicURL       string        `yaml:"public_url"       env:"WEBMON_PUBLIC_URL"` // Base URL the browser uses to reach the daemon
	ClassifierURL   string        `yaml:"classifier_url"   env:"WEBMON_CLASSIFIER_URL"`
	QuestionURL     string        `yaml:"question_url"     env:"WEBMON_QUESTION_URL"`
	DataDir         string        `yaml:"data_dir"         env:"WEBMON_DATA_DIR"`
	SweepInterval   time.Duration `yaml:"sweep_interval"   env:"WEBMON_SWEEP_INTERVAL"`
	ClassifyTimeout time.Duration `yaml:"classify_timeout" env:"WEBMON_CLASSIFY_TIMEOUT"`
	AnalyzingReload time.Duration `yaml:"analyzing_reload" env:"WEBMON_ANALYZING_RELOAD"`
	ResumeOnRestart bool          `yaml:"resume_on_restart" env:"WEBMON_RESUME_ON_RESTART"`

	Questions QuestionsConfig `yaml:"questions"`
	Logging   LoggingConfig   `yaml:"logging"`
	Domains   []DomainConfig  `yaml:"domains"`
}

// QuestionsConfig configures question fetch retries.
type QuestionsConfig struct {
	MaxTries       uint          `yaml:"max_tries"       env:"WEBMON_QUESTION_MAX_TRIES"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"WEBMON_QUESTION_INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"max_backoff"     env:"WEBMON_QUESTION_MAX_BACKOFF"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level" env:"WEBMON_LOG_LEVEL"`
	File  string `yaml:"file"  env:"WEBMON_LOG_FILE"` // Empty means <data_dir>/webmon.log
}

// DomainConfig declares an extra focus domain.
type DomainConfig struct {
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name"`
	Description     string        `yaml:"description"`
	DefaultDuration time.Duration `yaml:"default_duration"`
}

// Default returns the default configuration. dataDir comes from the
// execution mode.
func Default(dataDir string) *Config {
	return &Config{
		Listen:          "127.0.0.1:8787",
		ClassifierURL:   "http://localhost:5000",
		QuestionURL:     "http://localhost:5000",
		DataDir:         dataDir,
		SweepInterval:   time.Second,
		ClassifyTimeout: 20 * time.Second,
		AnalyzingReload: 5 * time.Second,
		Questions: QuestionsConfig{
			MaxTries:       4,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path, dataDir string) (*Config, error) {
	cfg := Default(dataDir)

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the settings the daemon cannot run without.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen address is required")
	}
	for name, raw := range map[string]string{
		"classifier_url": c.ClassifierURL,
		"question_url":   c.QuestionURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: %s %q is not an absolute url", name, raw)
		}
	}
	if c.PublicURL != "" {
		if u, err := url.Parse(c.PublicURL); err != nil || u.Host == "" {
			return fmt.Errorf("config: public_url %q is not an absolute url", c.PublicURL)
		}
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("config: sweep_interval must be positive")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	for _, d := range c.Domains {
		if d.ID == "" {
			return fmt.Errorf("config: domain entry without id")
		}
	}
	return nil
}

// BaseURL is the address the browser uses for the interstitial and API.
func (c *Config) BaseURL() string {
	if c.PublicURL != "" {
		return c.PublicURL
	}
	return "http://" + c.Listen
}

// InterstitialURL is the page blocked navigations land on.
func (c *Config) InterstitialURL() string {
	return c.BaseURL() + "/interstitial"
}

// LogFile resolves the daemon log path.
func (c *Config) LogFile() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.DataDir, "webmon.log")
}
