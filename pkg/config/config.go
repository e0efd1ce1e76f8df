// Package config loads the socratic YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/socratic/pkg/redisstream"
	"github.com/go-go-golems/socratic/pkg/tutor"
)

type BackendKind string

const (
	BackendGemini   BackendKind = "gemini"
	BackendVertex   BackendKind = "vertex"
	BackendScripted BackendKind = "scripted"
)

// Config is the top-level configuration, loaded from socratic.yaml.
type Config struct {
	Model  ModelConfig          `yaml:"model"`
	Server ServerConfig         `yaml:"server"`
	Redis  redisstream.Settings `yaml:"redis"`
	UI     UIConfig             `yaml:"ui"`
}

// ModelConfig selects the remote endpoint and how sessions are opened on it.
type ModelConfig struct {
	Backend           BackendKind `yaml:"backend"`
	Name              string      `yaml:"name"`
	ThinkingBudget    *int32      `yaml:"thinking_budget"`
	SystemInstruction string      `yaml:"system_instruction"`
	APIKey            string      `yaml:"api_key"`
	Project           string      `yaml:"project"`
	Location          string      `yaml:"location"`
}

// ServerConfig holds the web chat listener settings.
type ServerConfig struct {
	Addr             string        `yaml:"addr"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	EvictionInterval time.Duration `yaml:"eviction_interval"`
}

type UIConfig struct {
	LogFile string `yaml:"log_file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{Redis: redisstream.DefaultSettings()}
	c.applyDefaults()
	return c
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	return Parse(data)
}

// LoadOptional is Load, except that a missing file yields the defaults.
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return FromEnv(Default(), os.Getenv)
	}
	return Load(path)
}

// Parse unmarshals YAML bytes into a validated Config, applying environment
// overrides on top of the file.
func Parse(data []byte) (*Config, error) {
	return parse(data, os.Getenv)
}

func parse(data []byte, getenv func(string) string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse")
	}
	return FromEnv(&cfg, getenv)
}

// FromEnv applies environment overrides and defaults to cfg, then validates it.
func FromEnv(cfg *Config, getenv func(string) string) (*Config, error) {
	cfg.applyEnv(getenv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("SOCRATIC_BACKEND"); v != "" {
		c.Model.Backend = BackendKind(strings.ToLower(v))
	}
	if v := getenv("SOCRATIC_MODEL"); v != "" {
		c.Model.Name = v
	}
	if c.Model.APIKey == "" {
		c.Model.APIKey = getenv("GEMINI_API_KEY")
	}
	if c.Model.APIKey == "" {
		c.Model.APIKey = getenv("GOOGLE_API_KEY")
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Model.Backend == "" {
		c.Model.Backend = BackendGemini
	}
	if c.Model.Name == "" {
		c.Model.Name = tutor.DefaultModel
	}
	if c.Model.ThinkingBudget == nil {
		b := tutor.DefaultThinkingBudget
		c.Model.ThinkingBudget = &b
	}
	if c.Model.SystemInstruction == "" {
		c.Model.SystemInstruction = tutor.SystemInstruction
	}
	if c.Model.Backend == BackendVertex && c.Model.Location == "" {
		c.Model.Location = "us-central1"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 30 * time.Minute
	}
	if c.Server.EvictionInterval == 0 {
		c.Server.EvictionInterval = time.Minute
	}
	c.Redis = c.Redis.WithDefaults()
	if c.UI.LogFile == "" {
		c.UI.LogFile = "socratic.log"
	}
}

// validate checks that all required fields are present and consistent.
// Credentials are checked when the backend is built.
func (c *Config) validate() error {
	var errs []string
	switch c.Model.Backend {
	case BackendGemini, BackendVertex, BackendScripted:
	default:
		errs = append(errs, fmt.Sprintf("model.backend %q is not one of gemini, vertex, scripted", c.Model.Backend))
	}
	if *c.Model.ThinkingBudget < 0 {
		errs = append(errs, "model.thinking_budget must not be negative")
	}
	if c.Server.IdleTimeout < 0 {
		errs = append(errs, "server.idle_timeout must not be negative")
	}
	if c.Server.EvictionInterval < 0 {
		errs = append(errs, "server.eviction_interval must not be negative")
	}
	if len(errs) > 0 {
		return errors.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SessionConfig is the per-session configuration handed to the tutor.
func (c *Config) SessionConfig() tutor.Config {
	return tutor.Config{
		Model:             c.Model.Name,
		SystemInstruction: c.Model.SystemInstruction,
		ThinkingBudget:    *c.Model.ThinkingBudget,
	}
}
