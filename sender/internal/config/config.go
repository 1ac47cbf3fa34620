package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultInterval       = time.Second
	DefaultPayload        = "\n"
	DefaultDialTimeout    = 5 * time.Second
	DefaultBackoffInitial = time.Second
	DefaultBackoffMax     = 60 * time.Second
)

// Config holds the sender configuration parsed from the `sender:` section.
type Config struct {
	Sender SenderConfig `yaml:"sender"`
}

// SenderConfig holds all sender-side settings.
type SenderConfig struct {
	// Target is the receiver's heartbeat address (host:port).
	Target string `yaml:"target"`

	// Interval between keepalive writes.
	Interval time.Duration `yaml:"interval"`

	// Payload written on every tick. Must not be empty.
	Payload string `yaml:"payload"`

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig tunes reconnection after a failed dial or write.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// Override adjusts a parsed config before validation.
type Override func(*Config)

// WithTarget replaces the target when addr is non-empty.
func WithTarget(addr string) Override {
	return func(c *Config) {
		if addr != "" {
			c.Sender.Target = addr
		}
	}
}

// Load reads and parses the config file at path, applies overrides and
// validates the result. Missing fields are filled with defaults.
func Load(path string, overrides ...Override) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sender config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("sender config: parse yaml: %w", err)
	}
	return finish(cfg, overrides)
}

// FromDefaults builds a config without a file.
func FromDefaults(overrides ...Override) (*Config, error) {
	return finish(defaults(), overrides)
}

func finish(cfg *Config, overrides []Override) (*Config, error) {
	for _, o := range overrides {
		o(cfg)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("sender config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Sender: SenderConfig{
			Interval:    DefaultInterval,
			Payload:     DefaultPayload,
			DialTimeout: DefaultDialTimeout,
			Backoff: BackoffConfig{
				Initial: DefaultBackoffInitial,
				Max:     DefaultBackoffMax,
			},
		},
	}
}

// validate checks structural constraints.
func validate(cfg *Config) error {
	s := cfg.Sender
	if s.Target == "" {
		return fmt.Errorf("sender.target is required")
	}
	if _, _, err := net.SplitHostPort(s.Target); err != nil {
		return fmt.Errorf("sender.target %q: %w", s.Target, err)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("sender.interval must be positive")
	}
	if s.Payload == "" {
		return fmt.Errorf("sender.payload must not be empty")
	}
	if s.DialTimeout <= 0 {
		return fmt.Errorf("sender.dial_timeout must be positive")
	}
	if s.Backoff.Initial <= 0 || s.Backoff.Max < s.Backoff.Initial {
		return fmt.Errorf("sender.backoff: need 0 < initial <= max, got %v/%v", s.Backoff.Initial, s.Backoff.Max)
	}
	return nil
}
