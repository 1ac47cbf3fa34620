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
	DefaultListen      = ":7946"
	DefaultHTTPPort    = 8080
	DefaultMinStdDev   = time.Millisecond
	DefaultHistorySize = 10
	DefaultStablePhi   = 3.0
	DefaultMinStable   = 5
	DefaultAbandonPhi  = 6.0
	DefaultTolerance   = time.Microsecond
	DefaultIdleTimeout = 30 * time.Second
	DefaultPeerTTL     = 5 * time.Minute
)

// DefaultThresholds is the phi ladder used to arm read deadlines.
var DefaultThresholds = []float64{1, 2, 3, 6}

// Config holds the receiver configuration parsed from the `receiver:`
// section of receiver.yaml.
type Config struct {
	Receiver ReceiverConfig `yaml:"receiver"`
}

// ReceiverConfig holds all receiver-side settings.
type ReceiverConfig struct {
	// Listen is the TCP address heartbeat senders connect to.
	Listen string `yaml:"listen"`

	// HTTPPort serves the REST API, the WebSocket stream and /metrics.
	HTTPPort int `yaml:"http_port"`

	// Detector tunes the per-connection failure detector.
	Detector DetectorConfig `yaml:"detector"`

	// Thresholds is the phi ladder. After every read the monitor arms its
	// deadline at the predicted crossing of the smallest rung >= current phi.
	Thresholds []float64 `yaml:"thresholds"`

	// StablePhi: a heartbeat arriving with phi at or below this counts as stable.
	StablePhi float64 `yaml:"stable_phi"`

	// MinStable is the number of stable heartbeats before a peer may be abandoned.
	MinStable int `yaml:"min_stable"`

	// AbandonPhi: a stable peer whose phi exceeds this on a read timeout is dropped.
	AbandonPhi float64 `yaml:"abandon_phi"`

	// Tolerance is the accuracy of the crossing-time search.
	Tolerance time.Duration `yaml:"tolerance"`

	// IdleTimeout is the read deadline used when no ladder rung applies or the
	// crossing search fails.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	Auth   AuthConfig   `yaml:"auth"`
	Peers  PeersConfig  `yaml:"peers"`
	Alerts AlertsConfig `yaml:"alerts"`
}

// DetectorConfig mirrors phi.Config in YAML-friendly units.
type DetectorConfig struct {
	// MinStdDev floors the interval standard deviation (e.g. "1ms").
	MinStdDev time.Duration `yaml:"min_stddev"`

	// HistorySize is the number of intervals retained per peer.
	HistorySize int `yaml:"history_size"`
}

// AuthConfig controls authentication of REST API clients.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "X-API-Key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or "X-API-Key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "X-API-Key"
}

// PeersConfig controls retention of peer status in the store.
type PeersConfig struct {
	// TTL is how long a peer's last status is kept after its final update.
	TTL time.Duration `yaml:"ttl"`

	// Max caps concurrent peer sessions; 0 means unlimited.
	Max int `yaml:"max"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one condition over a peer's status.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "phi > 6", "state == abandoned",
	// "stable < 3", "mean_interval_ms > 2000".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration. Defaults to 15 minutes.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("receiver config: read %q: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("receiver config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("receiver config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values. It is also
// the configuration used when the receiver runs without a file.
func Defaults() *Config {
	return &Config{
		Receiver: ReceiverConfig{
			Listen:   DefaultListen,
			HTTPPort: DefaultHTTPPort,
			Detector: DetectorConfig{
				MinStdDev:   DefaultMinStdDev,
				HistorySize: DefaultHistorySize,
			},
			Thresholds:  append([]float64(nil), DefaultThresholds...),
			StablePhi:   DefaultStablePhi,
			MinStable:   DefaultMinStable,
			AbandonPhi:  DefaultAbandonPhi,
			Tolerance:   DefaultTolerance,
			IdleTimeout: DefaultIdleTimeout,
			Peers:       PeersConfig{TTL: DefaultPeerTTL},
		},
	}
}

// Validate checks structural constraints; it is exported so flag overrides
// can be re-checked after Load.
func Validate(cfg *Config) error {
	return validate(cfg)
}

func validate(cfg *Config) error {
	r := cfg.Receiver
	if _, _, err := net.SplitHostPort(r.Listen); err != nil {
		return fmt.Errorf("receiver.listen %q: %w", r.Listen, err)
	}
	if r.HTTPPort <= 0 || r.HTTPPort > 65535 {
		return fmt.Errorf("receiver.http_port %d is out of range [1, 65535]", r.HTTPPort)
	}
	if r.Detector.MinStdDev <= 0 {
		return fmt.Errorf("receiver.detector.min_stddev must be positive")
	}
	if r.Detector.HistorySize <= 0 {
		return fmt.Errorf("receiver.detector.history_size must be positive")
	}
	if len(r.Thresholds) == 0 {
		return fmt.Errorf("receiver.thresholds must not be empty")
	}
	for i, th := range r.Thresholds {
		if !(th > 0) {
			return fmt.Errorf("receiver.thresholds[%d] = %v must be positive", i, th)
		}
		if i > 0 && th <= r.Thresholds[i-1] {
			return fmt.Errorf("receiver.thresholds must be strictly increasing at [%d]", i)
		}
	}
	if r.StablePhi <= 0 {
		return fmt.Errorf("receiver.stable_phi must be positive")
	}
	if r.MinStable < 0 {
		return fmt.Errorf("receiver.min_stable must not be negative")
	}
	if r.AbandonPhi <= r.StablePhi {
		return fmt.Errorf("receiver.abandon_phi %v must exceed stable_phi %v", r.AbandonPhi, r.StablePhi)
	}
	if r.Tolerance < 0 {
		return fmt.Errorf("receiver.tolerance must not be negative")
	}
	if r.IdleTimeout <= 0 {
		return fmt.Errorf("receiver.idle_timeout must be positive")
	}
	if r.Peers.TTL <= 0 {
		return fmt.Errorf("receiver.peers.ttl must be positive")
	}
	if r.Peers.Max < 0 {
		return fmt.Errorf("receiver.peers.max must not be negative")
	}
	switch r.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("receiver.auth.mode %q unknown: want apikey|none", r.Auth.Mode)
	}
	for i, rule := range r.Alerts.Rules {
		if rule.Name == "" {
			return fmt.Errorf("receiver.alerts.rules[%d]: name is required", i)
		}
		if rule.Condition == "" {
			return fmt.Errorf("receiver.alerts.rules[%d] %q: condition is required", i, rule.Name)
		}
		switch rule.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("receiver.alerts.rules[%d] %q: unknown severity %q", i, rule.Name, rule.Severity)
		}
	}
	for i, wh := range r.Alerts.Webhooks {
		switch wh.Type {
		case "teams", "slack", "http":
		default:
			return fmt.Errorf("receiver.alerts.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}
	return nil
}
