// Package config loads and validates pricewatch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// Store backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendGCS      = "gcs"
)

// DefaultUserAgent mimics a desktop browser; some shops reject bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:106.0) Gecko/20100101 Firefox/106.0"

// Config captures all knobs loaded via Viper.
type Config struct {
	Concurrency int             `mapstructure:"concurrency"`
	HTTP        HTTPConfig      `mapstructure:"http"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Store       StoreConfig     `mapstructure:"store"`
	Headless    HeadlessConfig  `mapstructure:"headless"`
	Tracing     TracingConfig   `mapstructure:"tracing"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Email       EmailConfig     `mapstructure:"email"`
	PubSub      PubSubConfig    `mapstructure:"pubsub"`
	Products    []ProductConfig `mapstructure:"products"`
}

// HTTPConfig configures the shared HTTP client.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	// PerHostRPS caps requests per second to a single host; 0 disables it.
	PerHostRPS   float64 `mapstructure:"per_host_rps"`
	PerHostBurst int     `mapstructure:"per_host_burst"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// StoreConfig selects and configures the durable store.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	// Path is the YAML file used by the file backend.
	Path string `mapstructure:"path"`
	// DSN is used by the sqlite and postgres backends.
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
	Bucket string `mapstructure:"bucket"`
	Object string `mapstructure:"object"`
}

// HeadlessConfig configures the chromedp renderer.
type HeadlessConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	// AutoPromote re-renders pages that look client-side rendered when the
	// static fetch misses the price element.
	AutoPromote      bool `mapstructure:"auto_promote"`
	PromoteThreshold int  `mapstructure:"promote_threshold"`
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// EmailConfig describes the SMTP channel. It is enabled when Sender is set.
type EmailConfig struct {
	Sender       string   `mapstructure:"sender"`
	Recipients   []string `mapstructure:"recipients"`
	SMTPHost     string   `mapstructure:"smtp_host"`
	SMTPPort     int      `mapstructure:"smtp_port"`
	SMTPUsername string   `mapstructure:"smtp_username"`
	SMTPPassword string   `mapstructure:"smtp_password"`
}

// Enabled reports whether any email setting was provided.
func (e EmailConfig) Enabled() bool {
	return e.Sender != "" || e.SMTPHost != "" || len(e.Recipients) > 0
}

// PubSubConfig configures the Pub/Sub channel. It is enabled when Topic is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ProductConfig is one [[products]] entry.
type ProductConfig struct {
	URL             string   `mapstructure:"url"`
	Selector        string   `mapstructure:"selector"`
	UseSelectorAttr string   `mapstructure:"use_selector_attr"`
	NotifyOnlyDrop  bool     `mapstructure:"notify_only_drop"`
	Recipients      []string `mapstructure:"recipients"`
	Headless        bool     `mapstructure:"headless"`
}

// Load builds a Config from disk and environment. Any failure is a
// configuration error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, invalid(fmt.Errorf("read config: %w", err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, invalid(fmt.Errorf("unmarshal config: %w", err))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("concurrency", 32)
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.user_agent", DefaultUserAgent)
	v.SetDefault("http.per_host_rps", 0)
	v.SetDefault("http.per_host_burst", 1)
	v.SetDefault("logging.development", true)
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", "pricewatch.yaml")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "prices")
	v.SetDefault("store.bucket", "")
	v.SetDefault("store.object", "pricewatch.yaml")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout", "45s")
	v.SetDefault("headless.auto_promote", false)
	v.SetDefault("headless.promote_threshold", 2048)
	v.SetDefault("tracing.service_name", "pricewatch")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("email.sender", "")
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.smtp_username", "")
	v.SetDefault("email.smtp_password", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Concurrency <= 0 {
		return invalid(errors.New("concurrency must be > 0"))
	}
	if c.HTTP.Timeout <= 0 {
		return invalid(errors.New("http.timeout must be > 0"))
	}
	if c.HTTP.PerHostRPS < 0 {
		return invalid(errors.New("http.per_host_rps must be >= 0"))
	}
	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Path == "" {
			return invalid(errors.New("store.path is required for the file backend"))
		}
	case BackendSQLite, BackendPostgres:
		if c.Store.DSN == "" {
			return invalid(fmt.Errorf("store.dsn is required for the %s backend", c.Store.Backend))
		}
	case BackendGCS:
		if c.Store.Bucket == "" {
			return invalid(errors.New("store.bucket is required for the gcs backend"))
		}
	default:
		return invalid(fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return invalid(errors.New("headless.max_parallel must be > 0 when headless is enabled"))
	}
	if c.Email.Enabled() {
		if c.Email.Sender == "" {
			return invalid(errors.New("email.sender is required when email is configured"))
		}
		if c.Email.SMTPHost == "" {
			return invalid(errors.New("email.smtp_host is required when email is configured"))
		}
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return invalid(errors.New("pubsub.project_id is required when pubsub.topic is set"))
	}
	return c.validateProducts()
}

func (c Config) validateProducts() error {
	if len(c.Products) == 0 {
		return invalid(errors.New("at least one product is required"))
	}
	seen := make(map[string]int, len(c.Products))
	for i, p := range c.Products {
		if strings.TrimSpace(p.URL) == "" {
			return invalid(fmt.Errorf("products[%d].url is required", i))
		}
		if strings.TrimSpace(p.Selector) == "" {
			return invalid(fmt.Errorf("products[%d].selector is required", i))
		}
		if c.Email.Enabled() && len(c.Email.Recipients) == 0 && len(p.Recipients) == 0 {
			return invalid(fmt.Errorf("products[%d] has no recipients and email.recipients is empty", i))
		}
		if p.Headless && !c.Headless.Enabled {
			return invalid(fmt.Errorf("products[%d] wants headless rendering but headless.enabled is false", i))
		}
		key := tracker.Key(p.URL)
		if prev, dup := seen[key]; dup {
			return invalid(fmt.Errorf("products[%d].url duplicates products[%d]", i, prev))
		}
		seen[key] = i
	}
	return nil
}

// Items converts product entries into tracker items, preserving order.
func (c Config) Items() []tracker.Item {
	items := make([]tracker.Item, 0, len(c.Products))
	for _, p := range c.Products {
		policy := tracker.PolicyAlways
		if p.NotifyOnlyDrop {
			policy = tracker.PolicyOnlyOnDrop
		}
		items = append(items, tracker.Item{
			URL: strings.TrimSpace(p.URL),
			Rule: tracker.Rule{
				Selector:  p.Selector,
				Attribute: p.UseSelectorAttr,
			},
			Policy:     policy,
			Recipients: p.Recipients,
			Headless:   p.Headless,
		})
	}
	return items
}

func invalid(err error) error {
	return tracker.NewError(tracker.ReasonConfigInvalid, "", err)
}
