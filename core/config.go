package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	WebhookModeInline = "inline"
	WebhookModeQueued = "queued"
)

type QueueConfig struct {
	MaxRetries          int           `koanf:"max_retries" mapstructure:"max_retries"`
	RetryDelay          time.Duration `koanf:"retry_delay" mapstructure:"retry_delay"`
	DefaultPriority     int           `koanf:"default_priority" mapstructure:"default_priority"`
	BatchSize           int           `koanf:"batch_size" mapstructure:"batch_size"`
	Workers             int           `koanf:"workers" mapstructure:"workers"`
	PollInterval        time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	JobTimeout          time.Duration `koanf:"job_timeout" mapstructure:"job_timeout"`
	Retention           time.Duration `koanf:"retention" mapstructure:"retention"`
	ExclusiveOperations []string      `koanf:"exclusive_operations" mapstructure:"exclusive_operations"`
}

type WebhooksConfig struct {
	Mode            string        `koanf:"mode" mapstructure:"mode"`
	AllowUnverified bool          `koanf:"allow_unverified" mapstructure:"allow_unverified"`
	ReplayWindow    time.Duration `koanf:"replay_window" mapstructure:"replay_window"`
	LogRetention    time.Duration `koanf:"log_retention" mapstructure:"log_retention"`
	DedupeTTL       time.Duration `koanf:"dedupe_ttl" mapstructure:"dedupe_ttl"`
}

type ImporterConfig struct {
	APIVersion     string        `koanf:"api_version" mapstructure:"api_version"`
	PageSize       int           `koanf:"page_size" mapstructure:"page_size"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	RatePerSecond  float64       `koanf:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst      int           `koanf:"rate_burst" mapstructure:"rate_burst"`
}

type ResolverConfig struct {
	LockTTL       time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl"`
	AutoLinkKinds []string      `koanf:"auto_link_kinds" mapstructure:"auto_link_kinds"`
}

type RedisConfig struct {
	Addr      string `koanf:"addr" mapstructure:"addr"`
	Password  string `koanf:"password" mapstructure:"password"`
	DB        int    `koanf:"db" mapstructure:"db"`
	KeyPrefix string `koanf:"key_prefix" mapstructure:"key_prefix"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Queue       QueueConfig    `koanf:"queue" mapstructure:"queue"`
	Webhooks    WebhooksConfig `koanf:"webhooks" mapstructure:"webhooks"`
	Importer    ImporterConfig `koanf:"importer" mapstructure:"importer"`
	Resolver    ResolverConfig `koanf:"resolver" mapstructure:"resolver"`
	Redis       RedisConfig    `koanf:"redis" mapstructure:"redis"`
}

func DefaultConfig() Config {
	exclusive := make([]string, 0, len(DefaultExclusiveOperations()))
	for _, op := range DefaultExclusiveOperations() {
		exclusive = append(exclusive, string(op))
	}
	return Config{
		ServiceName: "shopify-sync",
		Queue: QueueConfig{
			MaxRetries:          DefaultMaxRetries,
			RetryDelay:          DefaultRetryDelay,
			DefaultPriority:     int(PriorityNormal),
			BatchSize:           10,
			Workers:             1,
			PollInterval:        5 * time.Second,
			JobTimeout:          30 * time.Minute,
			Retention:           30 * 24 * time.Hour,
			ExclusiveOperations: exclusive,
		},
		Webhooks: WebhooksConfig{
			Mode:         WebhookModeInline,
			ReplayWindow: 0,
			LogRetention: 30 * 24 * time.Hour,
			DedupeTTL:    24 * time.Hour,
		},
		Importer: ImporterConfig{
			APIVersion:     "2023-10",
			PageSize:       250,
			RequestTimeout: 30 * time.Second,
			RatePerSecond:  2,
			RateBurst:      4,
		},
		Resolver: ResolverConfig{
			LockTTL: 30 * time.Second,
		},
		Redis: RedisConfig{
			KeyPrefix: "shopify-sync",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("core: queue.max_retries must be >= 0")
	}
	if c.Queue.RetryDelay < 0 {
		return fmt.Errorf("core: queue.retry_delay must be >= 0")
	}
	if !Priority(c.Queue.DefaultPriority).Valid() {
		return fmt.Errorf("core: queue.default_priority %d is invalid", c.Queue.DefaultPriority)
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("core: queue.batch_size must be > 0")
	}
	for _, raw := range c.Queue.ExclusiveOperations {
		if _, err := ParseOperation(raw); err != nil {
			return fmt.Errorf("core: queue.exclusive_operations: %w", err)
		}
	}
	switch strings.TrimSpace(strings.ToLower(c.Webhooks.Mode)) {
	case "", WebhookModeInline, WebhookModeQueued:
	default:
		return fmt.Errorf("core: webhooks.mode %q is invalid", c.Webhooks.Mode)
	}
	if c.Importer.PageSize <= 0 || c.Importer.PageSize > 250 {
		return fmt.Errorf("core: importer.page_size must be within 1..250")
	}
	for _, raw := range c.Resolver.AutoLinkKinds {
		if strings.TrimSpace(raw) == "" {
			return fmt.Errorf("core: resolver.auto_link_kinds contains an empty kind")
		}
	}
	return nil
}

// ExclusiveSet returns the configured exclusive operations as a lookup set.
func (c QueueConfig) ExclusiveSet() map[Operation]bool {
	out := make(map[Operation]bool, len(c.ExclusiveOperations))
	for _, raw := range c.ExclusiveOperations {
		op, err := ParseOperation(raw)
		if err != nil {
			continue
		}
		out[op] = true
	}
	return out
}
