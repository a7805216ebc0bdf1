package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// StaticRawConfigLoader serves a fixed raw map, typically decoded from a
// file or environment by the host application.
type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded config < runtime overrides.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// ResolveConfig loads configuration through provider and layers runtime
// overrides on top with resolver.
func ResolveConfig(
	ctx context.Context,
	runtime Config,
	provider ConfigProvider,
	resolver OptionsResolver,
) (Config, error) {
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	queue := map[string]any{}
	if includeZero || cfg.Queue.MaxRetries > 0 {
		queue["max_retries"] = cfg.Queue.MaxRetries
	}
	if includeZero || cfg.Queue.RetryDelay > 0 {
		queue["retry_delay"] = cfg.Queue.RetryDelay
	}
	if includeZero || cfg.Queue.DefaultPriority > 0 {
		queue["default_priority"] = cfg.Queue.DefaultPriority
	}
	if includeZero || cfg.Queue.BatchSize > 0 {
		queue["batch_size"] = cfg.Queue.BatchSize
	}
	if includeZero || cfg.Queue.Workers > 0 {
		queue["workers"] = cfg.Queue.Workers
	}
	if includeZero || cfg.Queue.PollInterval > 0 {
		queue["poll_interval"] = cfg.Queue.PollInterval
	}
	if includeZero || cfg.Queue.JobTimeout > 0 {
		queue["job_timeout"] = cfg.Queue.JobTimeout
	}
	if includeZero || cfg.Queue.Retention > 0 {
		queue["retention"] = cfg.Queue.Retention
	}
	if includeZero || len(cfg.Queue.ExclusiveOperations) > 0 {
		queue["exclusive_operations"] = append([]string(nil), cfg.Queue.ExclusiveOperations...)
	}
	if len(queue) > 0 {
		layer["queue"] = queue
	}

	webhooks := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Webhooks.Mode) != "" {
		webhooks["mode"] = cfg.Webhooks.Mode
	}
	if includeZero || cfg.Webhooks.AllowUnverified {
		webhooks["allow_unverified"] = cfg.Webhooks.AllowUnverified
	}
	if includeZero || cfg.Webhooks.ReplayWindow > 0 {
		webhooks["replay_window"] = cfg.Webhooks.ReplayWindow
	}
	if includeZero || cfg.Webhooks.LogRetention > 0 {
		webhooks["log_retention"] = cfg.Webhooks.LogRetention
	}
	if includeZero || cfg.Webhooks.DedupeTTL > 0 {
		webhooks["dedupe_ttl"] = cfg.Webhooks.DedupeTTL
	}
	if len(webhooks) > 0 {
		layer["webhooks"] = webhooks
	}

	importer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Importer.APIVersion) != "" {
		importer["api_version"] = cfg.Importer.APIVersion
	}
	if includeZero || cfg.Importer.PageSize > 0 {
		importer["page_size"] = cfg.Importer.PageSize
	}
	if includeZero || cfg.Importer.RequestTimeout > 0 {
		importer["request_timeout"] = cfg.Importer.RequestTimeout
	}
	if includeZero || cfg.Importer.RatePerSecond > 0 {
		importer["rate_per_second"] = cfg.Importer.RatePerSecond
	}
	if includeZero || cfg.Importer.RateBurst > 0 {
		importer["rate_burst"] = cfg.Importer.RateBurst
	}
	if len(importer) > 0 {
		layer["importer"] = importer
	}

	resolver := map[string]any{}
	if includeZero || cfg.Resolver.LockTTL > 0 {
		resolver["lock_ttl"] = cfg.Resolver.LockTTL
	}
	if includeZero || len(cfg.Resolver.AutoLinkKinds) > 0 {
		resolver["auto_link_kinds"] = append([]string(nil), cfg.Resolver.AutoLinkKinds...)
	}
	if len(resolver) > 0 {
		layer["resolver"] = resolver
	}

	redis := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Redis.Addr) != "" {
		redis["addr"] = cfg.Redis.Addr
	}
	if includeZero || strings.TrimSpace(cfg.Redis.Password) != "" {
		redis["password"] = cfg.Redis.Password
	}
	if includeZero || cfg.Redis.DB > 0 {
		redis["db"] = cfg.Redis.DB
	}
	if includeZero || strings.TrimSpace(cfg.Redis.KeyPrefix) != "" {
		redis["key_prefix"] = cfg.Redis.KeyPrefix
	}
	if len(redis) > 0 {
		layer["redis"] = redis
	}
	return layer
}
