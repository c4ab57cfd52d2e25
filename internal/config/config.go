// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/alumet-io/alumet/internal/log"
)

// GlobalConfig represents the top-level static configuration for a
// measurement pipeline agent process. Maps to the `alumet:` root key in
// YAML, mirroring the teacher's `capture-agent:` root wrapper.
type GlobalConfig struct {
	Node            NodeConfig               `mapstructure:"node"`
	Control         ControlConfig            `mapstructure:"control"`
	Pipeline        PipelineConfig           `mapstructure:"pipeline"`
	Metrics         MetricsConfig            `mapstructure:"metrics"`
	Log             log.LoggerConfig         `mapstructure:"log"`
	PluginDiscovery PluginDiscoveryConfig    `mapstructure:"plugin_discovery"`
	Plugins         map[string]PluginSection `mapstructure:"plugins"`
}

// PluginDiscoveryConfig selects how internal/plugin.Loader populates the
// registry. An empty Dir means StaticMode: plugins are whatever is
// statically registered (e.g. by a main.go import for init() side
// effects), and the loader only validates the dependency graph. A non-empty
// Dir switches to DynamicMode, opening every file under Dir matching
// Patterns as a Go plugin (.so).
type PluginDiscoveryConfig struct {
	Dir      string   `mapstructure:"dir"`
	Patterns []string `mapstructure:"patterns"`
}

// NodeConfig identifies the host this agent runs on; no network role here
// (unlike the teacher's ASBC/FS/KAMAILIO taxonomy) since a measurement
// agent has no notion of a SIP role.
type NodeConfig struct {
	Hostname string            `mapstructure:"hostname"` // empty = os.Hostname()
	Tags     map[string]string `mapstructure:"tags"`
}

// ControlConfig contains process-lifecycle file locations and the bounded
// control queue capacity consulted by internal/control.Plane.
type ControlConfig struct {
	PIDFile       string `mapstructure:"pid_file"`
	QueueCapacity int    `mapstructure:"queue_capacity"`
}

// PipelineConfig configures the structural parameters of the measurement
// dataflow: channel capacities, the default source poll/flush cadence
// plugins get unless they reconfigure their own trigger post-start, and the
// dedicated realtime source pool size. Repurposed from the teacher's
// BackpressureConfig (pipeline_channel/send_buffer capacities) toward the
// Source/Transform/Output dataflow.
type PipelineConfig struct {
	SourceChannelCapacity int    `mapstructure:"source_channel_capacity"`
	BroadcastCapacity     int    `mapstructure:"broadcast_capacity"`
	RealtimePoolSize      int    `mapstructure:"realtime_pool_size"`
	DefaultPollInterval   string `mapstructure:"default_poll_interval"`
	DefaultFlushInterval  string `mapstructure:"default_flush_interval"`
}

// MetricsConfig contains Prometheus metrics server settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// PluginSection is one plugin's opaque configuration table, handed
// verbatim to plugin.Plugin.Init (SPEC_FULL.md §1: plugins are otherwise
// opaque to the pipeline core).
type PluginSection map[string]interface{}

// configRoot is the top-level wrapper matching the YAML structure
// `alumet: ...`.
type configRoot struct {
	Alumet GlobalConfig `mapstructure:"alumet"`
}

// Load loads configuration from file. The YAML file uses `alumet:` as root
// key; env vars use the ALUMET_ prefix (e.g. ALUMET_LOG_LEVEL), matching
// the teacher's env-var-from-key-replacer pattern.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Alumet

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration. All keys use the
// "alumet." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("alumet.control.pid_file", "/var/run/alumet.pid")

	v.SetDefault("alumet.log.level", "info")
	v.SetDefault("alumet.log.appenders", []map[string]interface{}{{"type": "console"}})

	v.SetDefault("alumet.metrics.enabled", true)
	v.SetDefault("alumet.metrics.listen", ":9091")
	v.SetDefault("alumet.metrics.path", "/metrics")

	v.SetDefault("alumet.pipeline.source_channel_capacity", 1024)
	v.SetDefault("alumet.pipeline.broadcast_capacity", 64)
	v.SetDefault("alumet.pipeline.realtime_pool_size", 0)
	v.SetDefault("alumet.pipeline.default_poll_interval", "1s")
	v.SetDefault("alumet.pipeline.default_flush_interval", "5s")

	v.SetDefault("alumet.control.queue_capacity", 256)

	v.SetDefault("alumet.plugin_discovery.dir", "")
	v.SetDefault("alumet.plugin_discovery.patterns", []string{"*.so"})
}

// ValidateAndApplyDefaults validates configuration and applies runtime
// defaults not expressible as static viper defaults (hostname auto-detect).
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}

	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	if cfg.Pipeline.SourceChannelCapacity <= 0 {
		return fmt.Errorf("pipeline.source_channel_capacity must be positive")
	}
	if cfg.Pipeline.BroadcastCapacity <= 0 {
		return fmt.Errorf("pipeline.broadcast_capacity must be positive")
	}
	if cfg.Pipeline.RealtimePoolSize < 0 {
		return fmt.Errorf("pipeline.realtime_pool_size must not be negative")
	}
	poll, err := time.ParseDuration(cfg.Pipeline.DefaultPollInterval)
	if err != nil || poll <= 0 {
		return fmt.Errorf("pipeline.default_poll_interval must be a positive duration: %q", cfg.Pipeline.DefaultPollInterval)
	}
	flush, err := time.ParseDuration(cfg.Pipeline.DefaultFlushInterval)
	if err != nil || flush < poll {
		return fmt.Errorf("pipeline.default_flush_interval must be a duration >= default_poll_interval: %q", cfg.Pipeline.DefaultFlushInterval)
	}

	return nil
}
