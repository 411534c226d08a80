package config

import (
	"fmt"
	"net"
	"strings"
)

type Config struct {
	Logging     LoggingConfig     `json:"logging"`
	Engine      EngineConfig      `json:"engine"`
	Storage     StorageConfig     `json:"storage"`
	VK          VKConfig          `json:"vk,omitempty"`
	Telegram    TelegramConfig    `json:"telegram,omitempty"`
	AI          AIConfig          `json:"ai,omitempty"`
	Admin       AdminConfig       `json:"admin,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
	Dispatch    DispatchConfig    `json:"dispatch,omitempty"`

	Sources    []SourceConfig `json:"sources"`
	Keywords   []string       `json:"keywords"`
	Recipients []int64        `json:"recipients"`
}

type LoggingConfig struct {
	Level  string `json:"level"`            // trace|debug|info|warn|error
	Format string `json:"format,omitempty"` // console|json
	File   string `json:"file,omitempty"`   // optional JSON log file
}

// EngineConfig controls the polling loop.
//
// All durations accept Go duration strings ("5m", "30s") or bare integers
// meaning seconds.
//
// Autostart is a pointer so we can distinguish "omitted" (default true)
// from an explicit false.
type EngineConfig struct {
	Autostart        *bool    `json:"autostart,omitempty"`
	CheckInterval    Duration `json:"check_interval,omitempty"`      // default 5m
	MaxPostsPerCheck int      `json:"max_posts_per_check,omitempty"` // default 20
	FetchTimeout     Duration `json:"fetch_timeout,omitempty"`       // default 30s
	SendTimeout      Duration `json:"send_timeout,omitempty"`        // default 15s
}

func (e EngineConfig) AutostartEnabled() bool { return e.Autostart == nil || *e.Autostart }

// StorageConfig controls the cursor persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./radar.db" }
type StorageConfig struct {
	Driver      string   `json:"driver,omitempty"` // sqlite|memory, default sqlite
	Path        string   `json:"path,omitempty"`   // default ./radar.db
	BusyTimeout Duration `json:"busy_timeout,omitempty"`
}

type VKConfig struct {
	Token   string `json:"token,omitempty"` // env VK_TOKEN overrides
	Version string `json:"version,omitempty"`
}

type TelegramConfig struct {
	APIID       int    `json:"api_id,omitempty"`   // env TELEGRAM_API_ID overrides
	APIHash     string `json:"api_hash,omitempty"` // env TELEGRAM_API_HASH overrides
	SessionFile string `json:"session_file,omitempty"`
	BotToken    string `json:"bot_token,omitempty"` // env BOT_TOKEN overrides
}

// SessionPath returns the MTProto session file location.
func (t TelegramConfig) SessionPath() string {
	if p := strings.TrimSpace(t.SessionFile); p != "" {
		return p
	}
	return "radar.session"
}

// AIConfig controls the optional relevance annotation of matched posts.
type AIConfig struct {
	Enabled bool     `json:"enabled,omitempty"`
	APIKey  string   `json:"api_key,omitempty"` // env OPENROUTER_API_KEY overrides
	BaseURL string   `json:"base_url,omitempty"`
	Model   string   `json:"model,omitempty"`
	Timeout Duration `json:"timeout,omitempty"`
}

// AdminConfig controls the control-surface HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8080").
//   - If you bind to a non-loopback address, set a token.
type AdminConfig struct {
	Enabled *bool  `json:"enabled,omitempty"` // nil = true
	Listen  string `json:"listen,omitempty"`  // default "127.0.0.1:8080"
	Token   string `json:"token,omitempty"`   // optional bearer token (do not log); env RADAR_ADMIN_TOKEN overrides
	Pprof   bool   `json:"pprof,omitempty"`
}

func (a AdminConfig) IsEnabled() bool { return a.Enabled == nil || *a.Enabled }

type MaintenanceConfig struct {
	// PruneSchedule is a standard 5-field cron spec; empty disables pruning.
	PruneSchedule string `json:"prune_schedule,omitempty"`
}

type DispatchConfig struct {
	RatePerSec int      `json:"rate_per_sec,omitempty"` // default 20
	Retries    int      `json:"retries,omitempty"`      // extra attempts per recipient, default 2
	RetryDelay Duration `json:"retry_delay,omitempty"`  // default 2s
}

type SourceKind string

const (
	KindVK       SourceKind = "vk"
	KindTelegram SourceKind = "telegram"
)

// SourceConfig describes one wall/channel to poll.
//
// Enabled is a pointer so we can distinguish "omitted" (default true)
// from an explicit false.
type SourceConfig struct {
	Kind       SourceKind `json:"kind"`
	Identifier string     `json:"identifier"`
	Enabled    *bool      `json:"enabled,omitempty"`
}

func (s SourceConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// Key is the stable identity cursors are stored under.
func (s SourceConfig) Key() string {
	return string(s.Kind) + ":" + strings.TrimSpace(s.Identifier)
}

// SourceKeys returns the keys of all configured sources, enabled or not.
func (c *Config) SourceKeys() []string {
	keys := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		keys = append(keys, s.Key())
	}
	return keys
}

// Validate checks structural correctness. It does not probe the network;
// credentials are only checked for presence where a source kind needs them.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	if c.Engine.MaxPostsPerCheck < 0 {
		return fmt.Errorf("engine.max_posts_per_check: must be >= 0")
	}
	if c.Dispatch.RatePerSec < 0 {
		return fmt.Errorf("dispatch.rate_per_sec: must be >= 0")
	}
	if c.Dispatch.Retries < 0 {
		return fmt.Errorf("dispatch.retries: must be >= 0")
	}

	seen := map[string]struct{}{}
	var hasVK, hasTG bool
	for i, s := range c.Sources {
		switch s.Kind {
		case KindVK:
			hasVK = true
		case KindTelegram:
			hasTG = true
		default:
			return fmt.Errorf("sources[%d]: unknown kind %q", i, s.Kind)
		}
		if strings.TrimSpace(s.Identifier) == "" {
			return fmt.Errorf("sources[%d]: identifier is required", i)
		}
		key := s.Key()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("sources[%d]: duplicate source %q", i, key)
		}
		seen[key] = struct{}{}
	}

	if hasVK && strings.TrimSpace(c.VK.Token) == "" {
		return fmt.Errorf("vk.token: required when a vk source is configured (or set VK_TOKEN)")
	}
	if hasTG {
		if c.Telegram.APIID == 0 {
			return fmt.Errorf("telegram.api_id: required when a telegram source is configured (or set TELEGRAM_API_ID)")
		}
		if strings.TrimSpace(c.Telegram.APIHash) == "" {
			return fmt.Errorf("telegram.api_hash: required when a telegram source is configured (or set TELEGRAM_API_HASH)")
		}
	}

	if len(c.Recipients) > 0 && strings.TrimSpace(c.Telegram.BotToken) == "" {
		return fmt.Errorf("telegram.bot_token: required when recipients are configured (or set BOT_TOKEN)")
	}
	for i, r := range c.Recipients {
		if r == 0 {
			return fmt.Errorf("recipients[%d]: chat id must be non-zero", i)
		}
	}

	if c.AI.Enabled && strings.TrimSpace(c.AI.APIKey) == "" {
		return fmt.Errorf("ai.api_key: required when ai.enabled (or set OPENROUTER_API_KEY)")
	}

	if c.Admin.IsEnabled() {
		if addr := strings.TrimSpace(c.Admin.Listen); addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return fmt.Errorf("admin.listen: %w", err)
			}
		}
	}

	return nil
}
