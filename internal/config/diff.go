package config

import (
	"reflect"
	"sort"
	"strings"

	logx "github.com/VK79/Radar12/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the keys of sources that were added, removed, or edited.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 20)

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.String("logx.format", newCfg.Logging.Format),
			logx.Bool("logx.file_set", strings.TrimSpace(newCfg.Logging.File) != ""),
		)
	}

	// Engine
	if !reflect.DeepEqual(oldCfg.Engine, newCfg.Engine) {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.Bool("engine.autostart", newCfg.Engine.AutostartEnabled()),
			logx.Duration("engine.check_interval", newCfg.Engine.CheckInterval.Duration),
			logx.Int("engine.max_posts_per_check", newCfg.Engine.MaxPostsPerCheck),
		)
	}

	// Storage
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	// VK (never log token)
	if oldCfg.VK.Version != newCfg.VK.Version ||
		(strings.TrimSpace(oldCfg.VK.Token) != "") != (strings.TrimSpace(newCfg.VK.Token) != "") {
		changed = append(changed, "vk")
		attrs = append(attrs,
			logx.String("vk.version", newCfg.VK.Version),
			logx.Bool("vk.token_set", strings.TrimSpace(newCfg.VK.Token) != ""),
		)
	}

	// Telegram (never log api_hash / bot_token)
	if oldCfg.Telegram.APIID != newCfg.Telegram.APIID ||
		strings.TrimSpace(oldCfg.Telegram.SessionFile) != strings.TrimSpace(newCfg.Telegram.SessionFile) ||
		(strings.TrimSpace(oldCfg.Telegram.APIHash) != "") != (strings.TrimSpace(newCfg.Telegram.APIHash) != "") ||
		(strings.TrimSpace(oldCfg.Telegram.BotToken) != "") != (strings.TrimSpace(newCfg.Telegram.BotToken) != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.api_creds_set", newCfg.Telegram.APIID != 0 && strings.TrimSpace(newCfg.Telegram.APIHash) != ""),
			logx.Bool("telegram.bot_token_set", strings.TrimSpace(newCfg.Telegram.BotToken) != ""),
			logx.String("telegram.session_file", strings.TrimSpace(newCfg.Telegram.SessionFile)),
		)
	}

	// AI (never log api_key)
	if oldCfg.AI.Enabled != newCfg.AI.Enabled ||
		oldCfg.AI.BaseURL != newCfg.AI.BaseURL ||
		oldCfg.AI.Model != newCfg.AI.Model ||
		oldCfg.AI.Timeout != newCfg.AI.Timeout ||
		(strings.TrimSpace(oldCfg.AI.APIKey) != "") != (strings.TrimSpace(newCfg.AI.APIKey) != "") {
		changed = append(changed, "ai")
		attrs = append(attrs,
			logx.Bool("ai.enabled", newCfg.AI.Enabled),
			logx.String("ai.model", newCfg.AI.Model),
			logx.Bool("ai.api_key_set", strings.TrimSpace(newCfg.AI.APIKey) != ""),
		)
	}

	// Admin (never log token)
	if oldCfg.Admin.IsEnabled() != newCfg.Admin.IsEnabled() ||
		strings.TrimSpace(oldCfg.Admin.Listen) != strings.TrimSpace(newCfg.Admin.Listen) ||
		oldCfg.Admin.Pprof != newCfg.Admin.Pprof ||
		(strings.TrimSpace(oldCfg.Admin.Token) != "") != (strings.TrimSpace(newCfg.Admin.Token) != "") {
		changed = append(changed, "admin")
		attrs = append(attrs,
			logx.Bool("admin.enabled", newCfg.Admin.IsEnabled()),
			logx.String("admin.listen", strings.TrimSpace(newCfg.Admin.Listen)),
			logx.Bool("admin.token_set", strings.TrimSpace(newCfg.Admin.Token) != ""),
			logx.Bool("admin.pprof", newCfg.Admin.Pprof),
		)
	}

	// Maintenance
	if oldCfg.Maintenance != newCfg.Maintenance {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.String("maintenance.prune_schedule", strings.TrimSpace(newCfg.Maintenance.PruneSchedule)),
		)
	}

	// Dispatch
	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Int("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
			logx.Int("dispatch.retries", newCfg.Dispatch.Retries),
		)
	}

	// Sources (summarize only; details at debug)
	sourceChanged := diffSources(oldCfg.Sources, newCfg.Sources)
	if len(sourceChanged) > 0 {
		changed = append(changed, "sources")
		attrs = append(attrs,
			logx.Int("sources.changed_count", len(sourceChanged)),
			logx.Int("sources.enabled_count", countEnabledSources(newCfg.Sources)),
		)
	}

	// Keywords / recipients: log counts only; the values themselves are noise.
	if !reflect.DeepEqual(oldCfg.Keywords, newCfg.Keywords) {
		changed = append(changed, "keywords")
		attrs = append(attrs, logx.Int("keywords.count", len(newCfg.Keywords)))
	}
	if !reflect.DeepEqual(oldCfg.Recipients, newCfg.Recipients) {
		changed = append(changed, "recipients")
		attrs = append(attrs, logx.Int("recipients.count", len(newCfg.Recipients)))
	}

	sort.Strings(changed)
	return changed, attrs, sourceChanged
}

func countEnabledSources(sources []SourceConfig) int {
	n := 0
	for _, s := range sources {
		if s.IsEnabled() {
			n++
		}
	}
	return n
}

func diffSources(oldS, newS []SourceConfig) []string {
	oldM := make(map[string]SourceConfig, len(oldS))
	for _, s := range oldS {
		oldM[s.Key()] = s
	}
	newM := make(map[string]SourceConfig, len(newS))
	for _, s := range newS {
		newM[s.Key()] = s
	}

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for key := range set {
		o, oOK := oldM[key]
		n, nOK := newM[key]
		if oOK != nOK || o.IsEnabled() != n.IsEnabled() {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
