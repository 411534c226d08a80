// Package maintenance removes dedup cursors whose sources are gone
// from the configuration.
package maintenance

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/VK79/Radar12/internal/config"
	"github.com/VK79/Radar12/internal/storage"
	"github.com/VK79/Radar12/pkg/logx"
)

// ConfigSource yields the current configuration snapshot.
type ConfigSource interface {
	Get() *config.Config
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether spec parses as a 5-field cron
// expression. Empty is valid and means pruning is disabled.
func ValidateSchedule(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	_, err := scheduleParser.Parse(spec)
	return err
}

// Janitor prunes cursor rows on a cron schedule. The schedule is read
// once at Run; changing it takes a daemon restart. The keep set is
// re-read from the live config on every firing.
type Janitor struct {
	configs ConfigSource
	store   storage.Store
	log     logx.Logger
}

func New(configs ConfigSource, store storage.Store, log logx.Logger) *Janitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Janitor{configs: configs, store: store, log: log}
}

// Run blocks until ctx is cancelled. An empty schedule disables
// pruning and returns immediately.
func (j *Janitor) Run(ctx context.Context) error {
	var spec string
	if cfg := j.configs.Get(); cfg != nil {
		spec = strings.TrimSpace(cfg.Maintenance.PruneSchedule)
	}
	if spec == "" {
		j.log.Debug("cursor pruning disabled")
		return nil
	}

	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return fmt.Errorf("maintenance: prune_schedule %q: %w", spec, err)
	}

	c := cron.New(cron.WithParser(scheduleParser))
	c.Schedule(sched, cron.FuncJob(func() { j.prune(ctx) }))
	c.Start()
	j.log.Info("cursor pruning scheduled", logx.String("spec", spec))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (j *Janitor) prune(ctx context.Context) {
	cfg := j.configs.Get()
	if cfg == nil {
		return
	}
	keep := cfg.SourceKeys()
	// An empty source list would wipe every cursor; a config like that
	// cannot run the engine either, so skip rather than destroy state.
	if len(keep) == 0 {
		j.log.Debug("prune skipped, no sources configured")
		return
	}

	deleted, err := j.store.Prune(ctx, keep)
	if err != nil {
		j.log.Error("cursor prune failed", logx.Err(err))
		return
	}
	kept := -1
	if keys, err := j.store.Keys(ctx); err == nil {
		kept = len(keys)
	}
	j.log.Info("cursor prune complete",
		logx.Int("kept", kept),
		logx.Int64("deleted", deleted))
}
