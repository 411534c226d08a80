// Package app wires configuration, storage, source adapters, transport
// and the engine into one runnable daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VK79/Radar12/internal/admin"
	"github.com/VK79/Radar12/internal/analyze"
	"github.com/VK79/Radar12/internal/config"
	"github.com/VK79/Radar12/internal/dispatch"
	"github.com/VK79/Radar12/internal/engine"
	"github.com/VK79/Radar12/internal/maintenance"
	"github.com/VK79/Radar12/internal/runtime/supervisor"
	"github.com/VK79/Radar12/internal/source"
	tgsource "github.com/VK79/Radar12/internal/source/telegram"
	"github.com/VK79/Radar12/internal/source/vk"
	"github.com/VK79/Radar12/internal/storage"
	"github.com/VK79/Radar12/internal/transport"
	tgsender "github.com/VK79/Radar12/internal/transport/telegram"
	logx "github.com/VK79/Radar12/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	engine  *engine.Service
	admin   *admin.Server
	janitor *maintenance.Janitor

	// tgSource is nil when telegram credentials or the session file are
	// missing; an unavailable stand-in covers its sources then.
	tgSource *tgsource.Adapter
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	logs, log := logx.New(logx.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	log = log.With(logx.String("comp", "app"))

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout.Duration,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		logs.Close()
		return nil, err
	}

	adapters, tgAdapter := buildAdapters(cfg, log)

	var sender transport.Sender
	if strings.TrimSpace(cfg.Telegram.BotToken) != "" {
		s, err := tgsender.New(tgsender.Config{Token: cfg.Telegram.BotToken},
			log.With(logx.String("comp", "bot")))
		if err != nil {
			_ = store.Close()
			logs.Close()
			return nil, err
		}
		sender = s
	} else {
		log.Info("no bot token configured; matches will be logged, not delivered")
	}

	var annot *analyze.Annotator
	if strings.TrimSpace(cfg.AI.APIKey) != "" {
		a, err := analyze.New(cfg.AI, log.With(logx.String("comp", "analyze")))
		if err != nil {
			log.Warn("annotator unavailable", logx.Err(err))
		} else {
			annot = a
		}
	}

	eng := engine.New(engine.Deps{
		Configs:    cfgm,
		Store:      store,
		Adapters:   adapters,
		Dispatcher: dispatch.New(sender, log.With(logx.String("comp", "dispatch"))),
		Annotator:  annot,
		Log:        log.With(logx.String("comp", "engine")),
	})

	var adminSrv *admin.Server
	if cfg.Admin.IsEnabled() {
		adminSrv = admin.New(admin.Config{
			Listen: cfg.Admin.Listen,
			Token:  cfg.Admin.Token,
			Pprof:  cfg.Admin.Pprof,
		}, eng, log.With(logx.String("comp", "admin")))
	}

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logs,
		store:    store,
		engine:   eng,
		admin:    adminSrv,
		janitor:  maintenance.New(cfgm, store, log.With(logx.String("comp", "maintenance"))),
		tgSource: tgAdapter,
	}, nil
}

func validate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := maintenance.ValidateSchedule(cfg.Maintenance.PruneSchedule); err != nil {
		return fmt.Errorf("maintenance.prune_schedule: %w", err)
	}
	return nil
}

func buildAdapters(cfg *config.Config, log logx.Logger) ([]source.Adapter, *tgsource.Adapter) {
	adapters := make([]source.Adapter, 0, 2)

	if ad, err := vk.New(cfg.VK, vk.WithLogger(log.With(logx.String("comp", "vk")))); err != nil {
		log.Debug("vk adapter not configured", logx.Err(err))
		adapters = append(adapters, source.NewUnavailable(config.KindVK, err))
	} else {
		adapters = append(adapters, ad)
	}

	var tg *tgsource.Adapter
	if ad, err := tgsource.New(cfg.Telegram, tgsource.WithLogger(log.With(logx.String("comp", "telegram")))); err != nil {
		if hasKind(cfg, config.KindTelegram) {
			log.Warn("telegram source adapter unavailable", logx.Err(err))
		} else {
			log.Debug("telegram source adapter not configured", logx.Err(err))
		}
		adapters = append(adapters, source.NewUnavailable(config.KindTelegram, err))
	} else {
		tg = ad
		adapters = append(adapters, ad)
	}
	return adapters, tg
}

func hasKind(cfg *config.Config, kind config.SourceKind) bool {
	for _, s := range cfg.Sources {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	if a.tgSource != nil {
		a.sup.GoRestart("source.telegram", func(ctx context.Context) error {
			err := a.tgSource.Run(ctx)
			if errors.Is(err, tgsource.ErrNotAuthorized) {
				a.log.Error("telegram session rejected; run `radar auth` and restart")
				// Restarting cannot recover this; fetches now fail fast
				// with the recorded reason.
				return nil
			}
			return err
		}, supervisor.WithRestartBackoff(2*time.Second, time.Minute))
	}

	if a.admin != nil {
		a.sup.Go("admin.http", a.admin.Run)
	}
	a.sup.Go("maintenance.prune", a.janitor.Run)

	a.startReloadLoop()
	a.sup.Go("config.watch", a.cfgm.Watch)

	if a.cfgm.Get().Engine.AutostartEnabled() {
		if err := a.engine.Start(a.sup.Context()); err != nil {
			a.log.Warn("monitoring not started", logx.Err(err))
		}
	} else {
		a.log.Info("autostart disabled; start monitoring via the admin API")
	}

	a.log.Info("app started")
	return nil
}

// Sections whose settings bind at construction time. The reload loop
// warns instead of silently half-applying them.
var restartSections = map[string]struct{}{
	"storage":     {},
	"vk":          {},
	"telegram":    {},
	"ai":          {},
	"admin":       {},
	"maintenance": {},
}

func (a *App) startReloadLoop() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(ctx context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-ctx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the newest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs, sourceChanges := config.SummarizeConfigChange(lastApplied, newCfg)
				lastApplied = newCfg

				a.logs.Apply(logx.Config{
					Level:  newCfg.Logging.Level,
					Format: newCfg.Logging.Format,
					File:   newCfg.Logging.File,
				})

				var deferred []string
				for _, s := range sections {
					if _, ok := restartSections[s]; ok {
						deferred = append(deferred, s)
					}
				}
				if len(deferred) > 0 {
					a.log.Warn("config sections need a restart to take effect",
						logx.String("sections", strings.Join(deferred, ",")))
				}

				a.engine.OnConfigUpdate(newCfg)

				if len(sections) == 0 {
					a.log.Info("config reloaded (no changes)")
					continue
				}
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Info("config reloaded", fields...)
				if len(sourceChanges) > 0 {
					a.log.Info("source set changed", logx.Any("sources", sourceChanges))
				}
			}
		}
	})
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step failed", logx.String("step", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step timed out", logx.String("step", name))
		}
	}

	// The engine goes first so an in-flight delivery finishes instead
	// of being cut off mid-send.
	step("engine", 15*time.Second, func(context.Context) error { a.engine.Stop(); return nil })

	a.sup.Cancel()
	step("supervisor", 5*time.Second, a.sup.Wait)
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
