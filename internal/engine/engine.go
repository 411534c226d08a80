// Package engine implements the polling scheduler: it drives source
// adapters, keyword matching, cursor commits and notification dispatch,
// and exposes the start/stop/status control surface.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/VK79/Radar12/internal/analyze"
	"github.com/VK79/Radar12/internal/config"
	"github.com/VK79/Radar12/internal/dispatch"
	"github.com/VK79/Radar12/internal/source"
	"github.com/VK79/Radar12/internal/storage"
	"github.com/VK79/Radar12/pkg/logx"
)

// Effective values for settings left at zero in the config.
const (
	defaultCheckInterval = 5 * time.Minute
	defaultMaxPosts      = 20
	defaultFetchTimeout  = 30 * time.Second
	defaultSendTimeout   = 15 * time.Second
	defaultRatePerSec    = 20
	defaultRetries       = 2
	defaultRetryDelay    = 2 * time.Second
)

// Status is the monitoring state reported to operators.
type Status struct {
	Running     bool
	LastCycleAt time.Time
	LastError   string
}

// ConfigSource yields the current config snapshot; the engine reads one
// snapshot per cycle and never sees a value mutating mid-cycle.
type ConfigSource interface {
	Get() *config.Config
}

// Deps are the collaborators the engine drives.
type Deps struct {
	Configs    ConfigSource
	Store      storage.Store
	Adapters   []source.Adapter
	Dispatcher *dispatch.Dispatcher
	Annotator  *analyze.Annotator // nil disables annotation regardless of config
	Log        logx.Logger
}

// Service is the monitoring scheduler. The zero state is stopped;
// Start/Stop may alternate any number of times.
type Service struct {
	configs   ConfigSource
	store     storage.Store
	adapters  map[config.SourceKind]source.Adapter
	disp      *dispatch.Dispatcher
	annotator *analyze.Annotator
	log       logx.Logger

	mu      sync.Mutex // lifecycle transitions
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	statusMu sync.RWMutex
	status   Status

	disabledMu sync.Mutex
	disabled   map[string]string // source key -> reason
}

func New(deps Deps) *Service {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	adapters := make(map[config.SourceKind]source.Adapter, len(deps.Adapters))
	for _, a := range deps.Adapters {
		adapters[a.Kind()] = a
	}
	return &Service{
		configs:   deps.Configs,
		store:     deps.Store,
		adapters:  adapters,
		disp:      deps.Dispatcher,
		annotator: deps.Annotator,
		log:       log,
		disabled:  map[string]string{},
	}
}

// Start transitions stopped -> running. It is a no-op when already
// running. A configuration that cannot support monitoring fails the
// start and is recorded in status.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if err := startable(s.configs.Get()); err != nil {
		s.setLastError(err.Error())
		s.log.Warn("monitoring start rejected", logx.Err(err))
		return err
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	s.stopCh, s.doneCh = stopCh, doneCh
	s.running = true
	s.setRunning(true)
	go s.loop(ctx, stopCh, doneCh)
	s.log.Info("monitoring started")
	return nil
}

// Stop signals the loop and waits for it to finish. An in-flight
// network call is allowed to run out its timeout; no new work starts.
// Stop is a no-op when not running.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
	s.log.Info("monitoring stopped")
}

func (s *Service) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// OnConfigUpdate re-enables sources disabled for fatal errors; the next
// cycle picks up the rest of the snapshot by itself.
func (s *Service) OnConfigUpdate(*config.Config) {
	s.disabledMu.Lock()
	n := len(s.disabled)
	s.disabled = map[string]string{}
	s.disabledMu.Unlock()
	if n > 0 {
		s.log.Info("re-enabled sources after config update", logx.Int("count", n))
	}
}

// startable rejects configs the loop could not do anything with.
func startable(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("no configuration loaded")
	}
	if len(cfg.Sources) == 0 {
		return errors.New("no sources configured")
	}
	enabled := 0
	for _, src := range cfg.Sources {
		if src.IsEnabled() {
			enabled++
		}
	}
	if enabled == 0 {
		return errors.New("all sources are disabled")
	}
	return nil
}

func (s *Service) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer func() {
		s.setRunning(false)
		close(doneCh)
	}()

	for {
		s.runCycle(ctx, stopCh)

		interval := s.configs.Get().Engine.CheckInterval.Or(defaultCheckInterval)
		timer := time.NewTimer(interval)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Service) setRunning(v bool) {
	s.statusMu.Lock()
	s.status.Running = v
	s.statusMu.Unlock()
}

func (s *Service) setLastError(msg string) {
	s.statusMu.Lock()
	s.status.LastError = msg
	s.statusMu.Unlock()
}

func (s *Service) finishCycle(errMsg string) {
	s.statusMu.Lock()
	s.status.LastCycleAt = time.Now().UTC()
	s.status.LastError = errMsg
	s.statusMu.Unlock()
}

func (s *Service) disable(key, reason string) {
	s.disabledMu.Lock()
	s.disabled[key] = reason
	s.disabledMu.Unlock()
}

func (s *Service) disabledReason(key string) (string, bool) {
	s.disabledMu.Lock()
	defer s.disabledMu.Unlock()
	reason, ok := s.disabled[key]
	return reason, ok
}
