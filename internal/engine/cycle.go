package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/VK79/Radar12/internal/config"
	"github.com/VK79/Radar12/internal/dispatch"
	"github.com/VK79/Radar12/internal/match"
	"github.com/VK79/Radar12/internal/source"
	"github.com/VK79/Radar12/pkg/logx"
)

// cycleSettings are the effective per-cycle knobs derived from one
// config snapshot.
type cycleSettings struct {
	maxPosts     int
	fetchTimeout time.Duration
	dispatch     dispatch.Config
	annotate     bool
}

func settingsFrom(cfg *config.Config) cycleSettings {
	maxPosts := cfg.Engine.MaxPostsPerCheck
	if maxPosts <= 0 {
		maxPosts = defaultMaxPosts
	}
	ratePerSec := cfg.Dispatch.RatePerSec
	if ratePerSec <= 0 {
		ratePerSec = defaultRatePerSec
	}
	retries := cfg.Dispatch.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	return cycleSettings{
		maxPosts:     maxPosts,
		fetchTimeout: cfg.Engine.FetchTimeout.Or(defaultFetchTimeout),
		dispatch: dispatch.Config{
			Recipients:  cfg.Recipients,
			RatePerSec:  ratePerSec,
			Retries:     retries,
			RetryDelay:  cfg.Dispatch.RetryDelay.Or(defaultRetryDelay),
			SendTimeout: cfg.Engine.SendTimeout.Or(defaultSendTimeout),
		},
		annotate: cfg.AI.Enabled,
	}
}

// runCycle polls every enabled source once against one config snapshot.
// Source failures are isolated; the cycle-level error summary lands in
// status.
func (s *Service) runCycle(ctx context.Context, stopCh chan struct{}) {
	cfg := s.configs.Get()
	if cfg == nil {
		s.finishCycle("no configuration loaded")
		return
	}
	set := settingsFrom(cfg)
	matcher := match.New(cfg.Keywords)
	log := s.log.With(logx.String("cycle", uuid.NewString()[:8]))

	var (
		errs    []string
		fetched int
		matched int
		sent    int
	)
	for _, src := range cfg.Sources {
		if stopped(ctx, stopCh) {
			return
		}
		if !src.IsEnabled() {
			continue
		}
		key := src.Key()
		if reason, off := s.disabledReason(key); off {
			log.Debug("skipping disabled source",
				logx.String("source", key),
				logx.String("reason", reason))
			continue
		}

		n, err := s.pollSource(ctx, stopCh, log, cfg, src, matcher, set)
		fetched += n.fetched
		matched += n.matched
		sent += n.sent
		if err != nil {
			errs = append(errs, key+": "+err.Error())
		}
	}

	s.finishCycle(strings.Join(errs, "; "))
	log.Info("cycle complete",
		logx.Int("posts", fetched),
		logx.Int("matched", matched),
		logx.Int("notifications", sent),
		logx.Int("errors", len(errs)))
}

type tally struct {
	fetched int
	matched int
	sent    int
}

func (s *Service) pollSource(ctx context.Context, stopCh chan struct{}, log logx.Logger, cfg *config.Config, src config.SourceConfig, matcher *match.Matcher, set cycleSettings) (tally, error) {
	var n tally
	key := src.Key()

	adapter, ok := s.adapters[src.Kind]
	if !ok {
		err := fmt.Errorf("no adapter for kind %q", src.Kind)
		s.disable(key, err.Error())
		log.Error("source unusable", logx.String("source", key), logx.Err(err))
		return n, err
	}

	cursor, _, err := s.store.Get(ctx, key)
	if err != nil {
		log.Warn("cursor read failed", logx.String("source", key), logx.Err(err))
		return n, fmt.Errorf("cursor read: %w", err)
	}

	fctx, cancel := context.WithTimeout(ctx, set.fetchTimeout)
	posts, err := adapter.Fetch(fctx, src.Identifier, cursor, set.maxPosts)
	cancel()
	if err != nil {
		if source.IsFatal(err) {
			s.disable(key, err.Error())
			log.Error("source failed, disabled until next config update",
				logx.String("source", key), logx.Err(err))
		} else {
			log.Warn("source fetch failed", logx.String("source", key), logx.Err(err))
		}
		return n, err
	}
	if len(posts) > 0 {
		log.Debug("new posts",
			logx.String("source", key),
			logx.Int("count", len(posts)),
			logx.Int64("cursor", cursor))
	}

	for _, post := range posts {
		if stopped(ctx, stopCh) {
			return n, nil
		}

		if keywords := matcher.Match(post.Text); len(keywords) > 0 {
			n.matched++
			note := ""
			if set.annotate {
				note = s.annotator.Annotate(ctx, post.Text, keywords)
			}
			outs := s.disp.Deliver(ctx, dispatch.Notification{
				Post:     post,
				Keywords: keywords,
				Note:     note,
			}, set.dispatch)
			n.sent += len(outs) - dispatch.Failed(outs)
			log.Info("post matched",
				logx.String("source", key),
				logx.Int64("post_id", post.ExternalID),
				logx.String("permalink", post.Permalink),
				logx.Any("keywords", keywords),
				logx.Int("delivered", len(outs)-dispatch.Failed(outs)),
				logx.Int("failed", dispatch.Failed(outs)))
		}

		// The cursor moves once the post has been attempted, matched or
		// not; a crash loses at most the post in flight.
		if err := s.store.Commit(ctx, key, post.ExternalID); err != nil {
			log.Error("cursor commit failed",
				logx.String("source", key),
				logx.Int64("post_id", post.ExternalID),
				logx.Err(err))
			return n, fmt.Errorf("cursor commit: %w", err)
		}
		n.fetched++
	}
	return n, nil
}

func stopped(ctx context.Context, stopCh chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
