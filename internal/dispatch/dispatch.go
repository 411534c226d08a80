// Package dispatch formats matched posts and fans them out to the
// configured recipient chats.
package dispatch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/VK79/Radar12/internal/transport"
	"github.com/VK79/Radar12/pkg/logx"
)

// Config is the per-delivery view of the dispatch settings; the engine
// passes a fresh one from its config snapshot every cycle.
type Config struct {
	Recipients  []int64
	RatePerSec  int
	Retries     int // extra attempts per recipient
	RetryDelay  time.Duration
	SendTimeout time.Duration
}

// Outcome reports delivery to one recipient.
type Outcome struct {
	ChatID   int64
	Attempts int
	Err      error
}

// Failed counts recipients that never got the notification.
func Failed(outs []Outcome) int {
	n := 0
	for _, o := range outs {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Dispatcher delivers notifications sequentially per recipient. The
// rate limiter is shared across cycles so reconfigured limits apply to
// in-flight work too.
type Dispatcher struct {
	sender  transport.Sender
	log     logx.Logger
	limiter *rate.Limiter
}

func New(sender transport.Sender, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		sender:  sender,
		log:     log,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

// Deliver sends one notification to every recipient. A failing
// recipient never blocks the rest; each gets its retries and the
// outcome slice reports all of them.
func (d *Dispatcher) Deliver(ctx context.Context, n Notification, cfg Config) []Outcome {
	text := Format(n)
	d.applyRate(cfg.RatePerSec)

	outs := make([]Outcome, 0, len(cfg.Recipients))
	for _, chatID := range cfg.Recipients {
		out := d.deliverOne(ctx, chatID, text, cfg)
		if out.Err != nil {
			d.log.Warn("notification delivery failed",
				logx.Int64("chat_id", chatID),
				logx.Int("attempts", out.Attempts),
				logx.String("post", n.Post.Permalink),
				logx.Err(out.Err))
		}
		outs = append(outs, out)
	}
	return outs
}

func (d *Dispatcher) deliverOne(ctx context.Context, chatID int64, text string, cfg Config) Outcome {
	out := Outcome{ChatID: chatID}
	if d.sender == nil {
		out.Err = errors.New("no sender configured")
		return out
	}
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}

	for attempt := 0; attempt <= cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				out.Err = ctx.Err()
				return out
			case <-time.After(cfg.RetryDelay):
			}
		}
		if err := d.limiter.Wait(ctx); err != nil {
			out.Err = err
			return out
		}

		sctx := ctx
		var cancel context.CancelFunc
		if cfg.SendTimeout > 0 {
			sctx, cancel = context.WithTimeout(ctx, cfg.SendTimeout)
		}
		err := d.sender.Send(sctx, chatID, text, opt)
		if cancel != nil {
			cancel()
		}
		out.Attempts++
		out.Err = err
		if err == nil {
			return out
		}
	}
	return out
}

func (d *Dispatcher) applyRate(perSec int) {
	lim := rate.Inf
	burst := 1
	if perSec > 0 {
		lim = rate.Limit(perSec)
		burst = perSec
	}
	if d.limiter.Limit() != lim {
		d.limiter.SetLimit(lim)
		d.limiter.SetBurst(burst)
	}
}
