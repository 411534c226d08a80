// Package telegram delivers notifications through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/VK79/Radar12/internal/transport"
	"github.com/VK79/Radar12/pkg/logx"
)

// textLimit stays under the Bot API's 4096-char ceiling with headroom
// for entity expansion.
const textLimit = 4000

type Config struct {
	Token string
	// Offline skips the startup getMe probe. Tests use it together with
	// URL pointing at a local server.
	Offline bool
	// URL overrides the Bot API endpoint.
	URL string
}

// Sender is a send-only Bot API client. Construction validates the
// token against getMe, so a broken token fails the boot instead of the
// first notification.
type Sender struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.URL,
		Offline: cfg.Offline,
		Client:  &http.Client{Timeout: 15 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	if b.Me != nil {
		log.Info("telegram bot ready", logx.String("username", b.Me.Username))
	}
	return &Sender{bot: b, log: log}, nil
}

func (s *Sender) Send(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) error {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
	_, err := s.bot.Send(&tele.Chat{ID: chatID}, clipText(text, textLimit), sendOpt)
	return err
}

// clipText keeps messages under the Bot API limit, preferring a newline
// boundary so a truncated notification still reads cleanly.
func clipText(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	cut := limit
	for i := limit - 1; i > limit/3; i-- {
		if rs[i] == '\n' {
			cut = i
			break
		}
	}
	return strings.TrimRight(string(rs[:cut]), "\n") + "\n…"
}
