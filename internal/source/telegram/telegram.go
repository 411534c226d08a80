// Package telegram polls public channels over MTProto using a
// pre-authorized user session.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"golang.org/x/time/rate"

	"github.com/VK79/Radar12/internal/config"
	"github.com/VK79/Radar12/internal/source"
	"github.com/VK79/Radar12/pkg/logx"
)

// The API tolerates short bursts but flood-waits sustained traffic;
// one request per second keeps a polling monitor far below that.
const requestsPerSec = 1

// ErrNotAuthorized is returned by Run when the session file exists but
// Telegram no longer accepts it. Retrying cannot fix that; only a new
// interactive login can.
var ErrNotAuthorized = errors.New("telegram session is not authorized")

// Adapter reads channel history for the engine. Run must be kept alive
// by the caller (restarted on failure); Fetch waits for the first
// connection to settle and then talks to the live client.
type Adapter struct {
	apiID   int
	apiHash string
	path    string
	log     logx.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	api     *tg.Client
	failure error
	chans   map[string]channelPeer

	settled   chan struct{}
	settleOne sync.Once
}

// channelPeer is a resolved channel plus what we need to address and
// link to it.
type channelPeer struct {
	id       int64
	hash     int64
	username string
	title    string
}

type Option func(*Adapter)

func WithLogger(log logx.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

// New checks the session artifact up front: a missing file means `radar
// auth` has not been run on this host and connecting would be pointless.
func New(cfg config.TelegramConfig, opts ...Option) (*Adapter, error) {
	if cfg.APIID == 0 || strings.TrimSpace(cfg.APIHash) == "" {
		return nil, errors.New("telegram: api_id and api_hash are required")
	}
	path := cfg.SessionPath()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("telegram: session file %q is not usable, run `radar auth` first: %w", path, err)
	}
	a := &Adapter{
		apiID:   cfg.APIID,
		apiHash: cfg.APIHash,
		path:    path,
		log:     logx.Nop(),
		limiter: rate.NewLimiter(requestsPerSec, 2),
		chans:   map[string]channelPeer{},
		settled: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Kind() config.SourceKind { return config.KindTelegram }

// Run connects and then blocks until ctx is cancelled or the connection
// drops. It is meant for a supervisor restart loop; every pass builds a
// fresh client against the same session file.
func (a *Adapter) Run(ctx context.Context) error {
	client := telegram.NewClient(a.apiID, a.apiHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: a.path},
	})
	err := client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			a.setFailure(source.Fatal(fmt.Errorf("%w, run `radar auth`", ErrNotAuthorized)))
			return ErrNotAuthorized
		}
		a.setAPI(client.API())
		a.log.Info("telegram client connected")
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil && ctx.Err() == nil {
		// Settle waiters even when the first connection never came up,
		// so fetches fail fast instead of hanging on a dead client.
		a.setFailure(source.Transient(fmt.Errorf("telegram client: %w", err)))
	}
	return err
}

func (a *Adapter) setAPI(api *tg.Client) {
	a.mu.Lock()
	a.api = api
	a.failure = nil
	a.mu.Unlock()
	a.settleOne.Do(func() { close(a.settled) })
}

func (a *Adapter) setFailure(err error) {
	a.mu.Lock()
	if a.api == nil && a.failure == nil {
		a.failure = err
	}
	a.mu.Unlock()
	a.settleOne.Do(func() { close(a.settled) })
}

func (a *Adapter) currentAPI() (*tg.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.api != nil {
		return a.api, nil
	}
	if a.failure != nil {
		return nil, a.failure
	}
	return nil, source.Transientf("telegram client is not connected")
}

// Fetch returns channel posts newer than cursor in ascending id order.
func (a *Adapter) Fetch(ctx context.Context, identifier string, cursor int64, limit int) ([]source.Post, error) {
	select {
	case <-a.settled:
	case <-ctx.Done():
		return nil, source.Transient(fmt.Errorf("telegram client: %w", ctx.Err()))
	}
	api, err := a.currentAPI()
	if err != nil {
		return nil, err
	}

	peer, err := a.resolveChannel(ctx, api, identifier)
	if err != nil {
		return nil, err
	}
	msgs, err := a.history(ctx, api, peer, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("channel %q: %w", identifier, err)
	}
	return mapMessages(source.Key(config.KindTelegram, identifier), peer, cursor, msgs), nil
}

// resolveChannel resolves a public username to a channel peer, caching
// the access hash for the process lifetime.
func (a *Adapter) resolveChannel(ctx context.Context, api *tg.Client, identifier string) (channelPeer, error) {
	name := normalizeIdentifier(identifier)
	if name == "" {
		return channelPeer{}, source.Fatalf("telegram: empty identifier %q", identifier)
	}

	a.mu.Lock()
	peer, ok := a.chans[name]
	a.mu.Unlock()
	if ok {
		return peer, nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return channelPeer{}, source.Transient(err)
	}
	res, err := api.ContactsResolveUsername(ctx, name)
	if err != nil {
		return channelPeer{}, classify("resolve "+name, err)
	}
	for _, c := range res.Chats {
		ch, ok := c.(*tg.Channel)
		if !ok {
			continue
		}
		hash, _ := ch.GetAccessHash()
		peer = channelPeer{id: ch.ID, hash: hash, username: name, title: ch.Title}
		a.mu.Lock()
		a.chans[name] = peer
		a.mu.Unlock()
		a.log.Debug("resolved telegram channel",
			logx.String("identifier", name),
			logx.Int64("channel_id", peer.id),
			logx.String("title", peer.title))
		return peer, nil
	}
	return channelPeer{}, source.Fatalf("telegram: %q does not resolve to a channel", name)
}

func (a *Adapter) history(ctx context.Context, api *tg.Client, peer channelPeer, cursor int64, limit int) ([]*tg.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, source.Transient(err)
	}
	res, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  &tg.InputPeerChannel{ChannelID: peer.id, AccessHash: peer.hash},
		MinID: int(cursor),
		Limit: limit,
	})
	if err != nil {
		return nil, classify("history", err)
	}
	msgs, ok := res.(*tg.MessagesChannelMessages)
	if !ok {
		return nil, source.Transientf("history: unexpected response %T", res)
	}
	out := make([]*tg.Message, 0, len(msgs.Messages))
	for _, m := range msgs.Messages {
		// Service messages (joins, pins) carry no text to match on.
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// mapMessages converts history (newest first) to cursor-filtered posts
// in ascending id order.
func mapMessages(key string, peer channelPeer, cursor int64, msgs []*tg.Message) []source.Post {
	posts := make([]source.Post, 0, len(msgs))
	for _, m := range msgs {
		id := int64(m.ID)
		if id <= cursor {
			continue
		}
		posts = append(posts, source.Post{
			SourceKey:   key,
			SourceTitle: peer.title,
			ExternalID:  id,
			Text:        m.Message,
			Permalink:   "https://t.me/" + peer.username + "/" + strconv.Itoa(m.ID),
			PublishedAt: time.Unix(int64(m.Date), 0).UTC(),
		})
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].ExternalID < posts[j].ExternalID })
	return posts
}

func normalizeIdentifier(identifier string) string {
	s := strings.TrimSpace(identifier)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.TrimPrefix(s, "s/")
	s = strings.TrimPrefix(s, "@")
	return strings.Trim(s, "/")
}
