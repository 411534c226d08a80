// Package vk polls community and user walls through the VK REST API.
package vk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/VK79/Radar12/internal/config"
	"github.com/VK79/Radar12/internal/source"
	"github.com/VK79/Radar12/pkg/logx"
)

const (
	defaultVersion = "5.199"

	// User tokens are throttled at about three requests per second
	// upstream, so we hold ourselves to that before the API does.
	requestsPerSec = 3
)

// Adapter fetches wall posts for the engine. One instance serves every
// configured vk source; resolved owners are cached for the process
// lifetime.
type Adapter struct {
	token   string
	version string
	httpc   *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	mu     sync.Mutex
	owners map[string]owner
}

// owner is a resolved wall: negative id for communities, positive for
// users, matching vk wall addressing.
type owner struct {
	id    int64
	title string
}

type Option func(*Adapter)

func WithLogger(log logx.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpc = c }
}

func New(cfg config.VKConfig, opts ...Option) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("vk: token is required")
	}
	a := &Adapter{
		token:   cfg.Token,
		version: cfg.Version,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(requestsPerSec, requestsPerSec),
		log:     logx.Nop(),
		owners:  map[string]owner{},
	}
	if a.version == "" {
		a.version = defaultVersion
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Kind() config.SourceKind { return config.KindVK }

// Fetch returns wall posts newer than cursor in ascending id order.
func (a *Adapter) Fetch(ctx context.Context, identifier string, cursor int64, limit int) ([]source.Post, error) {
	own, err := a.resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	items, err := a.wallGet(ctx, own.id, limit)
	if err != nil {
		return nil, fmt.Errorf("wall %q: %w", identifier, err)
	}

	key := source.Key(config.KindVK, identifier)
	posts := make([]source.Post, 0, len(items))
	for _, it := range items {
		// Pinned posts resurface at the top of the wall with old ids;
		// the cursor guard drops them along with everything seen before.
		if it.ID <= cursor {
			continue
		}
		posts = append(posts, source.Post{
			SourceKey:   key,
			SourceTitle: own.title,
			ExternalID:  it.ID,
			Text:        it.Text,
			Permalink:   fmt.Sprintf("https://vk.com/wall%d_%d", own.id, it.ID),
			PublishedAt: time.Unix(it.Date, 0).UTC(),
		})
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].ExternalID < posts[j].ExternalID })
	return posts, nil
}

type wallItem struct {
	ID   int64  `json:"id"`
	Date int64  `json:"date"`
	Text string `json:"text"`
}

func (a *Adapter) wallGet(ctx context.Context, ownerID int64, limit int) ([]wallItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("owner_id", strconv.FormatInt(ownerID, 10))
	params.Set("count", strconv.Itoa(limit))
	var out struct {
		Response struct {
			Items []wallItem `json:"items"`
		} `json:"response"`
	}
	if err := a.call(ctx, "wall.get", params, &out); err != nil {
		return nil, err
	}
	return out.Response.Items, nil
}
