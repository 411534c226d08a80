// Package source defines the normalized Post model and the Adapter
// contract every platform (VK walls, Telegram channels) implements.
package source

import (
	"context"
	"strings"
	"time"

	"github.com/VK79/Radar12/internal/config"
)

// Post represents a single item fetched from a wall or channel.
type Post struct {
	SourceKey   string    // kind:identifier of the source it came from
	SourceTitle string    // resolved display name (group/channel title), may be empty
	ExternalID  int64     // source-native id, strictly increasing per source
	Text        string    // full post text
	Permalink   string    // link to the original post
	PublishedAt time.Time // publication timestamp
}

// Key builds the stable source identity adapters stamp into posts.
// It matches config.SourceConfig.Key().
func Key(kind config.SourceKind, identifier string) string {
	return string(kind) + ":" + strings.TrimSpace(identifier)
}

// Adapter fetches new posts from one kind of source.
//
// Fetch returns posts with ExternalID > cursor, strictly ordered oldest to
// newest, at most limit of them. A cursor of 0 means "no history": the
// adapter returns up to limit most recent posts.
//
// Errors are classified with Fatal/Transient from this package. The caller
// treats anything unclassified as transient.
type Adapter interface {
	Kind() config.SourceKind
	Fetch(ctx context.Context, identifier string, cursor int64, limit int) ([]Post, error)
}
