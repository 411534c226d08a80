package source

import (
	"context"

	"github.com/VK79/Radar12/internal/config"
)

// unavailable stands in for an adapter whose construction-time
// precondition is missing (no session artifact, no credentials). Every
// fetch fails fatally, so the engine disables the kind's sources and
// reports why, instead of the whole process refusing to start.
type unavailable struct {
	kind config.SourceKind
	err  error
}

// NewUnavailable returns an Adapter that always fails with a fatal error.
func NewUnavailable(kind config.SourceKind, err error) Adapter {
	return &unavailable{kind: kind, err: err}
}

func (u *unavailable) Kind() config.SourceKind { return u.kind }

func (u *unavailable) Fetch(context.Context, string, int64, int) ([]Post, error) {
	return nil, Fatal(u.err)
}
