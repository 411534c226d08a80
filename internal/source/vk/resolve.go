package vk

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/VK79/Radar12/internal/source"
	"github.com/VK79/Radar12/pkg/logx"
)

var errNoSuchEntity = errors.New("no such entity")

// resolve turns a configured identifier (screen name, vk.com link or
// numeric id) into a wall owner. Monitored walls are almost always
// community walls, so the community namespace is tried first and the
// user namespace is the fallback.
func (a *Adapter) resolve(ctx context.Context, identifier string) (owner, error) {
	name := normalizeIdentifier(identifier)
	if name == "" {
		return owner{}, source.Fatalf("vk: empty identifier %q", identifier)
	}

	a.mu.Lock()
	own, ok := a.owners[name]
	a.mu.Unlock()
	if ok {
		return own, nil
	}

	// Numeric ids are ambiguous between the two namespaces; strip the
	// community sign convention before the lookup.
	lookup := name
	if id, err := strconv.ParseInt(name, 10, 64); err == nil {
		if id < 0 {
			id = -id
		}
		lookup = strconv.FormatInt(id, 10)
	}

	own, gerr := a.groupByID(ctx, lookup)
	if gerr == nil {
		a.storeOwner(name, own)
		return own, nil
	}
	if !entityMiss(gerr) {
		return owner{}, fmt.Errorf("resolve %q: %w", name, gerr)
	}

	own, uerr := a.userByID(ctx, lookup)
	if uerr == nil {
		a.storeOwner(name, own)
		return own, nil
	}
	if !entityMiss(uerr) {
		return owner{}, fmt.Errorf("resolve %q: %w", name, uerr)
	}
	return owner{}, source.Fatalf("vk: %q is neither a community nor a user", name)
}

// entityMiss reports whether the lookup failure only means the entity is
// not of the tried kind, as opposed to a credential or transport problem
// that would fail the other namespace the same way.
func entityMiss(err error) bool {
	if errors.Is(err, errNoSuchEntity) {
		return true
	}
	var ae *apiError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Code != codeAuthFailed && !source.IsTransient(err)
}

func (a *Adapter) groupByID(ctx context.Context, id string) (owner, error) {
	params := url.Values{}
	params.Set("group_ids", id)
	var out struct {
		Response struct {
			Groups []struct {
				ID   int64  `json:"id"`
				Name string `json:"name"`
			} `json:"groups"`
		} `json:"response"`
	}
	if err := a.call(ctx, "groups.getById", params, &out); err != nil {
		return owner{}, err
	}
	if len(out.Response.Groups) == 0 {
		return owner{}, errNoSuchEntity
	}
	g := out.Response.Groups[0]
	return owner{id: -g.ID, title: g.Name}, nil
}

func (a *Adapter) userByID(ctx context.Context, id string) (owner, error) {
	params := url.Values{}
	params.Set("user_ids", id)
	var out struct {
		Response []struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"response"`
	}
	if err := a.call(ctx, "users.get", params, &out); err != nil {
		return owner{}, err
	}
	if len(out.Response) == 0 {
		return owner{}, errNoSuchEntity
	}
	u := out.Response[0]
	return owner{id: u.ID, title: strings.TrimSpace(u.FirstName + " " + u.LastName)}, nil
}

func (a *Adapter) storeOwner(name string, own owner) {
	a.mu.Lock()
	a.owners[name] = own
	a.mu.Unlock()
	a.log.Debug("resolved vk source",
		logx.String("identifier", name),
		logx.Int64("owner_id", own.id),
		logx.String("title", own.title))
}

func normalizeIdentifier(identifier string) string {
	s := strings.TrimSpace(identifier)
	for _, prefix := range []string{"https://vk.com/", "http://vk.com/", "vk.com/"} {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	return strings.Trim(s, "/")
}
