// Package roblox looks up the Roblox entities bindings refer to.
package roblox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/ashureev/rolelink/internal/domain"
)

// DefaultBaseDomain is the host suffix the public APIs live under.
const DefaultBaseDomain = "roblox.com"

// Roleset is one rank of a group.
type Roleset struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Rank        int    `json:"rank"`
	MemberCount int    `json:"memberCount"`
}

// Group is a Roblox group with its rolesets sorted by rank.
type Group struct {
	ID       int64
	Name     string
	Rolesets []Roleset
}

// RankName returns the name of the roleset at rank, or "".
func (g *Group) RankName(rank int) string {
	for _, r := range g.Rolesets {
		if r.Rank == rank {
			return r.Name
		}
	}
	return ""
}

// MemberRanks returns the rolesets a member can hold (the guest rank is excluded).
func (g *Group) MemberRanks() []Roleset {
	out := make([]Roleset, 0, len(g.Rolesets))
	for _, r := range g.Rolesets {
		if r.Rank > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Entity is a named Roblox entity of any bindable kind.
type Entity struct {
	Kind domain.EntityKind
	ID   int64
	Name string
}

// Config configures a Client.
type Config struct {
	// BaseURL is either a host suffix ("roblox.com", services become subdomains)
	// or a full URL, in which case services become path prefixes.
	BaseURL    string
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

// Client is a read-through, request-coalescing Roblox API client.
type Client struct {
	base       string
	httpClient *http.Client
	groups     *cache[*Group]
	entities   *cache[*Entity]
}

// NewClient creates a Roblox client.
func NewClient(cfg Config) *Client {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseDomain
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Client{
		base:       base,
		httpClient: hc,
		groups:     newCache[*Group](ttl),
		entities:   newCache[*Entity](ttl),
	}
}

// Group fetches a group and its rolesets.
func (c *Client) Group(ctx context.Context, id int64) (*Group, error) {
	return c.groups.get(ctx, strconv.FormatInt(id, 10), func(ctx context.Context) (*Group, error) {
		var info struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		}
		if err := c.getJSON(ctx, domain.KindGroup, id, c.endpoint("groups", fmt.Sprintf("/v1/groups/%d", id)), &info); err != nil {
			return nil, err
		}
		var roles struct {
			Roles []Roleset `json:"roles"`
		}
		if err := c.getJSON(ctx, domain.KindGroup, id, c.endpoint("groups", fmt.Sprintf("/v1/groups/%d/roles", id)), &roles); err != nil {
			return nil, err
		}
		sort.Slice(roles.Roles, func(i, j int) bool { return roles.Roles[i].Rank < roles.Roles[j].Rank })
		return &Group{ID: id, Name: info.Name, Rolesets: roles.Roles}, nil
	})
}

// Entity fetches the display name of any bindable entity.
func (c *Client) Entity(ctx context.Context, kind domain.EntityKind, id int64) (*Entity, error) {
	if kind == domain.KindGroup {
		g, err := c.Group(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Entity{Kind: kind, ID: id, Name: g.Name}, nil
	}

	var url string
	switch kind {
	case domain.KindBadge:
		url = c.endpoint("badges", fmt.Sprintf("/v1/badges/%d", id))
	case domain.KindGamePass:
		url = c.endpoint("economy", fmt.Sprintf("/v1/game-pass/%d/game-pass-product-info", id))
	case domain.KindAsset:
		url = c.endpoint("economy", fmt.Sprintf("/v2/assets/%d/details", id))
	default:
		return nil, fmt.Errorf("unsupported entity kind %q", kind)
	}

	return c.entities.get(ctx, string(kind)+":"+strconv.FormatInt(id, 10), func(ctx context.Context) (*Entity, error) {
		var body struct {
			Name      string `json:"name"`
			NameUpper string `json:"Name"`
		}
		if err := c.getJSON(ctx, kind, id, url, &body); err != nil {
			return nil, err
		}
		name := body.Name
		if name == "" {
			name = body.NameUpper
		}
		return &Entity{Kind: kind, ID: id, Name: name}, nil
	})
}

func (c *Client) endpoint(service, path string) string {
	if strings.Contains(c.base, "://") {
		return c.base + "/" + service + path
	}
	return "https://" + service + "." + c.base + path
}

type statusError struct{ status int }

func (e *statusError) Error() string { return fmt.Sprintf("roblox api status %d", e.status) }

func (c *Client) getJSON(ctx context.Context, kind domain.EntityKind, id int64, url string, out any) error {
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				_, _ = io.Copy(io.Discard, resp.Body)
				return &statusError{status: resp.StatusCode}
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode %s: %w", url, err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.status == http.StatusTooManyRequests || se.status >= 500
			}
			return true
		}),
	)
	if err == nil {
		return nil
	}

	var se *statusError
	if errors.As(err, &se) && (se.status == http.StatusNotFound || se.status == http.StatusBadRequest) {
		return &domain.EntityNotFoundError{Kind: kind, ID: id}
	}
	return fmt.Errorf("fetch %s %d: %w: %w", kind, id, domain.ErrExternalUnavailable, err)
}
