package roblox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/rolelink/internal/domain"
)

func newTestServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/groups/v1/groups/10", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"id":10,"name":"Test Group"}`))
	})
	mux.HandleFunc("/groups/v1/groups/10/roles", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"groupId":10,"roles":[
			{"id":3,"name":"Owner","rank":255},
			{"id":1,"name":"Guest","rank":0},
			{"id":2,"name":"Member","rank":1}
		]}`))
	})
	mux.HandleFunc("/groups/v1/groups/11", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("/badges/v1/badges/5", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":5,"name":"Veteran"}`))
	})
	mux.HandleFunc("/economy/v1/game-pass/6/game-pass-product-info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Name":"VIP"}`))
	})
	mux.HandleFunc("/economy/v2/assets/7/details", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGroupSortsRolesetsAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls)
	c := NewClient(Config{BaseURL: srv.URL})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Group(context.Background(), 10)
		}()
	}
	wg.Wait()

	g, err := c.Group(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "Test Group", g.Name)
	require.Len(t, g.Rolesets, 3)
	assert.Equal(t, []int{0, 1, 255}, []int{g.Rolesets[0].Rank, g.Rolesets[1].Rank, g.Rolesets[2].Rank})
	assert.Len(t, g.MemberRanks(), 2)
	assert.Equal(t, "Owner", g.RankName(255))
	assert.Equal(t, int32(1), calls.Load())
}

func TestEntityErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls)
	c := NewClient(Config{BaseURL: srv.URL})
	ctx := context.Background()

	_, err := c.Entity(ctx, domain.KindGroup, 11)
	nf, ok := domain.AsEntityNotFound(err)
	require.True(t, ok)
	assert.Equal(t, int64(11), nf.ID)

	_, err = c.Entity(ctx, domain.KindAsset, 7)
	assert.True(t, errors.Is(err, domain.ErrExternalUnavailable))
	assert.True(t, errdefs.IsUnavailable(err))
}

func TestEntityNames(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls)
	c := NewClient(Config{BaseURL: srv.URL})
	ctx := context.Background()

	badge, err := c.Entity(ctx, domain.KindBadge, 5)
	require.NoError(t, err)
	assert.Equal(t, "Veteran", badge.Name)

	pass, err := c.Entity(ctx, domain.KindGamePass, 6)
	require.NoError(t, err)
	assert.Equal(t, "VIP", pass.Name)
}

func TestEndpointForms(t *testing.T) {
	assert.Equal(t, "https://groups.roblox.com/v1/groups/1", NewClient(Config{}).endpoint("groups", "/v1/groups/1"))
	assert.Equal(t, "http://x/groups/v1/groups/1", NewClient(Config{BaseURL: "http://x/"}).endpoint("groups", "/v1/groups/1"))
}
