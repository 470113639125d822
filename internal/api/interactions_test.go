package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/prompt"
)

type dispatchFunc func(ctx context.Context, in *discord.Interaction, host prompt.Host) error

func (f dispatchFunc) Dispatch(ctx context.Context, in *discord.Interaction, host prompt.Host) error {
	return f(ctx, in, host)
}

// restRecorder is a fake Discord REST API.
type restRecorder struct {
	mu       sync.Mutex
	requests []string
}

func (r *restRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.requests = append(r.requests, req.Method+" "+req.URL.Path)
	r.mu.Unlock()
	JSON(w, http.StatusOK, map[string]string{"id": "900"})
}

func (r *restRecorder) Requests() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.requests...)
}

func newTestHandler(t *testing.T, d Dispatcher) (*InteractionHandler, *restRecorder, http.Handler) {
	t.Helper()
	rec := &restRecorder{}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	rest := discord.NewClient(discord.ClientConfig{BaseURL: srv.URL, Token: "bot", ApplicationID: 123})
	h := NewInteractionHandler(d, rest)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return h, rec, r
}

func post(handler http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/interactions", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) discord.InteractionResponse {
	t.Helper()
	var resp struct {
		Type discord.ResponseType `json:"type"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return discord.InteractionResponse{Type: resp.Type}
}

const commandBody = `{"id":"1","application_id":"123","type":2,"token":"tok","data":{"name":"bind"}}`

func TestInteractionsPing(t *testing.T) {
	called := false
	_, _, r := newTestHandler(t, dispatchFunc(func(context.Context, *discord.Interaction, prompt.Host) error {
		called = true
		return nil
	}))

	w := post(r, `{"id":"1","type":1}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, discord.ResponsePong, decodeResponse(t, w).Type)
	assert.False(t, called)
}

func TestInteractionsBadPayload(t *testing.T) {
	_, _, r := newTestHandler(t, dispatchFunc(func(context.Context, *discord.Interaction, prompt.Host) error {
		return nil
	}))
	w := post(r, `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInteractionsFirstCallbackInBody(t *testing.T) {
	h, rest, r := newTestHandler(t, dispatchFunc(func(ctx context.Context, in *discord.Interaction, host prompt.Host) error {
		if err := host.Respond(ctx, discord.InteractionResponse{Type: discord.ResponseDeferredChannelMessage}); err != nil {
			return err
		}
		_, err := host.EditOriginal(ctx, discord.MessageData{Content: "done"})
		return err
	}))

	w := post(r, commandBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, discord.ResponseDeferredChannelMessage, decodeResponse(t, w).Type)

	h.Wait()
	assert.Equal(t, []string{"PATCH /webhooks/123/tok/messages/@original"}, rest.Requests())
}

func TestInteractionsNoResponse(t *testing.T) {
	h, _, r := newTestHandler(t, dispatchFunc(func(context.Context, *discord.Interaction, prompt.Host) error {
		return errors.New("boom")
	}))
	w := post(r, commandBody)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	h.Wait()
}

func TestInteractionsMissedWindow(t *testing.T) {
	release := make(chan struct{})
	respondErr := make(chan error, 1)
	h, _, r := newTestHandler(t, dispatchFunc(func(ctx context.Context, _ *discord.Interaction, host prompt.Host) error {
		<-release
		err := host.Respond(ctx, discord.InteractionResponse{Type: discord.ResponseDeferredChannelMessage})
		respondErr <- err
		return err
	}))
	h.window = 20 * time.Millisecond

	w := post(r, commandBody)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	close(release)
	h.Wait()
	assert.ErrorIs(t, <-respondErr, errRequestGone)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   int
		status string
	}{
		{name: "healthy", code: http.StatusOK, status: "healthy"},
		{name: "degraded", err: errors.New("closed"), code: http.StatusServiceUnavailable, status: "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHealthHandler(fakePinger{err: tt.err}).RegisterHealth(r)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.code, w.Code)

			var got map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
			assert.Equal(t, tt.status, got["status"])
		})
	}
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusCreated, map[string]string{"foo": "bar"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"foo":"bar"}`, w.Body.String())
}
