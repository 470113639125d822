package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/prompt"
)

// Interaction timing limits.
const (
	// CallbackWindow is how long Discord waits for the HTTP response.
	CallbackWindow = 3 * time.Second
	// DefaultHandleTimeout bounds a whole interaction, follow-ups included.
	// Interaction tokens stay valid for fifteen minutes.
	DefaultHandleTimeout = 5 * time.Minute

	maxBodyBytes = 1 << 20
)

var errRequestGone = errors.New("interaction request already answered or abandoned")

// Dispatcher handles one interaction.
type Dispatcher interface {
	Dispatch(ctx context.Context, in *discord.Interaction, host prompt.Host) error
}

// InteractionHandler serves Discord's interactions endpoint. The first
// callback is written as the HTTP response body; everything after it goes
// through the REST client.
type InteractionHandler struct {
	dispatcher Dispatcher
	rest       *discord.Client
	timeout    time.Duration
	window     time.Duration

	wg sync.WaitGroup
}

// NewInteractionHandler creates the interactions endpoint handler.
func NewInteractionHandler(d Dispatcher, rest *discord.Client) *InteractionHandler {
	return &InteractionHandler{
		dispatcher: d,
		rest:       rest,
		timeout:    DefaultHandleTimeout,
		window:     CallbackWindow,
	}
}

// RegisterRoutes registers the interactions route.
func (h *InteractionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/interactions", h.Interactions)
}

// Interactions answers PINGs and hands everything else to the dispatcher.
func (h *InteractionHandler) Interactions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var in discord.Interaction
	if err := json.Unmarshal(body, &in); err != nil {
		Error(w, http.StatusBadRequest, "invalid interaction payload")
		return
	}
	if in.Type == discord.InteractionPing {
		JSON(w, http.StatusOK, discord.InteractionResponse{Type: discord.ResponsePong})
		return
	}

	host := newHTTPHost(h.rest, &in)
	done := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer cancel()
		defer close(done)
		if err := h.dispatcher.Dispatch(ctx, &in, host); err != nil {
			slog.Error("Interaction dispatch failed", "interaction_id", in.ID.String(), "error", err)
		}
	}()

	timer := time.NewTimer(h.window)
	defer timer.Stop()
	select {
	case cb := <-host.first:
		JSON(w, http.StatusOK, cb.resp)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		close(cb.written)
	case <-done:
		host.abandon()
		slog.Warn("Interaction finished without a response", "interaction_id", in.ID.String())
		Error(w, http.StatusInternalServerError, "no response")
	case <-timer.C:
		host.abandon()
		slog.Warn("Interaction missed the callback window", "interaction_id", in.ID.String())
		Error(w, http.StatusServiceUnavailable, "timed out")
	case <-r.Context().Done():
		host.abandon()
	}
}

// Wait blocks until every dispatched interaction has finished.
func (h *InteractionHandler) Wait() {
	h.wg.Wait()
}

type callback struct {
	resp    discord.InteractionResponse
	written chan struct{}
}

// httpHost answers the initial callback through the pending HTTP request.
type httpHost struct {
	*discord.RESTHost

	first chan callback
	gone  chan struct{}
	once  sync.Once

	mu   sync.Mutex
	used bool
}

func newHTTPHost(rest *discord.Client, in *discord.Interaction) *httpHost {
	return &httpHost{
		RESTHost: discord.NewRESTHost(rest, in),
		first:    make(chan callback),
		gone:     make(chan struct{}),
	}
}

func (h *httpHost) Respond(ctx context.Context, resp discord.InteractionResponse) error {
	h.mu.Lock()
	if h.used {
		h.mu.Unlock()
		return errRequestGone
	}
	h.used = true
	h.mu.Unlock()

	cb := callback{resp: resp, written: make(chan struct{})}
	select {
	case h.first <- cb:
	case <-h.gone:
		return errRequestGone
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cb.written:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *httpHost) abandon() {
	h.once.Do(func() { close(h.gone) })
}
