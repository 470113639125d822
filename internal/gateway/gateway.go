// Package gateway receives interactions over a Discord gateway websocket
// session, for deployments that cannot expose an HTTP endpoint.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/prompt"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

const (
	readLimit            = 4 << 20
	defaultHandleTimeout = 5 * time.Minute
)

var (
	errReconnect = errors.New("gateway asked to reconnect")
	errZombie    = errors.New("gateway heartbeat not acknowledged")
)

// Dispatcher handles one interaction.
type Dispatcher interface {
	Dispatch(ctx context.Context, in *discord.Interaction, host prompt.Host) error
}

// HostFactory returns the host that answers in. Gateway interactions are
// answered over REST.
type HostFactory func(in *discord.Interaction) prompt.Host

// Config configures a Client.
type Config struct {
	URL     string
	Token   string
	Intents int

	// ReconnectDelay is the first backoff step between sessions.
	ReconnectDelay time.Duration
	HandleTimeout  time.Duration
}

// Client keeps one gateway session alive and feeds INTERACTION_CREATE
// events to a Dispatcher.
type Client struct {
	cfg        Config
	dispatcher Dispatcher
	hosts      HostFactory
	log        *slog.Logger

	seq atomic.Int64

	mu        sync.Mutex
	sessionID string
	resumeURL string

	wg sync.WaitGroup
}

// New creates a gateway client.
func New(cfg Config, d Dispatcher, hosts HostFactory, log *slog.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = defaultHandleTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{cfg: cfg, dispatcher: d, hosts: hosts, log: log.With("component", "gateway")}
}

// Run holds a session open until ctx is cancelled, resuming or re-identifying
// after disconnects. It returns nil on cancellation and an error only when
// Discord refuses the session for good.
func (c *Client) Run(ctx context.Context) error {
	defer c.wg.Wait()

	err := retry.Do(
		func() error { return c.session(ctx) },
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(c.cfg.ReconnectDelay),
		retry.MaxDelay(time.Minute),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !fatal(err) }),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("Gateway session ended, reconnecting", "attempt", n+1, "error", err)
		}),
	)
	if ctx.Err() != nil {
		c.log.Info("Gateway shutting down")
		return nil
	}
	return err
}

type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type outgoing struct {
	Op int `json:"op"`
	D  any `json:"d"`
}

func (c *Client) session(ctx context.Context) error {
	resuming, url := c.resumeTarget()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	var hello payload
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var h struct {
		HeartbeatInterval int64 `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.D, &h); err != nil || h.HeartbeatInterval <= 0 {
		return fmt.Errorf("invalid hello payload: %s", hello.D)
	}
	interval := time.Duration(h.HeartbeatInterval) * time.Millisecond

	if resuming {
		err = c.resume(ctx, conn)
	} else {
		err = c.identify(ctx, conn)
	}
	if err != nil {
		return err
	}

	var acked atomic.Bool
	acked.Store(true)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.heartbeat(gctx, conn, interval, &acked) })
	g.Go(func() error { return c.readLoop(gctx, conn, &acked) })
	err = g.Wait()

	if ctx.Err() != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "shutting down")
		return ctx.Err()
	}
	switch websocket.CloseStatus(err) {
	case 4007, 4009:
		c.resetSession()
	}
	// A non-1000 close keeps the session resumable.
	_ = conn.Close(websocket.StatusGoingAway, "reconnecting")
	return err
}

func (c *Client) identify(ctx context.Context, conn *websocket.Conn) error {
	c.log.Info("Identifying with gateway")
	return c.send(ctx, conn, opIdentify, map[string]any{
		"token":   "Bot " + c.cfg.Token,
		"intents": c.cfg.Intents,
		"properties": map[string]string{
			"os":      "linux",
			"browser": "rolelink",
			"device":  "rolelink",
		},
	})
}

func (c *Client) resume(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	id := c.sessionID
	c.mu.Unlock()
	c.log.Info("Resuming gateway session", "session_id", id, "seq", c.seq.Load())
	return c.send(ctx, conn, opResume, map[string]any{
		"token":      "Bot " + c.cfg.Token,
		"session_id": id,
		"seq":        c.seq.Load(),
	})
}

func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration, acked *atomic.Bool) error {
	timer := time.NewTimer(time.Duration(rand.Int64N(int64(interval))))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if !acked.Swap(false) {
			return errZombie
		}
		if err := c.sendHeartbeat(ctx, conn); err != nil {
			return err
		}
		timer.Reset(interval)
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, acked *atomic.Bool) error {
	for {
		var p payload
		if err := wsjson.Read(ctx, conn, &p); err != nil {
			return fmt.Errorf("read gateway: %w", err)
		}
		switch p.Op {
		case opDispatch:
			if p.S != nil {
				c.seq.Store(*p.S)
			}
			c.onDispatch(ctx, p)
		case opHeartbeat:
			if err := c.sendHeartbeat(ctx, conn); err != nil {
				return err
			}
		case opHeartbeatACK:
			acked.Store(true)
		case opReconnect:
			return errReconnect
		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.D, &resumable)
			if !resumable {
				c.resetSession()
			}
			return fmt.Errorf("invalid session (resumable=%t): %w", resumable, errReconnect)
		}
	}
}

func (c *Client) onDispatch(ctx context.Context, p payload) {
	switch p.T {
	case "READY":
		var ready struct {
			SessionID        string `json:"session_id"`
			ResumeGatewayURL string `json:"resume_gateway_url"`
		}
		if err := json.Unmarshal(p.D, &ready); err != nil {
			c.log.Warn("Malformed READY event", "error", err)
			return
		}
		c.mu.Lock()
		c.sessionID, c.resumeURL = ready.SessionID, ready.ResumeGatewayURL
		c.mu.Unlock()
		c.log.Info("Gateway session ready", "session_id", ready.SessionID)
	case "RESUMED":
		c.log.Info("Gateway session resumed")
	case "INTERACTION_CREATE":
		var in discord.Interaction
		if err := json.Unmarshal(p.D, &in); err != nil {
			c.log.Warn("Malformed interaction event", "error", err)
			return
		}
		c.handle(ctx, &in)
	}
}

// handle dispatches in on its own goroutine. It outlives the session so a
// reconnect does not cut a wizard short.
func (c *Client) handle(ctx context.Context, in *discord.Interaction) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.HandleTimeout)
		defer cancel()
		if err := c.dispatcher.Dispatch(hctx, in, c.hosts(in)); err != nil {
			c.log.Error("Interaction dispatch failed", "interaction_id", in.ID.String(), "error", err)
		}
	}()
}

func (c *Client) sendHeartbeat(ctx context.Context, conn *websocket.Conn) error {
	var seq any
	if s := c.seq.Load(); s > 0 {
		seq = s
	}
	return c.send(ctx, conn, opHeartbeat, seq)
}

func (c *Client) send(ctx context.Context, conn *websocket.Conn, op int, d any) error {
	if err := wsjson.Write(ctx, conn, outgoing{Op: op, D: d}); err != nil {
		return fmt.Errorf("send op %d: %w", op, err)
	}
	return nil
}

func (c *Client) resumeTarget() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == "" || c.resumeURL == "" {
		return false, c.cfg.URL
	}
	url := c.resumeURL
	if !strings.Contains(url, "?") {
		url += "/?v=10&encoding=json"
	}
	return true, url
}

func (c *Client) resetSession() {
	c.mu.Lock()
	c.sessionID, c.resumeURL = "", ""
	c.mu.Unlock()
	c.seq.Store(0)
}

// fatal reports close codes after which reconnecting cannot succeed:
// bad token, bad shard or disallowed intents.
func fatal(err error) bool {
	switch websocket.CloseStatus(err) {
	case 4004, 4010, 4011, 4012, 4013, 4014:
		return true
	}
	return false
}
