package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/prompt"
	"github.com/ashureev/rolelink/internal/prompt/prompttest"
)

type dispatchFunc func(ctx context.Context, in *discord.Interaction, host prompt.Host) error

func (f dispatchFunc) Dispatch(ctx context.Context, in *discord.Interaction, host prompt.Host) error {
	return f(ctx, in, host)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hostFactory(*discord.Interaction) prompt.Host { return prompttest.NewHost(1) }

// fakeGateway runs a scripted session per connection.
type fakeGateway struct {
	scripts []func(ctx context.Context, conn *websocket.Conn, url string)
	conns   atomic.Int32
}

func (f *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	n := int(f.conns.Add(1)) - 1
	if n >= len(f.scripts) {
		_ = conn.Close(websocket.StatusTryAgainLater, "no script")
		return
	}
	ctx := r.Context()
	write(ctx, conn, opHello, 0, "", map[string]int{"heartbeat_interval": 60000})
	f.scripts[n](ctx, conn, "ws://"+r.Host)

	// Drain until the client goes away.
	for {
		var p payload
		if err := wsjson.Read(ctx, conn, &p); err != nil {
			return
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, op int, seq int64, event string, d any) {
	raw, _ := json.Marshal(d)
	p := payload{Op: op, D: raw, T: event}
	if seq > 0 {
		p.S = &seq
	}
	_ = wsjson.Write(ctx, conn, p)
}

func read(ctx context.Context, conn *websocket.Conn) (payload, map[string]any) {
	var p payload
	if err := wsjson.Read(ctx, conn, &p); err != nil {
		return payload{Op: -1}, nil
	}
	var d map[string]any
	_ = json.Unmarshal(p.D, &d)
	return p, d
}

func TestClientIdentifiesDispatchesAndResumes(t *testing.T) {
	defer goleak.VerifyNone(t)

	identified := make(chan map[string]any, 1)
	resumed := make(chan map[string]any, 1)
	gw := &fakeGateway{}
	gw.scripts = []func(context.Context, *websocket.Conn, string){
		func(ctx context.Context, conn *websocket.Conn, wsURL string) {
			p, d := read(ctx, conn)
			if p.Op == opIdentify {
				identified <- d
			}
			write(ctx, conn, opDispatch, 1, "READY", map[string]string{"session_id": "abc", "resume_gateway_url": wsURL})
			write(ctx, conn, opDispatch, 2, "INTERACTION_CREATE", map[string]any{"id": "55", "type": 2, "token": "tok", "data": map[string]string{"name": "bind"}})
			write(ctx, conn, opReconnect, 0, "", nil)
		},
		func(ctx context.Context, conn *websocket.Conn, _ string) {
			p, d := read(ctx, conn)
			if p.Op == opResume {
				resumed <- d
			}
			write(ctx, conn, opDispatch, 3, "RESUMED", nil)
		},
	}
	srv := httptest.NewServer(gw)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	got := make(chan discord.Snowflake, 1)
	d := dispatchFunc(func(_ context.Context, in *discord.Interaction, _ prompt.Host) error {
		got <- in.ID
		return nil
	})
	c := New(Config{URL: wsURL, Token: "tok", ReconnectDelay: 10 * time.Millisecond}, d, hostFactory, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	select {
	case d := <-identified:
		assert.Equal(t, "Bot tok", d["token"])
	case <-time.After(5 * time.Second):
		t.Fatal("client never identified")
	}
	select {
	case id := <-got:
		assert.Equal(t, discord.Snowflake(55), id)
	case <-time.After(5 * time.Second):
		t.Fatal("interaction never dispatched")
	}
	select {
	case d := <-resumed:
		assert.Equal(t, "abc", d["session_id"])
		assert.EqualValues(t, 2, d["seq"])
	case <-time.After(5 * time.Second):
		t.Fatal("client never resumed")
	}

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClientStopsOnFatalClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	gw := &fakeGateway{}
	gw.scripts = []func(context.Context, *websocket.Conn, string){
		func(ctx context.Context, conn *websocket.Conn, _ string) {
			read(ctx, conn)
			_ = conn.Close(websocket.StatusCode(4004), "Authentication failed.")
		},
	}
	srv := httptest.NewServer(gw)
	defer srv.Close()

	c := New(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Token: "bad", ReconnectDelay: 10 * time.Millisecond},
		dispatchFunc(func(context.Context, *discord.Interaction, prompt.Host) error { return nil }),
		hostFactory, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusCode(4004), websocket.CloseStatus(err))
	assert.EqualValues(t, 1, gw.conns.Load())
}

func TestFatal(t *testing.T) {
	assert.False(t, fatal(errors.New("eof")))
	assert.False(t, fatal(errReconnect))
}
