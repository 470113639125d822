// Package dispatch routes inbound interactions to slash command handlers and
// to the prompt engine.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/prompt"
)

// DefaultAutoDefer leaves headroom under Discord's three second response budget.
const DefaultAutoDefer = 2 * time.Second

// ErrUnsupported is returned for interaction types the router does not handle.
var ErrUnsupported = errors.New("unsupported interaction type")

// Request is what a command handler receives.
type Request struct {
	Interaction *discord.Interaction
	Channel     *prompt.Channel
	Engine      *prompt.Engine
	Log         *slog.Logger
}

// HandlerFunc runs a slash command.
type HandlerFunc func(ctx context.Context, req *Request) error

// Command is a registered slash command.
type Command struct {
	Definition discord.ApplicationCommand

	// Defer acknowledges the command before the handler runs.
	Defer     bool
	Ephemeral bool
	Handler   HandlerFunc
}

// Router dispatches interactions. It is safe for concurrent use once all
// commands are registered.
type Router struct {
	engine    *prompt.Engine
	autoDefer time.Duration
	log       *slog.Logger

	mu       sync.RWMutex
	commands map[string]Command
}

// Option configures a Router.
type Option func(*Router)

// WithAutoDefer sets how long a handler may run before the router defers for
// it. Zero disables auto-defer.
func WithAutoDefer(d time.Duration) Option {
	return func(r *Router) { r.autoDefer = d }
}

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.log = l }
}

// NewRouter creates a router that resumes wizards through engine.
func NewRouter(engine *prompt.Engine, opts ...Option) *Router {
	r := &Router{
		engine:    engine,
		autoDefer: DefaultAutoDefer,
		log:       slog.Default(),
		commands:  map[string]Command{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds commands. Names must be unique.
func (r *Router) Register(cmds ...Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		name := c.Definition.Name
		if name == "" || c.Handler == nil {
			return fmt.Errorf("command %q needs a name and a handler", name)
		}
		if _, ok := r.commands[name]; ok {
			return fmt.Errorf("command %q already registered", name)
		}
		r.commands[name] = c
	}
	return nil
}

// Definitions returns the registered command definitions sorted by name.
func (r *Router) Definitions() []discord.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]discord.ApplicationCommand, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c.Definition)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Router) command(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

// Dispatch handles one interaction, answering through host. Errors that were
// reported to the user are logged, not returned.
func (r *Router) Dispatch(ctx context.Context, in *discord.Interaction, host prompt.Host) error {
	ch := prompt.NewChannel(host, in)
	log := r.log.With(
		"interaction_id", in.ID.String(),
		"type", int(in.Type),
		"user_id", in.ActorID().String(),
		"guild_id", in.GuildID.String(),
	)

	switch in.Type {
	case discord.InteractionApplicationCommand:
		return r.runCommand(ctx, in, ch, log)
	case discord.InteractionMessageComponent, discord.InteractionModalSubmit:
		// Component deferrals never change the message.
		stop := ch.AutoDefer(ctx, r.autoDefer, false)
		defer stop()
		return r.engine.Handle(ctx, in, ch)
	}
	return fmt.Errorf("%w: %d", ErrUnsupported, in.Type)
}

func (r *Router) runCommand(ctx context.Context, in *discord.Interaction, ch *prompt.Channel, log *slog.Logger) error {
	name := in.CommandName()
	log = log.With("command", name)

	cmd, ok := r.command(name)
	if !ok {
		log.Warn("Unknown command")
		return ch.Reply(ctx, discord.MessageData{
			Content: "I don't know that command. It may have been removed.",
			Flags:   discord.FlagEphemeral,
		})
	}

	if cmd.Defer {
		if err := ch.Defer(ctx, cmd.Ephemeral); err != nil {
			return err
		}
	} else {
		stop := ch.AutoDefer(ctx, r.autoDefer, cmd.Ephemeral)
		defer stop()
	}

	start := time.Now()
	err := cmd.Handler(ctx, &Request{Interaction: in, Channel: ch, Engine: r.engine, Log: log})
	if err != nil {
		return r.report(ctx, ch, log, err)
	}
	log.Debug("Command handled", "duration", time.Since(start))
	return ch.Acknowledge(ctx)
}

// report maps err to a user message.
func (r *Router) report(ctx context.Context, ch *prompt.Channel, log *slog.Logger, err error) error {
	msg := prompt.UserMessage(err)
	if msg == prompt.MsgGeneric {
		log.Error("Command failed", "error", err)
	} else {
		log.Info("Command rejected", "reason", err)
	}
	data := discord.MessageData{Content: msg}
	if ch.State() == prompt.Fresh {
		data.Flags = discord.FlagEphemeral
	}
	if rerr := ch.Show(ctx, data); rerr != nil {
		log.Error("Failed to report command error", "error", rerr)
		return rerr
	}
	return nil
}
