package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/rolelink/internal/discord"
)

// Engine defaults.
const (
	DefaultTTL      = 15 * time.Minute
	DefaultMaxDepth = 8
)

// Engine runs wizard pages against interactions.
type Engine struct {
	registry *Registry
	store    StateStore
	ttl      time.Duration
	maxDepth int
	log      *slog.Logger
	locks    *keyedMutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTTL sets the sliding session lifetime.
func WithTTL(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.ttl = d
		}
	}
}

// WithMaxDepth bounds page navigations per interaction.
func WithMaxDepth(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an engine over a registry and a session store.
func NewEngine(reg *Registry, store StateStore, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: reg,
		store:    store,
		ttl:      DefaultTTL,
		maxDepth: DefaultMaxDepth,
		log:      slog.Default(),
		locks:    newKeyedMutex(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Registry returns the engine's wizard registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Start enters a wizard's first page from a command interaction. Failures are
// reported to the user; the returned error is only set when that also failed.
func (e *Engine) Start(ctx context.Context, in *discord.Interaction, ch *Channel, wizard string, extra ...Field) error {
	w, ok := e.registry.Lookup(wizard)
	if !ok {
		return fmt.Errorf("unknown wizard %q", wizard)
	}
	if err := w.Schema.Check(extra); err != nil {
		return fmt.Errorf("wizard %s: %w", w.Name, err)
	}

	inv := e.newInvocation(w, in, ch, Identity{
		Command: in.CommandName(),
		Wizard:  w.Name,
		UserID:  in.ActorID(),
		Extra:   extra,
	})
	inv.entry = true
	inv.loaded = State{}

	if w.Scope == ScopeUser {
		inv.key = UserKey(w.Name, inv.identity.UserID)
		unlock, err := e.locks.lock(ctx, inv.key)
		if err != nil {
			return err
		}
		defer unlock()
	}
	return e.execute(ctx, inv, 0, "")
}

// Handle resumes a wizard from a component click or modal submission.
func (e *Engine) Handle(ctx context.Context, in *discord.Interaction, ch *Channel) error {
	route, err := Peek(in.CustomID())
	if err != nil {
		return e.fail(ctx, ch, e.log, err)
	}
	w, ok := e.registry.Lookup(route.Wizard)
	if !ok {
		return e.fail(ctx, ch, e.log, fmt.Errorf("%w: unknown wizard %q", ErrMalformedToken, route.Wizard))
	}
	id, err := Decode(in.CustomID(), w.Schema)
	if err != nil {
		return e.fail(ctx, ch, e.log, err)
	}
	if src := in.SourceMessageID(); src != 0 {
		id.MessageID = src
	}

	inv := e.newInvocation(w, in, ch, id)
	inv.identity.Page, inv.identity.Component = 0, ""
	log := inv.logger().With("page", id.Page, "component", id.Component)

	if id.UserID != in.ActorID() {
		return e.fail(ctx, ch, log, ErrNotAuthor)
	}

	switch w.Scope {
	case ScopeUser:
		inv.key = UserKey(w.Name, id.UserID)
	default:
		if id.MessageID == 0 {
			return e.fail(ctx, ch, log, fmt.Errorf("%w: no source message", ErrSessionExpired))
		}
		inv.key = MessageKey(w.Name, id.MessageID)
	}

	unlock, err := e.locks.lock(ctx, inv.key)
	if err != nil {
		return err
	}
	defer unlock()

	state, err := e.store.Load(ctx, inv.key)
	if err != nil {
		return e.fail(ctx, ch, log, fmt.Errorf("load session %s: %w", inv.key, err))
	}
	if !state.Has(keyPage) {
		return e.fail(ctx, ch, log, fmt.Errorf("%w: %s", ErrSessionExpired, inv.key))
	}
	if _, ok := w.page(id.Page); !ok {
		return e.fail(ctx, ch, log, fmt.Errorf("%w: no page %d", ErrSessionExpired, id.Page))
	}
	inv.loaded = state

	switch in.Type {
	case discord.InteractionModalSubmit:
		inv.submitted = in.SubmittedValues()
	case discord.InteractionMessageComponent:
		if ct := in.Data.ComponentType; ct == discord.ComponentStringSelect || ct == discord.ComponentRoleSelect {
			raw, err := json.Marshal(map[string][]string{"values": nonNil(in.Values())})
			if err != nil {
				return e.fail(ctx, ch, log, err)
			}
			inv.set(id.Component, raw)
		}
	}

	return e.execute(ctx, inv, id.Page, id.Component)
}

func (e *Engine) execute(ctx context.Context, inv *invocation, page int, fired string) error {
	runErr := inv.run(ctx, page, fired)
	// Saves made before a failure are kept.
	flushErr := inv.flush(ctx)
	if err := errors.Join(runErr, flushErr); err != nil {
		return e.fail(ctx, inv.ch, inv.logger(), err)
	}
	if err := inv.ch.Acknowledge(ctx); err != nil {
		inv.logger().Warn("Failed to acknowledge interaction", "error", err)
		return err
	}
	return nil
}

// fail logs err and tells the user what happened.
func (e *Engine) fail(ctx context.Context, ch *Channel, log *slog.Logger, err error) error {
	if expected(err) {
		log.Info("Prompt interaction rejected", "reason", err)
	} else {
		log.Error("Prompt interaction failed", "error", err)
	}
	msg := discord.MessageData{Content: UserMessage(err), Flags: discord.FlagEphemeral}
	if rerr := ch.Reply(ctx, msg); rerr != nil {
		log.Error("Failed to report prompt error", "error", rerr)
		return rerr
	}
	return nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func newInvocationID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func (e *Engine) newInvocation(w *Wizard, in *discord.Interaction, ch *Channel, id Identity) *invocation {
	return &invocation{
		e:        e,
		wizard:   w,
		in:       in,
		ch:       ch,
		identity: id,
		id:       newInvocationID(),
		writes:   State{},
		clears:   map[string]bool{},
	}
}

// invocation is the engine's bookkeeping for one interaction.
type invocation struct {
	e        *Engine
	wizard   *Wizard
	in       *discord.Interaction
	ch       *Channel
	identity Identity
	id       string
	key      string
	entry    bool

	loaded    State
	writes    State
	clears    map[string]bool
	submitted map[string]string

	rendered *discord.MessageData
	finished bool
	depth    int
}

func (inv *invocation) logger() *slog.Logger {
	return inv.e.log.With(
		"wizard", inv.wizard.Name,
		"user_id", inv.identity.UserID.String(),
		"invocation_id", inv.id,
	)
}

// view merges staged writes over the loaded state.
func (inv *invocation) view() State {
	out := inv.loaded.Clone()
	for k := range inv.clears {
		delete(out, k)
	}
	for k, v := range inv.writes {
		out[k] = v
	}
	return out
}

func (inv *invocation) set(key string, raw json.RawMessage) {
	inv.writes[key] = raw
	delete(inv.clears, key)
}

func (inv *invocation) unset(key string) {
	delete(inv.writes, key)
	inv.clears[key] = true
}

func (inv *invocation) identityFor(page int, component string) Identity {
	id := inv.identity
	id.Page = page
	id.Component = component
	return id
}

func (inv *invocation) run(ctx context.Context, index int, fired string) error {
	if inv.depth >= inv.e.maxDepth {
		return fmt.Errorf("%w: more than %d page transitions", ErrProtocolViolation, inv.e.maxDepth)
	}
	inv.depth++

	page, ok := inv.wizard.page(index)
	if !ok {
		return fmt.Errorf("%w: wizard %s has no page %d", ErrProtocolViolation, inv.wizard.Name, index)
	}

	t := &Turn{inv: inv, page: page, index: index, fired: fired}
	var err error
	if page.Kind == PageStatic {
		err = runStatic(t)
	} else {
		err = page.Handler(ctx, t)
	}
	if err != nil {
		return fmt.Errorf("page %s: %w", page.Name, err)
	}

	for _, d := range t.directives {
		if err := inv.apply(ctx, t, d); err != nil {
			return fmt.Errorf("page %s: %s: %w", page.Name, d.Kind, err)
		}
	}
	return nil
}

func runStatic(t *Turn) error {
	p := t.page
	switch {
	case t.fired == "":
		t.Render(*p.Static)
	case t.fired == p.SelectID:
		vals := t.inv.in.Values()
		if len(vals) != 1 {
			return t.Unknown()
		}
		target, ok := p.Transitions[vals[0]]
		if !ok {
			return fmt.Errorf("%w: unmapped selection %q on page %s", ErrSessionExpired, vals[0], p.Name)
		}
		t.GoTo(target)
	default:
		target, ok := p.Links[t.fired]
		if !ok {
			return t.Unknown()
		}
		t.GoTo(target)
	}
	return nil
}

func (inv *invocation) apply(ctx context.Context, t *Turn, d Directive) error {
	switch d.Kind {
	case DirectiveRender:
		return inv.render(ctx, t, d.Content)
	case DirectiveGoTo:
		idx, ok := inv.wizard.lookup(d.Page)
		if !ok {
			return fmt.Errorf("%w: unknown page %q", ErrProtocolViolation, d.Page)
		}
		return inv.run(ctx, idx, "")
	case DirectiveNext:
		return inv.run(ctx, t.index+1, "")
	case DirectivePrevious:
		return inv.run(ctx, t.index-1, "")
	case DirectiveModal:
		component := d.Modal.ID
		if component == "" {
			component = t.fired
		}
		if component == "" {
			return fmt.Errorf("%w: modal without an owning component", ErrProtocolViolation)
		}
		customID, err := Encode(inv.identityFor(t.index, component))
		if err != nil {
			return err
		}
		return inv.ch.OpenModal(ctx, renderModal(d.Modal, customID))
	case DirectiveFollowup:
		msg := discord.MessageData{Content: d.Text}
		if d.Ephemeral {
			msg.Flags = discord.FlagEphemeral
		}
		return inv.ch.Notify(ctx, msg)
	case DirectiveAck:
		return inv.ch.Acknowledge(ctx)
	case DirectiveFinish:
		return inv.finish(ctx)
	}
	return fmt.Errorf("%w: unknown directive %d", ErrProtocolViolation, d.Kind)
}

func (inv *invocation) render(ctx context.Context, t *Turn, c Content) error {
	msg, err := render(c, func(component string) (string, error) {
		return Encode(inv.identityFor(t.index, component))
	})
	if err != nil {
		return err
	}
	if err := inv.ch.Show(ctx, msg); err != nil {
		return err
	}
	inv.rendered = &msg
	raw, _ := json.Marshal(t.page.Name)
	inv.set(keyPage, raw)
	return nil
}

func (inv *invocation) finish(ctx context.Context) error {
	var msg discord.MessageData
	switch {
	case inv.rendered != nil:
		msg = *inv.rendered
	case inv.in.Message != nil:
		msg = messageData(inv.in.Message)
	default:
		inv.finished = true
		return nil
	}
	if err := inv.ch.Show(ctx, disableAll(msg)); err != nil {
		return err
	}
	inv.finished = true
	return nil
}

func (inv *invocation) flush(ctx context.Context) error {
	store := inv.e.store
	if inv.finished {
		if inv.entry && inv.wizard.Scope == ScopeMessage {
			return nil
		}
		if err := store.Delete(ctx, inv.key); err != nil {
			return fmt.Errorf("delete session %s: %w", inv.key, err)
		}
		return nil
	}
	if len(inv.writes) == 0 && len(inv.clears) == 0 {
		return nil
	}

	key, err := inv.stateKey(ctx)
	if err != nil {
		return err
	}
	if inv.entry && inv.wizard.Scope == ScopeUser {
		if err := store.Delete(ctx, key); err != nil {
			return fmt.Errorf("reset session %s: %w", key, err)
		}
	}
	if len(inv.clears) > 0 {
		fields := make([]string, 0, len(inv.clears))
		for k := range inv.clears {
			fields = append(fields, k)
		}
		if err := store.Clear(ctx, key, inv.e.ttl, fields...); err != nil {
			return fmt.Errorf("clear session %s: %w", key, err)
		}
	}
	if len(inv.writes) > 0 {
		if err := store.Save(ctx, key, inv.writes, inv.e.ttl); err != nil {
			return fmt.Errorf("save session %s: %w", key, err)
		}
	}
	return nil
}

func (inv *invocation) stateKey(ctx context.Context) (string, error) {
	if inv.key != "" {
		return inv.key, nil
	}
	if inv.wizard.Scope == ScopeUser {
		inv.key = UserKey(inv.wizard.Name, inv.identity.UserID)
		return inv.key, nil
	}
	msgID := inv.identity.MessageID
	if msgID == 0 {
		var err error
		if msgID, err = inv.ch.OriginalMessageID(ctx); err != nil {
			return "", err
		}
	}
	inv.key = MessageKey(inv.wizard.Name, msgID)
	return inv.key, nil
}
