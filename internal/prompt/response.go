package prompt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/ashureev/rolelink/internal/discord"
)

// Host delivers responses for one interaction.
type Host interface {
	Respond(ctx context.Context, resp discord.InteractionResponse) error
	EditOriginal(ctx context.Context, data discord.MessageData) (*discord.Message, error)
	GetOriginal(ctx context.Context) (*discord.Message, error)
	CreateFollowup(ctx context.Context, data discord.MessageData) (*discord.Message, error)
}

// ChannelState is where an interaction is in its response lifecycle.
type ChannelState int

const (
	Fresh ChannelState = iota
	Deferred
	Responded
)

func (s ChannelState) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Deferred:
		return "deferred"
	case Responded:
		return "responded"
	}
	return fmt.Sprintf("ChannelState(%d)", int(s))
}

// Channel enforces the one-shot first response of an interaction.
type Channel struct {
	mu         sync.Mutex
	host       Host
	state      ChannelState
	inPlace    bool
	modalOK    bool
	originalID discord.Snowflake
}

// NewChannel creates a Fresh channel for in. Component interactions, and modal
// submits that came from a component, answer by editing their source message.
func NewChannel(host Host, in *discord.Interaction) *Channel {
	c := &Channel{host: host}
	switch in.Type {
	case discord.InteractionMessageComponent:
		c.inPlace = in.Message != nil
		c.modalOK = true
	case discord.InteractionModalSubmit:
		c.inPlace = in.Message != nil
	case discord.InteractionApplicationCommand:
		c.modalOK = true
	}
	if c.inPlace {
		c.originalID = in.Message.ID
	}
	return c
}

// State returns the current lifecycle state.
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InPlace reports whether the first response updates the source message.
func (c *Channel) InPlace() bool { return c.inPlace }

func violation(op string, st ChannelState) error {
	return fmt.Errorf("%w: %s while %s", ErrProtocolViolation, op, st)
}

// Defer acknowledges without content. Commands show a loading message;
// components keep their message untouched.
func (c *Channel) Defer(ctx context.Context, ephemeral bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deferLocked(ctx, ephemeral)
}

func (c *Channel) deferLocked(ctx context.Context, ephemeral bool) error {
	if c.state != Fresh {
		return violation("defer", c.state)
	}
	resp := discord.InteractionResponse{Type: discord.ResponseDeferredChannelMessage}
	if c.inPlace {
		resp.Type = discord.ResponseDeferredUpdateMessage
	} else if ephemeral {
		resp.Data = map[string]any{"flags": discord.FlagEphemeral}
	}
	if err := c.host.Respond(ctx, resp); err != nil {
		return fmt.Errorf("defer: %w", err)
	}
	c.state = Deferred
	return nil
}

// Send posts a message: the initial response when Fresh, a fulfilment of a
// deferral when Deferred, and a follow-up once Responded.
func (c *Channel) Send(ctx context.Context, msg discord.MessageData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(ctx, msg)
}

func (c *Channel) sendLocked(ctx context.Context, msg discord.MessageData) error {
	switch c.state {
	case Fresh:
		err := c.host.Respond(ctx, discord.InteractionResponse{
			Type: discord.ResponseChannelMessage,
			Data: msg.Normalized(),
		})
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		c.state = Responded
		if c.inPlace {
			// the new message is not the source message
			c.originalID = 0
			c.inPlace = false
		}
		return nil
	case Deferred:
		return c.editLocked(ctx, msg)
	default:
		return c.followupLocked(ctx, msg)
	}
}

// Update replaces the source message as the initial response of a component
// interaction.
func (c *Channel) Update(ctx context.Context, msg discord.MessageData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateLocked(ctx, msg)
}

func (c *Channel) updateLocked(ctx context.Context, msg discord.MessageData) error {
	if c.state != Fresh || !c.inPlace {
		return violation("update", c.state)
	}
	msg.Flags = 0
	err := c.host.Respond(ctx, discord.InteractionResponse{
		Type: discord.ResponseUpdateMessage,
		Data: msg.Normalized(),
	})
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	c.state = Responded
	return nil
}

// Edit edits the original response. It is illegal before any response.
func (c *Channel) Edit(ctx context.Context, msg discord.MessageData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editLocked(ctx, msg)
}

func (c *Channel) editLocked(ctx context.Context, msg discord.MessageData) error {
	if c.state == Fresh {
		return violation("edit", c.state)
	}
	msg.Flags = 0
	m, err := c.host.EditOriginal(ctx, msg)
	if err != nil {
		return fmt.Errorf("edit: %w", err)
	}
	if m != nil && m.ID != 0 {
		c.originalID = m.ID
	}
	c.state = Responded
	return nil
}

// Followup posts an additional message. It is illegal before any response.
func (c *Channel) Followup(ctx context.Context, msg discord.MessageData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.followupLocked(ctx, msg)
}

func (c *Channel) followupLocked(ctx context.Context, msg discord.MessageData) error {
	if c.state == Fresh {
		return violation("followup", c.state)
	}
	if _, err := c.host.CreateFollowup(ctx, msg); err != nil {
		return fmt.Errorf("followup: %w", err)
	}
	c.state = Responded
	return nil
}

// OpenModal shows a modal. It must be the initial response.
func (c *Channel) OpenModal(ctx context.Context, modal discord.ModalData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Fresh || !c.modalOK {
		return violation("open modal", c.state)
	}
	err := c.host.Respond(ctx, discord.InteractionResponse{Type: discord.ResponseModal, Data: modal})
	if err != nil {
		return fmt.Errorf("open modal: %w", err)
	}
	c.state = Responded
	return nil
}

// Acknowledge commits without content when nothing was sent yet.
func (c *Channel) Acknowledge(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Fresh {
		return nil
	}
	return c.deferLocked(ctx, false)
}

// Show displays a wizard page: in place when this is the first response of a
// component interaction, as the reply to a command, or as an edit otherwise.
func (c *Channel) Show(ctx context.Context, msg discord.MessageData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.state == Fresh && c.inPlace:
		return c.updateLocked(ctx, msg)
	case c.state == Fresh:
		return c.sendLocked(ctx, msg)
	default:
		return c.editLocked(ctx, msg)
	}
}

// Notify posts a message next to the wizard without replacing it.
func (c *Channel) Notify(ctx context.Context, msg discord.MessageData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Fresh && c.inPlace {
		if err := c.deferLocked(ctx, false); err != nil {
			return err
		}
	}
	if c.state == Fresh {
		return c.sendLocked(ctx, msg)
	}
	return c.followupLocked(ctx, msg)
}

// Reply answers with a standalone message, used for errors.
func (c *Channel) Reply(ctx context.Context, msg discord.MessageData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Fresh {
		return c.sendLocked(ctx, msg)
	}
	return c.followupLocked(ctx, msg)
}

// OriginalMessageID returns the id of the message the channel's responses edit.
func (c *Channel) OriginalMessageID(ctx context.Context) (discord.Snowflake, error) {
	c.mu.Lock()
	id, st := c.originalID, c.state
	c.mu.Unlock()
	if id != 0 {
		return id, nil
	}
	if st == Fresh {
		return 0, violation("original message lookup", st)
	}

	var msg *discord.Message
	err := retry.Do(
		func() error {
			var err error
			msg, err = c.host.GetOriginal(ctx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(250*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(discord.IsNotFound),
	)
	if err != nil {
		return 0, fmt.Errorf("resolve original message: %w", err)
	}

	c.mu.Lock()
	c.originalID = msg.ID
	c.mu.Unlock()
	return msg.ID, nil
}

// AutoDefer defers the channel if it is still Fresh after the given delay.
// The returned stop function cancels the timer and waits for it to exit.
func (c *Channel) AutoDefer(ctx context.Context, after time.Duration, ephemeral bool) (stop func()) {
	if after <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		timer := time.NewTimer(after)
		defer timer.Stop()
		select {
		case <-timer.C:
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.state == Fresh {
				_ = c.deferLocked(ctx, ephemeral)
			}
		case <-done:
		case <-ctx.Done():
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}
