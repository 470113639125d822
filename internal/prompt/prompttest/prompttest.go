// Package prompttest provides fakes for driving prompt wizards in tests.
package prompttest

import (
	"context"
	"sync"

	"github.com/ashureev/rolelink/internal/discord"
)

// Host is a prompt.Host that records every call. Edits and follow-ups return
// a message with MessageID.
type Host struct {
	mu        sync.Mutex
	MessageID discord.Snowflake
	Responses []discord.InteractionResponse
	Edits     []discord.MessageData
	Followups []discord.MessageData
	Gets      int

	// Err, when set, fails every call.
	Err error
}

// NewHost returns a Host whose original message has id msgID.
func NewHost(msgID discord.Snowflake) *Host {
	return &Host{MessageID: msgID}
}

func (h *Host) Respond(_ context.Context, resp discord.InteractionResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return h.Err
	}
	h.Responses = append(h.Responses, resp)
	return nil
}

func (h *Host) EditOriginal(_ context.Context, data discord.MessageData) (*discord.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return nil, h.Err
	}
	h.Edits = append(h.Edits, data)
	return &discord.Message{ID: h.MessageID, Content: data.Content, Embeds: data.Embeds, Components: data.Components}, nil
}

func (h *Host) GetOriginal(_ context.Context) (*discord.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return nil, h.Err
	}
	h.Gets++
	return &discord.Message{ID: h.MessageID}, nil
}

func (h *Host) CreateFollowup(_ context.Context, data discord.MessageData) (*discord.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return nil, h.Err
	}
	h.Followups = append(h.Followups, data)
	return &discord.Message{ID: h.MessageID + 1, Content: data.Content}, nil
}

// Shown returns the last message body the wizard displayed. Edits win over
// callbacks; tests use one Host per interaction.
func (h *Host) Shown() (discord.MessageData, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.Edits); n > 0 {
		return h.Edits[n-1], true
	}
	for i := len(h.Responses) - 1; i >= 0; i-- {
		if m, ok := h.Responses[i].Data.(discord.MessageData); ok {
			return m, true
		}
	}
	return discord.MessageData{}, false
}

// LastResponse returns the most recent callback.
func (h *Host) LastResponse() (discord.InteractionResponse, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Responses) == 0 {
		return discord.InteractionResponse{}, false
	}
	return h.Responses[len(h.Responses)-1], true
}

// Reset forgets recorded calls.
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Responses, h.Edits, h.Followups, h.Gets = nil, nil, nil, 0
}

// Command builds a slash command interaction.
func Command(name string, guild, user discord.Snowflake, opts ...discord.CommandOption) *discord.Interaction {
	return &discord.Interaction{
		ID:      1,
		Type:    discord.InteractionApplicationCommand,
		GuildID: guild,
		Token:   "token",
		Member:  &discord.Member{User: &discord.User{ID: user}},
		Data:    &discord.InteractionData{Name: name, Options: opts},
	}
}

// Click builds a button interaction on msg.
func Click(msg *discord.Message, customID string, guild, user discord.Snowflake) *discord.Interaction {
	return &discord.Interaction{
		ID:      2,
		Type:    discord.InteractionMessageComponent,
		GuildID: guild,
		Token:   "token",
		Member:  &discord.Member{User: &discord.User{ID: user}},
		Message: msg,
		Data: &discord.InteractionData{
			CustomID:      customID,
			ComponentType: discord.ComponentButton,
		},
	}
}

// Choose builds a select interaction on msg.
func Choose(msg *discord.Message, customID string, guild, user discord.Snowflake, kind discord.ComponentType, values ...string) *discord.Interaction {
	in := Click(msg, customID, guild, user)
	in.Data.ComponentType = kind
	in.Data.Values = values
	return in
}

// Submit builds a modal submission on msg.
func Submit(msg *discord.Message, customID string, guild, user discord.Snowflake, fields map[string]string) *discord.Interaction {
	in := Click(msg, customID, guild, user)
	in.Type = discord.InteractionModalSubmit
	in.Data.ComponentType = 0
	var rows []discord.Component
	for k, v := range fields {
		rows = append(rows, discord.Component{
			Type:       discord.ComponentActionRow,
			Components: []discord.Component{{Type: discord.ComponentTextInput, CustomID: k, Value: v}},
		})
	}
	in.Data.Components = rows
	return in
}

// FindCustomID returns the custom id of the component whose page-local id
// (the last base segment) is component.
func FindCustomID(msg discord.MessageData, component string) (string, bool) {
	var found string
	var walk func([]discord.Component)
	walk = func(cs []discord.Component) {
		for _, c := range cs {
			if c.CustomID != "" && componentOf(c.CustomID) == component {
				found = c.CustomID
			}
			walk(c.Components)
		}
	}
	walk(msg.Components)
	return found, found != ""
}

// AsMessage turns a shown body into the message a later click arrives on.
func AsMessage(id discord.Snowflake, data discord.MessageData) *discord.Message {
	return &discord.Message{ID: id, Content: data.Content, Embeds: data.Embeds, Components: data.Components}
}
