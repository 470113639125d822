// Package discord contains the subset of the Discord interactions API the bot speaks:
// wire types, the REST client, and request signature verification.
package discord

import (
	"encoding/json"
	"strconv"
)

// InteractionType is the kind of inbound interaction.
type InteractionType int

const (
	InteractionPing               InteractionType = 1
	InteractionApplicationCommand InteractionType = 2
	InteractionMessageComponent   InteractionType = 3
	InteractionAutocomplete       InteractionType = 4
	InteractionModalSubmit        InteractionType = 5
)

// ResponseType is the interaction callback type.
type ResponseType int

const (
	ResponsePong                   ResponseType = 1
	ResponseChannelMessage         ResponseType = 4
	ResponseDeferredChannelMessage ResponseType = 5
	ResponseDeferredUpdateMessage  ResponseType = 6
	ResponseUpdateMessage          ResponseType = 7
	ResponseModal                  ResponseType = 9
)

// ComponentType is a message component kind.
type ComponentType int

const (
	ComponentActionRow    ComponentType = 1
	ComponentButton       ComponentType = 2
	ComponentStringSelect ComponentType = 3
	ComponentTextInput    ComponentType = 4
	ComponentRoleSelect   ComponentType = 6
)

// ButtonStyle values.
const (
	ButtonPrimary   = 1
	ButtonSecondary = 2
	ButtonSuccess   = 3
	ButtonDanger    = 4
)

// TextInputStyle values.
const (
	TextInputShort     = 1
	TextInputParagraph = 2
)

// MessageFlags is a bitset of message flags.
type MessageFlags int

// FlagEphemeral hides a message from everyone but the invoking user.
const FlagEphemeral MessageFlags = 1 << 6

// OptionType is an application command option type.
type OptionType int

const (
	OptionSubCommand OptionType = 1
	OptionString     OptionType = 3
	OptionInteger    OptionType = 4
)

// User is a Discord user.
type User struct {
	ID       Snowflake `json:"id"`
	Username string    `json:"username"`
}

// Member is a guild member. User is set on guild interactions.
type Member struct {
	User  *User       `json:"user,omitempty"`
	Roles []Snowflake `json:"roles,omitempty"`
}

// Role is a guild role.
type Role struct {
	ID       Snowflake `json:"id"`
	Name     string    `json:"name"`
	Position int       `json:"position,omitempty"`
}

// SelectOption is one option of a string select.
type SelectOption struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

// Component is any message or modal component. Unused fields are omitted.
type Component struct {
	Type        ComponentType  `json:"type"`
	CustomID    string         `json:"custom_id,omitempty"`
	Style       int            `json:"style,omitempty"`
	Label       string         `json:"label,omitempty"`
	Disabled    bool           `json:"disabled,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	MinValues   *int           `json:"min_values,omitempty"`
	MaxValues   int            `json:"max_values,omitempty"`
	Options     []SelectOption `json:"options,omitempty"`
	Required    *bool          `json:"required,omitempty"`
	MaxLength   int            `json:"max_length,omitempty"`
	Value       string         `json:"value,omitempty"`
	Components  []Component    `json:"components,omitempty"`
}

// EmbedField is a name/value pair inside an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter is the footer line of an embed.
type EmbedFooter struct {
	Text string `json:"text"`
}

// Embed is a rich message embed.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// Message is a message as returned by Discord.
type Message struct {
	ID         Snowflake    `json:"id"`
	ChannelID  Snowflake    `json:"channel_id,omitempty"`
	Content    string       `json:"content,omitempty"`
	Embeds     []Embed      `json:"embeds,omitempty"`
	Components []Component  `json:"components,omitempty"`
	Flags      MessageFlags `json:"flags,omitempty"`
}

// MessageData is an outbound message body used by callbacks, edits and follow-ups.
// Embeds and Components are always sent so an edit clears what it omits.
type MessageData struct {
	Content    string       `json:"content"`
	Embeds     []Embed      `json:"embeds"`
	Components []Component  `json:"components"`
	Flags      MessageFlags `json:"flags,omitempty"`
}

// Normalized returns a copy with nil slices replaced by empty ones.
func (m MessageData) Normalized() MessageData {
	if m.Embeds == nil {
		m.Embeds = []Embed{}
	}
	if m.Components == nil {
		m.Components = []Component{}
	}
	return m
}

// ModalData is the payload of a modal callback.
type ModalData struct {
	CustomID   string      `json:"custom_id"`
	Title      string      `json:"title"`
	Components []Component `json:"components"`
}

// InteractionResponse is an interaction callback body.
type InteractionResponse struct {
	Type ResponseType `json:"type"`
	Data any          `json:"data,omitempty"`
}

// CommandOption is an option value received with a command.
type CommandOption struct {
	Name    string          `json:"name"`
	Type    OptionType      `json:"type"`
	Value   json.RawMessage `json:"value,omitempty"`
	Options []CommandOption `json:"options,omitempty"`
	Focused bool            `json:"focused,omitempty"`
}

// InteractionData is the type-specific payload of an interaction.
type InteractionData struct {
	ID            Snowflake       `json:"id,omitempty"`
	Name          string          `json:"name,omitempty"`
	Options       []CommandOption `json:"options,omitempty"`
	CustomID      string          `json:"custom_id,omitempty"`
	ComponentType ComponentType   `json:"component_type,omitempty"`
	Values        []string        `json:"values,omitempty"`
	Components    []Component     `json:"components,omitempty"`
}

// Interaction is an inbound interaction event.
type Interaction struct {
	ID            Snowflake        `json:"id"`
	ApplicationID Snowflake        `json:"application_id"`
	Type          InteractionType  `json:"type"`
	Data          *InteractionData `json:"data,omitempty"`
	GuildID       Snowflake        `json:"guild_id,omitempty"`
	ChannelID     Snowflake        `json:"channel_id,omitempty"`
	Member        *Member          `json:"member,omitempty"`
	User          *User            `json:"user,omitempty"`
	Token         string           `json:"token"`
	Message       *Message         `json:"message,omitempty"`
}

// ActorID returns the id of the user who triggered the interaction.
func (i *Interaction) ActorID() Snowflake {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return 0
}

// CommandName returns the invoked command name, or "".
func (i *Interaction) CommandName() string {
	if i.Data == nil {
		return ""
	}
	return i.Data.Name
}

// CustomID returns the custom id of the fired component or submitted modal.
func (i *Interaction) CustomID() string {
	if i.Data == nil {
		return ""
	}
	return i.Data.CustomID
}

// Values returns the selected values of a select menu interaction.
func (i *Interaction) Values() []string {
	if i.Data == nil {
		return nil
	}
	return i.Data.Values
}

// SourceMessageID returns the id of the message the component lives on.
func (i *Interaction) SourceMessageID() Snowflake {
	if i.Message == nil {
		return 0
	}
	return i.Message.ID
}

// SubmittedValues flattens the text inputs of a modal submission.
func (i *Interaction) SubmittedValues() map[string]string {
	out := map[string]string{}
	if i.Data == nil {
		return out
	}
	var walk func([]Component)
	walk = func(cs []Component) {
		for _, c := range cs {
			if c.Type == ComponentTextInput {
				out[c.CustomID] = c.Value
			}
			walk(c.Components)
		}
	}
	walk(i.Data.Components)
	return out
}

// Subcommand returns the first subcommand name and its options, or the top-level
// options with an empty name when the command has none.
func (i *Interaction) Subcommand() (string, []CommandOption) {
	if i.Data == nil {
		return "", nil
	}
	for _, o := range i.Data.Options {
		if o.Type == OptionSubCommand {
			return o.Name, o.Options
		}
	}
	return "", i.Data.Options
}

// StringOption looks up a string option by name.
func StringOption(opts []CommandOption, name string) (string, bool) {
	for _, o := range opts {
		if o.Name != name {
			continue
		}
		var s string
		if err := json.Unmarshal(o.Value, &s); err != nil {
			return string(o.Value), true
		}
		return s, true
	}
	return "", false
}

// IntOption looks up an integer option by name. String-typed values are parsed.
func IntOption(opts []CommandOption, name string) (int64, bool) {
	for _, o := range opts {
		if o.Name != name {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(o.Value, &n); err != nil {
			var s string
			if err := json.Unmarshal(o.Value, &s); err != nil {
				return 0, false
			}
			n = json.Number(s)
		}
		v, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// ApplicationCommandOption describes an option when registering commands.
type ApplicationCommandOption struct {
	Type        OptionType                 `json:"type"`
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Required    bool                       `json:"required,omitempty"`
	Choices     []CommandChoice            `json:"choices,omitempty"`
	Options     []ApplicationCommandOption `json:"options,omitempty"`
}

// CommandChoice is a fixed choice for a string option.
type CommandChoice struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ApplicationCommand is a slash command definition.
type ApplicationCommand struct {
	Name                     string                     `json:"name"`
	Description              string                     `json:"description"`
	Options                  []ApplicationCommandOption `json:"options,omitempty"`
	DefaultMemberPermissions *string                    `json:"default_member_permissions,omitempty"`
	DMPermission             *bool                      `json:"dm_permission,omitempty"`
}
