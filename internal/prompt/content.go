package prompt

import (
	"fmt"

	"github.com/ashureev/rolelink/internal/discord"
)

// ElementKind is the kind of an interactive element on a page.
type ElementKind int

const (
	ElementButton ElementKind = iota
	ElementSelect
	ElementRoleSelect
)

// Option is one choice of a select element.
type Option struct {
	Label       string `yaml:"label"`
	Value       string `yaml:"value"`
	Description string `yaml:"description,omitempty"`
}

// Element is an interactive component identified by a page-local id.
type Element struct {
	ID          string
	Kind        ElementKind
	Label       string
	Placeholder string
	Style       int
	Disabled    bool
	Min, Max    int
	Options     []Option
}

// Button returns a button element.
func Button(id, label string, style int) Element {
	return Element{ID: id, Kind: ElementButton, Label: label, Style: style}
}

// Select returns a string select element taking between min and max values.
func Select(id, placeholder string, minValues, maxValues int, options ...Option) Element {
	return Element{ID: id, Kind: ElementSelect, Placeholder: placeholder, Min: minValues, Max: maxValues, Options: options}
}

// RoleSelect returns a role select element.
func RoleSelect(id, placeholder string, minValues, maxValues int) Element {
	return Element{ID: id, Kind: ElementRoleSelect, Placeholder: placeholder, Min: minValues, Max: maxValues}
}

// DisabledIf returns e disabled when cond holds.
func (e Element) DisabledIf(cond bool) Element {
	e.Disabled = e.Disabled || cond
	return e
}

// Content is what a page renders.
type Content struct {
	Text        string
	Title       string
	Description string
	Color       int
	Fields      []discord.EmbedField
	Footer      string
	Ephemeral   bool
	Elements    []Element
}

// TextInput is a modal text field.
type TextInput struct {
	ID          string
	Label       string
	Placeholder string
	Paragraph   bool
	Optional    bool
	MaxLength   int
}

// Modal is a form shown over the wizard. Its submission re-enters the page
// that opened it with Fired() set to ID, or to the opening component when ID
// is empty.
type Modal struct {
	ID     string
	Title  string
	Inputs []TextInput
}

const (
	maxButtonsPerRow = 5
	maxRows          = 5
)

// render turns content into a message, encoding a custom id per element.
func render(c Content, encode func(component string) (string, error)) (discord.MessageData, error) {
	msg := discord.MessageData{Content: c.Text}
	if c.Ephemeral {
		msg.Flags = discord.FlagEphemeral
	}
	if c.Title != "" || c.Description != "" || len(c.Fields) > 0 {
		embed := discord.Embed{
			Title:       c.Title,
			Description: c.Description,
			Color:       c.Color,
			Fields:      c.Fields,
		}
		if c.Footer != "" {
			embed.Footer = &discord.EmbedFooter{Text: c.Footer}
		}
		msg.Embeds = []discord.Embed{embed}
	}

	var rows []discord.Component
	var buttons []discord.Component
	flush := func() {
		if len(buttons) > 0 {
			rows = append(rows, discord.Component{Type: discord.ComponentActionRow, Components: buttons})
			buttons = nil
		}
	}
	for _, e := range c.Elements {
		id, err := encode(e.ID)
		if err != nil {
			return msg, fmt.Errorf("encode %s: %w", e.ID, err)
		}
		switch e.Kind {
		case ElementButton:
			if len(buttons) == maxButtonsPerRow {
				flush()
			}
			style := e.Style
			if style == 0 {
				style = discord.ButtonSecondary
			}
			buttons = append(buttons, discord.Component{
				Type:     discord.ComponentButton,
				CustomID: id,
				Style:    style,
				Label:    e.Label,
				Disabled: e.Disabled,
			})
		case ElementSelect, ElementRoleSelect:
			flush()
			minValues := e.Min
			comp := discord.Component{
				Type:        discord.ComponentStringSelect,
				CustomID:    id,
				Placeholder: e.Placeholder,
				MinValues:   &minValues,
				MaxValues:   e.Max,
				Disabled:    e.Disabled,
			}
			if e.Kind == ElementRoleSelect {
				comp.Type = discord.ComponentRoleSelect
			}
			for _, o := range e.Options {
				comp.Options = append(comp.Options, discord.SelectOption{
					Label:       o.Label,
					Value:       o.Value,
					Description: o.Description,
				})
			}
			rows = append(rows, discord.Component{Type: discord.ComponentActionRow, Components: []discord.Component{comp}})
		}
	}
	flush()
	if len(rows) > maxRows {
		return msg, fmt.Errorf("%w: %d component rows", ErrProtocolViolation, len(rows))
	}
	msg.Components = rows
	return msg, nil
}

func renderModal(m Modal, customID string) discord.ModalData {
	data := discord.ModalData{CustomID: customID, Title: m.Title}
	for _, in := range m.Inputs {
		style := discord.TextInputShort
		if in.Paragraph {
			style = discord.TextInputParagraph
		}
		required := !in.Optional
		data.Components = append(data.Components, discord.Component{
			Type: discord.ComponentActionRow,
			Components: []discord.Component{{
				Type:        discord.ComponentTextInput,
				CustomID:    in.ID,
				Style:       style,
				Label:       in.Label,
				Placeholder: in.Placeholder,
				Required:    &required,
				MaxLength:   in.MaxLength,
			}},
		})
	}
	return data
}

// disableAll returns a copy of msg with every component disabled.
func disableAll(msg discord.MessageData) discord.MessageData {
	var walk func([]discord.Component) []discord.Component
	walk = func(cs []discord.Component) []discord.Component {
		out := make([]discord.Component, len(cs))
		for i, c := range cs {
			if c.Type != discord.ComponentActionRow {
				c.Disabled = true
			}
			c.Components = walk(c.Components)
			out[i] = c
		}
		return out
	}
	msg.Components = walk(msg.Components)
	return msg
}

// messageData converts a received message back into an editable body.
func messageData(m *discord.Message) discord.MessageData {
	return discord.MessageData{Content: m.Content, Embeds: m.Embeds, Components: m.Components}
}
