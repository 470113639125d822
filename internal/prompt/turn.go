package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/ashureev/rolelink/internal/discord"
)

// Turn is the handler's view of one page invocation.
type Turn struct {
	inv        *invocation
	page       *Page
	index      int
	fired      string
	directives []Directive
}

// Interaction returns the interaction being handled.
func (t *Turn) Interaction() *discord.Interaction { return t.inv.in }

// Identity returns the session identity with this page's index.
func (t *Turn) Identity() Identity {
	id := t.inv.identity
	id.Page = t.index
	id.Component = t.fired
	return id
}

// GuildID returns the guild the wizard runs in.
func (t *Turn) GuildID() discord.Snowflake { return t.inv.in.GuildID }

// Page returns the current page name.
func (t *Turn) Page() string { return t.page.Name }

// Fired returns the page-local id of the component that triggered this turn,
// or "" when the page is being rendered without input.
func (t *Turn) Fired() string { return t.fired }

// IsModalSubmit reports whether this turn carries a modal submission.
func (t *Turn) IsModalSubmit() bool {
	return t.fired != "" && t.inv.submitted != nil
}

// Submitted returns a modal text input value.
func (t *Turn) Submitted(field string) string {
	if t.fired == "" {
		return ""
	}
	return t.inv.submitted[field]
}

// Get decodes the state value under key into v.
func (t *Turn) Get(key string, v any) (bool, error) {
	return t.inv.view().Get(key, v)
}

// Has reports whether key is set.
func (t *Turn) Has(key string) bool {
	return t.inv.view().Has(key)
}

// Values returns the values last selected on a select component.
func (t *Turn) Values(component string) []string {
	var sel struct {
		Values []string `json:"values"`
	}
	if ok, err := t.Get(component, &sel); !ok || err != nil {
		return nil
	}
	return sel.Values
}

// Save stages a state write. Writes reach the store after the handler returns.
func (t *Turn) Save(key string, v any) error {
	if reserved(key) {
		return fmt.Errorf("state key %q is reserved", key)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state %q: %w", key, err)
	}
	t.inv.set(key, raw)
	return nil
}

// Clear stages the removal of keys.
func (t *Turn) Clear(keys ...string) {
	for _, k := range keys {
		if !reserved(k) {
			t.inv.unset(k)
		}
	}
}

// Render shows c as this page's content.
func (t *Turn) Render(c Content) {
	t.directives = append(t.directives, Directive{Kind: DirectiveRender, Content: c})
}

// GoTo jumps to the named page.
func (t *Turn) GoTo(page string) {
	t.directives = append(t.directives, Directive{Kind: DirectiveGoTo, Page: page})
}

// Next moves to the following page in registration order.
func (t *Turn) Next() { t.directives = append(t.directives, Directive{Kind: DirectiveNext}) }

// Previous moves to the preceding page in registration order.
func (t *Turn) Previous() { t.directives = append(t.directives, Directive{Kind: DirectivePrevious}) }

// OpenModal shows m. Only legal as the first response to a click.
func (t *Turn) OpenModal(m Modal) {
	t.directives = append(t.directives, Directive{Kind: DirectiveModal, Modal: m})
}

// Followup posts text next to the wizard.
func (t *Turn) Followup(text string, ephemeral bool) {
	t.directives = append(t.directives, Directive{Kind: DirectiveFollowup, Text: text, Ephemeral: ephemeral})
}

// Ack commits the interaction without changing the message.
func (t *Turn) Ack() { t.directives = append(t.directives, Directive{Kind: DirectiveAck}) }

// Finish disables the wizard's components and deletes its session.
func (t *Turn) Finish() { t.directives = append(t.directives, Directive{Kind: DirectiveFinish}) }

// Directives returns what the handler emitted so far.
func (t *Turn) Directives() []Directive { return t.directives }

// Unknown reports that the fired component is not handled by this page. Users
// see it as an expired menu.
func (t *Turn) Unknown() error {
	return fmt.Errorf("%w: component %q on page %s", ErrSessionExpired, t.fired, t.page.Name)
}
