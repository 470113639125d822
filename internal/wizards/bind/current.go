package bind

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/domain"
	"github.com/ashureev/rolelink/internal/prompt"
)

const (
	colorGreen = 0x43b581

	maxFieldLength  = 1024
	maxOptionLength = 100
)

const msgBindAdded = "Bind added to your in-progress workflow. Click `Publish` to save your changes."

func pendingBinds(t *prompt.Turn) ([]domain.PendingBinding, error) {
	var pending []domain.PendingBinding
	if _, err := t.Get(keyPending, &pending); err != nil {
		return nil, fmt.Errorf("read pending binds: %w", err)
	}
	return pending, nil
}

// addPending appends b to the session's unsaved binds and returns to the
// overview.
func addPending(t *prompt.Turn, b domain.PendingBinding) error {
	pending, err := pendingBinds(t)
	if err != nil {
		return err
	}
	if len(pending) >= domain.MaxPendingBindings {
		return domain.ErrTooManyPending
	}
	if err := t.Save(keyPending, append(pending, b)); err != nil {
		return err
	}
	t.GoTo(pageCurrentBinds)
	t.Followup(msgBindAdded, true)
	return nil
}

// saveValues stores vals the way the engine stores select values.
func saveValues(t *prompt.Turn, component string, vals ...string) error {
	return t.Save(component, map[string][]string{"values": vals})
}

// chosenRoles returns the roles picked for the bind being built: existing role
// ids from the role select, or a name to create at publish time.
func chosenRoles(t *prompt.Turn) (roles []string, newRole string) {
	if _, err := t.Get(keyNewRole, &newRole); err == nil && newRole != "" {
		return nil, newRole
	}
	return t.Values(compDiscordRole), ""
}

// withRoles fills the role fields of b from the session.
func withRoles(t *prompt.Turn, b domain.PendingBinding) (domain.PendingBinding, bool) {
	roles, newRole := chosenRoles(t)
	switch {
	case newRole != "":
		b.NewRoles = []string{newRole}
	case len(roles) > 0:
		b.Roles = roles
	default:
		return b, false
	}
	return b, true
}

// entityName returns the display name of the bound entity, caching it in the
// session. Lookup failures fall back to the id.
func (s *Service) entityName(ctx context.Context, t *prompt.Turn, kind domain.EntityKind, id int64) string {
	var name string
	if ok, err := t.Get(keyEntityName, &name); ok && err == nil && name != "" {
		return name
	}
	if kind == domain.KindGroup {
		if g, err := s.roblox.Group(ctx, id); err == nil {
			name = g.Name
		}
	} else if e, err := s.roblox.Entity(ctx, kind, id); err == nil {
		name = e.Name
	}
	if name == "" {
		return strconv.FormatInt(id, 10)
	}
	if err := t.Save(keyEntityName, name); err != nil {
		s.log.Warn("Failed to cache entity name", "error", err)
	}
	return name
}

// rankNames returns a rank name resolver for group bindings, or nil.
func (s *Service) rankNames(ctx context.Context, kind domain.EntityKind, id int64) func(int) string {
	if kind != domain.KindGroup {
		return nil
	}
	g, err := s.roblox.Group(ctx, id)
	if err != nil {
		s.log.Warn("Failed to load group for rank names", "group_id", id, "error", err)
		return nil
	}
	return g.RankName
}

func footer(kind domain.EntityKind, name string) string {
	return kind.Label() + ": " + name
}

func describePending(pending []domain.PendingBinding, rankName func(int) string) string {
	lines := make([]string, 0, len(pending))
	for _, b := range pending {
		lines = append(lines, fmt.Sprintf("- %s: %s", b.Criteria.Describe(rankName), b.RoleMentions()))
	}
	return truncate(strings.Join(lines, "\n"), maxFieldLength)
}

func describeBindings(bindings []*domain.Binding, rankName func(int) string) string {
	lines := make([]string, 0, len(bindings))
	for _, b := range bindings {
		lines = append(lines, fmt.Sprintf("- %s: %s", b.Criteria.Describe(rankName), roleMentions(b.Roles)))
	}
	return truncate(strings.Join(lines, "\n"), maxFieldLength)
}

func roleMentions(ids []string) string {
	if len(ids) == 0 {
		return "no roles"
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "<@&" + id + ">"
	}
	return strings.Join(out, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// currentBinds is the wizard's home page: persisted and unsaved binds with
// the create, publish and remove buttons.
func (s *Service) currentBinds(ctx context.Context, t *prompt.Turn) error {
	kind, id, err := target(t)
	if err != nil {
		return err
	}
	pending, err := pendingBinds(t)
	if err != nil {
		return err
	}

	switch t.Fired() {
	case "":
		t.Clear(compCriteria, compDiscordRole, compGroupRank, compUnbindMenu, keyNewRole)
		content, err := s.overview(ctx, t, kind, id, pending)
		if err != nil {
			return err
		}
		t.Render(content)
		return nil
	case compNewBind:
		if len(pending) >= domain.MaxPendingBindings {
			return domain.ErrTooManyPending
		}
		if kind == domain.KindGroup {
			t.GoTo(pageCreateBind)
		} else {
			t.GoTo(pageRole)
		}
		return nil
	case compPublish:
		return s.publish(ctx, t, kind, id, pending)
	case compDeleteBind:
		t.GoTo(pageRemove)
		return nil
	}
	return t.Unknown()
}

func (s *Service) overview(ctx context.Context, t *prompt.Turn, kind domain.EntityKind, id int64, pending []domain.PendingBinding) (prompt.Content, error) {
	existing, err := s.bindings.ListBindings(ctx, t.GuildID().String(), domain.BindingFilter{Type: kind, EntityID: id})
	if err != nil {
		return prompt.Content{}, fmt.Errorf("list bindings: %w", err)
	}
	rankName := s.rankNames(ctx, kind, id)

	current := describeBindings(existing, rankName)
	if current == "" {
		current = "No binds exist. Create one below!"
	}
	fields := []discord.EmbedField{{Name: "Current binds", Value: current, Inline: true}}
	if len(pending) > 0 {
		fields = append(fields, discord.EmbedField{Name: "Unsaved Binds", Value: describePending(pending, rankName), Inline: true})
	}

	title := fmt.Sprintf("New %s Bind", kind.Label())
	if len(pending) > 0 {
		title = "[UNSAVED CHANGES] " + title
	}
	return prompt.Content{
		Title:       title,
		Description: fmt.Sprintf("Here are the current binds for your server for that %s. Use the buttons below to make a new bind!", kind.Label()),
		Fields:      fields,
		Footer:      footer(kind, s.entityName(ctx, t, kind, id)),
		Elements: []prompt.Element{
			prompt.Button(compNewBind, "Create a new bind", discord.ButtonPrimary).
				DisabledIf(len(pending) >= domain.MaxPendingBindings),
			prompt.Button(compPublish, "Publish", discord.ButtonSuccess).
				DisabledIf(len(pending) == 0),
			prompt.Button(compDeleteBind, "Remove an unsaved bind", discord.ButtonDanger).
				DisabledIf(len(pending) == 0),
		},
	}, nil
}

func (s *Service) publish(ctx context.Context, t *prompt.Turn, kind domain.EntityKind, id int64, pending []domain.PendingBinding) error {
	if len(pending) == 0 {
		return prompt.Reject("You have no unsaved binds to publish.")
	}
	rankName := s.rankNames(ctx, kind, id)
	existing, err := s.bindings.ListBindings(ctx, t.GuildID().String(), domain.BindingFilter{Type: kind, EntityID: id})
	if err != nil {
		return fmt.Errorf("list bindings: %w", err)
	}

	created, err := s.publisher.Publish(ctx, t.GuildID(), pending)
	if err != nil {
		// Binds saved before the failure leave the pending list.
		if serr := t.Save(keyPending, pending[len(created):]); serr != nil {
			s.log.Warn("Failed to trim published binds", "error", serr)
		}
		return err
	}

	current := describeBindings(existing, rankName)
	if current == "" {
		current = "None"
	}
	t.Render(prompt.Content{
		Title:       fmt.Sprintf("New %s binds saved.", strings.ToLower(kind.Label())),
		Description: "The binds on this menu were saved to your server. You can edit your binds at any time by running `/bind` again.",
		Color:       colorGreen,
		Fields: []discord.EmbedField{
			{Name: "Current binds", Value: current, Inline: true},
			{Name: "Created Binds", Value: describeBindings(created, rankName), Inline: true},
		},
		Footer: footer(kind, s.entityName(ctx, t, kind, id)),
		Elements: []prompt.Element{
			prompt.Button(compNewBind, "Create a new bind", discord.ButtonPrimary),
			prompt.Button(compPublish, "Publish", discord.ButtonSuccess),
			prompt.Button(compDeleteBind, "Remove an unsaved bind", discord.ButtonDanger),
		},
	})
	t.Followup("Your new binds have been saved to your server.", true)
	t.Finish()
	return nil
}

// removeUnsavedBind lets the author drop unsaved binds.
func (s *Service) removeUnsavedBind(ctx context.Context, t *prompt.Turn) error {
	kind, id, err := target(t)
	if err != nil {
		return err
	}
	pending, err := pendingBinds(t)
	if err != nil {
		return err
	}

	var note string
	switch t.Fired() {
	case "":
	case compReturn:
		t.GoTo(pageCurrentBinds)
		return nil
	case compUnbindMenu:
		choices := t.Values(compUnbindMenu)
		indexes := make([]int, 0, len(choices))
		for _, c := range choices {
			i, err := strconv.Atoi(c)
			if err != nil || i < 0 || i >= len(pending) {
				return fmt.Errorf("%w: unbind choice %q", prompt.ErrSessionExpired, c)
			}
			indexes = append(indexes, i)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(indexes)))
		for n, i := range indexes {
			if n > 0 && indexes[n-1] == i {
				continue
			}
			pending = append(pending[:i], pending[i+1:]...)
		}
		if err := t.Save(keyPending, pending); err != nil {
			return err
		}
		t.Clear(compUnbindMenu)
		note = "No changes have been made."
		if len(indexes) > 0 {
			note = "The binds you have selected have been removed."
		}
	default:
		return t.Unknown()
	}

	rankName := s.rankNames(ctx, kind, id)
	var elements []prompt.Element
	if len(pending) > 0 {
		opts := make([]prompt.Option, len(pending))
		for i, b := range pending {
			label := fmt.Sprintf("%d: %s", i+1, strings.ReplaceAll(b.Criteria.Describe(rankName), "**", ""))
			opts[i] = prompt.Option{Label: truncate(label, maxOptionLength), Value: strconv.Itoa(i)}
		}
		elements = append(elements, prompt.Select(compUnbindMenu, "Select which binds to remove here...", 0, len(pending), opts...))
	}
	elements = append(elements, prompt.Button(compReturn, "Return", discord.ButtonSecondary))

	desc := "Use the selection menu below to remove some of your unsaved binds."
	if len(pending) > 0 {
		desc += "\n" + describePending(pending, rankName)
	}
	t.Render(prompt.Content{
		Title:       "Remove an unsaved bind.",
		Description: desc,
		Elements:    elements,
	})
	if note != "" {
		t.Followup(note, true)
	}
	return nil
}
