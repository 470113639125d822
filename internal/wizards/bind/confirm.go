package bind

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/domain"
	"github.com/ashureev/rolelink/internal/prompt"
)

func groupURL(id int64) string {
	return fmt.Sprintf("https://www.roblox.com/groups/%d", id)
}

// confirmGroupRoles binds a whole group with dynamic roles, optionally
// creating a Discord role per roleset first.
func (s *Service) confirmGroupRoles(ctx context.Context, t *prompt.Turn) error {
	_, groupID, err := target(t)
	if err != nil {
		return err
	}
	guildID := t.GuildID()
	name := s.entityName(ctx, t, domain.KindGroup, groupID)
	link := fmt.Sprintf("[%s](<%s>)", name, groupURL(groupID))

	switch t.Fired() {
	case "":
		t.Render(prompt.Content{
			Title: "Role Creation Confirmation",
			Description: fmt.Sprintf("Would you like me to create Discord roles for each of your [group](%s)'s roles?", groupURL(groupID)) +
				"\n\n**Please note, even if you choose 'no', the bind will still be created.**",
			Elements: []prompt.Element{
				prompt.Button(compYes, "Yes", discord.ButtonSuccess),
				prompt.Button(compNo, "No", discord.ButtonDanger),
				prompt.Button(compCancel, "Cancel", discord.ButtonSecondary),
			},
			Footer: footer(domain.KindGroup, name),
		})
		return nil
	case compCancel:
		t.Render(prompt.Content{Text: "Cancelled. No changes were made."})
		t.Finish()
		return nil
	case compYes, compNo:
	default:
		return t.Unknown()
	}

	b := &domain.Binding{
		GuildID: guildID.String(),
		Criteria: domain.BindCriteria{
			Type:  domain.KindGroup,
			ID:    groupID,
			Group: &domain.GroupCriteria{Dynamic: true},
		},
	}
	conflict := func() {
		t.Render(prompt.Content{Text: fmt.Sprintf("You already have a group binding for %s. No changes were made.", link)})
		t.Finish()
	}

	// Roles are only created once the binding is known to be new.
	exists, err := s.bindings.HasBinding(ctx, b.GuildID, b.Criteria)
	if err != nil {
		return err
	}
	if exists {
		conflict()
		return nil
	}
	if t.Fired() == compYes {
		if err := s.createRolesetRoles(ctx, guildID, groupID); err != nil {
			return err
		}
	}

	err = s.bindings.CreateBinding(ctx, b)
	switch {
	case errors.Is(err, domain.ErrBindConflict):
		conflict()
		return nil
	case err != nil:
		return err
	}
	t.Render(prompt.Content{Text: fmt.Sprintf("Your group binding for %s has been saved. "+
		"When people join your server, they will receive a Discord role that corresponds to their group rank.", link)})
	t.Finish()
	return nil
}

// createRolesetRoles creates a role for each member rank of the group that the
// guild has no role with the same name for, highest rank first.
func (s *Service) createRolesetRoles(ctx context.Context, guildID discord.Snowflake, groupID int64) error {
	g, err := s.roblox.Group(ctx, groupID)
	if err != nil {
		return err
	}
	existing, err := s.guild.GuildRoles(ctx, guildID)
	if err != nil {
		return fmt.Errorf("list guild roles: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, r := range existing {
		have[r.Name] = true
	}

	ranks := g.MemberRanks()
	for i := len(ranks) - 1; i >= 0; i-- {
		name := ranks[i].Name
		if have[name] {
			continue
		}
		if _, err := s.guild.CreateRole(ctx, guildID, name); err != nil {
			return fmt.Errorf("create role %q: %w", name, err)
		}
		have[name] = true
	}
	return nil
}
