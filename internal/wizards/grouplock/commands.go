package grouplock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/dispatch"
	"github.com/ashureev/rolelink/internal/domain"
	"github.com/ashureev/rolelink/internal/prompt"
	"github.com/ashureev/rolelink/internal/roblox"
)

// permManageGuild is the MANAGE_GUILD permission bit.
const permManageGuild = "32"

const maxDMMessageLength = 500

// Commands returns the slash commands this package serves.
func (s *Service) Commands() []dispatch.Command {
	return []dispatch.Command{
		{Definition: definition(), Defer: true, Handler: s.command},
	}
}

func definition() discord.ApplicationCommand {
	perm := permManageGuild
	dm := false
	groupOption := discord.ApplicationCommandOption{
		Type:        discord.OptionInteger,
		Name:        "group",
		Description: "A Roblox group ID",
		Required:    true,
	}
	actionChoices := []discord.CommandChoice{
		{Name: "Kick", Value: string(domain.LockKick)},
		{Name: "DM", Value: string(domain.LockDM)},
	}
	return discord.ApplicationCommand{
		Name:                     "grouplock",
		Description:              "Manage the grouplock in this server.",
		DefaultMemberPermissions: &perm,
		DMPermission:             &dm,
		Options: []discord.ApplicationCommandOption{
			{
				Type:        discord.OptionSubCommand,
				Name:        "add",
				Description: "Add a group to the grouplock.",
				Options: []discord.ApplicationCommandOption{
					groupOption,
					{
						Type:        discord.OptionString,
						Name:        "rolesets",
						Description: "Only allow these ranks, as a comma separated list of rank numbers",
					},
					{
						Type:        discord.OptionString,
						Name:        "dm_message",
						Description: "Message sent to people who are turned away",
					},
					{
						Type:        discord.OptionString,
						Name:        "verified_action",
						Description: "What to do with verified users outside the group",
						Choices:     actionChoices,
					},
					{
						Type:        discord.OptionString,
						Name:        "unverified_action",
						Description: "What to do with users who are not verified",
						Choices:     actionChoices,
					},
				},
			},
			{
				Type:        discord.OptionSubCommand,
				Name:        "delete",
				Description: "Remove a group from the grouplock.",
				Options:     []discord.ApplicationCommandOption{groupOption},
			},
			{
				Type:        discord.OptionSubCommand,
				Name:        "view",
				Description: "View the groups in your grouplock.",
			},
		},
	}
}

func (s *Service) command(ctx context.Context, req *dispatch.Request) error {
	in := req.Interaction
	if in.GuildID == 0 {
		return prompt.Reject("This command can only be used in a server.")
	}
	sub, opts := in.Subcommand()
	switch sub {
	case "add":
		return s.add(ctx, req, opts)
	case "delete":
		return s.delete(ctx, req, opts)
	case "view":
		req.Log.Info("Opening grouplock view")
		return req.Engine.Start(ctx, in, req.Channel, WizardView)
	}
	return fmt.Errorf("unknown grouplock subcommand %q", sub)
}

func (s *Service) add(ctx context.Context, req *dispatch.Request, opts []discord.CommandOption) error {
	groupID, ok := discord.IntOption(opts, "group")
	if !ok || groupID <= 0 {
		return prompt.Reject("Please give a valid group ID.")
	}
	g, err := s.roblox.Group(ctx, groupID)
	if err != nil {
		return err
	}

	lock := &domain.GroupLock{
		GuildID:   req.Interaction.GuildID.String(),
		GroupID:   groupID,
		GroupName: g.Name,
	}
	if raw, ok := discord.StringOption(opts, "rolesets"); ok && strings.TrimSpace(raw) != "" {
		if lock.Rolesets, err = parseRolesets(raw, g.Rolesets); err != nil {
			return err
		}
	}
	if msg, ok := discord.StringOption(opts, "dm_message"); ok {
		lock.DMMessage = strings.TrimSpace(msg)
		if len([]rune(lock.DMMessage)) > maxDMMessageLength {
			return prompt.Reject("The DM message can be at most %d characters long.", maxDMMessageLength)
		}
	}
	for _, a := range []struct {
		option string
		dst    *domain.LockAction
	}{
		{"verified_action", &lock.VerifiedAction},
		{"unverified_action", &lock.UnverifiedAction},
	} {
		v, _ := discord.StringOption(opts, a.option)
		action, ok := domain.ParseLockAction(v)
		if !ok {
			return prompt.Reject("`%s` is not a valid action. Choose `kick` or `dm`.", v)
		}
		*a.dst = action
	}

	err = s.locks.AddGroupLock(ctx, lock)
	if errors.Is(err, domain.ErrGroupLockExists) {
		return prompt.Reject("**%s** (%d) is already in your grouplock.", g.Name, groupID)
	}
	if err != nil {
		return fmt.Errorf("add group lock: %w", err)
	}
	req.Log.Info("Group lock added", "group_id", groupID)
	return req.Channel.Show(ctx, discord.MessageData{
		Content: fmt.Sprintf("Your grouplock has been saved. Only members of **%s** (%d) may join this server.", g.Name, groupID),
	})
}

func (s *Service) delete(ctx context.Context, req *dispatch.Request, opts []discord.CommandOption) error {
	groupID, ok := discord.IntOption(opts, "group")
	if !ok || groupID <= 0 {
		return prompt.Reject("Please give a valid group ID.")
	}
	err := s.locks.DeleteGroupLock(ctx, req.Interaction.GuildID.String(), groupID)
	if errors.Is(err, domain.ErrGroupLockNotFound) {
		return prompt.Reject("The group %d is not in your grouplock.", groupID)
	}
	if err != nil {
		return fmt.Errorf("delete group lock: %w", err)
	}
	req.Log.Info("Group lock deleted", "group_id", groupID)
	return req.Channel.Show(ctx, discord.MessageData{
		Content: fmt.Sprintf("The group %d has been removed from your grouplock.", groupID),
	})
}

// parseRolesets reads a comma separated rank list and checks every rank
// exists in the group. The result is sorted and free of duplicates.
func parseRolesets(raw string, rolesets []roblox.Roleset) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		rank, err := strconv.Atoi(part)
		if err != nil {
			return nil, prompt.Reject("`%s` is not a rank number.", part)
		}
		if !slices.ContainsFunc(rolesets, func(r roblox.Roleset) bool { return r.Rank == rank }) {
			return nil, prompt.Reject("The group has no rank %d.", rank)
		}
		out = append(out, rank)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
