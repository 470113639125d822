package bind

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/dispatch"
	"github.com/ashureev/rolelink/internal/domain"
	"github.com/ashureev/rolelink/internal/prompt"
)

// maxBindsPerPage caps how many bindings /viewbinds lists.
const maxBindsPerPage = 10

// permManageGuild is the MANAGE_GUILD permission bit.
const permManageGuild = "32"

// Commands returns the slash commands this package serves.
func (s *Service) Commands() []dispatch.Command {
	return []dispatch.Command{
		{Definition: bindDefinition(), Defer: true, Handler: s.bindCommand},
		{Definition: viewBindsDefinition(), Defer: true, Handler: s.viewBinds},
	}
}

func bindDefinition() discord.ApplicationCommand {
	perm := permManageGuild
	dm := false
	idOption := func(kind domain.EntityKind, description string) discord.ApplicationCommandOption {
		return discord.ApplicationCommandOption{
			Type:        discord.OptionInteger,
			Name:        string(kind) + "_id",
			Description: description,
			Required:    true,
		}
	}
	return discord.ApplicationCommand{
		Name:                     "bind",
		Description:              "Bind Discord role(s) to Roblox entities",
		DefaultMemberPermissions: &perm,
		DMPermission:             &dm,
		Options: []discord.ApplicationCommandOption{
			{
				Type:        discord.OptionSubCommand,
				Name:        string(domain.KindGroup),
				Description: "Bind a group to your server",
				Options: []discord.ApplicationCommandOption{
					idOption(domain.KindGroup, "What is your group ID?"),
					{
						Type:        discord.OptionString,
						Name:        "bind_mode",
						Description: "How should we merge your group with Discord?",
						Required:    true,
						Choices: []discord.CommandChoice{
							{Name: "Bind all current and future group roles", Value: "entire_group"},
							{Name: "Choose specific group roles", Value: "specific_roles"},
						},
					},
				},
			},
			{
				Type:        discord.OptionSubCommand,
				Name:        string(domain.KindAsset),
				Description: "Bind a catalog asset to your server",
				Options:     []discord.ApplicationCommandOption{idOption(domain.KindAsset, "What is your catalog asset ID?")},
			},
			{
				Type:        discord.OptionSubCommand,
				Name:        string(domain.KindBadge),
				Description: "Bind a badge to your server",
				Options:     []discord.ApplicationCommandOption{idOption(domain.KindBadge, "What is your badge ID?")},
			},
			{
				Type:        discord.OptionSubCommand,
				Name:        string(domain.KindGamePass),
				Description: "Bind a gamepass to your server",
				Options:     []discord.ApplicationCommandOption{idOption(domain.KindGamePass, "What is your gamepass ID?")},
			},
		},
	}
}

func viewBindsDefinition() discord.ApplicationCommand {
	dm := false
	choices := make([]discord.CommandChoice, 0, len(domain.EntityKinds))
	for _, k := range domain.EntityKinds {
		choices = append(choices, discord.CommandChoice{Name: k.Label(), Value: string(k)})
	}
	return discord.ApplicationCommand{
		Name:         "viewbinds",
		Description:  "View your binds for your server",
		DMPermission: &dm,
		Options: []discord.ApplicationCommandOption{
			{
				Type:        discord.OptionString,
				Name:        "category",
				Description: "Choose what type of binds you want to see.",
				Required:    true,
				Choices:     choices,
			},
			{
				Type:        discord.OptionInteger,
				Name:        "id",
				Description: "Only show binds for this ID.",
			},
		},
	}
}

// bindCommand checks the entity exists and opens the matching wizard.
func (s *Service) bindCommand(ctx context.Context, req *dispatch.Request) error {
	in := req.Interaction
	if in.GuildID == 0 {
		return prompt.Reject("This command can only be used in a server.")
	}
	sub, opts := in.Subcommand()
	kind, ok := domain.ParseEntityKind(sub)
	if !ok {
		return fmt.Errorf("unknown bind subcommand %q", sub)
	}
	id, ok := discord.IntOption(opts, string(kind)+"_id")
	if !ok || id <= 0 {
		return prompt.Reject("Please give a valid %s ID.", kind)
	}

	if kind == domain.KindGroup {
		if _, err := s.roblox.Group(ctx, id); err != nil {
			return err
		}
		wizard := WizardGroup
		if mode, _ := discord.StringOption(opts, "bind_mode"); mode == "entire_group" {
			wizard = WizardGroupConfirm
		}
		req.Log.Info("Starting bind wizard", "wizard", wizard, "group_id", id)
		return req.Engine.Start(ctx, in, req.Channel, wizard,
			prompt.Field{Name: fieldGroupID, Value: strconv.FormatInt(id, 10)})
	}

	if _, err := s.roblox.Entity(ctx, kind, id); err != nil {
		return err
	}
	req.Log.Info("Starting bind wizard", "wizard", WizardEntity, "kind", string(kind), "entity_id", id)
	return req.Engine.Start(ctx, in, req.Channel, WizardEntity,
		prompt.Field{Name: fieldEntityType, Value: string(kind)},
		prompt.Field{Name: fieldEntityID, Value: strconv.FormatInt(id, 10)},
	)
}

// viewBinds lists the guild's saved bindings of one category.
func (s *Service) viewBinds(ctx context.Context, req *dispatch.Request) error {
	in := req.Interaction
	if in.GuildID == 0 {
		return prompt.Reject("This command can only be used in a server.")
	}
	var opts []discord.CommandOption
	if in.Data != nil {
		opts = in.Data.Options
	}
	category, _ := discord.StringOption(opts, "category")
	kind, ok := domain.ParseEntityKind(category)
	if !ok {
		return prompt.Reject("Your given category option was invalid. " +
			"Only `Group`, `Asset`, `Badge`, and `Gamepass` are allowed options.")
	}
	filter := domain.BindingFilter{Type: kind}
	if id, ok := discord.IntOption(opts, "id"); ok {
		filter.EntityID = id
	}

	bindings, err := s.bindings.ListBindings(ctx, in.GuildID.String(), filter)
	if err != nil {
		return fmt.Errorf("list bindings: %w", err)
	}
	embed := discord.Embed{Title: fmt.Sprintf("%s Binds", kind.Label())}
	if len(bindings) == 0 {
		embed.Description = "You have no binds that match the options you passed. " +
			"Please use `/bind` to make a new role bind, or try again with different options."
		return req.Channel.Show(ctx, discord.MessageData{Embeds: []discord.Embed{embed}})
	}

	total := len(bindings)
	if total > maxBindsPerPage {
		bindings = bindings[:maxBindsPerPage]
		embed.Footer = &discord.EmbedFooter{Text: fmt.Sprintf("Showing %d of %d binds", maxBindsPerPage, total)}
	}

	// One field per entity, in first-seen order.
	var order []int64
	byEntity := map[int64][]*domain.Binding{}
	for _, b := range bindings {
		if _, ok := byEntity[b.Criteria.ID]; !ok {
			order = append(order, b.Criteria.ID)
		}
		byEntity[b.Criteria.ID] = append(byEntity[b.Criteria.ID], b)
	}
	for _, id := range order {
		name := s.viewName(ctx, kind, id)
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name:  fmt.Sprintf("%s (%d)", name, id),
			Value: describeBindings(byEntity[id], s.rankNames(ctx, kind, id)),
		})
	}
	return req.Channel.Show(ctx, discord.MessageData{Embeds: []discord.Embed{embed}})
}

func (s *Service) viewName(ctx context.Context, kind domain.EntityKind, id int64) string {
	if kind == domain.KindGroup {
		if g, err := s.roblox.Group(ctx, id); err == nil {
			return g.Name
		}
		return kind.Label()
	}
	if e, err := s.roblox.Entity(ctx, kind, id); err == nil {
		return e.Name
	}
	return kind.Label()
}
