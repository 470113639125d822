// Package bind implements the /bind and /viewbinds commands and the wizards
// that assemble Roblox to Discord role bindings.
package bind

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/domain"
	"github.com/ashureev/rolelink/internal/prompt"
	"github.com/ashureev/rolelink/internal/roblox"
	"github.com/ashureev/rolelink/internal/store"
)

// Wizard names. They are part of every custom id, so keep them short.
const (
	WizardGroup        = "group"
	WizardEntity       = "entity"
	WizardGroupConfirm = "grcp"
)

// Page names shared by the group and entity wizards.
const (
	pageCurrentBinds = "current_binds"
	pageCreateBind   = "create_bind_page"
	pageRankAndRole  = "bind_rank_and_role"
	pageRange        = "bind_range"
	pageRole         = "bind_role"
	pageRemove       = "remove_unsaved_bind"
	pageConfirm      = "confirm"
)

// Component ids.
const (
	compNewBind      = "new_bind"
	compPublish      = "publish"
	compDeleteBind   = "delete_bind"
	compCriteria     = "criteria_select"
	compDiscordRole  = "discord_role"
	compGroupRank    = "group_rank"
	compNewRole      = "new_role"
	compExistingRole = "existing_role"
	compRankModal    = "modal_roleset"
	compUnbindMenu   = "unbind_menu"
	compReturn       = "return"
	compYes          = "yes"
	compNo           = "no"
	compCancel       = "cancel"
)

// State keys owned by the wizards. Select values live under their component id.
const (
	keyPending    = "pending_binds"
	keyEntityName = "entity_name"
	keyNewRole    = "new_role_name"
)

const (
	fieldGroupID    = "group_id"
	fieldEntityType = "entity_type"
	fieldEntityID   = "entity_id"
)

var (
	groupSchema  = prompt.Schema{{Name: fieldGroupID, Kind: prompt.FieldInt}}
	entitySchema = prompt.Schema{
		{Name: fieldEntityType, Kind: prompt.FieldString},
		{Name: fieldEntityID, Kind: prompt.FieldInt},
	}
)

//go:embed pages.yaml
var staticPages []byte

// Roblox resolves the entities bindings refer to.
type Roblox interface {
	Group(ctx context.Context, id int64) (*roblox.Group, error)
	Entity(ctx context.Context, kind domain.EntityKind, id int64) (*roblox.Entity, error)
}

// Guild manages Discord roles.
type Guild interface {
	CreateRole(ctx context.Context, guildID discord.Snowflake, name string) (*discord.Role, error)
	GuildRoles(ctx context.Context, guildID discord.Snowflake) ([]discord.Role, error)
}

// Service owns the bind wizards and commands.
type Service struct {
	roblox    Roblox
	guild     Guild
	bindings  store.BindingRepository
	publisher *Publisher
	log       *slog.Logger
}

// NewService creates a bind service.
func NewService(rbx Roblox, guild Guild, bindings store.BindingRepository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "bind")
	return &Service{
		roblox:    rbx,
		guild:     guild,
		bindings:  bindings,
		publisher: NewPublisher(guild, bindings, log),
		log:       log,
	}
}

// Register adds the bind wizards to reg.
func (s *Service) Register(reg *prompt.Registry) error {
	static, err := prompt.LoadStaticPages(bytes.NewReader(staticPages))
	if err != nil {
		return err
	}

	group := prompt.NewWizard(WizardGroup, groupSchema).
		Page(pageCurrentBinds, s.currentBinds).
		Add(static...).
		Page(pageRankAndRole, s.bindRankAndRole).
		Page(pageRange, s.bindRange).
		Page(pageRole, s.bindRole).
		Page(pageRemove, s.removeUnsavedBind)

	entity := prompt.NewWizard(WizardEntity, entitySchema).
		Page(pageCurrentBinds, s.currentBinds).
		Page(pageRole, s.bindRole).
		Page(pageRemove, s.removeUnsavedBind)

	confirm := prompt.NewWizard(WizardGroupConfirm, groupSchema).
		Page(pageConfirm, s.confirmGroupRoles)

	for _, w := range []*prompt.Wizard{group, entity, confirm} {
		if err := reg.Register(w); err != nil {
			return fmt.Errorf("register wizard %s: %w", w.Name, err)
		}
	}
	return nil
}

// target returns the entity the running wizard binds.
func target(t *prompt.Turn) (domain.EntityKind, int64, error) {
	id := t.Identity()
	if id.Wizard == WizardEntity {
		kind, ok := domain.ParseEntityKind(id.Get(fieldEntityType))
		if !ok || kind == domain.KindGroup {
			return "", 0, fmt.Errorf("%w: entity type %q", prompt.ErrMalformedToken, id.Get(fieldEntityType))
		}
		return kind, id.Int(fieldEntityID), nil
	}
	return domain.KindGroup, id.Int(fieldGroupID), nil
}
