package bind

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/domain"
	"github.com/ashureev/rolelink/internal/store"
)

// RoleCreator creates Discord roles.
type RoleCreator interface {
	CreateRole(ctx context.Context, guildID discord.Snowflake, name string) (*discord.Role, error)
}

// Publisher turns pending binds into persisted bindings. It is the only place
// the wizards cause side effects.
type Publisher struct {
	roles    RoleCreator
	bindings store.BindingRepository
	log      *slog.Logger

	mu     sync.Mutex
	guilds map[string]*sync.Mutex
}

// NewPublisher creates a Publisher.
func NewPublisher(roles RoleCreator, bindings store.BindingRepository, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{roles: roles, bindings: bindings, log: log, guilds: map[string]*sync.Mutex{}}
}

// lockGuild serialises publishes within a guild, so two sessions cannot both
// pass the conflict check and create roles for the same criteria.
func (p *Publisher) lockGuild(guild string) func() {
	p.mu.Lock()
	l, ok := p.guilds[guild]
	if !ok {
		l = &sync.Mutex{}
		p.guilds[guild] = l
	}
	p.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Publish saves pending in order. Every criteria is checked for conflicts
// before anything is created, so a repeated publish fails without creating
// roles. On error the bindings saved so far are returned with it.
func (p *Publisher) Publish(ctx context.Context, guildID discord.Snowflake, pending []domain.PendingBinding) ([]*domain.Binding, error) {
	guild := guildID.String()
	defer p.lockGuild(guild)()

	seen := make(map[string]bool, len(pending))
	for _, b := range pending {
		if err := b.Criteria.Validate(); err != nil {
			return nil, fmt.Errorf("pending bind: %w", err)
		}
		key := b.Criteria.Key()
		if seen[key] {
			return nil, fmt.Errorf("%s listed twice: %w", key, domain.ErrBindConflict)
		}
		seen[key] = true

		exists, err := p.bindings.HasBinding(ctx, guild, b.Criteria)
		if err != nil {
			return nil, fmt.Errorf("check binding %s: %w", key, err)
		}
		if exists {
			return nil, fmt.Errorf("%s in guild %s: %w", key, guild, domain.ErrBindConflict)
		}
	}

	created := make([]*domain.Binding, 0, len(pending))
	for _, b := range pending {
		roles := append([]string(nil), b.Roles...)
		for _, name := range b.NewRoles {
			role, err := p.roles.CreateRole(ctx, guildID, name)
			if err != nil {
				return created, fmt.Errorf("create role %q: %w", name, err)
			}
			p.log.Info("Created role for binding", "guild_id", guild, "role_id", role.ID.String(), "name", name)
			roles = append(roles, role.ID.String())
		}

		binding := &domain.Binding{
			GuildID:     guild,
			Criteria:    b.Criteria,
			Roles:       roles,
			RemoveRoles: b.RemoveRoles,
		}
		if err := p.bindings.CreateBinding(ctx, binding); err != nil {
			return created, err
		}
		created = append(created, binding)
	}
	return created, nil
}
