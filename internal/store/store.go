// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/rolelink/internal/domain"
	"github.com/ashureev/rolelink/internal/prompt"
)

// BindingRepository persists guild bindings.
type BindingRepository interface {
	// CreateBinding inserts b and sets its ID. A binding with the same criteria
	// in the same guild yields domain.ErrBindConflict.
	CreateBinding(ctx context.Context, b *domain.Binding) error

	// HasBinding reports whether the guild already binds criteria.
	HasBinding(ctx context.Context, guildID string, criteria domain.BindCriteria) (bool, error)

	// ListBindings returns the guild's bindings matching filter, oldest first.
	ListBindings(ctx context.Context, guildID string, filter domain.BindingFilter) ([]*domain.Binding, error)
}

// GroupLockRepository persists guild group locks.
type GroupLockRepository interface {
	// AddGroupLock inserts l. A lock on the same group in the same guild
	// yields domain.ErrGroupLockExists.
	AddGroupLock(ctx context.Context, l *domain.GroupLock) error

	// DeleteGroupLock removes the guild's lock on groupID, or returns
	// domain.ErrGroupLockNotFound.
	DeleteGroupLock(ctx context.Context, guildID string, groupID int64) error

	// ListGroupLocks returns the guild's locks, oldest first.
	ListGroupLocks(ctx context.Context, guildID string) ([]*domain.GroupLock, error)
}

// Repository is everything the service persists.
type Repository interface {
	BindingRepository
	GroupLockRepository
	prompt.StateStore

	// DeleteExpiredState removes prompt sessions that expired before now.
	DeleteExpiredState(ctx context.Context, now time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
