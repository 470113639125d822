package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/rolelink/internal/domain"
	"github.com/ashureev/rolelink/internal/shared"
)

// AddGroupLock inserts a group lock. The primary key on (guild_id, group_id)
// turns a duplicate into ErrGroupLockExists.
func (s *SQLiteStore) AddGroupLock(ctx context.Context, l *domain.GroupLock) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("add group lock: %w", err)
	}
	rolesets := l.Rolesets
	if rolesets == nil {
		rolesets = []int{}
	}
	rolesetsJSON, err := json.Marshal(rolesets)
	if err != nil {
		return fmt.Errorf("encode rolesets: %w", err)
	}
	verified, _ := domain.ParseLockAction(string(l.VerifiedAction))
	unverified, _ := domain.ParseLockAction(string(l.UnverifiedAction))

	query := `
	INSERT INTO group_locks (guild_id, group_id, group_name, dm_message, rolesets_json, verified_action, unverified_action, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	createdAt := s.now()
	err = withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			l.GuildID, l.GroupID, l.GroupName, l.DMMessage, string(rolesetsJSON),
			string(verified), string(unverified), createdAt.Unix(),
		)
		return err
	})
	if shared.IsUniqueConstraintError(err) {
		return fmt.Errorf("group %d in guild %s: %w", l.GroupID, l.GuildID, domain.ErrGroupLockExists)
	}
	if err != nil {
		return fmt.Errorf("insert group lock: %w", err)
	}
	l.VerifiedAction, l.UnverifiedAction = verified, unverified
	l.CreatedAt = time.Unix(createdAt.Unix(), 0)
	return nil
}

// DeleteGroupLock removes one group lock.
func (s *SQLiteStore) DeleteGroupLock(ctx context.Context, guildID string, groupID int64) error {
	var n int64
	err := withRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx,
			`DELETE FROM group_locks WHERE guild_id = ? AND group_id = ?`, guildID, groupID)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete group lock: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("group %d in guild %s: %w", groupID, guildID, domain.ErrGroupLockNotFound)
	}
	return nil
}

// ListGroupLocks returns the guild's group locks.
func (s *SQLiteStore) ListGroupLocks(ctx context.Context, guildID string) ([]*domain.GroupLock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, group_name, dm_message, rolesets_json, verified_action, unverified_action, created_at
		FROM group_locks WHERE guild_id = ? ORDER BY created_at, group_id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query group locks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close group lock rows", "error", closeErr)
		}
	}()

	var out []*domain.GroupLock
	for rows.Next() {
		l := domain.GroupLock{GuildID: guildID}
		var rolesetsJSON, verified, unverified string
		var createdAt int64
		if err := rows.Scan(&l.GroupID, &l.GroupName, &l.DMMessage, &rolesetsJSON, &verified, &unverified, &createdAt); err != nil {
			return nil, fmt.Errorf("scan group lock row: %w", err)
		}
		if err := json.Unmarshal([]byte(rolesetsJSON), &l.Rolesets); err != nil {
			return nil, fmt.Errorf("decode rolesets of group lock %d: %w", l.GroupID, err)
		}
		l.VerifiedAction = domain.LockAction(verified)
		l.UnverifiedAction = domain.LockAction(unverified)
		l.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group locks: %w", err)
	}
	return out, nil
}
