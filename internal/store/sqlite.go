package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	_ "modernc.org/sqlite"

	"github.com/ashureev/rolelink/internal/domain"
	"github.com/ashureev/rolelink/internal/prompt"
	"github.com/ashureev/rolelink/internal/shared"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	stateMu sync.Mutex // serialises prompt state writes to avoid SQLITE_BUSY
	now     func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS bindings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		guild_id TEXT NOT NULL,
		bind_type TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		criteria_key TEXT NOT NULL,
		criteria_json TEXT NOT NULL,
		roles_json TEXT NOT NULL,
		remove_roles_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bindings_criteria ON bindings(guild_id, criteria_key);
	CREATE INDEX IF NOT EXISTS idx_bindings_type ON bindings(guild_id, bind_type, entity_id);

	CREATE TABLE IF NOT EXISTS group_locks (
		guild_id TEXT NOT NULL,
		group_id INTEGER NOT NULL,
		group_name TEXT NOT NULL,
		dm_message TEXT NOT NULL DEFAULT '',
		rolesets_json TEXT NOT NULL,
		verified_action TEXT NOT NULL,
		unverified_action TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (guild_id, group_id)
	);

	CREATE TABLE IF NOT EXISTS prompt_state (
		state_key TEXT NOT NULL,
		field TEXT NOT NULL,
		value_json TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (state_key, field)
	);
	CREATE INDEX IF NOT EXISTS idx_prompt_state_expires ON prompt_state(expires_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateBinding inserts a binding. The unique index on (guild_id, criteria_key)
// turns a concurrent duplicate into ErrBindConflict.
func (s *SQLiteStore) CreateBinding(ctx context.Context, b *domain.Binding) error {
	if err := b.Criteria.Validate(); err != nil {
		return fmt.Errorf("create binding: %w", err)
	}

	criteriaJSON, err := json.Marshal(b.Criteria)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}
	rolesJSON, err := json.Marshal(nonNil(b.Roles))
	if err != nil {
		return fmt.Errorf("encode roles: %w", err)
	}
	removeJSON, err := json.Marshal(nonNil(b.RemoveRoles))
	if err != nil {
		return fmt.Errorf("encode remove roles: %w", err)
	}

	query := `
	INSERT INTO bindings (guild_id, bind_type, entity_id, criteria_key, criteria_json, roles_json, remove_roles_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	createdAt := s.now()
	var result sql.Result
	err = withRetry(ctx, func() error {
		var err error
		result, err = s.db.ExecContext(ctx, query,
			b.GuildID, string(b.Criteria.Type), b.Criteria.ID, b.Criteria.Key(),
			string(criteriaJSON), string(rolesJSON), string(removeJSON), createdAt.Unix(),
		)
		return err
	})
	if shared.IsUniqueConstraintError(err) {
		return fmt.Errorf("%s in guild %s: %w", b.Criteria.Key(), b.GuildID, domain.ErrBindConflict)
	}
	if err != nil {
		return fmt.Errorf("insert binding: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get binding id: %w", err)
	}
	b.ID = id
	b.CreatedAt = time.Unix(createdAt.Unix(), 0)
	return nil
}

// HasBinding reports whether criteria is already bound in the guild.
func (s *SQLiteStore) HasBinding(ctx context.Context, guildID string, criteria domain.BindCriteria) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM bindings WHERE guild_id = ? AND criteria_key = ? LIMIT 1`,
		guildID, criteria.Key(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query binding: %w", err)
	}
	return true, nil
}

// ListBindings returns the guild's bindings matching filter.
func (s *SQLiteStore) ListBindings(ctx context.Context, guildID string, filter domain.BindingFilter) ([]*domain.Binding, error) {
	query := `
		SELECT id, guild_id, criteria_json, roles_json, remove_roles_json, created_at
		FROM bindings WHERE guild_id = ?`
	args := []interface{}{guildID}
	if filter.Type != "" {
		query += ` AND bind_type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.EntityID != 0 {
		query += ` AND entity_id = ?`
		args = append(args, filter.EntityID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bindings: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close bindings rows", "error", closeErr)
		}
	}()

	var out []*domain.Binding
	for rows.Next() {
		var b domain.Binding
		var criteriaJSON, rolesJSON, removeJSON string
		var createdAt int64
		if err := rows.Scan(&b.ID, &b.GuildID, &criteriaJSON, &rolesJSON, &removeJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan binding row: %w", err)
		}
		if err := json.Unmarshal([]byte(criteriaJSON), &b.Criteria); err != nil {
			return nil, fmt.Errorf("decode criteria of binding %d: %w", b.ID, err)
		}
		if err := json.Unmarshal([]byte(rolesJSON), &b.Roles); err != nil {
			return nil, fmt.Errorf("decode roles of binding %d: %w", b.ID, err)
		}
		if err := json.Unmarshal([]byte(removeJSON), &b.RemoveRoles); err != nil {
			return nil, fmt.Errorf("decode remove roles of binding %d: %w", b.ID, err)
		}
		b.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bindings: %w", err)
	}
	return out, nil
}

// Load returns the live fields of a prompt session.
func (s *SQLiteStore) Load(ctx context.Context, key string) (prompt.State, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, value_json FROM prompt_state WHERE state_key = ? AND expires_at > ?`,
		key, s.now().UnixMilli(),
	)
	if err != nil {
		return nil, unavailable("load", key, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close prompt state rows", "error", closeErr)
		}
	}()

	state := prompt.State{}
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, unavailable("scan", key, err)
		}
		state[field] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate", key, err)
	}
	return state, nil
}

// Save upserts the given fields and slides the expiry of the whole session.
func (s *SQLiteStore) Save(ctx context.Context, key string, partial prompt.State, ttl time.Duration) error {
	return s.writeState(ctx, "save", key, func(tx *sql.Tx, now, expires int64) error {
		for field, value := range partial {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO prompt_state (state_key, field, value_json, expires_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(state_key, field) DO UPDATE SET
					value_json = excluded.value_json,
					expires_at = excluded.expires_at`,
				key, field, string(value), expires,
			)
			if err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `UPDATE prompt_state SET expires_at = ? WHERE state_key = ?`, expires, key)
		return err
	}, ttl)
}

// Clear removes fields, or the whole session when none are named.
func (s *SQLiteStore) Clear(ctx context.Context, key string, ttl time.Duration, fields ...string) error {
	if len(fields) == 0 {
		return s.Delete(ctx, key)
	}
	return s.writeState(ctx, "clear", key, func(tx *sql.Tx, now, expires int64) error {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fields)), ",")
		args := make([]interface{}, 0, len(fields)+1)
		args = append(args, key)
		for _, f := range fields {
			args = append(args, f)
		}
		query := `DELETE FROM prompt_state WHERE state_key = ? AND field IN (` + placeholders + `)`
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE prompt_state SET expires_at = ? WHERE state_key = ?`, expires, key)
		return err
	}, ttl)
}

// Delete removes a prompt session.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	err := withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM prompt_state WHERE state_key = ?`, key)
		return err
	})
	if err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

// DeleteExpiredState removes every session row that expired before now.
func (s *SQLiteStore) DeleteExpiredState(ctx context.Context, now time.Time) (int64, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	var deleted int64
	err := withRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM prompt_state WHERE expires_at <= ?`, now.UnixMilli())
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired prompt state: %w", err)
	}
	return deleted, nil
}

// writeState runs fn in a transaction after dropping any expired rows of the
// session, so a write never revives expired fields.
func (s *SQLiteStore) writeState(ctx context.Context, op, key string, fn func(tx *sql.Tx, now, expires int64) error, ttl time.Duration) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	err := withRetry(ctx, func() error {
		now := s.now()
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM prompt_state WHERE state_key = ? AND expires_at <= ?`,
			key, now.UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := fn(tx, now.UnixMilli(), now.Add(ttl).UnixMilli()); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return unavailable(op, key, err)
	}
	return nil
}

func withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(shared.IsSQLiteConflictError),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("Database busy, retrying", "attempt", n+1, "error", err)
		}),
	)
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%s prompt state %s: %w: %w", op, key, prompt.ErrStoreUnavailable, err)
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
