package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// AppliedMigrations returns applied versions with their timestamps.
func (m *Migrator) AppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}

	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
// It returns the versions that were applied.
func (m *Migrator) Migrate(ctx context.Context) ([]int, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	var done []int
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name,
			)
			return err
		})
		if err != nil {
			return done, fmt.Errorf("%w: version %d: %w", ErrMigrationFailed, mig.Version, err)
		}
		done = append(done, mig.Version)
	}

	return done, nil
}

// Rollback reverts the most recently applied migration.
func (m *Migrator) Rollback(ctx context.Context) (int, error) {
	applied, err := m.AppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	last := 0
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return 0, nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
			break
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return 0, fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	err = m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
	if err != nil {
		return 0, err
	}
	return last, nil
}

// Status returns every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_giveaways", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_entries", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_referral_credits", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: GIVEAWAYS
// end_date is kept as text ("YYYY-MM-DDT23:59:59Z") to match rows written by
// the Supabase dashboard and older bot versions.
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS giveaways (
    id BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    end_date TEXT NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT giveaways_valid_id CHECK (id > 0)
);

-- At most one active event.
CREATE UNIQUE INDEX IF NOT EXISTS idx_giveaways_single_active
    ON giveaways (is_active) WHERE is_active;
`

const migration001Down = `
DROP INDEX IF EXISTS idx_giveaways_single_active;
DROP TABLE IF EXISTS giveaways;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS entries (
    user_id BIGINT NOT NULL,
    event_id BIGINT NOT NULL REFERENCES giveaways(id),
    username TEXT NOT NULL,
    wallet_address TEXT NOT NULL,
    referred_by BIGINT,
    referral_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT entries_user_event_key UNIQUE (user_id, event_id),
    CONSTRAINT entries_no_self_referral CHECK (referred_by IS NULL OR referred_by <> user_id),
    CONSTRAINT entries_referral_count_non_negative CHECK (referral_count >= 0)
);

CREATE INDEX IF NOT EXISTS idx_entries_event_referrals ON entries (event_id, referral_count DESC);
CREATE INDEX IF NOT EXISTS idx_entries_user ON entries (user_id);

-- Used by older clients through the Supabase RPC endpoint.
CREATE OR REPLACE FUNCTION increment_referral(row_id BIGINT, target_event_id BIGINT)
RETURNS VOID
LANGUAGE sql
AS $$
    UPDATE entries
    SET referral_count = referral_count + 1
    WHERE user_id = row_id AND event_id = target_event_id;
$$;
`

const migration002Down = `
DROP FUNCTION IF EXISTS increment_referral(BIGINT, BIGINT);
DROP TABLE IF EXISTS entries;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: REFERRAL CREDITS
// One row per referred entry. Crediting inserts here first, so a retried
// credit for the same registration cannot count twice.
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS referral_credits (
    referred_user_id BIGINT NOT NULL,
    event_id BIGINT NOT NULL,
    referrer_id BIGINT NOT NULL,
    credited_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (referred_user_id, event_id),
    FOREIGN KEY (referred_user_id, event_id) REFERENCES entries (user_id, event_id)
);
`

const migration003Down = `
DROP TABLE IF EXISTS referral_credits;
`
