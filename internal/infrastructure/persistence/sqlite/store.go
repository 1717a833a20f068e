// Package sqlite is a single-file giveaway store for self-hosted deployments
// that do not run PostgreSQL. The schema mirrors the postgres migrations and
// is created with gorm's AutoMigrate.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/amazo-world/amazo-bot/internal/domain/shared"
)

// connOptions enables foreign keys and waits on a busy database instead of
// failing immediately.
const connOptions = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// ══════════════════════════════════════════════════════════════════════════════
// MODELS
// ══════════════════════════════════════════════════════════════════════════════

type eventRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"`
	Name      string `gorm:"not null"`
	EndDate   string `gorm:"not null"`
	IsActive  bool   `gorm:"not null"`
	CreatedAt time.Time
}

func (eventRow) TableName() string { return "giveaways" }

type entryRow struct {
	UserID        int64     `gorm:"primaryKey;autoIncrement:false;index:idx_entries_user"`
	EventID       int64     `gorm:"primaryKey;autoIncrement:false;index:idx_entries_event"`
	Event         *eventRow `gorm:"foreignKey:EventID;references:ID"`
	Username      string    `gorm:"not null"`
	WalletAddress string    `gorm:"not null"`
	ReferredBy    *int64
	ReferralCount int `gorm:"not null"`
	CreatedAt     time.Time
}

func (entryRow) TableName() string { return "entries" }

type creditRow struct {
	ReferredUserID int64 `gorm:"primaryKey;autoIncrement:false"`
	EventID        int64 `gorm:"primaryKey;autoIncrement:false"`
	ReferrerID     int64 `gorm:"not null"`
	CreatedAt      time.Time
}

func (creditRow) TableName() string { return "referral_credits" }

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Config holds SQLite store settings.
type Config struct {
	// Path of the database file. Empty opens a private in-memory database.
	Path string

	Logger *slog.Logger
}

// Store owns the gorm handle.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database and brings the schema up to date.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dsn := "file::memory:?_pragma=foreign_keys(1)"
	if cfg.Path != "" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?%s", cfg.Path, connOptions)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps an in-memory database alive on a
	// single connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("configure tracing: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("sqlite store opened", "path", cfg.Path)
	return s, nil
}

func (s *Store) migrate() error {
	for _, model := range []any{&eventRow{}, &entryRow{}, &creditRow{}} {
		s.logger.Debug("migrating table", "model", fmt.Sprintf("%T", model))
		if err := s.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}

	// At most one active event, as in the postgres schema.
	err := s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_giveaways_single_active
		ON giveaways (is_active) WHERE is_active`).Error
	if err != nil {
		return fmt.Errorf("create active index: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return classify("Ping", err)
	}
	return classify("Ping", sqlDB.PingContext(ctx))
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Error helpers
// ─────────────────────────────────────────────────────────────────────────────

// IsUniqueViolation reports a primary key or unique index conflict.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsForeignKeyViolation reports a missing referenced row.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrForeignKeyViolated) || strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return shared.WrapError("store", op, shared.ErrTimeout, "query timed out", err)
	case errors.Is(err, context.Canceled):
		return err
	case IsUniqueViolation(err):
		return shared.WrapError("store", op, shared.ErrAlreadyExists, "duplicate key", err)
	case isBusy(err):
		return shared.WrapError("store", op, shared.ErrStoreUnavailable, "database is busy", err)
	default:
		return fmt.Errorf("sqlite: %s: %w", op, err)
	}
}
