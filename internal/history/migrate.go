package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// schemaVersion is the current expected schema version.
const schemaVersion = 2

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations are applied in order. Versions must be contiguous from 1 and
// the last one must equal schemaVersion.
var migrations = []migration{
	{
		Version:     1,
		Description: "chats and messages",
		SQL: `
		CREATE TABLE IF NOT EXISTS chats (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			focus_mode  TEXT NOT NULL DEFAULT '',
			files       TEXT NOT NULL DEFAULT '[]'
		);

		CREATE TABLE IF NOT EXISTS messages (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id     TEXT NOT NULL,
			message_id  TEXT NOT NULL,
			role        TEXT NOT NULL,
			content     TEXT NOT NULL DEFAULT '',
			metadata    TEXT NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, id);
		CREATE INDEX IF NOT EXISTS idx_messages_msgid ON messages(chat_id, message_id);
		`,
	},
	{
		Version:     2,
		Description: "uploaded attachments",
		SQL: `
		CREATE TABLE IF NOT EXISTS uploads (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			extension   TEXT NOT NULL DEFAULT '',
			mime_type   TEXT NOT NULL DEFAULT '',
			size        INTEGER NOT NULL DEFAULT 0,
			path        TEXT NOT NULL,
			created_at  TEXT NOT NULL
		);
		`,
	},
}

// ErrSchemaTooNew is returned for a database written by a newer build.
var ErrSchemaTooNew = errors.New("history database schema is newer than this binary")

// RunMigrations brings db up to schemaVersion. Each migration runs in its
// own transaction together with its schema_version row.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}
	if current > schemaVersion {
		return fmt.Errorf("%w: found v%d, support up to v%d", ErrSchemaTooNew, current, schemaVersion)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying history migration", "version", m.Version, "description", m.Description)
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("migration v%d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

// GetSchemaVersion returns the applied schema version, 0 for a fresh database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var tables int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'",
	).Scan(&tables); err != nil || tables == 0 {
		return 0, err
	}
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}
