// Package history persists chats and their messages in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"searchbot/internal/domain"
)

// Store implements domain.HistoryStore on SQLite. Message rows use an
// AUTOINCREMENT key so sequence ids are never reused after truncation.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at dbPath and migrates it.
// ":memory:" is accepted for tests.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// Single connection: SQLite serializes writers anyway, and ":memory:"
	// databases are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// DB exposes the handle for packages sharing the database (uploads).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) EnsureChat(ctx context.Context, chat domain.Chat) (bool, error) {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	files := chat.Files
	if files == nil {
		files = []domain.FileRef{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return false, fmt.Errorf("marshal chat files: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO chats (id, title, created_at, focus_mode, files) VALUES (?, ?, ?, ?, ?)`,
		chat.ID, chat.Title, formatTime(chat.CreatedAt), chat.FocusMode, string(filesJSON),
	)
	if err != nil {
		return false, fmt.Errorf("insert chat %s: %w", chat.ID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) EnsureHumanMessage(ctx context.Context, chatID, messageID, content string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM messages WHERE chat_id = ? AND message_id = ? ORDER BY id LIMIT 1`,
		chatID, messageID,
	).Scan(&seq)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		meta, _ := json.Marshal(domain.Metadata{CreatedAt: time.Now()})
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (chat_id, message_id, role, content, metadata) VALUES (?, ?, ?, ?, ?)`,
			chatID, messageID, domain.RoleUser, content, string(meta),
		); err != nil {
			return false, fmt.Errorf("insert human message: %w", err)
		}
		return false, tx.Commit()
	case err != nil:
		return false, fmt.Errorf("lookup message %s: %w", messageID, err)
	}

	deleted, err := truncateAfter(ctx, tx, chatID, seq)
	if err != nil {
		return true, err
	}
	if err := tx.Commit(); err != nil {
		return true, fmt.Errorf("commit rewrite: %w", err)
	}
	s.logger.Debug("chat rewritten", "chat_id", chatID, "message_id", messageID, "deleted", deleted)
	return true, nil
}

// TruncateAfter deletes every message in the chat stored after messageID.
// The message itself is kept.
func (s *Store) TruncateAfter(ctx context.Context, chatID, messageID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM messages WHERE chat_id = ? AND message_id = ? ORDER BY id LIMIT 1`,
		chatID, messageID,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup message %s: %w", messageID, err)
	}
	return truncateAfter(ctx, s.db, chatID, seq)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func truncateAfter(ctx context.Context, db execer, chatID string, seq int64) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ? AND id > ?`, chatID, seq)
	if err != nil {
		return 0, fmt.Errorf("truncate chat %s: %w", chatID, err)
	}
	return res.RowsAffected()
}

func (s *Store) AppendAssistantMessage(ctx context.Context, chatID, messageID, content string, meta domain.Metadata) (int64, error) {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, message_id, role, content, metadata) VALUES (?, ?, ?, ?, ?)`,
		chatID, messageID, domain.RoleAssistant, content, string(metaJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("insert assistant message: %w", err)
	}
	return res.LastInsertId()
}

// ListChats returns chats newest first.
func (s *Store) ListChats(ctx context.Context, limit int) ([]domain.Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, focus_mode, files FROM chats ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []domain.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (s *Store) GetChat(ctx context.Context, id string) (domain.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, focus_mode, files FROM chats WHERE id = ?`, id)
	c, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Chat{}, fmt.Errorf("chat %s: %w", id, domain.ErrNotFound)
	}
	return c, err
}

// Messages returns a chat's messages in sequence order.
func (s *Store) Messages(ctx context.Context, chatID string) ([]domain.PersistedMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, message_id, role, content, metadata FROM messages WHERE chat_id = ? ORDER BY id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.PersistedMessage
	for rows.Next() {
		var m domain.PersistedMessage
		var meta string
		if err := rows.Scan(&m.SequenceID, &m.ChatID, &m.MessageID, &m.Role, &m.Content, &meta); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
			s.logger.Warn("corrupt message metadata", "id", m.SequenceID, "err", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// DeleteChat removes a chat and all its messages.
func (s *Store) DeleteChat(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chat %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat %s: %w", id, domain.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages of %s: %w", id, err)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner) (domain.Chat, error) {
	var c domain.Chat
	var created, files string
	if err := row.Scan(&c.ID, &c.Title, &created, &c.FocusMode, &files); err != nil {
		return domain.Chat{}, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if err := json.Unmarshal([]byte(files), &c.Files); err != nil {
		return domain.Chat{}, fmt.Errorf("decode chat files: %w", err)
	}
	return c, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
