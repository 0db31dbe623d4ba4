// Package uploads stores chat attachments on disk, records them in the
// shared SQLite database and extracts their text for prompts.
package uploads

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"searchbot/internal/domain"
)

// ErrTooLarge is returned by Save when the upload exceeds the size limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

const maxTextChars = 20000

// File is one stored upload.
type File struct {
	ID        string
	Name      string
	Extension string
	MimeType  string
	Size      int64
	Path      string
	CreatedAt time.Time
}

type Config struct {
	DB      *sql.DB
	Dir     string
	MaxSize int64
	Logger  *slog.Logger
}

type Store struct {
	db      *sql.DB
	dir     string
	maxSize int64
	logger  *slog.Logger
}

func New(cfg Config) (*Store, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 20 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{db: cfg.DB, dir: cfg.Dir, maxSize: cfg.MaxSize, logger: cfg.Logger}, nil
}

// Save writes r to disk under a fresh id and records it.
func (s *Store) Save(ctx context.Context, name, mimeType string, r io.Reader) (File, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	f := File{
		ID:        uuid.NewString(),
		Name:      filepath.Base(name),
		Extension: ext,
		MimeType:  mimeType,
		CreatedAt: time.Now().UTC(),
	}
	f.Path = filepath.Join(s.dir, f.ID)
	if ext != "" {
		f.Path += "." + ext
	}

	out, err := os.Create(f.Path)
	if err != nil {
		return File{}, fmt.Errorf("create %s: %w", f.Path, err)
	}
	n, err := io.Copy(out, io.LimitReader(r, s.maxSize+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > s.maxSize {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(f.Path)
		return File{}, err
	}
	f.Size = n

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO uploads (id, name, extension, mime_type, size, path, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Name, f.Extension, f.MimeType, f.Size, f.Path, f.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		os.Remove(f.Path)
		return File{}, fmt.Errorf("record upload: %w", err)
	}
	s.logger.Info("upload stored", "id", f.ID, "name", f.Name, "size", f.Size)
	return f, nil
}

// Get returns the upload with id, or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (File, error) {
	var f File
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, extension, mime_type, size, path, created_at FROM uploads WHERE id = ?`, id,
	).Scan(&f.ID, &f.Name, &f.Extension, &f.MimeType, &f.Size, &f.Path, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return File{}, fmt.Errorf("upload %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return File{}, fmt.Errorf("lookup upload %s: %w", id, err)
	}
	f.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return f, nil
}

// Details resolves ids to file references for the chat row. Unknown ids
// keep only their FileID.
func (s *Store) Details(ctx context.Context, ids []string) []domain.FileRef {
	refs := make([]domain.FileRef, 0, len(ids))
	for _, id := range ids {
		f, err := s.Get(ctx, id)
		if err != nil {
			s.logger.Warn("attachment not found", "id", id, "err", err)
			refs = append(refs, domain.FileRef{FileID: id})
			continue
		}
		refs = append(refs, domain.FileRef{FileID: f.ID, Name: f.Name, Extension: f.Extension})
	}
	return refs
}

// Text returns the readable text of an upload. PDFs are converted, other
// files are read as UTF-8 text.
func (s *Store) Text(ctx context.Context, id string) (domain.FileText, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return domain.FileText{}, err
	}
	var text string
	if f.Extension == "pdf" || f.MimeType == "application/pdf" {
		text, err = pdfText(f.Path)
	} else {
		var data []byte
		data, err = os.ReadFile(f.Path)
		text = string(data)
	}
	if err != nil {
		return domain.FileText{}, fmt.Errorf("read %s: %w", f.Name, err)
	}
	text, _ = domain.TruncateRunes(text, maxTextChars)
	return domain.FileText{Name: f.Name, Text: text}, nil
}

// LoadTexts extracts every file in parallel, keeping the input order.
// Files that cannot be read are logged and left out; the error is only
// set when ctx ends first.
func (s *Store) LoadTexts(ctx context.Context, ids []string) ([]domain.FileText, error) {
	texts := make([]domain.FileText, len(ids))
	loaded := make([]bool, len(ids))
	var g errgroup.Group
	g.SetLimit(4)
	for i, id := range ids {
		g.Go(func() error {
			t, err := s.Text(ctx, id)
			if err != nil {
				s.logger.Warn("skipping attachment", "id", id, "err", err)
				return nil
			}
			texts[i], loaded[i] = t, true
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.FileText, 0, len(ids))
	for i, ok := range loaded {
		if ok {
			out = append(out, texts[i])
		}
	}
	return out, nil
}

func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	rd, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	// Enough bytes for maxTextChars characters of any width; Text trims
	// to the character limit.
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(rd, int64(maxTextChars+1)*utf8.UTFMax)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
