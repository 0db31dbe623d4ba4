// Package api serves the HTTP surface: the WebSocket endpoint, the chat
// library, mode listing, uploads, rendered images and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"searchbot/internal/domain"
	"searchbot/internal/modes"
	"searchbot/internal/uploads"
)

// ChatStore is the read/delete side of the history store.
type ChatStore interface {
	ListChats(ctx context.Context, limit int) ([]domain.Chat, error)
	GetChat(ctx context.Context, id string) (domain.Chat, error)
	Messages(ctx context.Context, chatID string) ([]domain.PersistedMessage, error)
	DeleteChat(ctx context.Context, id string) error
}

type Uploader interface {
	Save(ctx context.Context, name, mimeType string, r io.Reader) (uploads.File, error)
}

type ModeLister interface {
	Definitions() []modes.Definition
}

// CacheClearer empties the search result cache.
type CacheClearer interface {
	ClearCache() int
}

type Config struct {
	Chats       ChatStore
	Uploads     Uploader
	Modes       ModeLister
	SearchCache CacheClearer // optional
	WebSocket   http.Handler
	ImageDir    string       // served under /images/ when set
	Metrics     http.Handler // nil disables the metrics route
	MetricsPath string
	MaxUpload   int64
	Logger      *slog.Logger
}

type Server struct {
	chats     ChatStore
	uploads   Uploader
	modes     ModeLister
	cache     CacheClearer
	maxUpload int64
	logger    *slog.Logger
	started   time.Time
	router    chi.Router
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = 20 << 20
	}
	s := &Server{
		chats:     cfg.Chats,
		uploads:   cfg.Uploads,
		modes:     cfg.Modes,
		cache:     cfg.SearchCache,
		maxUpload: cfg.MaxUpload,
		logger:    cfg.Logger,
		started:   time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", s.handleHealth)
	if cfg.WebSocket != nil {
		r.Handle("/ws", cfg.WebSocket)
	}
	if cfg.Metrics != nil {
		r.Handle(cfg.MetricsPath, cfg.Metrics)
	}
	if cfg.ImageDir != "" {
		r.Handle("/images/*", http.StripPrefix("/images/", http.FileServer(http.Dir(cfg.ImageDir))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/modes", s.handleModes)
		r.Get("/chats", s.handleListChats)
		r.Get("/chats/{chatID}", s.handleGetChat)
		r.Delete("/chats/{chatID}", s.handleDeleteChat)
		if s.uploads != nil {
			r.Post("/uploads", s.handleUpload)
		}
		if s.cache != nil {
			r.Delete("/cache/clear", s.handleClearCache)
		}
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "searchbot",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	n := s.cache.ClearCache()
	writeJSON(w, http.StatusOK, map[string]any{"message": "Cache cleared successfully", "entries": n})
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"modes": s.modes.Definitions()})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	chats, err := s.chats.ListChats(r.Context(), limit)
	if err != nil {
		s.logger.Error("list chats failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if chats == nil {
		chats = []domain.Chat{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chatID")
	chat, err := s.chats.GetChat(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "chat not found"})
		return
	}
	if err != nil {
		s.logger.Error("get chat failed", "chat_id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	msgs, err := s.chats.Messages(r.Context(), id)
	if err != nil {
		s.logger.Error("list messages failed", "chat_id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if msgs == nil {
		msgs = []domain.PersistedMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat": chat, "messages": msgs})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chatID")
	err := s.chats.DeleteChat(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "chat not found"})
		return
	}
	if err != nil {
		s.logger.Error("delete chat failed", "chat_id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "chat deleted"})
}

type uploadedFile struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload*4)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no files provided"})
		return
	}

	out := make([]uploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read " + fh.Filename})
			return
		}
		saved, err := s.uploads.Save(r.Context(), fh.Filename, fh.Header.Get("Content-Type"), f)
		f.Close()
		if errors.Is(err, uploads.ErrTooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": fh.Filename + " is too large"})
			return
		}
		if err != nil {
			s.logger.Error("upload failed", "name", fh.Filename, "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		out = append(out, uploadedFile{FileID: saved.ID, FileName: saved.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
