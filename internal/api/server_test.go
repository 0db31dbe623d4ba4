package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"searchbot/internal/domain"
	"searchbot/internal/history"
	"searchbot/internal/modes"
	"searchbot/internal/uploads"
)

type fixture struct {
	srv    *httptest.Server
	store  *history.Store
	images string
	cache  *countingCache
}

type countingCache struct {
	entries int
	clears  int
}

func (c *countingCache) ClearCache() int {
	c.clears++
	n := c.entries
	c.entries = 0
	return n
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	store, err := history.Open(filepath.Join(dir, "history.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	up, err := uploads.New(uploads.Config{DB: store.DB(), Dir: filepath.Join(dir, "uploads"), MaxSize: 64, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}

	images := filepath.Join(dir, "images")
	os.MkdirAll(images, 0o755)

	reg := modes.NewRegistry(modes.Defaults(), func(modes.Definition) domain.Producer { return nil })
	cache := &countingCache{entries: 3}
	s := NewServer(Config{
		Chats:       store,
		Uploads:     up,
		Modes:       reg,
		SearchCache: cache,
		ImageDir:    images,
		Metrics:  http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "searchbot_requests_total 0\n")
		}),
		Logger: logger,
	})
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: store, images: images, cache: cache}
}

func (f *fixture) seedChat(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.store.EnsureChat(ctx, domain.Chat{ID: id, Title: "hello", CreatedAt: time.Now(), FocusMode: "webSearch"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.EnsureHumanMessage(ctx, id, "m1", "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.AppendAssistantMessage(ctx, id, "m2", "hi there", domain.Metadata{CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil {
		json.NewDecoder(resp.Body).Decode(v)
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	var body map[string]any
	if code := getJSON(t, f.srv.URL+"/health", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestClearSearchCache(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodDelete, f.srv.URL+"/api/cache/clear", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || body["entries"] != float64(3) {
		t.Errorf("status = %d, body = %v", resp.StatusCode, body)
	}
	if f.cache.clears != 1 {
		t.Errorf("clears = %d, want 1", f.cache.clears)
	}

	if code := getJSON(t, f.srv.URL+"/api/cache/clear", nil); code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", code)
	}
}

func TestModes(t *testing.T) {
	f := newFixture(t)
	var body struct {
		Modes []map[string]any `json:"modes"`
	}
	getJSON(t, f.srv.URL+"/api/modes", &body)
	if len(body.Modes) != len(domain.AllModes) {
		t.Fatalf("got %d modes, want %d", len(body.Modes), len(domain.AllModes))
	}
	if body.Modes[0]["id"] != "webSearch" {
		t.Errorf("first mode = %v", body.Modes[0])
	}
	if _, leaked := body.Modes[0]["responsePrompt"]; leaked {
		t.Error("prompt must not be exposed")
	}
}

func TestChatLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedChat(t, "c1")

	var list struct {
		Chats []domain.Chat `json:"chats"`
	}
	getJSON(t, f.srv.URL+"/api/chats", &list)
	if len(list.Chats) != 1 || list.Chats[0].ID != "c1" {
		t.Fatalf("chats = %+v", list.Chats)
	}

	var detail struct {
		Chat     domain.Chat               `json:"chat"`
		Messages []domain.PersistedMessage `json:"messages"`
	}
	if code := getJSON(t, f.srv.URL+"/api/chats/c1", &detail); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(detail.Messages) != 2 || detail.Messages[1].Role != domain.RoleAssistant {
		t.Fatalf("messages = %+v", detail.Messages)
	}

	req, _ := http.NewRequest(http.MethodDelete, f.srv.URL+"/api/chats/c1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	if code := getJSON(t, f.srv.URL+"/api/chats/c1", nil); code != http.StatusNotFound {
		t.Errorf("after delete status = %d, want 404", code)
	}
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestEmptyChatListIsArray(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/api/chats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(raw, []byte(`"chats":[]`)) {
		t.Errorf("body = %s", raw)
	}
}

func upload(t *testing.T, url, name, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("files", name)
	fw.Write([]byte(content))
	mw.Close()
	resp, err := http.Post(url+"/api/uploads", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestUpload(t *testing.T) {
	f := newFixture(t)
	resp := upload(t, f.srv.URL, "notes.txt", "some notes")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Files []uploadedFile `json:"files"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if len(body.Files) != 1 || body.Files[0].FileName != "notes.txt" || body.Files[0].FileID == "" {
		t.Fatalf("files = %+v", body.Files)
	}

	big := upload(t, f.srv.URL, "big.txt", string(bytes.Repeat([]byte("x"), 100)))
	big.Body.Close()
	if big.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized upload status = %d", big.StatusCode)
	}
}

func TestImagesAndMetrics(t *testing.T) {
	f := newFixture(t)
	os.WriteFile(filepath.Join(f.images, "card.png"), []byte("png"), 0o644)

	resp, err := http.Get(f.srv.URL + "/images/card.png")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(data) != "png" {
		t.Errorf("image status=%d body=%q", resp.StatusCode, data)
	}

	resp, err = http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	data, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Contains(data, []byte("searchbot_requests_total")) {
		t.Errorf("metrics body = %q", data)
	}
}
