package render

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"searchbot/internal/domain"
	"searchbot/internal/httpx"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAbsolutize(t *testing.T) {
	tests := []struct {
		base, u, want string
	}{
		{"http://localhost:3001", "/images/a.svg", "http://localhost:3001/images/a.svg"},
		{"http://localhost:3001/", "images/a.svg", "http://localhost:3001/images/a.svg"},
		{"http://localhost:3001", "https://cdn.example.com/a.png", "https://cdn.example.com/a.png"},
		{"", "/images/a.svg", "/images/a.svg"},
		{"http://localhost:3001", "", ""},
	}
	for _, tt := range tests {
		if got := Absolutize(tt.base, tt.u); got != tt.want {
			t.Errorf("Absolutize(%q, %q) = %q, want %q", tt.base, tt.u, got, tt.want)
		}
	}
}

func TestHTTPClientRender(t *testing.T) {
	var got renderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"imageUrl":"/images/x.svg","downloadUrl":"/images/x.svg"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{Endpoint: srv.URL + "/api/text-to-image", Logger: testLogger()})
	res, err := c.Render(context.Background(), "# Title", domain.RenderOptions{Theme: "dark", Width: 640})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got.Text != "# Title" || got.Theme != "dark" || got.Width != 640 {
		t.Errorf("unexpected request %+v", got)
	}
	if res.ImageURL != "/images/x.svg" || res.DownloadURL != "/images/x.svg" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHTTPClientRenderFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"service reports failure", http.StatusOK, `{"success":false,"error":"text too long"}`},
		{"malformed body", http.StatusOK, `not json`},
		{"client error", http.StatusBadRequest, `{"error":"missing text"}`},
		{"server error", http.StatusInternalServerError, `oops`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewHTTPClient(HTTPConfig{
				Endpoint: srv.URL,
				Retry:    httpx.Retry{Max: 1, Base: time.Millisecond},
				Logger:   testLogger(),
			})
			if _, err := c.Render(context.Background(), "x", domain.RenderOptions{Theme: "light", Width: 800}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPage(t *testing.T) {
	out := Page("# Title\n## Sub\n- one\n- two\nplain <b>", "dark", 640)
	for _, want := range []string{"<h1>Title</h1>", "<h2>Sub</h2>", "<li>one</li>", "<p>plain &lt;b&gt;</p>", "width:640px", "#0d1117"} {
		if !strings.Contains(out, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Count(out, "<ul>") != 1 {
		t.Errorf("expected one list, got %d", strings.Count(out, "<ul>"))
	}
}
