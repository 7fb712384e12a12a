package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lumino-gateway/internal/api"
	"lumino-gateway/internal/auth"
	"lumino-gateway/internal/automation"
	"lumino-gateway/internal/cache"
	"lumino-gateway/internal/observability/metrics"
	"lumino-gateway/internal/storage"
)

type stubVerifier struct{}

func (stubVerifier) Verify(context.Context, string) (auth.Identity, error) {
	return auth.Identity{UID: "uid-1", Email: "user@example.com"}, nil
}

type stubCatalog struct{}

func (stubCatalog) Voices(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"data":{"voices":[]}}`), nil
}

func (stubCatalog) Avatars(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"data":{"avatars":[]}}`), nil
}

type stubForwarder struct{}

func (stubForwarder) Forward(context.Context, automation.Request) (automation.Response, error) {
	return automation.Response{Body: []byte("ok"), ContentType: "text/plain"}, nil
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = t.TempDir()
		cfg.StaticDir = staticDir
	}
	images, err := storage.NewImageStore(storage.ImageStoreConfig{
		StaticDir:     staticDir,
		PublicBaseURL: "http://localhost:8000",
	})
	if err != nil {
		t.Fatalf("image store: %v", err)
	}
	handler := &api.Handler{
		Verifier:   stubVerifier{},
		Secret:     auth.NewSecretGate("shared"),
		Catalog:    stubCatalog{},
		Automation: stubForwarder{},
		Images:     images,
		Cache:      cache.New(time.Hour),
		Metrics:    metrics.New(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if cfg.Metrics == nil {
		cfg.Metrics = handler.Metrics
	}
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	return srv
}

func TestNewRequiresStaticDir(t *testing.T) {
	if _, err := New(&api.Handler{}, Config{}); err == nil {
		t.Fatal("expected error for missing static dir")
	}
}

func TestRoutesAreWired(t *testing.T) {
	srv := newTestServer(t, Config{})

	for _, tc := range []struct {
		path string
		want int
	}{
		{path: "/", want: http.StatusOK},
		{path: "/healthz", want: http.StatusOK},
		{path: "/metrics", want: http.StatusOK},
		{path: "/api/me", want: http.StatusUnauthorized},
		{path: "/api/voices", want: http.StatusUnauthorized},
		{path: "/api/avatars", want: http.StatusUnauthorized},
	} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.want, rec.Code)
		}
	}
}

func TestAuthorizedCatalogThroughFullChain(t *testing.T) {
	srv := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/api/voices", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"data":{"voices":[]}}` {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestStaticFilesServedFromDisk(t *testing.T) {
	staticDir := t.TempDir()
	assetPath := filepath.Join(staticDir, "images")
	if err := os.MkdirAll(assetPath, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(assetPath, "pic.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	srv := newTestServer(t, Config{StaticDir: staticDir})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/images/pic.png", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "png-bytes" {
		t.Fatalf("unexpected file contents: %q", rec.Body.String())
	}
}

func TestStaticMissingFileIs404(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/images/missing.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMetricsMiddlewareCountsRequests(t *testing.T) {
	recorder := metrics.New()
	srv := newTestServer(t, Config{Metrics: recorder})

	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := recorder.RequestCount("GET", "/healthz", http.StatusOK); got != 1 {
		t.Fatalf("expected 1 observed request, got %d", got)
	}
}
