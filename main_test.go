package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"rosa-canvas-server/modules/common/config"
	"rosa-canvas-server/modules/common/i18n"
	"rosa-canvas-server/modules/rose"
)

func testRouter(t *testing.T) (http.Handler, *rose.Registry) {
	t.Helper()
	cfg, err := config.FromEnv(func(key string) string {
		if key == "GEMINI_API_KEY" {
			return "test-key"
		}
		return ""
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	catalog := i18n.MustNewCatalog(cfg.DefaultLocale)
	registry := rose.NewRegistry(func(lang language.Tag) *rose.Controller {
		return rose.NewController(rose.ControllerOptions{Catalog: catalog, Language: lang, Logger: zerolog.Nop()})
	}, time.Hour, zerolog.Nop())
	handler := rose.NewHandler(registry, catalog, rose.NewPage(), cfg.MaxUploadMemory, zerolog.Nop())

	return newRouter(cfg, zerolog.Nop(), handler, registry), registry
}

func TestHealthCheck(t *testing.T) {
	router, _ := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" || body["service"] != serviceName {
		t.Errorf("unexpected body: %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestMetricsCountsSessions(t *testing.T) {
	router, _ := testRouter(t)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var body struct {
		Sessions rose.Metrics `json:"sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Sessions.ActiveSessions != 1 || body.Sessions.TotalSessions != 1 {
		t.Errorf("unexpected metrics: %+v", body.Sessions)
	}
}

func TestForceCleanup(t *testing.T) {
	router, _ := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/cleanup", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/rose/generate", nil)
	req.Header.Set("Origin", "https://rosa.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin: got %q", got)
	}
}
