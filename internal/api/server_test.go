package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ebooklister/ebooklister/internal/api/handlers"
	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T, origins ...string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Debug = true
	cfg.CORSOrigins = origins
	return NewServer(cfg, handlers.NewHandler(handlers.Deps{}, ""))
}

func TestCheckOrigin(t *testing.T) {
	s := newTestServer(t, "https://app.example")
	tests := []struct {
		name   string
		host   string
		origin string
		want   bool
	}{
		{"no origin", "localhost:3003", "", true},
		{"same host", "localhost:3003", "http://localhost:3003", true},
		{"configured", "localhost:3003", "https://app.example", true},
		{"foreign", "localhost:3003", "https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://"+tt.host+"/ws/jobs", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := s.CheckOrigin(req); got != tt.want {
				t.Fatalf("CheckOrigin(%q) = %t, want %t", tt.origin, got, tt.want)
			}
		})
	}

	cfg := config.Default()
	cfg.CORSOrigins = []string{"*"}
	s.UpdateConfig(cfg)
	req := httptest.NewRequest(http.MethodGet, "http://localhost:3003/ws/jobs", nil)
	req.Header.Set("Origin", "https://evil.example")
	if !s.CheckOrigin(req) {
		t.Fatal("wildcard origin rejected after reload")
	}
}

func TestMountServesHandler(t *testing.T) {
	s := newTestServer(t)
	s.Mount("/ws/jobs", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/jobs", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
}
