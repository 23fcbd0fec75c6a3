package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campuskit/schoolstock-backend/internal/stock"
	pkgauth "github.com/campuskit/schoolstock-backend/pkg/auth"
	"github.com/campuskit/schoolstock-backend/pkg/config"
	"github.com/campuskit/schoolstock-backend/pkg/db/models"
	"github.com/campuskit/schoolstock-backend/pkg/enums"
	"github.com/campuskit/schoolstock-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubEngine struct {
	stock.Engine
	listCalls int
}

func (s *stubEngine) ListTasks(context.Context, int) ([]models.ReconciliationTask, error) {
	s.listCalls++
	return []models.ReconciliationTask{}, nil
}

func testRouterConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev", Port: "8080"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "issuer"},
	}
}

func newTestRouter(t *testing.T, engine stock.Engine) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	return NewRouter(RouterParams{
		Config: testRouterConfig(),
		Logger: logg,
		DB:     stubPinger{},
		Stock:  engine,
	})
}

func mintToken(t *testing.T, role enums.UserRole) string {
	t.Helper()
	cfg := testRouterConfig().JWT
	token, err := pkgauth.MintAccessToken(cfg, time.Now(), time.Hour, uuid.New(), role)
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}
	return token
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t, &stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if rec.Header().Get("X-SchoolStock-Env") != "dev" {
		t.Fatalf("expected env header, got %q", rec.Header().Get("X-SchoolStock-Env"))
	}
}

func TestHealthReady(t *testing.T) {
	router := newTestRouter(t, &stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	router := newTestRouter(t, &stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	engine := &stubEngine{}
	router := newTestRouter(t, engine)

	t.Run("manager blocked", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/reconciliation", nil)
		req.Header.Set("Authorization", "Bearer "+mintToken(t, enums.UserRoleManager))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 got %d", rec.Code)
		}
		if engine.listCalls != 0 {
			t.Fatal("engine must not be reached without admin role")
		}
	})

	t.Run("admin allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/reconciliation", nil)
		req.Header.Set("Authorization", "Bearer "+mintToken(t, enums.UserRoleAdmin))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", rec.Code)
		}
		if engine.listCalls != 1 {
			t.Fatalf("expected one engine call got %d", engine.listCalls)
		}
	})
}
