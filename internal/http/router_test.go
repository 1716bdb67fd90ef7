package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appconfig "github.com/micrelay/micrelay/internal/config"
	"github.com/micrelay/micrelay/internal/storage"
	"github.com/micrelay/micrelay/internal/ws"
)

func newTestRouter(t *testing.T) (*gin.Engine, appconfig.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := appconfig.Config{
		ReportsDir:    t.TempDir(),
		FrontendDir:   t.TempDir(),
		ProfileConfig: appconfig.ProfileConfig{ProfileName: "default", ProfileUID: "default"},
	}
	handler := ws.NewHandler(zap.NewNop(), cfg)
	return NewRouter(cfg, handler, zap.NewNop()), cfg
}

func TestHealthRoute(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error=%v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status=%q, want ok", body["status"])
	}
}

func TestSessionsRouteEmpty(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	var body struct {
		Sessions []map[string]any `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error=%v", err)
	}
	if len(body.Sessions) != 0 {
		t.Fatalf("sessions=%d, want 0", len(body.Sessions))
	}
}

func TestReportsRoutes(t *testing.T) {
	router, cfg := newTestRouter(t)
	report := storage.SessionReport{
		UID:        "2025-11-02_10-00-00_abc",
		ProfileUID: "default",
		EndedAt:    "2025-11-02T10:00:30Z",
		FramesOut:  9,
	}
	if err := storage.WriteReport(cfg.ReportsDir, report); err != nil {
		t.Fatalf("WriteReport error=%v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status=%d, want 200", rec.Code)
	}
	var list struct {
		Reports []storage.SessionReport `json:"reports"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal error=%v", err)
	}
	if len(list.Reports) != 1 || list.Reports[0].UID != report.UID {
		t.Fatalf("reports=%+v, want the stored report", list.Reports)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/"+report.UID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status=%d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get missing status=%d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/reports/"+report.UID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status=%d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/reports/"+report.UID, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d, want 404", rec.Code)
	}
}
