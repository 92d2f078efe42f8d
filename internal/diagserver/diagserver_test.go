package diagserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/azure-patch/linux-patch-core/internal/config"
	"github.com/azure-patch/linux-patch-core/internal/diagserver"
	"github.com/azure-patch/linux-patch-core/internal/extenv"
	"github.com/azure-patch/linux-patch-core/internal/history"
	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
	"github.com/azure-patch/linux-patch-core/internal/status"
)

func TestGetStatusServesCurrentSequenceFile(t *testing.T) {
	t.Setenv("ConfigSequenceNumber", "9")
	env := recorder.NewReplay(recorder.Fixture{
		Now: time.Now().UTC(),
		Files: map[string][]byte{
			"/ext/status/9.status": []byte(`[{"status":"success"}]`),
		},
	})
	layout := extenv.NewLayout("/ext")
	srv := diagserver.New(zap.NewNop().Sugar(), env, layout, nil, config.Diagnostics{Address: "127.0.0.1:0"})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `[{"status":"success"}]` {
		t.Errorf("GET /status body = %s, want the raw status file contents", rec.Body.String())
	}
}

func TestGetHistoryWithoutStoreReturns503(t *testing.T) {
	env := recorder.NewReplay(recorder.Fixture{Now: time.Now().UTC()})
	layout := extenv.NewLayout("/ext")
	srv := diagserver.New(zap.NewNop().Sugar(), env, layout, nil, config.Diagnostics{Address: "127.0.0.1:0"})

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /history status = %d, want 503 when no history store is configured", rec.Code)
	}
}

func TestGetExtStateMissingReturns404(t *testing.T) {
	env := recorder.NewReplay(recorder.Fixture{Now: time.Now().UTC()})
	layout := extenv.NewLayout("/ext")
	srv := diagserver.New(zap.NewNop().Sugar(), env, layout, nil, config.Diagnostics{Address: "127.0.0.1:0"})

	req := httptest.NewRequest(http.MethodGet, "/extstate", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /extstate status = %d, want 404 when ExtState.json is absent", rec.Code)
	}
}

func TestMetricsStartsAtZeroWithoutHistory(t *testing.T) {
	env := recorder.NewReplay(recorder.Fixture{Now: time.Now().UTC()})
	layout := extenv.NewLayout("/ext")
	srv := diagserver.New(zap.NewNop().Sugar(), env, layout, nil, config.Diagnostics{Address: "127.0.0.1:0"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mspatch_last_run_installed_patch_count 0") {
		t.Errorf("GET /metrics body = %s, want the installed-count gauge present at zero", rec.Body.String())
	}
}

func TestMetricsReflectMostRecentHistoryRecordAfterRefresh(t *testing.T) {
	store, err := history.Open(context.Background(), ":memory:", zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	defer store.Close()

	start := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	r := history.RecordFromSummary(status.Summary{
		ActivityID:            "act-1",
		Operation:             models.OperationInstallation,
		Outcome:               status.StatusSuccess,
		InstalledCount:        4,
		FailedCount:           1,
		CriticalSecurityCount: 2,
		OtherCount:            3,
	}, 7, start, start.Add(time.Minute))
	if err := store.Record(context.Background(), r); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	env := recorder.NewReplay(recorder.Fixture{Now: time.Now().UTC()})
	layout := extenv.NewLayout("/ext")
	srv := diagserver.New(zap.NewNop().Sugar(), env, layout, store, config.Diagnostics{Address: "127.0.0.1:0"})

	if err := srv.RefreshMetricsForTest(context.Background()); err != nil {
		t.Fatalf("RefreshMetricsForTest() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "mspatch_last_run_installed_patch_count 4") {
		t.Errorf("GET /metrics body = %s, want installed-count gauge = 4", body)
	}
	if !strings.Contains(body, "mspatch_last_run_failed_patch_count 1") {
		t.Errorf("GET /metrics body = %s, want failed-count gauge = 1", body)
	}
}
