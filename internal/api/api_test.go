package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MJE43/minesweep-relay/internal/logging"
	"github.com/MJE43/minesweep-relay/internal/store"
)

// mockDB is a simple mock implementation of store.DB for testing
type mockDB struct {
	statsErr error
	lastQ    store.SessionsQuery
}

func (m *mockDB) Close() error                         { return nil }
func (m *mockDB) Migrate(ctx context.Context) error    { return nil }
func (m *mockDB) SaveSession(s *store.Session) error   { return nil }
func (m *mockDB) UpdateSession(s *store.Session) error { return nil }
func (m *mockDB) GetSession(id string) (*store.Session, error) {
	if id == "known" {
		return &store.Session{ID: id, Rows: 9, Cols: 9, Bombs: 10, Outcome: "won"}, nil
	}
	return nil, store.ErrNotFound
}
func (m *mockDB) ListSessions(q store.SessionsQuery) (*store.SessionsList, error) {
	m.lastQ = q
	return &store.SessionsList{Sessions: []store.Session{}, Page: 1, PerPage: 50}, nil
}
func (m *mockDB) Stats() (*store.Stats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return &store.Stats{TotalSessions: 3, Won: 1}, nil
}

type fixedLive int

func (f fixedLive) ActiveSessions() int { return int(f) }

func serve(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(&mockDB{}, fixedLive(4), logging.Discard())
	w := serve(t, srv, "/health")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp HealthCheckResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != HealthStatusHealthy {
		t.Errorf("Expected healthy, got %s", resp.Status)
	}
	if resp.ActiveSessions != 4 {
		t.Errorf("Expected 4 active sessions, got %d", resp.ActiveSessions)
	}
	if resp.EngineVersion == "" {
		t.Error("Expected engine version in response")
	}
	if w.Header().Get("X-Engine-Version") != EngineVersion {
		t.Error("Expected X-Engine-Version header")
	}
}

func TestHealthEndpointDegradedAndUnhealthy(t *testing.T) {
	w := serve(t, NewServer(nil, nil, logging.Discard()), "/health")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for a degraded service, got %d", w.Code)
	}
	var resp HealthCheckResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != HealthStatusDegraded {
		t.Errorf("Expected degraded, got %s", resp.Status)
	}

	broken := &mockDB{statsErr: errors.New("disk I/O error")}
	w = serve(t, NewServer(broken, fixedLive(0), logging.Discard()), "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestPresetsEndpoint(t *testing.T) {
	w := serve(t, NewServer(&mockDB{}, nil, logging.Discard()), "/api/v1/presets")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp PresetsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Presets) != 3 {
		t.Fatalf("Expected 3 presets, got %d", len(resp.Presets))
	}
	if p := resp.Presets[0]; p.Name != "beginner" || p.Rows != 9 || p.Bombs != 10 {
		t.Errorf("unexpected first preset %+v", p)
	}
}

func TestSessionEndpoints(t *testing.T) {
	db := &mockDB{}
	srv := NewServer(db, nil, logging.Discard())

	w := serve(t, srv, "/api/v1/sessions/known")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var sess store.Session
	if err := json.NewDecoder(w.Body).Decode(&sess); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if sess.ID != "known" || sess.Outcome != "won" {
		t.Errorf("unexpected session %+v", sess)
	}

	w = serve(t, srv, "/api/v1/sessions/missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if w.Header().Get("X-Error-Type") != ErrTypeNotFound {
		t.Errorf("Expected X-Error-Type %s, got %s", ErrTypeNotFound, w.Header().Get("X-Error-Type"))
	}

	w = serve(t, srv, "/api/v1/sessions?outcome=lost&page=2&perPage=10")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if db.lastQ != (store.SessionsQuery{Outcome: "lost", Page: 2, PerPage: 10}) {
		t.Errorf("unexpected query %+v", db.lastQ)
	}
}

func TestSessionListValidation(t *testing.T) {
	srv := NewServer(&mockDB{}, nil, logging.Discard())
	for path, wantType := range map[string]string{
		"/api/v1/sessions?outcome=exploded": ErrTypeValidation,
		"/api/v1/sessions?page=-1":          ErrTypeInvalidParams,
		"/api/v1/sessions?perPage=ten":      ErrTypeInvalidParams,
	} {
		w := serve(t, srv, path)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", path, w.Code)
		}
		var resp EngineError
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Type != wantType || resp.RequestID == "" {
			t.Errorf("%s: unexpected error body %+v", path, resp)
		}
		if got := w.Header().Get("X-Error-Category"); got != string(CategoryValidation) {
			t.Errorf("%s: expected validation category, got %q", path, got)
		}
	}
}

func TestLedgerDisabled(t *testing.T) {
	w := serve(t, NewServer(nil, nil, logging.Discard()), "/api/v1/stats")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestStatsFromSQLite(t *testing.T) {
	db, err := store.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteDB failed: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	for _, outcome := range []string{"won", "lost"} {
		if err := db.SaveSession(&store.Session{Rows: 5, Cols: 5, Bombs: 5, Outcome: outcome}); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}
	}

	w := serve(t, NewServer(db, nil, logging.Discard()), "/api/v1/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var stats struct {
		TotalSessions int    `json:"total_sessions"`
		WinRate       string `json:"win_rate"`
	}
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if stats.TotalSessions != 2 || stats.WinRate != "0.5" {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestRecoveryHandler(t *testing.T) {
	eh := NewErrorHandler(logging.Discard())
	h := eh.RecoveryHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if w.Header().Get("X-Error-Category") != string(CategorySystem) {
		t.Errorf("unexpected category %q", w.Header().Get("X-Error-Category"))
	}
}
