package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/soundprediction/graphmem/pkg/config"
	"github.com/soundprediction/graphmem/pkg/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	reg := store.NewRegistry()
	reg.Register(store.SQLiteProfile(filepath.Join(t.TempDir(), "server.db")))

	mgr, err := store.Open(context.Background(), reg, store.BackendSQLite)
	if err != nil {
		t.Fatalf("failed to open backend: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host: "localhost",
			Port: 8080,
			Mode: "test",
		},
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	server := New(cfg, mgr, reg, logger)
	server.Setup()
	return server
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func TestSetup(t *testing.T) {
	server := newTestServer(t)

	if server.router == nil {
		t.Error("expected router to be initialized")
	}

	if server.server == nil {
		t.Error("expected http.Server to be initialized")
	}

	expectedAddr := "localhost:8080"
	if server.server.Addr != expectedAddr {
		t.Errorf("expected addr %s, got %s", expectedAddr, server.server.Addr)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	w := doJSON(t, server, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestReadyEndpoint(t *testing.T) {
	server := newTestServer(t)

	w := doJSON(t, server, http.MethodGet, "/ready", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestEntityLifecycle(t *testing.T) {
	server := newTestServer(t)

	w := doJSON(t, server, http.MethodPost, "/api/v1/entities", map[string]any{
		"entities": []map[string]any{
			{"name": "Python", "entityType": "language", "observations": []string{"interpreted"}},
			{"name": "FastAPI", "entityType": "framework"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	// Duplicate creation maps to 409.
	w = doJSON(t, server, http.MethodPost, "/api/v1/entities", map[string]any{
		"entities": []map[string]any{
			{"name": "Python", "entityType": "language"},
		},
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409 for duplicate, got %d", w.Code)
	}

	w = doJSON(t, server, http.MethodPost, "/api/v1/relations", map[string]any{
		"relations": []map[string]any{
			{"from": "FastAPI", "to": "Python", "relationType": "written_in"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	// Dangling endpoint maps to 422.
	w = doJSON(t, server, http.MethodPost, "/api/v1/relations", map[string]any{
		"relations": []map[string]any{
			{"from": "Ghost", "to": "Python", "relationType": "haunts"},
		},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422 for dangling reference, got %d", w.Code)
	}

	w = doJSON(t, server, http.MethodGet, "/api/v1/graph/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var stats map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats["entities_count"].(float64) != 2 {
		t.Errorf("expected entities_count 2, got %v", stats["entities_count"])
	}
	if stats["relations_count"].(float64) != 1 {
		t.Errorf("expected relations_count 1, got %v", stats["relations_count"])
	}

	w = doJSON(t, server, http.MethodDelete, "/api/v1/entities", map[string]any{
		"names": []string{"Python"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	w = doJSON(t, server, http.MethodGet, "/api/v1/graph", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var graph struct {
		Entities  []any `json:"entities"`
		Relations []any `json:"relations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &graph); err != nil {
		t.Fatalf("failed to decode graph: %v", err)
	}
	if len(graph.Entities) != 1 {
		t.Errorf("expected 1 entity after delete, got %d", len(graph.Entities))
	}
	if len(graph.Relations) != 0 {
		t.Errorf("expected cascade to remove relations, got %d", len(graph.Relations))
	}
}

func TestSearchEndpoint(t *testing.T) {
	server := newTestServer(t)

	doJSON(t, server, http.MethodPost, "/api/v1/entities", map[string]any{
		"entities": []map[string]any{
			{"name": "Python", "entityType": "language", "observations": []string{"interpreted"}},
		},
	})

	w := doJSON(t, server, http.MethodGet, "/api/v1/graph/search?q=interpreted", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	// Missing query parameter is a client error.
	w = doJSON(t, server, http.MethodGet, "/api/v1/graph/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without q, got %d", w.Code)
	}
}

func TestBackendEndpoints(t *testing.T) {
	server := newTestServer(t)

	w := doJSON(t, server, http.MethodGet, "/api/v1/backend", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status["active"] != "sqlite" {
		t.Errorf("expected active sqlite, got %v", status["active"])
	}

	// Switching to an unregistered backend maps to 404 and keeps the active one.
	w = doJSON(t, server, http.MethodPost, "/api/v1/backend/switch", map[string]any{
		"backend": "oracle",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown backend, got %d", w.Code)
	}

	w = doJSON(t, server, http.MethodGet, "/api/v1/backend", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestUserEndpoints(t *testing.T) {
	server := newTestServer(t)

	w := doJSON(t, server, http.MethodPost, "/api/v1/users", map[string]any{
		"username": "ada",
		"password": "s3cret",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, server, http.MethodPost, "/api/v1/users", map[string]any{
		"username": "ada",
		"password": "other",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409 for duplicate username, got %d", w.Code)
	}

	w = doJSON(t, server, http.MethodPut, "/api/v1/users/password", map[string]any{
		"username": "nobody",
		"password": "x",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown user, got %d", w.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	server := newTestServer(t)

	w := doJSON(t, server, http.MethodPost, "/api/v1/sessions", map[string]any{
		"session_id":  "sess-1",
		"tool_name":   "memory",
		"method_name": "create_entities",
		"parameters":  map[string]any{"count": 2},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, server, http.MethodGet, "/api/v1/sessions/sess-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var listed []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("failed to decode invocations: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(listed))
	}

	w = doJSON(t, server, http.MethodPut, "/api/v1/invocations/999/result", map[string]any{
		"success":      false,
		"execution_ms": 1,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown invocation, got %d", w.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	server := newTestServer(t)

	// Test OPTIONS request (CORS preflight)
	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)

	// OPTIONS should return 204 No Content
	if w.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for OPTIONS, got %d", w.Code)
	}

	// Check CORS headers
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected Access-Control-Allow-Origin header")
	}

	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("expected Access-Control-Allow-Methods header")
	}
}

func TestRouteExists(t *testing.T) {
	server := newTestServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/ready"},
		{http.MethodGet, "/live"},
		{http.MethodGet, "/health/detailed"},
		{http.MethodGet, "/api/v1/graph"},
		{http.MethodGet, "/api/v1/graph/flat"},
		{http.MethodGet, "/api/v1/graph/stats"},
		{http.MethodPost, "/api/v1/graph/open"},
		{http.MethodPost, "/api/v1/entities"},
		{http.MethodDelete, "/api/v1/entities"},
		{http.MethodPost, "/api/v1/observations"},
		{http.MethodDelete, "/api/v1/observations"},
		{http.MethodPost, "/api/v1/relations"},
		{http.MethodDelete, "/api/v1/relations"},
		{http.MethodGet, "/api/v1/backend"},
		{http.MethodPost, "/api/v1/backend/switch"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, nil)
			w := httptest.NewRecorder()

			server.router.ServeHTTP(w, req)

			if w.Code == http.StatusNotFound {
				t.Errorf("route %s %s returned 404, route not registered", route.method, route.path)
			}
		})
	}
}
