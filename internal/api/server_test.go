package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/progressd/internal/config"
	"github.com/JakeFAU/progressd/internal/policy/simple"
	"github.com/JakeFAU/progressd/internal/registry"
)

func TestServer_CreateTask_Succeeds(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	rec := doRequest(server, http.MethodPost, "/v1/tasks", `{"name":"nightly-rebuild"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), "taskId")
}

func TestServer_CreateTask_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	rec := doRequest(server, http.MethodPost, "/v1/tasks", "{invalid")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CreateTask_MissingName(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	rec := doRequest(server, http.MethodPost, "/v1/tasks", `{"name":""}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "task name required")
}

func TestServer_TaskLifecycle(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	id := createTask(t, server, "etl-run")

	reportBody := `{"slot":"extract","name":"Extracting","current":1,"total":4}`
	rec := doRequest(server, http.MethodPost, "/v1/tasks/"+id+"/report", reportBody)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(server, http.MethodGet, "/v1/tasks/"+id+"/view", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Extracting")
	require.Contains(t, rec.Body.String(), `"percentage":25`)

	rec = doRequest(server, http.MethodGet, "/v1/tasks/"+id+"/durations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Extracting")
	require.Contains(t, rec.Body.String(), "totalDuration")

	rec = doRequest(server, http.MethodGet, "/v1/tasks/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "etl-run")

	rec = doRequest(server, http.MethodPost, "/v1/tasks/"+id+"/finish", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "finished")

	rec = doRequest(server, http.MethodPost, "/v1/tasks/"+id+"/report", reportBody)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_GetTask_NotFound(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	rec := doRequest(server, http.MethodGet, "/v1/tasks/"+uuid.NewString(), "")

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_GetTask_InvalidID(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	rec := doRequest(server, http.MethodGet, "/v1/tasks/not-a-uuid", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid task_id")
}

func TestServer_ListTasks(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	createTask(t, server, "alpha")
	createTask(t, server, "beta")

	rec := doRequest(server, http.MethodGet, "/v1/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "alpha")
	require.Contains(t, rec.Body.String(), "beta")
}

func TestServer_ReportStep_Throttled(t *testing.T) {
	t.Parallel()

	reg := registry.New(registry.Config{Logger: zap.NewNop()}, nil, nil)
	server := NewServer(reg, &denyPolicy{}, nil, testConfig(), zap.NewNop())
	id := createTask(t, server, "throttled")

	rec := doRequest(server, http.MethodPost, "/v1/tasks/"+id+"/report", `{"slot":"load"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestServer_FinishTask_ForgetsPolicy(t *testing.T) {
	t.Parallel()

	reg := registry.New(registry.Config{Logger: zap.NewNop()}, nil, nil)
	policy := &denyPolicy{}
	server := NewServer(reg, policy, nil, testConfig(), zap.NewNop())
	id := createTask(t, server, "cleanup")

	rec := doRequest(server, http.MethodPost, "/v1/tasks/"+id+"/finish", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, policy.forgottenIDs(), 1)
}

func TestServer_Readyz_RegistryClosed(t *testing.T) {
	t.Parallel()

	reg := registry.New(registry.Config{Logger: zap.NewNop()}, nil, nil)
	server := NewServer(reg, simple.New(), nil, testConfig(), zap.NewNop())

	rec := doRequest(server, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	reg.Close()
	rec = doRequest(server, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	reg := registry.New(registry.Config{Logger: zap.NewNop()}, nil, nil)
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	server := NewServer(reg, simple.New(), nil, cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer().Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

func testConfig() config.Config {
	return config.Config{
		Logging: config.LoggingConfig{Development: true},
	}
}

func newTestServer() *Server {
	reg := registry.New(registry.Config{Logger: zap.NewNop()}, nil, nil)
	return NewServer(reg, simple.New(), nil, testConfig(), zap.NewNop())
}

func createTask(t *testing.T, server *Server, name string) string {
	t.Helper()
	rec := doRequest(server, http.MethodPost, "/v1/tasks", fmt.Sprintf(`{"name":%q}`, name))
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		TaskID string `json:"taskId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.TaskID)
	return resp.TaskID
}

func doRequest(server *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

type denyPolicy struct {
	mu        sync.Mutex
	forgotten []uuid.UUID
}

func (p *denyPolicy) Allow(_ uuid.UUID) bool { return false }

func (p *denyPolicy) Forget(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forgotten = append(p.forgotten, id)
}

func (p *denyPolicy) forgottenIDs() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uuid.UUID(nil), p.forgotten...)
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
