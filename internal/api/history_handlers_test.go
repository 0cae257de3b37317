package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/progressd/internal/store"
)

func TestHistoryHandlerListRuns(t *testing.T) {
	t.Parallel()

	repo := &mockHistoryRepo{
		runs: []store.TaskRun{
			{
				ID:         uuid.New(),
				Name:       "nightly-rebuild",
				StartedAt:  time.Now().Add(-time.Hour),
				FinishedAt: time.Now(),
				Elapsed:    time.Hour,
			},
		},
	}
	handler := NewHistoryHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/history?limit=10", nil)
	rec := httptest.NewRecorder()

	handler.ListRuns(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "runs")
}

func TestHistoryHandlerGetRun(t *testing.T) {
	t.Parallel()

	taskID := uuid.New()
	repo := &mockHistoryRepo{
		runs: []store.TaskRun{
			{
				ID:         taskID,
				Name:       "etl-run",
				StartedAt:  time.Unix(100, 0),
				FinishedAt: time.Unix(160, 0),
				Elapsed:    time.Minute,
			},
		},
		steps: []store.StepDuration{
			{TaskID: taskID, Position: 0, Path: "extract", Total: 40 * time.Second, Self: 40 * time.Second},
			{TaskID: taskID, Position: 1, Path: "load", Total: 20 * time.Second, Self: 20 * time.Second},
		},
	}
	handler := NewHistoryHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/history/"+taskID.String(), nil)
	req = withTaskIDParam(req, taskID.String())
	rec := httptest.NewRecorder()

	handler.GetRun(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "etl-run")
	require.Contains(t, rec.Body.String(), "totalDuration")
	require.Contains(t, rec.Body.String(), "extract")
}

func TestHistoryHandlerGetRunNotFound(t *testing.T) {
	t.Parallel()

	repo := &mockHistoryRepo{err: store.ErrNotFound}
	handler := NewHistoryHandler(repo, zap.NewNop())

	taskID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/history/"+taskID.String(), nil)
	req = withTaskIDParam(req, taskID.String())
	rec := httptest.NewRecorder()

	handler.GetRun(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryHandlerListRunsInvalidLimit(t *testing.T) {
	t.Parallel()

	handler := NewHistoryHandler(&mockHistoryRepo{}, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/history?limit=-1", nil)
	rec := httptest.NewRecorder()

	handler.ListRuns(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryHandlerNoRepository(t *testing.T) {
	t.Parallel()

	handler := NewHistoryHandler(nil, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	rec := httptest.NewRecorder()

	handler.ListRuns(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type mockHistoryRepo struct {
	runs  []store.TaskRun
	steps []store.StepDuration
	err   error
}

func (m *mockHistoryRepo) InsertTaskRun(context.Context, store.TaskRun) error {
	return m.err
}

func (m *mockHistoryRepo) InsertStepDurations(context.Context, uuid.UUID, []store.StepDuration) error {
	return m.err
}

func (m *mockHistoryRepo) GetTaskRun(context.Context, uuid.UUID) (store.TaskRun, error) {
	if len(m.runs) > 0 {
		return m.runs[0], nil
	}
	return store.TaskRun{}, m.err
}

func (m *mockHistoryRepo) ListTaskRuns(context.Context, int, int) ([]store.TaskRun, error) {
	return m.runs, m.err
}

func (m *mockHistoryRepo) ListStepDurations(context.Context, uuid.UUID) ([]store.StepDuration, error) {
	return m.steps, m.err
}

func withTaskIDParam(r *http.Request, taskID string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("task_id", taskID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, ctx))
}
