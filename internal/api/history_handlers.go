package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/progressd/internal/progress"
	"github.com/JakeFAU/progressd/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	historyTimeout      = 3 * time.Second
)

// HistoryHandler exposes read-only finished-task endpoints.
type HistoryHandler struct {
	repo    store.TaskRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewHistoryHandler wires the repository and logger.
func NewHistoryHandler(repo store.TaskRepository, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryHandler{
		repo:    repo,
		timeout: historyTimeout,
		logger:  logger,
	}
}

// ListRuns handles GET /v1/history?limit=&offset=. It returns a JSON object
// {"runs": [...]} newest-first on success, 400 for invalid paging, 503 when
// no repository is configured, or 500 if the repository call fails.
func (h *HistoryHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "task history unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	runs, err := h.repo.ListTaskRuns(ctx, limit, offset)
	if err != nil {
		h.logger.Error("list task runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": toRunDTOs(runs),
	})
}

// GetRun handles GET /v1/history/{task_id}. It returns {"run": {...},
// "durations": [...]} on success, 400 for malformed IDs, 404 when the
// repository reports store.ErrNotFound, 503 if no repository is configured,
// or 500 otherwise.
func (h *HistoryHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "task history unavailable")
		return
	}
	taskID, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetTaskRun(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get task run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	steps, err := h.repo.ListStepDurations(ctx, taskID)
	if err != nil {
		h.logger.Error("list step durations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load durations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run":       toRunDTO(run),
		"durations": toStepDTOs(steps),
	})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func toRunDTOs(in []store.TaskRun) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, run := range in {
		out = append(out, toRunDTO(run))
	}
	return out
}

func toRunDTO(run store.TaskRun) runDTO {
	return runDTO{
		ID:         run.ID.String(),
		Name:       run.Name,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Elapsed:    progress.Duration(run.Elapsed),
	}
}

func toStepDTOs(in []store.StepDuration) []stepDTO {
	out := make([]stepDTO, 0, len(in))
	for _, s := range in {
		out = append(out, stepDTO{
			Path:  s.Path,
			Total: progress.Duration(s.Total),
			Self:  progress.Duration(s.Self),
		})
	}
	return out
}

type runDTO struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Elapsed    progress.Duration `json:"elapsed"`
}

type stepDTO struct {
	Path  string            `json:"path"`
	Total progress.Duration `json:"totalDuration"`
	Self  progress.Duration `json:"selfDuration"`
}
