package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JakeFAU/progressd/internal/progress"
	"github.com/JakeFAU/progressd/internal/registry"
)

type createTaskRequest struct {
	Name string `json:"name"`
}

// reportRequest is the wire form of one step report. Slot carries the
// logical identity; reports with equal slots replace each other on the
// task's stack.
type reportRequest struct {
	Slot    string `json:"slot"`
	Name    string `json:"name"`
	Current uint64 `json:"current"`
	Total   uint64 `json:"total"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "task name required")
		return
	}
	task, err := s.registry.Create(req.Name)
	if err != nil {
		if errors.Is(err, registry.ErrClosed) {
			writeError(w, http.StatusServiceUnavailable, "registry closed")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"taskId": task.ID.String()})
}

func (s *Server) listTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.registry.List()})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := s.registry.Summarize(taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": summary})
}

func (s *Server) reportStep(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Slot == "" {
		writeError(w, http.StatusBadRequest, "slot is required")
		return
	}
	if s.policy != nil && !s.policy.Allow(taskID) {
		writeError(w, http.StatusTooManyRequests, "report rate exceeded")
		return
	}
	step := progress.NewSlotStep(req.Slot, req.Name, req.Current, req.Total)
	if err := s.registry.Report(taskID, step); err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			writeError(w, http.StatusNotFound, "task not found")
		case errors.Is(err, registry.ErrTaskFinished):
			writeError(w, http.StatusConflict, "task already finished")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) finishTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.registry.Finish(r.Context(), taskID); err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if s.policy != nil {
		s.policy.Forget(taskID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "finished"})
}

func (s *Server) viewTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := s.registry.View(taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) taskDurations(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	durations, err := s.registry.Durations(taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, durations)
}

func parseTaskID(r *http.Request) (uuid.UUID, error) {
	taskIDStr := chi.URLParam(r, "task_id")
	if taskIDStr == "" {
		return uuid.UUID{}, errors.New("task_id is required")
	}
	taskID, err := uuid.Parse(taskIDStr)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid task_id")
	}
	return taskID, nil
}
