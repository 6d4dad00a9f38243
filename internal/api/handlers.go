package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/orchestrator"
	"github.com/roach88/shiftsync/internal/store"
)

// subscribeRequest is the body of POST /teams/{id}/subscribe. The team id
// comes from the path.
type subscribeRequest struct {
	BusinessUnitID string                   `json:"businessUnitId"`
	TimeZone       string                   `json:"timeZone"`
	DraftMode      *bool                    `json:"draftMode,omitempty"`
	Credentials    model.Credentials        `json:"credentials"`
	ClearSchedule  *orchestrator.ClearInput `json:"clearSchedule,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// badRequest marks errors caused by the request itself.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "fail", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sub := orchestrator.Subscription{
		TeamID:         chi.URLParam(r, "id"),
		BusinessUnitID: req.BusinessUnitID,
		TimeZone:       req.TimeZone,
		DraftMode:      req.DraftMode,
		Credentials:    req.Credentials,
		ClearSchedule:  req.ClearSchedule,
	}
	if sub.ClearSchedule != nil {
		sub.ClearSchedule.TeamID = sub.TeamID
	}
	if err := sub.Validate(); err != nil {
		s.writeError(w, r, badRequest{err})
		return
	}
	started, err := s.orch.Subscribe(r.Context(), sub)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": started})
}

func (s *Server) unsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Unsubscribe(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Refresh(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Stop(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	h, err := s.orch.Health(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) scheduleAction(w http.ResponseWriter, r *http.Request) {
	var in orchestrator.DeferredInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.TeamID = chi.URLParam(r, "id")
	if err := in.Validate(); err != nil {
		s.writeError(w, r, badRequest{err})
		return
	}
	id, err := s.orch.ScheduleAction(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"instanceId": id})
}

func (s *Server) clear(w http.ResponseWriter, r *http.Request) {
	var in orchestrator.ClearInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.TeamID = chi.URLParam(r, "id")
	if err := in.Validate(); err != nil {
		s.writeError(w, r, badRequest{err})
		return
	}
	started, err := s.orch.StartClear(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusAccepted
	if !started {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]bool{"started": started})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest{fmt.Errorf("decode body: %w", err)}
	}
	return nil
}

func statusOf(err error) int {
	var br badRequest
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, orchestrator.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrDisabled):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
