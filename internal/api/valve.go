package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-valve/internal/command"
	"github.com/nerrad567/gray-logic-valve/internal/protocol"
	"github.com/nerrad567/gray-logic-valve/internal/valve"
)

// stateResponse is the body of GET /valve/state.
type stateResponse struct {
	DeviceID  string                 `json:"device_id"`
	Timestamp string                 `json:"timestamp"`
	Observed  valve.ObservedState    `json:"observed"`
	Error     string                 `json:"error"`
	ErrorCode int                    `json:"error_code"`
	Requested valve.RequestedControl `json:"requested"`
	Config    valve.ControlConfig    `json:"config"`
	Actuating bool                   `json:"actuating"`
	NextRuns  []string               `json:"next_runs,omitempty"`
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	observed := s.store.Observed()
	resp := stateResponse{
		DeviceID:  s.deviceID,
		Timestamp: protocol.Timestamp(s.now()),
		Observed:  observed,
		Error:     observed.ErrorMessage(),
		ErrorCode: int(observed.ErrorCode()),
		Requested: s.store.Requested(),
		Config:    s.store.Config(),
	}
	if s.loop != nil {
		resp.Actuating = s.loop.Actuating()
	}
	if s.schedule != nil {
		for _, t := range s.schedule.NextRuns() {
			resp.NextRuns = append(resp.NextRuns, t.Format(time.RFC3339))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSetCommand overwrites RequestedControl. The loop acts on it at its
// next tick, so the response only confirms acceptance.
func (s *Server) handleSetCommand(w http.ResponseWriter, r *http.Request) {
	var req valve.RequestedControl
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	s.commands.Submit(command.ChannelHTTP, req)
	if c := claimsFrom(r); c != nil {
		s.logger.Debug("valve command accepted", "subject", c.Subject, "token_id", c.ID)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"requested": req,
	})
}

// handleSetControl replaces ControlConfig. A persistence failure still leaves
// the new configuration active and is reported as a 500.
func (s *Server) handleSetControl(w http.ResponseWriter, r *http.Request) {
	var req valve.ControlConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.commands.SubmitControl(r.Context(), command.ChannelHTTP, req)
	switch {
	case errors.Is(err, command.ErrPersist):
		writeInternalError(w, "control config applied but not saved")
		return
	case err != nil:
		writeInternalError(w, "failed to apply control config")
		return
	}

	writeJSON(w, http.StatusOK, s.store.Config())
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "actuation history not available")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.history.ListActuations(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing actuation history failed", "error", err)
		writeInternalError(w, "failed to list actuation history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"actuations": records,
		"count":      len(records),
	})
}
