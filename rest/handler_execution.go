package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/relaypoint/relaypoint/logger"
	"github.com/relaypoint/relaypoint/persistence"
)

type triggerRunRequest struct {
	RelayId         string         `json:"relayId"`
	TriggerMetadata map[string]any `json:"triggerMetadata"`
}

func (s *Server) HandleTriggerRun(w http.ResponseWriter, r *http.Request) {
	var runReq triggerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&runReq); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid run request body")
		return
	}
	defer r.Body.Close()
	run, err := s.executionService.TriggerRun(runReq.RelayId, runReq.TriggerMetadata)
	if err != nil {
		logger.Error("error starting run", zap.String("relayId", runReq.RelayId), zap.Error(err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondOK(w, map[string]any{"runId": run.Id, "status": run.Status})
}

func (s *Server) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	run, err := s.executionService.GetRun(id)
	if err != nil {
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			respondWithError(w, http.StatusNotFound, "run does not exist")
			return
		}
		logger.Error("error getting run", zap.String("id", id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error getting run")
		return
	}
	respondWithJSON(w, http.StatusOK, run)
}
