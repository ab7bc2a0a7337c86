package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/relaypoint/relaypoint/logger"
	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/persistence"
)

func (s *Server) HandleCreateRelay(w http.ResponseWriter, r *http.Request) {
	var relay model.Relay
	if err := json.NewDecoder(r.Body).Decode(&relay); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid relay body")
		return
	}
	defer r.Body.Close()
	saved, err := s.metadataService.SaveRelay(&relay)
	if err != nil {
		logger.Error("error creating relay", zap.Error(err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, saved)
}

func (s *Server) HandleGetRelay(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	relay, err := s.metadataService.GetRelay(id)
	if err != nil {
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			respondWithError(w, http.StatusNotFound, "relay does not exist")
			return
		}
		logger.Error("error getting relay", zap.String("id", id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error getting relay")
		return
	}
	respondWithJSON(w, http.StatusOK, relay)
}

func (s *Server) HandleListRelays(w http.ResponseWriter, r *http.Request) {
	userId := r.URL.Query().Get("userId")
	relays, err := s.metadataService.ListRelays(userId)
	if err != nil {
		logger.Error("error listing relays", zap.String("userId", userId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error listing relays")
		return
	}
	respondWithJSON(w, http.StatusOK, relays)
}
