package rest

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/relaypoint/relaypoint/logger"
	"github.com/relaypoint/relaypoint/model"
)

// HandleCatchHook ingests an incoming webhook for a relay. The full request
// (body, headers, query, method, caller ip) becomes the run's trigger
// metadata, so relay configs can reference any of it through placeholders.
// Unknown and inactive relays both answer 404 to keep probing uninformative.
func (s *Server) HandleCatchHook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	relayId := vars["relayId"]

	relay, err := s.metadataService.GetRelay(relayId)
	if err != nil || !relay.Active {
		logger.Warn("webhook for unknown or inactive relay", zap.String("relayId", relayId), zap.String("ip", callerIp(r)))
		respondWithError(w, http.StatusNotFound, "webhook trigger not found or inactive")
		return
	}
	if relay.Trigger.TriggerType != model.TRIGGER_TYPE_INCOMING_WEBHOOK {
		respondWithError(w, http.StatusNotFound, "webhook trigger not found or inactive")
		return
	}

	var body map[string]any
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
		defer r.Body.Close()
	}
	headers := make(map[string]any, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	query := make(map[string]any)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}
	triggerMetadata := map[string]any{
		"type":    "WEBHOOK_RECEIVED",
		"relayId": relayId,
		"webhookData": map[string]any{
			"body":      body,
			"headers":   headers,
			"query":     query,
			"method":    r.Method,
			"ip":        callerIp(r),
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	run, err := s.executionService.TriggerRun(relayId, triggerMetadata)
	if err != nil {
		logger.Error("error starting run from webhook", zap.String("relayId", relayId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error starting run")
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]any{"runId": run.Id, "status": run.Status})
}

func callerIp(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); len(fwd) > 0 {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
