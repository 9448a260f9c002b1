// Package api exposes the sketches over HTTP and reports service health over gRPC.
package api

import (
	"BehaviorSpectra/internal/config"
	"BehaviorSpectra/internal/engine/detector"
	"BehaviorSpectra/internal/engine/manager"
	"BehaviorSpectra/internal/engine/registry"
	"BehaviorSpectra/internal/model"
	"BehaviorSpectra/internal/probe"
	"BehaviorSpectra/internal/query"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	manager *manager.Manager
	// querier serves stored anomalies, nil when no ClickHouse writer is configured.
	querier query.Querier
	// configPath is reread on reload.
	configPath string
}

// NewRouter returns the HTTP routes of the engine. querier may be nil.
func NewRouter(mgr *manager.Manager, querier query.Querier, configPath string) *mux.Router {
	h := &APIHandler{manager: mgr, querier: querier, configPath: configPath}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/profiles", h.profilesHandler).Methods("GET")
	r.HandleFunc("/api/v1/profiles/{index}/estimate", h.estimateHandler).Methods("GET")
	r.HandleFunc("/api/v1/profiles/{index}/update", h.updateHandler).Methods("POST")
	r.HandleFunc("/api/v1/events", h.eventsHandler).Methods("POST")
	r.HandleFunc("/api/v1/reload", h.reloadHandler).Methods("POST")
	r.HandleFunc("/api/v1/anomalies", h.anomaliesHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

// EstimateResponse is returned by the estimate and update endpoints.
type EstimateResponse struct {
	Index    int    `json:"index"`
	Key      string `json:"key"`
	Estimate uint64 `json:"estimate"`
}

// UpdateRequest is the body of the update endpoint. A zero delta counts one occurrence.
type UpdateRequest struct {
	Key   string `json:"key"`
	Delta uint64 `json:"delta"`
}

// EventResponse lists the anomalies an event produced.
type EventResponse struct {
	Anomalies []model.AnomalyRecord `json:"anomalies"`
}

func (h *APIHandler) profilesHandler(w http.ResponseWriter, r *http.Request) {
	profiles := h.manager.Detector().Profiles()
	if profiles == nil {
		profiles = []detector.ProfileInfo{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (h *APIHandler) estimateHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing query parameter 'key'", http.StatusBadRequest)
		return
	}

	est, err := h.manager.Detector().EstimateKey(index, key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EstimateResponse{Index: index, Key: key, Estimate: est})
}

func (h *APIHandler) updateHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return
	}
	if req.Key == "" {
		http.Error(w, "missing field 'key'", http.StatusBadRequest)
		return
	}
	if req.Delta == 0 {
		req.Delta = 1
	}

	det := h.manager.Detector()
	if err := det.UpdateKey(index, req.Key, req.Delta); err != nil {
		writeError(w, err)
		return
	}
	est, err := det.EstimateKey(index, req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EstimateResponse{Index: index, Key: req.Key, Estimate: est})
}

func (h *APIHandler) eventsHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read request body: %v", err), http.StatusBadRequest)
		return
	}
	evt, err := probe.DecodeEventJSON(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to decode event: %v", err), http.StatusBadRequest)
		return
	}

	anomalies, err := h.manager.Process(evt)
	if err != nil {
		writeError(w, err)
		return
	}
	if anomalies == nil {
		anomalies = []model.AnomalyRecord{}
	}
	writeJSON(w, http.StatusOK, EventResponse{Anomalies: anomalies})
}

func (h *APIHandler) reloadHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := config.LoadConfig(h.configPath)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.manager.Reload(cfg); err != nil {
		writeError(w, err)
		return
	}
	log.Printf("Configuration reloaded from %s via API", h.configPath)
	writeJSON(w, http.StatusOK, h.manager.Detector().Profiles())
}

// anomaliesHandler lists stored anomalies filtered by the optional profile, since, until, key and
// limit query parameters.
func (h *APIHandler) anomaliesHandler(w http.ResponseWriter, r *http.Request) {
	if h.querier == nil {
		http.Error(w, "anomaly history requires an enabled clickhouse writer", http.StatusServiceUnavailable)
		return
	}
	q, err := parseAnomalyQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := h.querier.Anomalies(r.Context(), q)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query anomalies: %v", err), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.AnomalyRecord{}
	}
	writeJSON(w, http.StatusOK, EventResponse{Anomalies: records})
}

func parseAnomalyQuery(r *http.Request) (query.AnomalyQuery, error) {
	params := r.URL.Query()
	q := query.AnomalyQuery{Key: params.Get("key")}
	if v := params.Get("profile"); v != "" {
		profile, err := strconv.Atoi(v)
		if err != nil || profile < 0 {
			return q, fmt.Errorf("invalid profile '%s'", v)
		}
		q.Profile = &profile
	}
	for name, dst := range map[string]*time.Time{"since": &q.Since, "until": &q.Until} {
		if v := params.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return q, fmt.Errorf("invalid %s '%s': expected RFC3339", name, v)
			}
			*dst = t
		}
	}
	if v := params.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return q, fmt.Errorf("invalid limit '%s'", v)
		}
		q.Limit = limit
	}
	return q, nil
}

func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := mux.Vars(r)["index"]
	index, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid profile index '%s'", raw), http.StatusBadRequest)
		return 0, false
	}
	return index, true
}

func writeError(w http.ResponseWriter, err error) {
	var cerr *registry.ConfigError
	switch {
	case errors.Is(err, registry.ErrIndexOutOfRange):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, detector.ErrDisabled):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &cerr):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonBytes)
}
