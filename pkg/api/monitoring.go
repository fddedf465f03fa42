package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"db-monitor/pkg/model"
	"db-monitor/pkg/monitor"
	"db-monitor/pkg/store"
)

type monitoringHandler struct {
	svc      *monitor.Service
	store    store.InstanceStore
	hub      *WSHub
	interval time.Duration
	log      logrus.FieldLogger
}

type instanceIDRequest struct {
	InstanceID json.RawMessage `json:"instanceId"`
}

func (h *monitoringHandler) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/monitoring/instances", h.handleInstances)
	mux.HandleFunc("POST /api/monitoring/start", h.handleStart)
	mux.HandleFunc("POST /api/monitoring/stop", h.handleStop)
	mux.HandleFunc("GET /api/monitoring/realtime-data/{id}", h.handleRealtime)
	mux.HandleFunc("GET /api/monitoring/realtime/{id}", h.handleRealtime)
	mux.HandleFunc("GET /api/monitoring/history-data/{id}", h.handleHistory)
	mux.HandleFunc("GET /api/monitoring/history/{id}", h.handleHistory)
	mux.HandleFunc("GET /api/monitoring/test-connection", h.handleRegistryCheck)
	mux.HandleFunc("GET /api/monitoring/ws", h.handleWS)
}

func (h *monitoringHandler) handleInstances(w http.ResponseWriter, _ *http.Request) {
	list, err := h.svc.Instances()
	if err != nil {
		failErr(w, err)
		return
	}
	ok(w, redactAll(list))
}

func (h *monitoringHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, err := decodeInstanceID(r)
	if err != nil {
		failErr(w, err)
		return
	}
	report, degraded, err := h.svc.Start(r.Context(), id)
	if err != nil {
		failErr(w, err)
		return
	}
	if degraded {
		w.Header().Set(DegradedHeader, "true")
	}
	ok(w, report)
}

func (h *monitoringHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	id, err := decodeInstanceID(r)
	if err != nil {
		failErr(w, err)
		return
	}
	ok(w, h.svc.Stop(r.Context(), id))
}

func (h *monitoringHandler) handleRealtime(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		failErr(w, err)
		return
	}
	report, degraded, err := h.svc.Realtime(r.Context(), id)
	if err != nil {
		failErr(w, err)
		return
	}
	if degraded {
		w.Header().Set(DegradedHeader, "true")
	}
	ok(w, report)
}

func (h *monitoringHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		failErr(w, err)
		return
	}
	hist, err := h.svc.History(r.Context(), id, r.URL.Query().Get("timeRange"))
	if err != nil {
		failErr(w, err)
		return
	}
	ok(w, hist.Payload())
}

// handleRegistryCheck reports whether the instance registry is reachable.
func (h *monitoringHandler) handleRegistryCheck(w http.ResponseWriter, _ *http.Request) {
	list, err := h.store.ListInstances()
	if err != nil {
		h.log.WithError(err).Error("registry check failed")
		fail(w, http.StatusInternalServerError, "registry unavailable")
		return
	}
	ok(w, map[string]int{"instances": len(list)})
}

func (h *monitoringHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.URL.Query().Get("instanceId"))
	if err != nil {
		failErr(w, err)
		return
	}
	if _, found, err := h.store.GetInstance(id); err != nil {
		failErr(w, err)
		return
	} else if !found {
		failErr(w, monitor.ErrNotFound)
		return
	}
	h.hub.Serve(w, r, id, h.interval, h.svc.Realtime)
}

func decodeInstanceID(r *http.Request) (uint, error) {
	var req instanceIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, monitor.Validation("invalid payload")
	}
	return parseIDValue(req.InstanceID)
}

func redactAll(in []model.Instance) []model.Instance {
	out := make([]model.Instance, len(in))
	for i, inst := range in {
		out[i] = inst.Redacted()
	}
	return out
}
