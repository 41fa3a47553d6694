package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/clearhaul/fleetcomply/engine/domain"
	"github.com/clearhaul/fleetcomply/engine/ingest"
	"github.com/clearhaul/fleetcomply/engine/reconcile"
	"github.com/clearhaul/fleetcomply/pkg/metrics"
	"github.com/clearhaul/fleetcomply/pkg/mid"
	"github.com/clearhaul/fleetcomply/pkg/resilience"
)

type api struct {
	engine    *reconcile.Engine
	processor *ingest.Processor
	registry  *metrics.Registry
	log       *slog.Logger
}

func newAPI(engine *reconcile.Engine, processor *ingest.Processor, registry *metrics.Registry, log *slog.Logger) *api {
	return &api{engine: engine, processor: processor, registry: registry, log: log}
}

func (a *api) routes(uploadLimiter *resilience.Limiter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.Handle("POST /api/documents", mid.Chain(http.HandlerFunc(a.handleAddDocument), mid.RateLimit(uploadLimiter)))
	mux.HandleFunc("GET /api/vehicles", a.handleListVehicles)
	mux.HandleFunc("GET /api/vehicles/search", a.handleSearch)
	mux.HandleFunc("GET /api/vehicles/{vin}", a.handleGetVehicle)
	mux.HandleFunc("GET /api/expiring", a.handleExpiring)
	mux.HandleFunc("GET /api/stats", a.handleStats)
	mux.HandleFunc("GET /api/state", a.handleExportState)
	mux.HandleFunc("POST /api/state", a.handleImportState)
	mux.HandleFunc("POST /api/conflicts/resolve", a.handleResolveConflict)
	mux.Handle("GET /metrics", a.registry.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAddDocument processes one raw extraction synchronously and returns
// the full outcome, including any detected conflicts.
func (a *api) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var raw domain.RawExtraction
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	out, err := a.processor.Process(r.Context(), &raw)
	if err != nil {
		if errors.Is(err, domain.ErrNoVIN) {
			writeJSON(w, http.StatusUnprocessableEntity, out)
			return
		}
		a.log.Error("document processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "document processing failed")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleListVehicles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.GetAllVehicles())
}

func (a *api) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	vehicle, err := a.engine.GetVehicle(r.PathValue("vin"))
	if err != nil {
		if errors.Is(err, domain.ErrVehicleNotFound) {
			writeError(w, http.StatusNotFound, "vehicle not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, vehicle)
}

func (a *api) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := reconcile.SearchCriteria{
		VIN:          q.Get("vin"),
		Make:         q.Get("make"),
		Model:        q.Get("model"),
		Year:         q.Get("year"),
		LicensePlate: q.Get("license_plate"),
		Status:       domain.OverallStatus(q.Get("status")),
		Risk:         domain.RiskLevel(q.Get("risk")),
	}
	writeJSON(w, http.StatusOK, a.engine.SearchVehicles(criteria))
}

func (a *api) handleExpiring(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "days must be a non-negative integer")
			return
		}
		days = n
	}
	writeJSON(w, http.StatusOK, a.engine.GetExpiringSoon(days))
}

func (a *api) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.GetStats())
}

func (a *api) handleExportState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.Export())
}

func (a *api) handleImportState(w http.ResponseWriter, r *http.Request) {
	var state reconcile.State
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		writeError(w, http.StatusBadRequest, "invalid state payload")
		return
	}
	if err := a.engine.Import(&state); err != nil {
		if errors.Is(err, domain.ErrBadStateImport) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}

type resolveRequest struct {
	VIN        string `json:"vin"`
	ConflictID string `json:"conflict_id"`
	Resolution string `json:"resolution"`
}

func (a *api) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.VIN == "" || req.ConflictID == "" {
		writeError(w, http.StatusBadRequest, "vin and conflict_id are required")
		return
	}
	err := a.engine.ResolveConflict(req.VIN, req.ConflictID, req.Resolution)
	switch {
	case errors.Is(err, domain.ErrVehicleNotFound), errors.Is(err, domain.ErrConflictNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "resolve failed")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
	}
}
