package controller

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/arcline/maestro/pkg/orchestrator"
	"github.com/arcline/maestro/pkg/temporal"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// EngineProber enriches the health endpoint with an engine-level probe
// (poller listings). *temporal.Client satisfies it; nil disables the
// enrichment.
type EngineProber interface {
	Health(ctx context.Context) temporal.Health
}

// Controller exposes the orchestrator over HTTP. No authentication:
// this surface is for internal health probes and ops tooling.
type Controller struct {
	Service *orchestrator.Service
	Engine  EngineProber
	Logger  *zap.Logger
}

// NewController returns a new controller.
func NewController(svc *orchestrator.Service, engine EngineProber, logger *zap.Logger) *Controller {
	return &Controller{Service: svc, Engine: engine, Logger: logger}
}

// NewRouter builds the route table.
func (c *Controller) NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", c.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", c.HandleStats).Methods(http.MethodGet)

	r.HandleFunc("/workflows/start", c.HandleStartWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{workflowId}/signal/{signalName}", c.HandleSignalWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{workflowId}/query/{queryName}", c.HandleQueryWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{workflowId}/terminate", c.HandleTerminateWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{workflowId}/cancel", c.HandleCancelWorkflow).Methods(http.MethodPost)

	r.HandleFunc("/schedules/{scheduleId}/trigger", c.HandleTriggerSchedule).Methods(http.MethodPost)
	r.HandleFunc("/schedules/{scheduleId}/pause", c.HandlePauseSchedule).Methods(http.MethodPost)
	r.HandleFunc("/schedules/{scheduleId}/resume", c.HandleResumeSchedule).Methods(http.MethodPost)
	r.HandleFunc("/schedules/{scheduleId}", c.HandleDeleteSchedule).Methods(http.MethodDelete)

	r.HandleFunc("/workers/{taskQueue}/restart", c.HandleRestartWorker).Methods(http.MethodPost)
	r.HandleFunc("/workers/{taskQueue}", c.HandleWorkerStatus).Methods(http.MethodGet)

	return r
}

func (c *Controller) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.Logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (c *Controller) writeError(w http.ResponseWriter, status int, err error) {
	c.writeJSON(w, status, map[string]string{"error": err.Error()})
}
