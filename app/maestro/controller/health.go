package controller

import (
	"net/http"

	"github.com/arcline/maestro/pkg/health"
	"github.com/arcline/maestro/pkg/temporal"
)

type healthResponse struct {
	health.Report
	Engine *temporal.Health `json:"engine,omitempty"`
}

// HandleHealth recomputes the aggregated health on every request; it
// never fails the probe itself.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Report: c.Service.Health(r.Context())}
	if c.Engine != nil {
		probe := c.Engine.Health(r.Context())
		resp.Engine = &probe
	}

	status := http.StatusOK
	if resp.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.writeJSON(w, status, resp)
}

// HandleStats reports discovery, schedule, and worker counters.
func (c *Controller) HandleStats(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(w, http.StatusOK, c.Service.Stats())
}
