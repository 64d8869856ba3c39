// Package health derives one actionable status from independent
// component snapshots. Aggregation is a pure function: same snapshots
// in, same status out, recomputed on every query and never cached.
package health

// Status is the unified service status.
type Status string

const (
	StatusHealthy      Status = "healthy"
	StatusDegraded     Status = "degraded"
	StatusUnhealthy    Status = "unhealthy"
	StatusNotAvailable Status = "not_available"
)

// ClientHealth is the engine connectivity signal.
type ClientHealth struct {
	Connected bool   `json:"connected"`
	Detail    string `json:"detail,omitempty"`
}

// WorkerSnapshot is the worker contribution. A nil snapshot means no
// worker is configured at all; that deployment mode is legal and the
// worker is reported not_available rather than failing health.
type WorkerSnapshot struct {
	IsInitialized bool   `json:"isInitialized"`
	IsRunning     bool   `json:"isRunning"`
	IsHealthy     bool   `json:"isHealthy"`
	TaskQueue     string `json:"taskQueue,omitempty"`
	LastError     string `json:"lastError,omitempty"`
}

// ScheduleSnapshot is the schedule registry contribution.
type ScheduleSnapshot struct {
	Count  int   `json:"count"`
	Errors int64 `json:"errors"`
}

// DiscoverySnapshot is the discovery contribution.
type DiscoverySnapshot struct {
	Controllers int `json:"controllers"`
	Scheduled   int `json:"scheduled"`
}

// Report is the aggregated result plus per-component statuses and the
// reasons behind a non-healthy verdict.
type Report struct {
	Status    Status   `json:"status"`
	Client    Status   `json:"client"`
	Worker    Status   `json:"worker"`
	Schedules Status   `json:"schedules"`
	Discovery Status   `json:"discovery"`
	Details   []string `json:"details,omitempty"`
}

// Aggregate combines the four component snapshots into one status.
// Precedence: client connectivity is a hard dependency, a configured
// worker that initialized but is not running is a hard failure, and the
// soft signals (unhealthy-while-running worker, mis-registration,
// schedule errors) degrade but never fail the service.
func Aggregate(client ClientHealth, worker *WorkerSnapshot, schedules ScheduleSnapshot, discovery DiscoverySnapshot) Report {
	r := Report{
		Client:    StatusHealthy,
		Worker:    StatusNotAvailable,
		Schedules: StatusHealthy,
		Discovery: StatusHealthy,
	}

	if !client.Connected {
		r.Client = StatusUnhealthy
		detail := client.Detail
		if detail == "" {
			detail = "engine connection is down"
		}
		r.Details = append(r.Details, detail)
	}

	hardFailure := !client.Connected

	if worker != nil {
		switch {
		case worker.IsInitialized && !worker.IsRunning:
			r.Worker = StatusUnhealthy
			r.Details = append(r.Details, "worker initialized but not running: "+worker.TaskQueue)
			hardFailure = true
		case worker.IsRunning && !worker.IsHealthy:
			r.Worker = StatusDegraded
			r.Details = append(r.Details, "worker running but reporting unhealthy: "+worker.TaskQueue)
		case worker.IsRunning:
			r.Worker = StatusHealthy
		default:
			// configured but never initialized; contributes nothing
			r.Worker = StatusNotAvailable
		}
	}

	if discovery.Controllers > 0 && discovery.Scheduled == 0 {
		r.Discovery = StatusDegraded
		r.Details = append(r.Details, "controllers discovered but no scheduled workflows registered")
	}

	if schedules.Errors > 0 {
		r.Schedules = StatusDegraded
		r.Details = append(r.Details, "schedule registry reported errors")
	}

	switch {
	case hardFailure:
		r.Status = StatusUnhealthy
	case r.Worker == StatusDegraded || r.Discovery == StatusDegraded || r.Schedules == StatusDegraded:
		r.Status = StatusDegraded
	default:
		r.Status = StatusHealthy
	}

	return r
}
