package controller

import (
	"encoding/json"
	"net/http"

	"github.com/arcline/maestro/pkg/errs"
	"github.com/arcline/maestro/pkg/orchestrator"
	"github.com/gorilla/mux"
)

type startWorkflowRequest struct {
	WorkflowType string         `json:"workflowType"`
	Args         []any          `json:"args,omitempty"`
	TaskQueue    string         `json:"taskQueue,omitempty"`
	WorkflowID   string         `json:"workflowId,omitempty"`
	Memo         map[string]any `json:"memo,omitempty"`
}

func (c *Controller) HandleStartWorkflow(w http.ResponseWriter, r *http.Request) {
	var req startWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.writeError(w, http.StatusBadRequest, err)
		return
	}

	exec, err := c.Service.StartWorkflow(r.Context(), req.WorkflowType, req.Args, orchestrator.StartOptions{
		TaskQueue:  req.TaskQueue,
		WorkflowID: req.WorkflowID,
		Memo:       req.Memo,
	})
	if err != nil {
		c.writeError(w, statusFor(err), err)
		return
	}
	c.writeJSON(w, http.StatusOK, exec)
}

type signalRequest struct {
	Args []any `json:"args,omitempty"`
}

func (c *Controller) HandleSignalWorkflow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req signalRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			c.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	if err := c.Service.SignalWorkflow(r.Context(), vars["workflowId"], vars["signalName"], req.Args...); err != nil {
		c.writeError(w, statusFor(err), err)
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (c *Controller) HandleQueryWorkflow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req signalRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			c.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	val, err := c.Service.QueryWorkflow(r.Context(), vars["workflowId"], vars["queryName"], req.Args...)
	if err != nil {
		c.writeError(w, statusFor(err), err)
		return
	}

	var result any
	if val != nil && val.HasValue() {
		if err := val.Get(&result); err != nil {
			c.writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	c.writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (c *Controller) HandleTerminateWorkflow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req reasonRequest
	if r.ContentLength > 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	// fire-and-report: the result carries failure, the HTTP call succeeds
	result := c.Service.TerminateWorkflow(r.Context(), vars["workflowId"], req.Reason)
	c.writeJSON(w, http.StatusOK, result)
}

func (c *Controller) HandleCancelWorkflow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req reasonRequest
	if r.ContentLength > 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result := c.Service.CancelWorkflow(r.Context(), vars["workflowId"], req.Reason)
	c.writeJSON(w, http.StatusOK, result)
}

func statusFor(err error) int {
	switch {
	case errs.IsValidation(err):
		return http.StatusBadRequest
	case errs.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
