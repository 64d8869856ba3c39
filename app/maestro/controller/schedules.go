package controller

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type noteRequest struct {
	Note string `json:"note,omitempty"`
}

func (c *Controller) HandleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := c.Service.TriggerSchedule(r.Context(), vars["scheduleId"]); err != nil {
		c.writeError(w, statusFor(err), err)
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (c *Controller) HandlePauseSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req noteRequest
	if r.ContentLength > 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := c.Service.PauseSchedule(r.Context(), vars["scheduleId"], req.Note); err != nil {
		c.writeError(w, statusFor(err), err)
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (c *Controller) HandleResumeSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req noteRequest
	if r.ContentLength > 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := c.Service.ResumeSchedule(r.Context(), vars["scheduleId"], req.Note); err != nil {
		c.writeError(w, statusFor(err), err)
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (c *Controller) HandleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := c.Service.DeleteSchedule(r.Context(), vars["scheduleId"]); err != nil {
		c.writeError(w, statusFor(err), err)
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (c *Controller) HandleRestartWorker(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := c.Service.RestartWorker(r.Context(), vars["taskQueue"]); err != nil {
		c.writeError(w, statusFor(err), err)
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (c *Controller) HandleWorkerStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	status, err := c.Service.WorkerStatus(vars["taskQueue"])
	if err != nil {
		c.writeError(w, statusFor(err), err)
		return
	}
	c.writeJSON(w, http.StatusOK, status)
}
