package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"TerraNav/internal/model"
	"TerraNav/internal/recorder"
	"TerraNav/internal/util"
)

type statusResponse struct {
	Published uint64      `json:"published"`
	Frame     model.Frame `json:"frame"`
}

type runResponse struct {
	Run    string      `json:"run"`
	Frames int         `json:"frames"`
	Last   model.Frame `json:"last"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.Warn("[app] write response: %v", err)
	}
}

// handleStatus returns the latest telemetry frame.
func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	f, ok := a.Hub.Latest()
	if !ok {
		http.Error(w, "no telemetry yet", http.StatusNotFound)
		return
	}
	writeJSON(w, statusResponse{Published: a.Hub.Published(), Frame: f})
}

// handleRuns lists the recorded runs.
func (a *App) handleRuns(w http.ResponseWriter, r *http.Request) {
	if a.Recorder == nil {
		http.Error(w, "recording disabled", http.StatusServiceUnavailable)
		return
	}
	runs, err := a.Recorder.Runs()
	if err != nil {
		util.Warn("[app] %v", err)
		http.Error(w, "failed to read runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []recorder.RunInfo{}
	}
	writeJSON(w, runs)
}

// handleRun returns the frame count and last frame of one run.
func (a *App) handleRun(w http.ResponseWriter, r *http.Request) {
	if a.Recorder == nil {
		http.Error(w, "recording disabled", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	n, err := a.Recorder.Count(id)
	if err == nil {
		var last model.Frame
		last, err = a.Recorder.Last(id)
		if err == nil {
			writeJSON(w, runResponse{Run: id, Frames: n, Last: last})
			return
		}
	}
	if errors.Is(err, recorder.ErrRunNotFound) {
		http.Error(w, "unknown run", http.StatusNotFound)
		return
	}
	util.Warn("[app] run %s: %v", id, err)
	http.Error(w, "failed to read run", http.StatusInternalServerError)
}
