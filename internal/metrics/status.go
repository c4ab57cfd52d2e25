package metrics

import (
	"encoding/json"
	"net/http"
)

// Report is the JSON body served at the status endpoint: a read-only
// snapshot of what is currently running, since the control handle itself
// is in-process only and carries no wire protocol (pkg/plugin.ControlHandle
// doc comment).
type Report struct {
	InstanceID string            `json:"instance_id"`
	Sources    []string          `json:"sources"`
	Transforms []TransformStatus `json:"transforms"`
	Outputs    []string          `json:"outputs"`
}

// TransformStatus reports one transform's name and whether its bit is
// currently set in the shared activation word.
type TransformStatus struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// StatusProvider is queried once per request to build a Report. The daemon
// implements it over the live pipeline.
type StatusProvider interface {
	Status() Report
}

func statusHandler(provider StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(provider.Status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
