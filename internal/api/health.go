package api

import (
	"fmt"
	"net/http"
	"time"
)

type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// handleHealth reports each dependency. Any failing service marks the whole
// response degraded with status 503.
func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := map[string]string{}
		degraded := false
		set := func(name string, err error, ok string) {
			if err != nil {
				services[name] = "error: " + err.Error()
				degraded = true
				return
			}
			services[name] = ok
		}

		set("database", deps.Store.Ping(r.Context()), "ok")
		if deps.Generator != nil {
			set("generator", deps.Generator.Check(), "ok")
		} else {
			set("generator", fmt.Errorf("not configured"), "")
		}
		_, specErr := deps.Spec.Read()
		set("spec", specErr, "ok")

		if at := deps.Registry.RefreshedAt(); at.IsZero() {
			services["components"] = "not scanned"
		} else {
			services["components"] = fmt.Sprintf("%d registered, scanned %s", len(deps.Registry.List()), at.UTC().Format(time.RFC3339))
		}

		resp := HealthResponse{Status: "ok", Services: services}
		code := http.StatusOK
		if degraded {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
