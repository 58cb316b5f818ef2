package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/evodash/internal/opslog"
	"github.com/kalambet/evodash/internal/specstore"
)

func handleGetSpec(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := deps.Spec.Read()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func handlePatchFeature(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var patch specstore.FeaturePatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if patch.Status == nil && patch.Description == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "status or description is required")
			return
		}

		doc, err := deps.Spec.Write(func(d *specstore.Document) error {
			return d.PatchFeature(name, patch)
		})
		if err != nil {
			writeError(w, err)
			return
		}
		deps.Ops.Info(opslog.KindSpecUpdated, "", "feature "+name+" updated, spec v"+doc.Version)
		if _, err := deps.Registry.Refresh(r.Context()); err != nil {
			deps.Logger.Warn("refreshing registry after spec patch", "error", err)
		}
		writeJSON(w, http.StatusOK, doc.Features[name])
	}
}

func handleAddWorkflow(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var wf specstore.WorkflowSpec
		if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		doc, err := deps.Spec.Write(func(d *specstore.Document) error {
			return d.AddWorkflow(wf)
		})
		if err != nil {
			writeError(w, err)
			return
		}
		deps.Ops.Info(opslog.KindSpecUpdated, "", "workflow added, spec v"+doc.Version)
		writeJSON(w, http.StatusCreated, doc.Workflows[len(doc.Workflows)-1])
	}
}

func handleListRevisions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 200)
		revs, err := deps.Store.ListSpecRevisions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list spec revisions: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, revs)
	}
}
